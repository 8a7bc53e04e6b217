// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studymap/internal/entitlement"
	"github.com/hitoshi/studymap/internal/metrics"
	"github.com/hitoshi/studymap/internal/middleware"
	"github.com/hitoshi/studymap/internal/model"
)

// UserFinder はユーザー取得のための最小インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// ProgramFinder はプログラム取得のための最小インターフェース。
type ProgramFinder interface {
	FindByID(ctx context.Context, id string) (*model.Program, error)
	List(ctx context.Context) ([]*model.Program, error)
}

// EntitlementGate は閲覧ゲートのインターフェース。
type EntitlementGate interface {
	CheckAndRecordView(ctx context.Context, user *model.User, programID string) (*entitlement.Decision, error)
	MaxFreeViews() int
}

// ProgramHandler はプログラムカタログと閲覧ゲートのHTTPハンドラー。
type ProgramHandler struct {
	users     UserFinder
	programs  ProgramFinder
	gate      EntitlementGate
	collector metrics.MetricsCollector
}

// NewProgramHandler はProgramHandlerを生成する。
func NewProgramHandler(users UserFinder, programs ProgramFinder, gate EntitlementGate, collector metrics.MetricsCollector) *ProgramHandler {
	return &ProgramHandler{
		users:     users,
		programs:  programs,
		gate:      gate,
		collector: collector,
	}
}

// programSummary はカタログ一覧のAPIレスポンス。詳細フィールドは含まない。
type programSummary struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	School          string  `json:"school"`
	City            string  `json:"city"`
	Country         string  `json:"country"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	TuitionAmount   int     `json:"tuition_amount"`
	TuitionCurrency string  `json:"tuition_currency"`
}

// programDetail はゲート通過後に返すプログラム詳細。
type programDetail struct {
	programSummary
	Website        string `json:"website"`
	DurationMonths int    `json:"duration_months"`
	Description    string `json:"description"`
}

// viewResponse は閲覧判定のAPIレスポンス。
type viewResponse struct {
	Allowed        bool           `json:"allowed"`
	Reason         string         `json:"reason,omitempty"`
	ProgramsViewed int            `json:"programs_viewed"`
	MaxViews       int            `json:"max_views"`
	Program        *programDetail `json:"program,omitempty"`
}

// ListPrograms はプログラムカタログの一覧を返す。一覧はゲートの対象外。
// GET /api/programs
func (h *ProgramHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.programs.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	summaries := make([]programSummary, 0, len(programs))
	for _, p := range programs {
		summaries = append(summaries, toProgramSummary(p))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"programs": summaries,
	})
}

// ViewProgram はプログラム詳細の閲覧を判定し、許可された場合は詳細を返す。
// POST /api/programs/{id}/view
func (h *ProgramHandler) ViewProgram(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	programID := chi.URLParam(r, "id")
	program, err := h.programs.FindByID(r.Context(), programID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if program == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProgramNotFoundError(programID))
		return
	}

	decision, err := h.gate.CheckAndRecordView(r.Context(), user, programID)
	if err != nil {
		// 無料ユーザーのストア障害: フェイルクローズ
		if h.collector != nil {
			h.collector.RecordViewDenied(string(entitlement.ReasonStoreUnavailable))
		}
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError())
		return
	}

	if !decision.Allowed {
		if h.collector != nil {
			h.collector.RecordViewDenied(string(decision.Reason))
		}
		writeJSON(w, http.StatusOK, viewResponse{
			Allowed:        false,
			Reason:         string(decision.Reason),
			ProgramsViewed: decision.ViewsUsed,
			MaxViews:       decision.ViewLimit,
		})
		return
	}

	if h.collector != nil {
		h.collector.RecordViewAllowed(decision.NewView)
	}

	detail := toProgramDetail(program)
	writeJSON(w, http.StatusOK, viewResponse{
		Allowed:        true,
		ProgramsViewed: decision.ViewsUsed,
		MaxViews:       decision.ViewLimit,
		Program:        &detail,
	})
}

// toProgramSummary はmodel.Programから一覧用レスポンスに変換する。
func toProgramSummary(p *model.Program) programSummary {
	return programSummary{
		ID:              p.ID,
		Name:            p.Name,
		School:          p.School,
		City:            p.City,
		Country:         p.Country,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		TuitionAmount:   p.TuitionAmount,
		TuitionCurrency: p.TuitionCurrency,
	}
}

// toProgramDetail はmodel.Programから詳細レスポンスに変換する。
func toProgramDetail(p *model.Program) programDetail {
	return programDetail{
		programSummary: toProgramSummary(p),
		Website:        p.Website,
		DurationMonths: p.DurationMonths,
		Description:    p.Description,
	}
}
