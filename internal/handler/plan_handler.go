package handler

import (
	"net/http"

	"github.com/hitoshi/studymap/internal/middleware"
	"github.com/hitoshi/studymap/internal/model"
)

// PlanInspector はプラン表示に必要な閲覧ゲートのインターフェース。
type PlanInspector interface {
	RemainingViews(user *model.User) int
	MaxFreeViews() int
}

// PlanHandler は現在のプラン状態を返すHTTPハンドラー。
type PlanHandler struct {
	users UserFinder
	gate  PlanInspector
}

// NewPlanHandler はPlanHandlerを生成する。
func NewPlanHandler(users UserFinder, gate PlanInspector) *PlanHandler {
	return &PlanHandler{
		users: users,
		gate:  gate,
	}
}

// planResponse はプラン状態のAPIレスポンス。
// プレミアムではremaining_viewsを省略しunlimitedをtrueにする。
type planResponse struct {
	Plan           string `json:"plan"`
	ProgramsViewed int    `json:"programs_viewed"`
	MaxViews       int    `json:"max_views"`
	RemainingViews *int   `json:"remaining_views,omitempty"`
	Unlimited      bool   `json:"unlimited"`
}

// GetPlan は現在のユーザーのプラン状態を返す。
// GET /api/plan
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
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

	resp := planResponse{
		Plan:           string(user.Plan),
		ProgramsViewed: user.ProgramsViewed,
		MaxViews:       h.gate.MaxFreeViews(),
	}

	if user.Plan == model.PlanPremium {
		resp.Unlimited = true
	} else {
		remaining := h.gate.RemainingViews(user)
		resp.RemainingViews = &remaining
	}

	writeJSON(w, http.StatusOK, resp)
}
