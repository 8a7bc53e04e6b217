// Package catalog は外部ソースからのプログラムカタログ同期を提供する。
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/studymap/internal/model"
	"github.com/hitoshi/studymap/internal/repository"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Sanitizer はHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// sourceEntry はカタログソースJSONの1エントリ。
type sourceEntry struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	School          string  `json:"school"`
	City            string  `json:"city"`
	Country         string  `json:"country"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Website         string  `json:"website"`
	DurationMonths  int     `json:"duration_months"`
	TuitionAmount   int     `json:"tuition_amount"`
	TuitionCurrency string  `json:"tuition_currency"`
	Description     string  `json:"description"`
}

// Syncer はカタログソースURLからプログラム一覧を取得しDBへUPSERTする。
// ソースのフェッチはSSRF防止付きクライアント、説明文はサニタイズを通す。
type Syncer struct {
	programRepo repository.ProgramRepository
	ssrfGuard   SSRFValidator
	sanitizer   Sanitizer
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
func NewSyncer(
	programRepo repository.ProgramRepository,
	ssrfGuard SSRFValidator,
	sanitizer Sanitizer,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Syncer {
	return &Syncer{
		programRepo: programRepo,
		ssrfGuard:   ssrfGuard,
		sanitizer:   sanitizer,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Sync はカタログソースをフェッチし、プログラムをUPSERTする。
// 保存件数とスキップ件数を返す。必須フィールドを欠くエントリはスキップして継続する。
func (s *Syncer) Sync(ctx context.Context, sourceURL string) (upserted, skipped int, err error) {
	start := time.Now()

	// SSRF検証
	if err := s.ssrfGuard.ValidateURL(sourceURL); err != nil {
		s.logger.Error("SSRF検証に失敗しました",
			slog.String("source_url", sourceURL),
			slog.String("error", err.Error()),
		)
		return 0, 0, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := s.ssrfGuard.NewSafeClient(s.timeout, s.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "StudyMap/1.0 Catalog Sync")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		s.logger.Error("カタログのフェッチに失敗しました",
			slog.String("source_url", sourceURL),
			slog.String("error", err.Error()),
		)
		return 0, 0, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("カタログソースが異常ステータスを返しました: %d", resp.StatusCode)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return 0, 0, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	var entries []sourceEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return 0, 0, fmt.Errorf("カタログのパースに失敗: %w", err)
	}

	for _, entry := range entries {
		program, ok := s.convertEntry(entry)
		if !ok {
			skipped++
			continue
		}

		if err := s.programRepo.Upsert(ctx, program); err != nil {
			s.logger.Error("プログラムのUPSERTに失敗しました",
				slog.String("program_id", program.ID),
				slog.String("error", err.Error()),
			)
			skipped++
			continue
		}
		upserted++
	}

	s.logger.Info("カタログ同期が完了しました",
		slog.String("source_url", sourceURL),
		slog.Int("entries_total", len(entries)),
		slog.Int("upserted", upserted),
		slog.Int("skipped", skipped),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return upserted, skipped, nil
}

// convertEntry はソースエントリをmodel.Programに変換する。
// id, name, schoolは必須。説明文はサニタイズを通す。
func (s *Syncer) convertEntry(entry sourceEntry) (*model.Program, bool) {
	if entry.ID == "" || entry.Name == "" || entry.School == "" {
		s.logger.Warn("必須フィールドを欠くエントリをスキップします",
			slog.String("id", entry.ID),
			slog.String("name", entry.Name),
		)
		return nil, false
	}

	now := time.Now()
	return &model.Program{
		ID:              entry.ID,
		Name:            entry.Name,
		School:          entry.School,
		City:            entry.City,
		Country:         entry.Country,
		Latitude:        entry.Latitude,
		Longitude:       entry.Longitude,
		Website:         entry.Website,
		DurationMonths:  entry.DurationMonths,
		TuitionAmount:   entry.TuitionAmount,
		TuitionCurrency: entry.TuitionCurrency,
		Description:     s.sanitizer.Sanitize(entry.Description),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, true
}
