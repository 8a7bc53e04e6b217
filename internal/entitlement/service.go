package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/studymap/internal/model"
	"github.com/hitoshi/studymap/internal/repository"
)

// ServiceConfig は閲覧ゲートの設定。
type ServiceConfig struct {
	MaxFreeViews int // 無料プランの閲覧上限。0は無制限
}

// Service は閲覧ゲートのビジネスロジックを提供する。
type Service struct {
	ledger repository.ViewLedger
	config ServiceConfig
}

// NewService はServiceを生成する。
func NewService(ledger repository.ViewLedger, config ServiceConfig) *Service {
	return &Service{
		ledger: ledger,
		config: config,
	}
}

// CheckAndRecordView は閲覧を判定し、許可された場合は記録する。
//
// プレミアムユーザーは常に許可される。閲覧記録は分析用のベストエフォートであり、
// 記録に失敗しても閲覧は拒否しない（FailOpenForPremium）。
//
// 無料ユーザーは閲覧記録とカウンタ更新が成功した場合のみ許可される。
// 閲覧済みプログラムの再閲覧はカウンタを消費せず常に許可される。
// ストア障害時はエラーを返し、呼び出し側は閲覧を拒否する（FailClosedForFree）。
func (s *Service) CheckAndRecordView(ctx context.Context, user *model.User, programID string) (*Decision, error) {
	if user == nil {
		return nil, fmt.Errorf("user is required")
	}

	if user.Plan == model.PlanPremium {
		return s.recordPremiumView(ctx, user, programID), nil
	}

	created, count, err := s.ledger.RecordViewIfNew(ctx, user.ID, programID, s.config.MaxFreeViews)
	if err != nil {
		if errors.Is(err, repository.ErrViewLimitReached) {
			slog.Info("view denied at free limit",
				slog.String("user_id", user.ID),
				slog.String("program_id", programID),
				slog.Int("views_used", count),
			)
			return &Decision{
				Allowed:   false,
				Reason:    ReasonLimitReached,
				Policy:    FailClosedForFree,
				ViewsUsed: count,
				ViewLimit: s.config.MaxFreeViews,
			}, nil
		}
		// カウンタを検証できない場合、無料ユーザーの閲覧は許可しない
		return nil, fmt.Errorf("failed to record view: %w", err)
	}

	return &Decision{
		Allowed:   true,
		Policy:    FailClosedForFree,
		NewView:   created,
		ViewsUsed: count,
		ViewLimit: s.config.MaxFreeViews,
	}, nil
}

// recordPremiumView はプレミアムユーザーの閲覧を記録する。
// 記録の失敗は警告ログにとどめ、判定は常に許可となる。
func (s *Service) recordPremiumView(ctx context.Context, user *model.User, programID string) *Decision {
	created, count, err := s.ledger.RecordViewIfNew(ctx, user.ID, programID, 0)
	if err != nil {
		slog.Warn("failed to record premium view, allowing anyway",
			slog.String("user_id", user.ID),
			slog.String("program_id", programID),
			slog.String("error", err.Error()),
		)
		return &Decision{
			Allowed:   true,
			Policy:    FailOpenForPremium,
			ViewsUsed: user.ProgramsViewed,
		}
	}

	return &Decision{
		Allowed:   true,
		Policy:    FailOpenForPremium,
		NewView:   created,
		ViewsUsed: count,
	}
}

// RemainingViews は無料プランの残り閲覧可能数を返す。プレミアムは-1（無制限）。
func (s *Service) RemainingViews(user *model.User) int {
	if user.Plan == model.PlanPremium {
		return -1
	}
	remaining := s.config.MaxFreeViews - user.ProgramsViewed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MaxFreeViews は設定された無料プランの閲覧上限を返す。
func (s *Service) MaxFreeViews() int {
	return s.config.MaxFreeViews
}
