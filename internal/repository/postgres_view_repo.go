package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresViewRepo はPostgreSQLを使用した閲覧台帳リポジトリ。
//
// 「既に閲覧済みか」の判定はアプリケーション側の存在確認ではなく、
// program_views(user_id, program_id)のUNIQUE制約に委ねる。
// 事前確認してからINSERTする方式は並行リクエスト間でレースになるが、
// 制約違反をシグナルとして扱えばレースは存在しない。
type PostgresViewRepo struct {
	db *sql.DB
}

// NewPostgresViewRepo はPostgresViewRepoを生成する。
func NewPostgresViewRepo(db *sql.DB) *PostgresViewRepo {
	return &PostgresViewRepo{db: db}
}

// RecordViewIfNew は(user, program)の閲覧を冪等に記録する。
//
// 実装:
//  1. INSERT ... ON CONFLICT (user_id, program_id) DO NOTHING
//     → 影響行数0なら閲覧済み。現在のカウンタを読んでcreated=falseで返す。
//  2. 新規閲覧の場合、maxViews > 0 なら
//     UPDATE users SET programs_viewed = programs_viewed + 1
//     WHERE id = $1 AND programs_viewed < $2 RETURNING programs_viewed
//     を同一トランザクション内で実行。0行ならロールバックしErrViewLimitReached。
//     （INSERTも巻き戻るため、上限到達時のリクエストは閲覧記録を残さない）
//  3. maxViews <= 0 なら無条件インクリメント（プレミアムの分析用記録）。
func (r *PostgresViewRepo) RecordViewIfNew(ctx context.Context, userID, programID string, maxViews int) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO program_views (id, user_id, program_id, viewed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, program_id) DO NOTHING`,
		uuid.New().String(), userID, programID, time.Now().UTC(),
	)
	if err != nil {
		return false, 0, fmt.Errorf("failed to insert program view: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if inserted == 0 {
		// 閲覧済み: カウンタは変化しない
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT programs_viewed FROM users WHERE id = $1`,
			userID,
		).Scan(&count)
		if err != nil {
			return false, 0, fmt.Errorf("failed to read view count: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, 0, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return false, count, nil
	}

	// 新規閲覧: カウンタをインクリメント
	query := `UPDATE users SET programs_viewed = programs_viewed + 1, updated_at = now()
	          WHERE id = $1 RETURNING programs_viewed`
	args := []any{userID}
	if maxViews > 0 {
		// 上限チェックとインクリメントを1文で行う。
		// 別プログラムの並行閲覧同士でも上限を超えてカウントされることはない。
		query = `UPDATE users SET programs_viewed = programs_viewed + 1, updated_at = now()
		         WHERE id = $1 AND programs_viewed < $2 RETURNING programs_viewed`
		args = append(args, maxViews)
	}

	var newCount int
	err = tx.QueryRowContext(ctx, query, args...).Scan(&newCount)
	if err == sql.ErrNoRows {
		// 条件を満たさない = 上限到達。INSERTはロールバックで巻き戻る。
		return false, maxViews, ErrViewLimitReached
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment view count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, newCount, nil
}

// compile-time interface check
var _ ViewLedger = (*PostgresViewRepo)(nil)
