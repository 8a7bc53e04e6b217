package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/studymap/internal/model"
)

// PostgresPaymentRepo はPostgreSQLを使用した決済リポジトリ。
// プラン遷移と監査ログ追記を担う。監査ログは追記専用で、
// (stripe_session_id, status)のUNIQUE制約により再配送の二重追記を防ぐ。
type PostgresPaymentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db *sql.DB) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

// MarkPremium はユーザーをplan=premium, payment_status=paidに更新し、
// completedトランザクションレコードを同一トランザクションで追記する。
//
// plan=premiumの設定は冪等（2回設定しても同じ）であり、監査ログの追記は
// ON CONFLICT DO NOTHINGで吸収するため、同一Webhookの再配送で二重適用されない。
// 部分適用は許さない: どちらかが失敗した場合は全体をロールバックし、
// エラーを返して呼び出し側（= Stripeの再配送）にリトライさせる。
func (r *PostgresPaymentRepo) MarkPremium(ctx context.Context, userID string, txn *model.PaymentTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET plan = $2, payment_status = $3, updated_at = now() WHERE id = $1`,
		userID, model.PlanPremium, model.PaymentStatusPaid,
	)
	if err != nil {
		return fmt.Errorf("failed to update user plan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}

	if err := appendTransaction(ctx, tx, txn); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// MarkPaymentFailed はpayment_status=failedに更新し、failedトランザクション
// レコードを追記する。
//
// planは一切変更しない。さらにplan=premiumの行はpayment_statusも変更しない
// （premiumはpayment_status=paidのまま維持する不変条件のため、
// WHERE句でplan='free'に限定する）。更新対象0行でもエラーにはならない。
func (r *PostgresPaymentRepo) MarkPaymentFailed(ctx context.Context, userID string, txn *model.PaymentTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET payment_status = $2, updated_at = now() WHERE id = $1 AND plan = $3`,
		userID, model.PaymentStatusFailed, model.PlanFree,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	if err := appendTransaction(ctx, tx, txn); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// appendTransaction は監査ログを追記する。
// (stripe_session_id, status)の重複はON CONFLICT DO NOTHINGで吸収する。
func appendTransaction(ctx context.Context, tx *sql.Tx, txn *model.PaymentTransaction) error {
	id := txn.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_transactions (id, user_id, stripe_session_id, amount, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (stripe_session_id, status) DO NOTHING`,
		id, txn.UserID, txn.StripeSessionID, txn.Amount, txn.Currency, txn.Status, txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append payment transaction: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの決済トランザクション履歴を新しい順で返す。
func (r *PostgresPaymentRepo) ListByUserID(ctx context.Context, userID string) ([]*model.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, stripe_session_id, amount, currency, status, created_at
		 FROM payment_transactions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	defer rows.Close()

	var txns []*model.PaymentTransaction
	for rows.Next() {
		txn := &model.PaymentTransaction{}
		if err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.StripeSessionID,
			&txn.Amount, &txn.Currency, &txn.Status, &txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment transactions: %w", err)
	}

	return txns, nil
}

// compile-time interface check
var _ PaymentRepository = (*PostgresPaymentRepo)(nil)
