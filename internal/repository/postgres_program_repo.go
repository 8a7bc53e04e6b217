package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/studymap/internal/model"
)

// PostgresProgramRepo はPostgreSQLを使用したプログラムカタログリポジトリ。
type PostgresProgramRepo struct {
	db *sql.DB
}

// NewPostgresProgramRepo はPostgresProgramRepoを生成する。
func NewPostgresProgramRepo(db *sql.DB) *PostgresProgramRepo {
	return &PostgresProgramRepo{db: db}
}

const programColumns = `id, name, school, city, country, latitude, longitude, website,
	duration_months, tuition_amount, tuition_currency, description, created_at, updated_at`

// FindByID は指定IDのプログラムを取得する。見つからない場合はnilを返す。
func (r *PostgresProgramRepo) FindByID(ctx context.Context, id string) (*model.Program, error) {
	program := &model.Program{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE id = $1`,
		id,
	).Scan(
		&program.ID, &program.Name, &program.School,
		&program.City, &program.Country,
		&program.Latitude, &program.Longitude, &program.Website,
		&program.DurationMonths, &program.TuitionAmount, &program.TuitionCurrency,
		&program.Description, &program.CreatedAt, &program.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find program by ID: %w", err)
	}

	return program, nil
}

// List は全プログラムをschool, name順で返す。
func (r *PostgresProgramRepo) List(ctx context.Context) ([]*model.Program, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+programColumns+` FROM programs ORDER BY school, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var programs []*model.Program
	for rows.Next() {
		program := &model.Program{}
		if err := rows.Scan(
			&program.ID, &program.Name, &program.School,
			&program.City, &program.Country,
			&program.Latitude, &program.Longitude, &program.Website,
			&program.DurationMonths, &program.TuitionAmount, &program.TuitionCurrency,
			&program.Description, &program.CreatedAt, &program.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		programs = append(programs, program)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate programs: %w", err)
	}

	return programs, nil
}

// Upsert はプログラムをIDで冪等にUPSERTする。カタログ同期から使用する。
// created_atは初回INSERT時の値を維持し、2回目以降はupdated_atのみ進む。
func (r *PostgresProgramRepo) Upsert(ctx context.Context, program *model.Program) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO programs (id, name, school, city, country, latitude, longitude, website,
		                       duration_months, tuition_amount, tuition_currency, description,
		                       created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		     name = EXCLUDED.name,
		     school = EXCLUDED.school,
		     city = EXCLUDED.city,
		     country = EXCLUDED.country,
		     latitude = EXCLUDED.latitude,
		     longitude = EXCLUDED.longitude,
		     website = EXCLUDED.website,
		     duration_months = EXCLUDED.duration_months,
		     tuition_amount = EXCLUDED.tuition_amount,
		     tuition_currency = EXCLUDED.tuition_currency,
		     description = EXCLUDED.description,
		     updated_at = EXCLUDED.updated_at`,
		program.ID, program.Name, program.School,
		program.City, program.Country,
		program.Latitude, program.Longitude, program.Website,
		program.DurationMonths, program.TuitionAmount, program.TuitionCurrency,
		program.Description, program.CreatedAt, program.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert program: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProgramRepository = (*PostgresProgramRepo)(nil)
