package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
)

type TargetListRepository interface {
	FindByID(ctx context.Context, id int64) (*model.TargetList, error)
	Create(ctx context.Context, name string, phones []string) (*model.TargetList, error)
	// Replace swaps the entire phone set. Target lists are immutable
	// except through full replacement.
	Replace(ctx context.Context, id int64, phones []string) error
	WithTx(tx *sqlx.Tx) TargetListRepository
}

type targetListDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type targetListRepo struct {
	db targetListDB
}

func NewTargetListRepository(db *sqlx.DB) TargetListRepository {
	return &targetListRepo{db: db}
}

func (r *targetListRepo) WithTx(tx *sqlx.Tx) TargetListRepository {
	return &targetListRepo{db: tx}
}

func (r *targetListRepo) FindByID(ctx context.Context, id int64) (*model.TargetList, error) {
	var list model.TargetList
	err := r.db.GetContext(ctx, &list, `
		SELECT * FROM target_lists WHERE id = $1
	`, id)
	return HandleNotFound(&list, err)
}

func (r *targetListRepo) Create(ctx context.Context, name string, phones []string) (*model.TargetList, error) {
	var list model.TargetList
	err := r.db.GetContext(ctx, &list, `
		INSERT INTO target_lists (name, phones, total_count)
		VALUES ($1, $2, $3)
		RETURNING *
	`, name, pq.Array(phones), len(phones))
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (r *targetListRepo) Replace(ctx context.Context, id int64, phones []string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE target_lists SET
			phones = $2,
			total_count = $3,
			updated_at = $4
		WHERE id = $1
	`, id, pq.Array(phones), len(phones), time.Now())
	return err
}
