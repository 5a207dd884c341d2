package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
)

type GroupRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Group, error)
	FindByJID(ctx context.Context, botID int64, groupJID string) (*model.Group, error)
	ActiveByBot(ctx context.Context, botID int64) ([]model.Group, error)
	Create(ctx context.Context, params model.UpsertGroupParams) (*model.Group, error)
	// Reactivate flips a group back to active and refreshes its metadata.
	Reactivate(ctx context.Context, id int64, name string, memberCount int) error
	UpdateMeta(ctx context.Context, id int64, name string, memberCount int) error
	MarkRemoved(ctx context.Context, id int64) error
	BindTargetList(ctx context.Context, id int64, targetListID *int64) error
	UpdateComparison(ctx context.Context, id int64, matched, unmatched, extra int, rate float64) error
	WithTx(tx *sqlx.Tx) GroupRepository
}

type groupDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type groupRepo struct {
	db groupDB
}

func NewGroupRepository(db *sqlx.DB) GroupRepository {
	return &groupRepo{db: db}
}

func (r *groupRepo) WithTx(tx *sqlx.Tx) GroupRepository {
	return &groupRepo{db: tx}
}

func (r *groupRepo) FindByID(ctx context.Context, id int64) (*model.Group, error) {
	var group model.Group
	err := r.db.GetContext(ctx, &group, `
		SELECT * FROM groups WHERE id = $1
	`, id)
	return HandleNotFound(&group, err)
}

func (r *groupRepo) FindByJID(ctx context.Context, botID int64, groupJID string) (*model.Group, error) {
	var group model.Group
	err := r.db.GetContext(ctx, &group, `
		SELECT * FROM groups WHERE bot_id = $1 AND group_jid = $2
	`, botID, groupJID)
	return HandleNotFound(&group, err)
}

func (r *groupRepo) ActiveByBot(ctx context.Context, botID int64) ([]model.Group, error) {
	var groups []model.Group
	err := r.db.SelectContext(ctx, &groups, `
		SELECT * FROM groups
		WHERE bot_id = $1 AND status = 'active'
		ORDER BY id
	`, botID)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *groupRepo) Create(ctx context.Context, params model.UpsertGroupParams) (*model.Group, error) {
	var group model.Group
	err := r.db.GetContext(ctx, &group, `
		INSERT INTO groups (bot_id, group_jid, name, member_count, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING *
	`, params.BotID, params.GroupJID, params.Name, params.MemberCount)
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) Reactivate(ctx context.Context, id int64, name string, memberCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE groups SET
			status = 'active',
			name = $2,
			member_count = $3,
			updated_at = $4
		WHERE id = $1
	`, id, name, memberCount, time.Now())
	return err
}

func (r *groupRepo) UpdateMeta(ctx context.Context, id int64, name string, memberCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE groups SET
			name = $2,
			member_count = $3,
			updated_at = $4
		WHERE id = $1
	`, id, name, memberCount, time.Now())
	return err
}

func (r *groupRepo) MarkRemoved(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE groups SET
			status = 'removed',
			updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *groupRepo) BindTargetList(ctx context.Context, id int64, targetListID *int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE groups SET
			target_list_id = $2,
			updated_at = $3
		WHERE id = $1
	`, id, targetListID, time.Now())
	return err
}

func (r *groupRepo) UpdateComparison(ctx context.Context, id int64, matched, unmatched, extra int, rate float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE groups SET
			matched_count = $2,
			unmatched_count = $3,
			extra_count = $4,
			match_rate = $5,
			updated_at = $6
		WHERE id = $1
	`, id, matched, unmatched, extra, rate, time.Now())
	return err
}
