package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
)

type MemberRepository interface {
	FindByJID(ctx context.Context, groupID int64, memberJID string) (*model.Member, error)
	ByGroup(ctx context.Context, groupID int64) ([]model.Member, error)
	ActiveByGroup(ctx context.Context, groupID int64) ([]model.Member, error)
	Create(ctx context.Context, params model.CreateMemberParams) (*model.Member, error)
	Reactivate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64, removedByAdmin bool, leftAt time.Time) error
	// RefreshIdentity updates secondary identity fields, never overwriting a
	// known value with an empty one.
	RefreshIdentity(ctx context.Context, id int64, phone, lid, displayName *string, isAdmin *bool) error
	WithTx(tx *sqlx.Tx) MemberRepository
}

type memberDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type memberRepo struct {
	db memberDB
}

func NewMemberRepository(db *sqlx.DB) MemberRepository {
	return &memberRepo{db: db}
}

func (r *memberRepo) WithTx(tx *sqlx.Tx) MemberRepository {
	return &memberRepo{db: tx}
}

func (r *memberRepo) FindByJID(ctx context.Context, groupID int64, memberJID string) (*model.Member, error) {
	var member model.Member
	err := r.db.GetContext(ctx, &member, `
		SELECT * FROM members WHERE group_id = $1 AND member_jid = $2
	`, groupID, memberJID)
	return HandleNotFound(&member, err)
}

func (r *memberRepo) ByGroup(ctx context.Context, groupID int64) ([]model.Member, error) {
	var members []model.Member
	err := r.db.SelectContext(ctx, &members, `
		SELECT * FROM members WHERE group_id = $1 ORDER BY id
	`, groupID)
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *memberRepo) ActiveByGroup(ctx context.Context, groupID int64) ([]model.Member, error) {
	var members []model.Member
	err := r.db.SelectContext(ctx, &members, `
		SELECT * FROM members
		WHERE group_id = $1 AND is_active = TRUE
		ORDER BY id
	`, groupID)
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *memberRepo) Create(ctx context.Context, params model.CreateMemberParams) (*model.Member, error) {
	var member model.Member
	err := r.db.GetContext(ctx, &member, `
		INSERT INTO members (group_id, member_jid, phone, lid, display_name, is_admin, is_active, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING *
	`, params.GroupID, params.MemberJID, params.Phone, params.LID, params.DisplayName, params.IsAdmin, params.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepo) Reactivate(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE members SET
			is_active = TRUE,
			left_at = NULL,
			removed_by_admin = FALSE,
			updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *memberRepo) Deactivate(ctx context.Context, id int64, removedByAdmin bool, leftAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE members SET
			is_active = FALSE,
			left_at = $2,
			removed_by_admin = $3,
			updated_at = $4
		WHERE id = $1
	`, id, leftAt, removedByAdmin, time.Now())
	return err
}

func (r *memberRepo) RefreshIdentity(ctx context.Context, id int64, phone, lid, displayName *string, isAdmin *bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE members SET
			phone = COALESCE($2, phone),
			lid = COALESCE($3, lid),
			display_name = COALESCE($4, display_name),
			is_admin = COALESCE($5, is_admin),
			updated_at = $6
		WHERE id = $1
	`, id, phone, lid, displayName, isAdmin, time.Now())
	return err
}
