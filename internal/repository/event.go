package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
)

type EventRepository interface {
	Append(ctx context.Context, params model.AppendEventParams) error
	RecentByBot(ctx context.Context, botID int64, limit int) ([]model.BotEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	WithTx(tx *sqlx.Tx) EventRepository
}

type eventDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type eventRepo struct {
	db eventDB
}

func NewEventRepository(db *sqlx.DB) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) WithTx(tx *sqlx.Tx) EventRepository {
	return &eventRepo{db: tx}
}

func (r *eventRepo) Append(ctx context.Context, params model.AppendEventParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bot_events (bot_id, group_id, member_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, params.BotID, params.GroupID, params.MemberID, params.EventType, params.Payload)
	return err
}

func (r *eventRepo) RecentByBot(ctx context.Context, botID int64, limit int) ([]model.BotEvent, error) {
	var events []model.BotEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM bot_events
		WHERE bot_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, botID, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM bot_events WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
