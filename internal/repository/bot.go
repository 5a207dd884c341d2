package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
)

type BotRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Bot, error)
	UpdateStatus(ctx context.Context, id int64, status model.BotStatus, phoneNumber *string) error
	SetMode(ctx context.Context, id int64, mode model.BotMode, phoneNumber *string) error
	SetQRCode(ctx context.Context, id int64, code *string) error
	SetDeviceJID(ctx context.Context, id int64, jid *string) error
	MarkDeleted(ctx context.Context, id int64) error
	// ClearStaleQRCodes wipes cached credential artifacts for bots that are
	// no longer waiting for a scan. A QR code is worthless after expiry.
	ClearStaleQRCodes(ctx context.Context) (int64, error)
	WithTx(tx *sqlx.Tx) BotRepository
}

type botDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type botRepo struct {
	db botDB
}

func NewBotRepository(db *sqlx.DB) BotRepository {
	return &botRepo{db: db}
}

func (r *botRepo) WithTx(tx *sqlx.Tx) BotRepository {
	return &botRepo{db: tx}
}

func (r *botRepo) FindByID(ctx context.Context, id int64) (*model.Bot, error) {
	var bot model.Bot
	err := r.db.GetContext(ctx, &bot, `
		SELECT * FROM bots WHERE id = $1
	`, id)
	return HandleNotFound(&bot, err)
}

func (r *botRepo) UpdateStatus(ctx context.Context, id int64, status model.BotStatus, phoneNumber *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET
			status = $2,
			phone_number = COALESCE($3, phone_number),
			updated_at = $4
		WHERE id = $1
	`, id, status, phoneNumber, time.Now())
	return err
}

func (r *botRepo) SetMode(ctx context.Context, id int64, mode model.BotMode, phoneNumber *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET
			mode = $2,
			phone_number = COALESCE($3, phone_number),
			updated_at = $4
		WHERE id = $1
	`, id, mode, phoneNumber, time.Now())
	return err
}

func (r *botRepo) SetQRCode(ctx context.Context, id int64, code *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET
			qr_code = $2,
			updated_at = $3
		WHERE id = $1
	`, id, code, time.Now())
	return err
}

func (r *botRepo) SetDeviceJID(ctx context.Context, id int64, jid *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET
			device_jid = $2,
			updated_at = $3
		WHERE id = $1
	`, id, jid, time.Now())
	return err
}

func (r *botRepo) MarkDeleted(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET
			deleted = TRUE,
			status = 'offline',
			qr_code = NULL,
			updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *botRepo) ClearStaleQRCodes(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bots SET qr_code = NULL
		WHERE qr_code IS NOT NULL AND status NOT IN ('waiting_scan', 'connecting')
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
