package model

import "time"

type Bot struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Mode        BotMode   `db:"mode" json:"mode"`
	Status      BotStatus `db:"status" json:"status"`
	PhoneNumber *string   `db:"phone_number" json:"phoneNumber,omitempty"`
	// QRCode caches the latest credential artifact (raw QR payload or
	// pairing code) while the bot waits for the operator to scan it.
	QRCode    *string   `db:"qr_code" json:"-"`
	DeviceJID *string   `db:"device_jid" json:"-"`
	Deleted   bool      `db:"deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
