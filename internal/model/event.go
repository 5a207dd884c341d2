package model

import (
	"encoding/json"
	"time"
)

type BotEvent struct {
	ID        int64            `db:"id" json:"id"`
	BotID     int64            `db:"bot_id" json:"botId"`
	GroupID   *int64           `db:"group_id" json:"groupId,omitempty"`
	MemberID  *int64           `db:"member_id" json:"memberId,omitempty"`
	EventType EventType        `db:"event_type" json:"eventType"`
	Payload   *json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

type AppendEventParams struct {
	BotID     int64
	GroupID   *int64
	MemberID  *int64
	EventType EventType
	Payload   *json.RawMessage
}
