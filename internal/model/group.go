package model

import "time"

type Group struct {
	ID           int64       `db:"id" json:"id"`
	BotID        int64       `db:"bot_id" json:"botId"`
	GroupJID     string      `db:"group_jid" json:"groupJid"`
	Name         string      `db:"name" json:"name"`
	MemberCount  int         `db:"member_count" json:"memberCount"`
	Status       GroupStatus `db:"status" json:"status"`
	TargetListID *int64      `db:"target_list_id" json:"targetListId,omitempty"`

	// Comparison cache, recomputed from current state whenever the roster
	// of a bound group changes. Never a source of truth.
	MatchedCount   int     `db:"matched_count" json:"matchedCount"`
	UnmatchedCount int     `db:"unmatched_count" json:"unmatchedCount"`
	ExtraCount     int     `db:"extra_count" json:"extraCount"`
	MatchRate      float64 `db:"match_rate" json:"matchRate"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type UpsertGroupParams struct {
	BotID       int64
	GroupJID    string
	Name        string
	MemberCount int
}
