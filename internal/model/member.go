package model

import "time"

// Member is one participant record within a group. Records are never hard
// deleted: leaving flips IsActive and sets LeftAt, rejoining flips them back.
type Member struct {
	ID          int64   `db:"id" json:"id"`
	GroupID     int64   `db:"group_id" json:"groupId"`
	MemberJID   string  `db:"member_jid" json:"memberJid"`
	Phone       *string `db:"phone" json:"phone,omitempty"`
	LID         *string `db:"lid" json:"lid,omitempty"`
	DisplayName *string `db:"display_name" json:"displayName,omitempty"`
	IsActive    bool    `db:"is_active" json:"isActive"`
	IsAdmin     bool    `db:"is_admin" json:"isAdmin"`
	// RemovedByAdmin is set only when the transition to inactive was
	// attributed to an admin-initiated removal, never on voluntary leave.
	RemovedByAdmin bool       `db:"removed_by_admin" json:"removedByAdmin"`
	JoinedAt       time.Time  `db:"joined_at" json:"joinedAt"`
	LeftAt         *time.Time `db:"left_at" json:"leftAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

type CreateMemberParams struct {
	GroupID     int64
	MemberJID   string
	Phone       *string
	LID         *string
	DisplayName *string
	IsAdmin     bool
	JoinedAt    time.Time
}
