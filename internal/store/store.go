// Package store is the boundary to the system of record. The Syncer
// interface carries every outbound state change the session core produces;
// the Reader interface is the current-state view the reconciler works
// against. Both are implemented by Store over Postgres, with status and
// credential pushes fanned out through the SSE broker.
package store

import (
	"context"
	"time"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
)

// RetirementChecker reports whether a bot id has been permanently retired
// (deleted upstream). Consulted before every outbound push so a late event
// cannot resurrect state for a deleted bot.
type RetirementChecker interface {
	IsRetired(botID int64) bool
}

// MemberUpsert carries one observed participant. Optional identity fields
// are nil when the observation did not include them.
type MemberUpsert struct {
	MemberJID   string
	Phone       *string
	LID         *string
	DisplayName *string
	IsAdmin     bool
}

// MemberWrite is a resolved member transition to apply.
type MemberWrite struct {
	Member         MemberUpsert
	Action         model.MemberAction
	RemovedByAdmin bool
	// JoinedAt is the attributed join moment for creations; the grace
	// window rule may set it to the group's own creation time.
	JoinedAt time.Time
}

// Syncer is the outbound interface to the system of record. Status and
// credential pushes are fire-and-forget: failures are logged and dropped,
// never propagated into the session path.
type Syncer interface {
	PushStatus(ctx context.Context, botID int64, status model.BotStatus, phoneNumber *string, note string)
	PushCredential(ctx context.Context, botID int64, artifact string)
	UpsertGroup(ctx context.Context, params model.UpsertGroupParams) (group *model.Group, reactivated bool, err error)
	UpsertMember(ctx context.Context, groupID int64, write MemberWrite) (*model.Member, error)
	UpsertMembersBatch(ctx context.Context, groupID int64, writes []MemberWrite) error
	MarkGroupRemoved(ctx context.Context, botID int64, groupJID string) error
	UpdateComparison(ctx context.Context, groupID int64, matched, unmatched, extra int, rate float64) error
	AppendEvent(ctx context.Context, botID int64, groupID, memberID *int64, eventType model.EventType, payload any)
	IsRetired(botID int64) bool
}

// Reader is the current-state view used to compute minimal transitions.
type Reader interface {
	FindGroup(ctx context.Context, botID int64, groupJID string) (*model.Group, error)
	FindGroupByID(ctx context.Context, groupID int64) (*model.Group, error)
	ActiveGroups(ctx context.Context, botID int64) ([]model.Group, error)
	FindMember(ctx context.Context, groupID int64, memberJID string) (*model.Member, error)
	GroupMembers(ctx context.Context, groupID int64) ([]model.Member, error)
	ActiveMembers(ctx context.Context, groupID int64) ([]model.Member, error)
	TargetList(ctx context.Context, id int64) (*model.TargetList, error)
}
