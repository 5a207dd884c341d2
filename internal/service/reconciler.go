package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/phone"
	"github.com/Luckybob666/wa-bot-sub000/internal/store"
)

// Outcome is the per-member result of a reconciliation write.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeNoop         Outcome = "noop"
	OutcomeInconsistent Outcome = "inconsistent"
)

// SnapshotResult aggregates the outcomes of one full-roster application.
type SnapshotResult struct {
	Joined    int `json:"joined"`
	Left      int `json:"left"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}

// Reconciler converges stored membership toward observed membership. Every
// write path takes the group's lock, so a full snapshot and a live delta for
// the same group can never interleave. Inconsistencies (a leave for a member
// never seen) are reported as outcomes, not failures.
type Reconciler struct {
	reader store.Reader
	syncer store.Syncer
	grace  time.Duration
	log    zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewReconciler(reader store.Reader, syncer store.Syncer, grace time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		reader: reader,
		syncer: syncer,
		grace:  grace,
		locks:  make(map[int64]*sync.Mutex),
		log:    log,
	}
}

func (r *Reconciler) groupLock(groupID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[groupID] = lock
	}
	return lock
}

// attributeJoin returns the join moment to record for a newly created
// member. Members observed within the grace window of the group's own
// first-observed moment are considered founding members and inherit the
// group's creation time exactly.
func (r *Reconciler) attributeJoin(group *model.Group, now time.Time) time.Time {
	if now.Sub(group.CreatedAt) <= r.grace {
		return group.CreatedAt
	}
	return now
}

// ApplyDelta applies one membership change. It is idempotent: re-applying a
// change the store already reflects is a no-op that still refreshes any
// newly observed identity fields.
func (r *Reconciler) ApplyDelta(ctx context.Context, group *model.Group, in store.MemberUpsert, action model.MemberAction, removedByAdmin bool) (Outcome, error) {
	lock := r.groupLock(group.ID)
	lock.Lock()
	defer lock.Unlock()
	return r.applyLocked(ctx, group, in, action, removedByAdmin)
}

func (r *Reconciler) applyLocked(ctx context.Context, group *model.Group, in store.MemberUpsert, action model.MemberAction, removedByAdmin bool) (Outcome, error) {
	member, err := r.reader.FindMember(ctx, group.ID, in.MemberJID)
	if err != nil {
		return OutcomeInconsistent, err
	}

	switch action {
	case model.MemberActionJoined:
		if member != nil && member.IsActive {
			_, err := r.syncer.UpsertMember(ctx, group.ID, store.MemberWrite{
				Member:   in,
				Action:   model.MemberActionJoined,
				JoinedAt: member.JoinedAt,
			})
			return OutcomeNoop, err
		}

		rejoin := member != nil
		created, err := r.syncer.UpsertMember(ctx, group.ID, store.MemberWrite{
			Member:   in,
			Action:   model.MemberActionJoined,
			JoinedAt: r.attributeJoin(group, time.Now()),
		})
		if err != nil {
			return OutcomeInconsistent, err
		}
		r.syncer.AppendEvent(ctx, group.BotID, &group.ID, &created.ID, model.EventMemberJoined, map[string]any{
			"memberJid": in.MemberJID,
			"phone":     in.Phone,
			"rejoined":  rejoin,
		})
		return OutcomeApplied, nil

	case model.MemberActionLeft, model.MemberActionRemoved:
		if member == nil {
			r.log.Warn().
				Int64("groupId", group.ID).
				Str("memberJid", in.MemberJID).
				Str("action", string(action)).
				Msg("membership change for unknown member")
			return OutcomeInconsistent, nil
		}
		if !member.IsActive {
			return OutcomeNoop, nil
		}

		updated, err := r.syncer.UpsertMember(ctx, group.ID, store.MemberWrite{
			Member:         in,
			Action:         action,
			RemovedByAdmin: removedByAdmin,
		})
		if err != nil {
			return OutcomeInconsistent, err
		}

		eventType := model.EventMemberLeft
		if action == model.MemberActionRemoved {
			eventType = model.EventMemberRemoved
		}
		r.syncer.AppendEvent(ctx, group.BotID, &group.ID, &updated.ID, eventType, map[string]any{
			"memberJid":      in.MemberJID,
			"removedByAdmin": removedByAdmin,
		})
		return OutcomeApplied, nil

	default:
		r.log.Error().Str("action", string(action)).Msg("unknown member action")
		return OutcomeInconsistent, nil
	}
}

// ApplySnapshot converges the stored roster to the enumerated one: creates
// joiners, refreshes existing actives without re-emitting joined events, and
// marks actives absent from the snapshot as left. Individual failures are
// counted and skipped so one bad record cannot abort a full sync.
func (r *Reconciler) ApplySnapshot(ctx context.Context, group *model.Group, members []store.MemberUpsert) SnapshotResult {
	lock := r.groupLock(group.ID)
	lock.Lock()
	defer lock.Unlock()

	var res SnapshotResult
	seen := make(map[string]struct{}, len(members))

	for _, in := range members {
		seen[in.MemberJID] = struct{}{}
		outcome, err := r.applyLocked(ctx, group, in, model.MemberActionJoined, false)
		if err != nil {
			res.Errors++
			r.log.Warn().Err(err).Int64("groupId", group.ID).Str("memberJid", in.MemberJID).Msg("snapshot upsert failed")
			continue
		}
		switch outcome {
		case OutcomeApplied:
			res.Joined++
		case OutcomeNoop:
			res.Unchanged++
		}
	}

	existing, err := r.reader.GroupMembers(ctx, group.ID)
	if err != nil {
		res.Errors++
		r.log.Error().Err(err).Int64("groupId", group.ID).Msg("snapshot absence sweep failed")
		return res
	}
	for i := range existing {
		m := &existing[i]
		if !m.IsActive {
			continue
		}
		if _, ok := seen[m.MemberJID]; ok {
			continue
		}
		// Absent from enumeration: a departure the transport never
		// delivered. Not attributed to an admin.
		outcome, err := r.applyLocked(ctx, group, store.MemberUpsert{MemberJID: m.MemberJID}, model.MemberActionLeft, false)
		if err != nil {
			res.Errors++
			continue
		}
		if outcome == OutcomeApplied {
			res.Left++
		}
	}

	return res
}

// CompareGroup recomputes the target-list comparison for a bound group,
// persists the counters on the group row, and returns the result. Groups
// without a bound list return a zero result without touching the store.
func (r *Reconciler) CompareGroup(ctx context.Context, group *model.Group) (CompareResult, error) {
	if group.TargetListID == nil {
		return CompareResult{}, nil
	}
	list, err := r.reader.TargetList(ctx, *group.TargetListID)
	if err != nil {
		return CompareResult{}, err
	}
	if list == nil {
		return CompareResult{}, nil
	}

	actives, err := r.reader.ActiveMembers(ctx, group.ID)
	if err != nil {
		return CompareResult{}, err
	}
	phones := make([]string, 0, len(actives))
	for i := range actives {
		m := &actives[i]
		if m.Phone != nil {
			phones = append(phones, *m.Phone)
		} else if digits, ok := phone.Normalize(m.MemberJID); ok {
			phones = append(phones, digits)
		}
	}

	result := Compare(list.Phones, phones)
	if err := r.syncer.UpdateComparison(ctx, group.ID, len(result.Matched), len(result.Unmatched), len(result.Extra), result.MatchRate); err != nil {
		return result, err
	}
	return result, nil
}

// Recompare is CompareGroup for callers that only care about the cached
// counters.
func (r *Reconciler) Recompare(ctx context.Context, group *model.Group) {
	if group.TargetListID == nil {
		return
	}
	if _, err := r.CompareGroup(ctx, group); err != nil {
		r.log.Warn().Err(err).Int64("groupId", group.ID).Msg("comparison recompute failed")
	}
}
