package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/phone"
	"github.com/Luckybob666/wa-bot-sub000/internal/store"
	"github.com/Luckybob666/wa-bot-sub000/internal/transport"
)

// SyncCounts summarizes one roster synchronization pass.
type SyncCounts struct {
	Groups        int `json:"groups"`
	GroupsRemoved int `json:"groupsRemoved"`
	MembersJoined int `json:"membersJoined"`
	MembersLeft   int `json:"membersLeft"`
	Errors        int `json:"errors"`
}

func (c *SyncCounts) add(other SyncCounts) {
	c.Groups += other.Groups
	c.GroupsRemoved += other.GroupsRemoved
	c.MembersJoined += other.MembersJoined
	c.MembersLeft += other.MembersLeft
	c.Errors += other.Errors
}

// rosterSyncRequest asks the roster loop to run a synchronization pass.
// An empty groupJID means all groups. reply is nil for internally triggered
// passes.
type rosterSyncRequest struct {
	groupJID string
	reply    chan SyncCounts
}

// Bridge consumes one session's transport event stream and splits it:
// connection events go to the machine inline, roster events are queued to a
// dedicated goroutine so a slow full sync never stalls the connection loop.
// Operator-triggered syncs enter the same queue, which serializes them with
// live deltas for the session.
type Bridge struct {
	botID   int64
	client  transport.Client
	machine *Machine
	rec     *Reconciler
	syncer  store.Syncer
	reader  store.Reader
	log     zerolog.Logger

	mu       sync.Mutex
	closed   bool
	commands chan any
}

func NewBridge(
	botID int64,
	client transport.Client,
	machine *Machine,
	rec *Reconciler,
	syncer store.Syncer,
	reader store.Reader,
	log zerolog.Logger,
) *Bridge {
	return &Bridge{
		botID:    botID,
		client:   client,
		machine:  machine,
		rec:      rec,
		syncer:   syncer,
		reader:   reader,
		log:      log,
		commands: make(chan any, 64),
	}
}

// Run consumes the transport stream until it ends and returns the close
// class the supervisor keys its reconnect decision on. A stream that ends
// without a Closed event counts as transient.
func (b *Bridge) Run(ctx context.Context) transport.CloseClass {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.rosterLoop(ctx)
	}()
	defer func() {
		b.mu.Lock()
		b.closed = true
		close(b.commands)
		b.mu.Unlock()
		wg.Wait()
	}()

	for evt := range b.client.Events() {
		switch e := evt.(type) {
		case transport.QRCode:
			b.machine.HandleCredential(ctx, e.Code)
		case transport.PairSuccess:
			b.log.Info().Str("jid", e.Self.JID).Msg("pairing completed")
		case transport.Connected:
			b.machine.HandleConnected(ctx, e.Self)
			b.enqueue(rosterSyncRequest{})
		case transport.GroupJoined:
			b.enqueue(e)
		case transport.ParticipantChange:
			b.enqueue(e)
		case transport.Closed:
			b.machine.HandleClosed(ctx, e.Class, e.Note)
			return e.Class
		}
	}
	return transport.CloseTransient
}

// enqueue hands a roster command to the loop without blocking the
// connection stream. A dropped delta is healed by the next full sync.
func (b *Bridge) enqueue(cmd any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.commands <- cmd:
		return true
	default:
		b.log.Warn().Int64("botId", b.botID).Msg("roster queue full, dropping event")
		return false
	}
}

// RequestSync runs a synchronization pass through the roster loop and waits
// for its counts. groupJID empty means all groups.
func (b *Bridge) RequestSync(ctx context.Context, groupJID string) (SyncCounts, error) {
	req := rosterSyncRequest{groupJID: groupJID, reply: make(chan SyncCounts, 1)}
	if !b.enqueue(req) {
		return SyncCounts{}, apperrors.NotOnline(b.botID)
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return SyncCounts{}, ctx.Err()
	}
}

func (b *Bridge) rosterLoop(ctx context.Context) {
	for cmd := range b.commands {
		switch c := cmd.(type) {
		case rosterSyncRequest:
			var res SyncCounts
			if c.groupJID == "" {
				res = b.syncAll(ctx)
			} else {
				res = b.syncOne(ctx, c.groupJID)
			}
			if c.reply != nil {
				c.reply <- res
			}
		case transport.GroupJoined:
			b.syncGroup(ctx, c.Info)
		case transport.ParticipantChange:
			b.handleParticipantChange(ctx, c)
		}
	}
}

// syncAll enumerates every group the session participates in, reconciles
// each, and sweeps stored active groups absent from the enumeration.
func (b *Bridge) syncAll(ctx context.Context) SyncCounts {
	var counts SyncCounts

	infos, err := b.client.ListGroups(ctx)
	if err != nil {
		b.log.Error().Err(err).Int64("botId", b.botID).Msg("group enumeration failed")
		counts.Errors++
		return counts
	}

	seen := make(map[string]struct{}, len(infos))
	for i := range infos {
		seen[infos[i].JID] = struct{}{}
		counts.add(b.syncGroup(ctx, infos[i]))
	}

	stored, err := b.reader.ActiveGroups(ctx, b.botID)
	if err != nil {
		b.log.Error().Err(err).Int64("botId", b.botID).Msg("group absence sweep failed")
		counts.Errors++
		return counts
	}
	for i := range stored {
		g := &stored[i]
		if _, ok := seen[g.GroupJID]; ok {
			continue
		}
		if err := b.removeGroup(ctx, g.GroupJID, "absent from enumeration"); err != nil {
			counts.Errors++
			continue
		}
		counts.GroupsRemoved++
	}

	return counts
}

func (b *Bridge) syncOne(ctx context.Context, groupJID string) SyncCounts {
	var counts SyncCounts
	info, err := b.client.GroupMetadata(ctx, groupJID)
	if err != nil {
		b.log.Error().Err(err).Int64("botId", b.botID).Str("groupJid", groupJID).Msg("group metadata fetch failed")
		counts.Errors++
		return counts
	}
	counts.add(b.syncGroup(ctx, *info))
	return counts
}

// syncGroup upserts the group row and applies its participant list as a
// snapshot.
func (b *Bridge) syncGroup(ctx context.Context, info transport.GroupInfo) SyncCounts {
	var counts SyncCounts

	existing, err := b.reader.FindGroup(ctx, b.botID, info.JID)
	if err != nil {
		b.log.Error().Err(err).Str("groupJid", info.JID).Msg("group lookup failed")
		counts.Errors++
		return counts
	}

	group, reactivated, err := b.syncer.UpsertGroup(ctx, model.UpsertGroupParams{
		BotID:       b.botID,
		GroupJID:    info.JID,
		Name:        info.Name,
		MemberCount: len(info.Participants),
	})
	if err != nil {
		b.log.Error().Err(err).Str("groupJid", info.JID).Msg("group upsert failed")
		counts.Errors++
		return counts
	}
	counts.Groups++

	if existing == nil || reactivated {
		b.syncer.AppendEvent(ctx, b.botID, &group.ID, nil, model.EventGroupJoined, map[string]any{
			"groupJid":    info.JID,
			"name":        info.Name,
			"reactivated": reactivated,
		})
	}

	snapshot := make([]store.MemberUpsert, 0, len(info.Participants))
	for i := range info.Participants {
		snapshot = append(snapshot, participantUpsert(&info.Participants[i]))
	}
	res := b.rec.ApplySnapshot(ctx, group, snapshot)
	counts.MembersJoined += res.Joined
	counts.MembersLeft += res.Left
	counts.Errors += res.Errors

	b.rec.Recompare(ctx, group)
	return counts
}

func (b *Bridge) removeGroup(ctx context.Context, groupJID, note string) error {
	group, err := b.reader.FindGroup(ctx, b.botID, groupJID)
	if err != nil {
		return err
	}
	if err := b.syncer.MarkGroupRemoved(ctx, b.botID, groupJID); err != nil {
		b.log.Error().Err(err).Str("groupJid", groupJID).Msg("group removal failed")
		return err
	}
	var groupID *int64
	if group != nil {
		groupID = &group.ID
	}
	b.syncer.AppendEvent(ctx, b.botID, groupID, nil, model.EventGroupRemoved, map[string]any{
		"groupJid": groupJID,
		"note":     note,
	})
	return nil
}

// handleParticipantChange applies one live delta. The removed identifiers
// are checked against the session's own identity first: losing our own
// membership means the whole group is gone for this session.
func (b *Bridge) handleParticipantChange(ctx context.Context, change transport.ParticipantChange) {
	self := b.client.Self()
	for _, left := range change.Left {
		if self.Matches(left) {
			note := "left group"
			if change.Actor != "" && !sameParty(change.Actor, left) {
				note = "removed by " + change.Actor
			}
			if err := b.removeGroup(ctx, change.GroupJID, note); err != nil {
				b.log.Error().Err(err).Str("groupJid", change.GroupJID).Msg("self-removal handling failed")
			}
			return
		}
	}

	group, err := b.reader.FindGroup(ctx, b.botID, change.GroupJID)
	if err != nil {
		b.log.Error().Err(err).Str("groupJid", change.GroupJID).Msg("group lookup failed")
		return
	}
	if group == nil || group.Status == model.GroupStatusRemoved {
		// A delta for a group we have never reconciled: pull it whole.
		b.syncOne(ctx, change.GroupJID)
		return
	}

	// Fresh metadata resolves identifiers to full participant identity;
	// when the fetch fails the bare identifier still carries enough to
	// reconcile.
	lookup := b.participantLookup(ctx, change.GroupJID)

	for _, id := range change.Joined {
		in := resolveParticipant(lookup, id)
		if _, err := b.rec.ApplyDelta(ctx, group, in, model.MemberActionJoined, false); err != nil {
			b.log.Warn().Err(err).Str("memberJid", id).Msg("join delta failed")
		}
	}
	for _, id := range change.Left {
		removedByAdmin := change.Actor != "" && !sameParty(change.Actor, id)
		action := model.MemberActionLeft
		if removedByAdmin {
			action = model.MemberActionRemoved
		}
		in := resolveParticipant(lookup, id)
		if _, err := b.rec.ApplyDelta(ctx, group, in, action, removedByAdmin); err != nil {
			b.log.Warn().Err(err).Str("memberJid", id).Msg("leave delta failed")
		}
	}

	b.rec.Recompare(ctx, group)
}

// participantLookup indexes current group metadata by full identifier, by
// alias and by base segment. Nil on fetch failure.
func (b *Bridge) participantLookup(ctx context.Context, groupJID string) map[string]*transport.Participant {
	info, err := b.client.GroupMetadata(ctx, groupJID)
	if err != nil {
		b.log.Debug().Err(err).Str("groupJid", groupJID).Msg("metadata refresh failed, using bare identifiers")
		return nil
	}
	lookup := make(map[string]*transport.Participant, len(info.Participants)*3)
	for i := range info.Participants {
		p := &info.Participants[i]
		lookup[p.JID] = p
		lookup[transport.BaseID(p.JID)] = p
		if p.LID != "" {
			lookup[p.LID] = p
			lookup[transport.BaseID(p.LID)] = p
		}
	}
	return lookup
}

func resolveParticipant(lookup map[string]*transport.Participant, id string) store.MemberUpsert {
	if p, ok := lookup[id]; ok {
		return participantUpsert(p)
	}
	if p, ok := lookup[transport.BaseID(id)]; ok {
		return participantUpsert(p)
	}
	in := store.MemberUpsert{MemberJID: id}
	if digits, ok := phone.Normalize(id); ok {
		in.Phone = &digits
	}
	return in
}

func participantUpsert(p *transport.Participant) store.MemberUpsert {
	in := store.MemberUpsert{
		MemberJID: p.JID,
		IsAdmin:   p.IsAdmin,
	}
	if digits, ok := phone.Normalize(p.JID); ok {
		in.Phone = &digits
	}
	if p.LID != "" {
		lid := p.LID
		in.LID = &lid
	}
	if p.DisplayName != "" {
		name := p.DisplayName
		in.DisplayName = &name
	}
	return in
}

// sameParty reports whether two identifiers refer to the same account,
// ignoring device and server decoration.
func sameParty(a, b string) bool {
	return transport.BaseID(a) != "" && transport.BaseID(a) == transport.BaseID(b)
}
