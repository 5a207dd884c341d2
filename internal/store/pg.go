package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/repository"
	"github.com/Luckybob666/wa-bot-sub000/internal/sse"
)

// Store implements Syncer and Reader over the Postgres repositories, and
// transport.DeviceRegistry for credential reuse across redials.
type Store struct {
	bots       repository.BotRepository
	groups     repository.GroupRepository
	members    repository.MemberRepository
	targets    repository.TargetListRepository
	events     repository.EventRepository
	broker     *sse.Broker
	retirement RetirementChecker
	timeout    time.Duration
}

func New(
	bots repository.BotRepository,
	groups repository.GroupRepository,
	members repository.MemberRepository,
	targets repository.TargetListRepository,
	events repository.EventRepository,
	broker *sse.Broker,
	retirement RetirementChecker,
	timeout time.Duration,
) *Store {
	return &Store{
		bots:       bots,
		groups:     groups,
		members:    members,
		targets:    targets,
		events:     events,
		broker:     broker,
		retirement: retirement,
		timeout:    timeout,
	}
}

func (s *Store) IsRetired(botID int64) bool {
	return s.retirement.IsRetired(botID)
}

// pushCtx detaches fire-and-forget writes from the caller's context so that
// a final offline push still lands after the session context is cancelled.
func (s *Store) pushCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

type statusEvent struct {
	Status      model.BotStatus `json:"status"`
	PhoneNumber *string         `json:"phoneNumber,omitempty"`
	Note        string          `json:"note,omitempty"`
}

func (s *Store) PushStatus(ctx context.Context, botID int64, status model.BotStatus, phoneNumber *string, note string) {
	if s.IsRetired(botID) {
		log.Debug().Int64("botId", botID).Msg("status push suppressed for retired bot")
		return
	}

	pctx, cancel := s.pushCtx()
	defer cancel()

	if err := s.bots.UpdateStatus(pctx, botID, status, phoneNumber); err != nil {
		log.Error().Err(err).Int64("botId", botID).Str("status", string(status)).Msg("failed to push status")
		return
	}

	if status == model.BotStatusOnline || status == model.BotStatusOffline {
		// A cached credential artifact is worthless once the session is
		// past (or done with) the scanning phase.
		if err := s.bots.SetQRCode(pctx, botID, nil); err != nil {
			log.Warn().Err(err).Int64("botId", botID).Msg("failed to clear credential artifact")
		}
	}

	s.publish(pctx, botID, "status", statusEvent{Status: status, PhoneNumber: phoneNumber, Note: note})
}

type credentialEvent struct {
	Artifact string `json:"artifact"`
}

func (s *Store) PushCredential(ctx context.Context, botID int64, artifact string) {
	if s.IsRetired(botID) {
		log.Debug().Int64("botId", botID).Msg("credential push suppressed for retired bot")
		return
	}

	pctx, cancel := s.pushCtx()
	defer cancel()

	if err := s.bots.SetQRCode(pctx, botID, &artifact); err != nil {
		log.Error().Err(err).Int64("botId", botID).Msg("failed to store credential artifact")
		return
	}

	s.publish(pctx, botID, "credential", credentialEvent{Artifact: artifact})
}

func (s *Store) publish(ctx context.Context, botID int64, eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Int64("botId", botID).Msg("failed to marshal sse event")
		return
	}
	if err := s.broker.Publish(ctx, botID, sse.Event{Type: eventType, Data: raw}); err != nil {
		log.Warn().Err(err).Int64("botId", botID).Str("eventType", eventType).Msg("failed to publish sse event")
	}
}

func (s *Store) UpsertGroup(ctx context.Context, params model.UpsertGroupParams) (*model.Group, bool, error) {
	if s.IsRetired(params.BotID) {
		return nil, false, apperrors.Retired(params.BotID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.groups.FindByJID(ctx, params.BotID, params.GroupJID)
	if err != nil {
		return nil, false, apperrors.Database(err)
	}

	if existing == nil {
		group, err := s.groups.Create(ctx, params)
		if err != nil {
			return nil, false, apperrors.Database(err)
		}
		return group, false, nil
	}

	reactivated := existing.Status == model.GroupStatusRemoved
	if reactivated {
		if err := s.groups.Reactivate(ctx, existing.ID, params.Name, params.MemberCount); err != nil {
			return nil, false, apperrors.Database(err)
		}
	} else if err := s.groups.UpdateMeta(ctx, existing.ID, params.Name, params.MemberCount); err != nil {
		return nil, false, apperrors.Database(err)
	}

	existing.Status = model.GroupStatusActive
	existing.Name = params.Name
	existing.MemberCount = params.MemberCount
	return existing, reactivated, nil
}

func (s *Store) UpsertMember(ctx context.Context, groupID int64, write MemberWrite) (*model.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	member, err := s.members.FindByJID(ctx, groupID, write.Member.MemberJID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	switch write.Action {
	case model.MemberActionJoined:
		if member == nil {
			created, err := s.members.Create(ctx, model.CreateMemberParams{
				GroupID:     groupID,
				MemberJID:   write.Member.MemberJID,
				Phone:       write.Member.Phone,
				LID:         write.Member.LID,
				DisplayName: write.Member.DisplayName,
				IsAdmin:     write.Member.IsAdmin,
				JoinedAt:    write.JoinedAt,
			})
			if err != nil {
				return nil, apperrors.Database(err)
			}
			return created, nil
		}

		if !member.IsActive {
			if err := s.members.Reactivate(ctx, member.ID); err != nil {
				return nil, apperrors.Database(err)
			}
			member.IsActive = true
			member.LeftAt = nil
			member.RemovedByAdmin = false
		}
		if err := s.refreshIdentity(ctx, member, write.Member); err != nil {
			return nil, err
		}
		return member, nil

	case model.MemberActionLeft, model.MemberActionRemoved:
		if member == nil {
			return nil, apperrors.Inconsistency("membership change for unknown member " + write.Member.MemberJID)
		}
		if member.IsActive {
			leftAt := time.Now()
			if err := s.members.Deactivate(ctx, member.ID, write.RemovedByAdmin, leftAt); err != nil {
				return nil, apperrors.Database(err)
			}
			member.IsActive = false
			member.LeftAt = &leftAt
			member.RemovedByAdmin = write.RemovedByAdmin
		}
		return member, nil

	default:
		return nil, apperrors.Internal("unknown member action " + string(write.Action))
	}
}

func (s *Store) refreshIdentity(ctx context.Context, member *model.Member, m MemberUpsert) error {
	isAdmin := m.IsAdmin
	if err := s.members.RefreshIdentity(ctx, member.ID, m.Phone, m.LID, m.DisplayName, &isAdmin); err != nil {
		return apperrors.Database(err)
	}
	if m.Phone != nil {
		member.Phone = m.Phone
	}
	if m.LID != nil {
		member.LID = m.LID
	}
	if m.DisplayName != nil {
		member.DisplayName = m.DisplayName
	}
	member.IsAdmin = m.IsAdmin
	return nil
}

// UpsertMembersBatch applies each write independently: one bad record must
// not abort a batch of hundreds. Failures are logged and skipped.
func (s *Store) UpsertMembersBatch(ctx context.Context, groupID int64, writes []MemberWrite) error {
	for _, write := range writes {
		if _, err := s.UpsertMember(ctx, groupID, write); err != nil {
			log.Warn().Err(err).
				Int64("groupId", groupID).
				Str("memberJid", write.Member.MemberJID).
				Msg("batch member upsert skipped")
		}
	}
	return nil
}

func (s *Store) MarkGroupRemoved(ctx context.Context, botID int64, groupJID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	group, err := s.groups.FindByJID(ctx, botID, groupJID)
	if err != nil {
		return apperrors.Database(err)
	}
	if group == nil || group.Status == model.GroupStatusRemoved {
		return nil
	}
	if err := s.groups.MarkRemoved(ctx, group.ID); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *Store) UpdateComparison(ctx context.Context, groupID int64, matched, unmatched, extra int, rate float64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.groups.UpdateComparison(ctx, groupID, matched, unmatched, extra, rate); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// AppendEvent is fire-and-log: the audit trail is at-least-once and a failed
// append never disturbs the session path.
func (s *Store) AppendEvent(ctx context.Context, botID int64, groupID, memberID *int64, eventType model.EventType, payload any) {
	if s.IsRetired(botID) {
		return
	}

	pctx, cancel := s.pushCtx()
	defer cancel()

	var raw *json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Int64("botId", botID).Str("eventType", string(eventType)).Msg("failed to marshal event payload")
			return
		}
		msg := json.RawMessage(data)
		raw = &msg
	}

	if err := s.events.Append(pctx, model.AppendEventParams{
		BotID:     botID,
		GroupID:   groupID,
		MemberID:  memberID,
		EventType: eventType,
		Payload:   raw,
	}); err != nil {
		log.Error().Err(err).Int64("botId", botID).Str("eventType", string(eventType)).Msg("failed to append event")
	}
}

// Reader

func (s *Store) FindGroup(ctx context.Context, botID int64, groupJID string) (*model.Group, error) {
	return s.groups.FindByJID(ctx, botID, groupJID)
}

func (s *Store) FindGroupByID(ctx context.Context, groupID int64) (*model.Group, error) {
	return s.groups.FindByID(ctx, groupID)
}

func (s *Store) ActiveGroups(ctx context.Context, botID int64) ([]model.Group, error) {
	return s.groups.ActiveByBot(ctx, botID)
}

func (s *Store) FindMember(ctx context.Context, groupID int64, memberJID string) (*model.Member, error) {
	return s.members.FindByJID(ctx, groupID, memberJID)
}

func (s *Store) GroupMembers(ctx context.Context, groupID int64) ([]model.Member, error) {
	return s.members.ByGroup(ctx, groupID)
}

func (s *Store) ActiveMembers(ctx context.Context, groupID int64) ([]model.Member, error) {
	return s.members.ActiveByGroup(ctx, groupID)
}

func (s *Store) TargetList(ctx context.Context, id int64) (*model.TargetList, error) {
	return s.targets.FindByID(ctx, id)
}

// transport.DeviceRegistry

func (s *Store) DeviceJID(ctx context.Context, botID int64) (*string, error) {
	bot, err := s.bots.FindByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, nil
	}
	return bot.DeviceJID, nil
}

func (s *Store) SetDeviceJID(ctx context.Context, botID int64, jid *string) error {
	return s.bots.SetDeviceJID(ctx, botID, jid)
}
