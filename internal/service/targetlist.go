package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Luckybob666/wa-bot-sub000/internal/audit"
	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/phone"
	"github.com/Luckybob666/wa-bot-sub000/internal/repository"
	"github.com/Luckybob666/wa-bot-sub000/internal/store"
)

// TargetListService manages target phone lists and their binding to groups.
type TargetListService struct {
	targets repository.TargetListRepository
	groups  repository.GroupRepository
	reader  store.Reader
	rec     *Reconciler
	log     zerolog.Logger
}

func NewTargetListService(
	targets repository.TargetListRepository,
	groups repository.GroupRepository,
	reader store.Reader,
	rec *Reconciler,
	log zerolog.Logger,
) *TargetListService {
	return &TargetListService{
		targets: targets,
		groups:  groups,
		reader:  reader,
		rec:     rec,
		log:     log,
	}
}

// Create normalizes and de-duplicates the supplied phones and stores the
// list. Entries that cannot be normalized fail the whole request; a silently
// shrunken list would corrupt every comparison downstream.
func (s *TargetListService) Create(ctx context.Context, name string, phones []string) (*model.TargetList, error) {
	if name == "" {
		return nil, apperrors.MissingRequired("name")
	}
	if len(phones) == 0 {
		return nil, apperrors.MissingRequired("phones")
	}

	seen := make(map[string]struct{}, len(phones))
	normalized := make([]string, 0, len(phones))
	var invalid []string
	for _, raw := range phones {
		digits, ok := phone.Normalize(raw)
		if !ok {
			invalid = append(invalid, raw)
			continue
		}
		if _, dup := seen[digits]; dup {
			continue
		}
		seen[digits] = struct{}{}
		normalized = append(normalized, digits)
	}
	if len(invalid) > 0 {
		return nil, apperrors.ValidationError("phones are not normalizable").
			WithDetails(map[string]any{"invalid": invalid})
	}

	list, err := s.targets.Create(ctx, name, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventTargetListCreate, Details: map[string]any{
		"targetListId": list.ID,
		"totalCount":   list.TotalCount,
	}})
	return list, nil
}

func (s *TargetListService) Get(ctx context.Context, id int64) (*model.TargetList, error) {
	list, err := s.targets.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if list == nil {
		return nil, apperrors.NotFound("Target list")
	}
	return list, nil
}

// Bind attaches a target list to a group (or detaches with nil) and
// recomputes the comparison immediately.
func (s *TargetListService) Bind(ctx context.Context, groupID int64, targetListID *int64) (*model.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if group == nil {
		return nil, apperrors.NotFound("Group")
	}

	if targetListID != nil {
		list, err := s.targets.FindByID(ctx, *targetListID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if list == nil {
			return nil, apperrors.NotFound("Target list")
		}
	}

	if err := s.groups.BindTargetList(ctx, groupID, targetListID); err != nil {
		return nil, apperrors.Database(err)
	}
	group.TargetListID = targetListID
	s.rec.Recompare(ctx, group)

	updated, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return updated, nil
}

// Comparison recomputes the bound comparison from current state and returns
// the full partition, not just the cached counters.
func (s *TargetListService) Comparison(ctx context.Context, groupID int64) (*CompareResult, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if group == nil {
		return nil, apperrors.NotFound("Group")
	}
	if group.TargetListID == nil {
		return nil, apperrors.ValidationError("group has no bound target list")
	}

	result, err := s.rec.CompareGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
