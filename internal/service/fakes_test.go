package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/repository"
	"github.com/Luckybob666/wa-bot-sub000/internal/store"
	"github.com/Luckybob666/wa-bot-sub000/internal/transport"
)

// fakeStore is an in-memory Syncer + Reader with the same transition
// semantics as the Postgres store.
type fakeStore struct {
	mu sync.Mutex

	retired map[int64]bool

	nextGroupID  int64
	nextMemberID int64

	groups  map[string]*model.Group
	members map[int64]map[string]*model.Member
	lists   map[int64]*model.TargetList

	statuses    []statusPush
	credentials []string
	events      []recordedEvent
	comparisons map[int64]comparisonRecord
}

type statusPush struct {
	status model.BotStatus
	phone  *string
	note   string
}

type recordedEvent struct {
	eventType model.EventType
	groupID   *int64
	memberID  *int64
	payload   any
}

type comparisonRecord struct {
	matched, unmatched, extra int
	rate                      float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		retired:     make(map[int64]bool),
		groups:      make(map[string]*model.Group),
		members:     make(map[int64]map[string]*model.Member),
		lists:       make(map[int64]*model.TargetList),
		comparisons: make(map[int64]comparisonRecord),
	}
}

func groupKey(botID int64, groupJID string) string {
	return fmt.Sprintf("%d|%s", botID, groupJID)
}

func (f *fakeStore) retire(botID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retired[botID] = true
}

func (f *fakeStore) addGroup(botID int64, groupJID, name string, createdAt time.Time) *model.Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextGroupID++
	g := &model.Group{
		ID:        f.nextGroupID,
		BotID:     botID,
		GroupJID:  groupJID,
		Name:      name,
		Status:    model.GroupStatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	f.groups[groupKey(botID, groupJID)] = g
	f.members[g.ID] = make(map[string]*model.Member)
	return g
}

func (f *fakeStore) addTargetList(name string, phones []string) *model.TargetList {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := &model.TargetList{
		ID:         int64(len(f.lists) + 1),
		Name:       name,
		Phones:     phones,
		TotalCount: len(phones),
		CreatedAt:  time.Now(),
	}
	f.lists[list.ID] = list
	return list
}

func (f *fakeStore) IsRetired(botID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retired[botID]
}

func (f *fakeStore) PushStatus(ctx context.Context, botID int64, status model.BotStatus, phoneNumber *string, note string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retired[botID] {
		return
	}
	f.statuses = append(f.statuses, statusPush{status: status, phone: phoneNumber, note: note})
}

func (f *fakeStore) PushCredential(ctx context.Context, botID int64, artifact string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retired[botID] {
		return
	}
	f.credentials = append(f.credentials, artifact)
}

func (f *fakeStore) UpsertGroup(ctx context.Context, params model.UpsertGroupParams) (*model.Group, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := groupKey(params.BotID, params.GroupJID)
	existing, ok := f.groups[key]
	if !ok {
		f.nextGroupID++
		g := &model.Group{
			ID:          f.nextGroupID,
			BotID:       params.BotID,
			GroupJID:    params.GroupJID,
			Name:        params.Name,
			MemberCount: params.MemberCount,
			Status:      model.GroupStatusActive,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		f.groups[key] = g
		f.members[g.ID] = make(map[string]*model.Member)
		return g, false, nil
	}

	reactivated := existing.Status == model.GroupStatusRemoved
	existing.Status = model.GroupStatusActive
	existing.Name = params.Name
	existing.MemberCount = params.MemberCount
	return existing, reactivated, nil
}

func (f *fakeStore) UpsertMember(ctx context.Context, groupID int64, write store.MemberWrite) (*model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	byJID, ok := f.members[groupID]
	if !ok {
		byJID = make(map[string]*model.Member)
		f.members[groupID] = byJID
	}
	member := byJID[write.Member.MemberJID]

	switch write.Action {
	case model.MemberActionJoined:
		if member == nil {
			f.nextMemberID++
			member = &model.Member{
				ID:          f.nextMemberID,
				GroupID:     groupID,
				MemberJID:   write.Member.MemberJID,
				Phone:       write.Member.Phone,
				LID:         write.Member.LID,
				DisplayName: write.Member.DisplayName,
				IsActive:    true,
				IsAdmin:     write.Member.IsAdmin,
				JoinedAt:    write.JoinedAt,
			}
			byJID[member.MemberJID] = member
			return member, nil
		}
		if !member.IsActive {
			member.IsActive = true
			member.LeftAt = nil
			member.RemovedByAdmin = false
		}
		if write.Member.Phone != nil {
			member.Phone = write.Member.Phone
		}
		if write.Member.LID != nil {
			member.LID = write.Member.LID
		}
		if write.Member.DisplayName != nil {
			member.DisplayName = write.Member.DisplayName
		}
		member.IsAdmin = write.Member.IsAdmin
		return member, nil

	case model.MemberActionLeft, model.MemberActionRemoved:
		if member == nil {
			return nil, errors.New("membership change for unknown member")
		}
		if member.IsActive {
			leftAt := time.Now()
			member.IsActive = false
			member.LeftAt = &leftAt
			member.RemovedByAdmin = write.RemovedByAdmin
		}
		return member, nil
	}
	return nil, errors.New("unknown action")
}

func (f *fakeStore) UpsertMembersBatch(ctx context.Context, groupID int64, writes []store.MemberWrite) error {
	for _, write := range writes {
		if _, err := f.UpsertMember(ctx, groupID, write); err != nil {
			continue
		}
	}
	return nil
}

func (f *fakeStore) MarkGroupRemoved(ctx context.Context, botID int64, groupJID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[groupKey(botID, groupJID)]; ok {
		g.Status = model.GroupStatusRemoved
	}
	return nil
}

func (f *fakeStore) UpdateComparison(ctx context.Context, groupID int64, matched, unmatched, extra int, rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comparisons[groupID] = comparisonRecord{matched: matched, unmatched: unmatched, extra: extra, rate: rate}
	return nil
}

func (f *fakeStore) AppendEvent(ctx context.Context, botID int64, groupID, memberID *int64, eventType model.EventType, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retired[botID] {
		return
	}
	f.events = append(f.events, recordedEvent{eventType: eventType, groupID: groupID, memberID: memberID, payload: payload})
}

func (f *fakeStore) FindGroup(ctx context.Context, botID int64, groupJID string) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupKey(botID, groupJID)]
	if !ok {
		return nil, nil
	}
	c := *g
	return &c, nil
}

func (f *fakeStore) FindGroupByID(ctx context.Context, groupID int64) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.ID == groupID {
			c := *g
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ActiveGroups(ctx context.Context, botID int64) ([]model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Group
	for _, g := range f.groups {
		if g.BotID == botID && g.Status == model.GroupStatusActive {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeStore) FindMember(ctx context.Context, groupID int64, memberJID string) (*model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[groupID][memberJID]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (f *fakeStore) GroupMembers(ctx context.Context, groupID int64) ([]model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Member
	for _, m := range f.members[groupID] {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeStore) ActiveMembers(ctx context.Context, groupID int64) ([]model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Member
	for _, m := range f.members[groupID] {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) TargetList(ctx context.Context, id int64) (*model.TargetList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if list, ok := f.lists[id]; ok {
		c := *list
		return &c, nil
	}
	return nil, nil
}

func (f *fakeStore) memberState(groupID int64, memberJID string) (model.Member, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[groupID][memberJID]; ok {
		return *m, true
	}
	return model.Member{}, false
}

func (f *fakeStore) eventCount(eventType model.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

func (f *fakeStore) lastStatus() (statusPush, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return statusPush{}, false
	}
	return f.statuses[len(f.statuses)-1], true
}

func (f *fakeStore) statusCount(status model.BotStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.statuses {
		if s.status == status {
			n++
		}
	}
	return n
}

func (f *fakeStore) credentialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.credentials)
}

func (f *fakeStore) groupStatus(botID int64, groupJID string) (model.GroupStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[groupKey(botID, groupJID)]; ok {
		return g.Status, true
	}
	return "", false
}

func (f *fakeStore) comparison(groupID int64) (comparisonRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comparisons[groupID]
	return c, ok
}

// fakeClient is a scripted transport client. Events preloaded into the
// channel are consumed by Bridge.Run; closing the client closes the channel.
type fakeClient struct {
	mu          sync.Mutex
	events      chan transport.Event
	self        transport.Identity
	groups      map[string]transport.GroupInfo
	pairingReqs []string
	pairingCode string
	connectErr  error
	closed      bool
}

func newFakeClient(self transport.Identity) *fakeClient {
	return &fakeClient{
		events:      make(chan transport.Event, 64),
		self:        self,
		groups:      make(map[string]transport.GroupInfo),
		pairingCode: "ABCD-1234",
	}
}

func (c *fakeClient) setGroup(info transport.GroupInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[info.JID] = info
}

func (c *fakeClient) emit(evt transport.Event) {
	c.events <- evt
}

func (c *fakeClient) Connect(ctx context.Context) error { return c.connectErr }

func (c *fakeClient) Events() <-chan transport.Event { return c.events }

func (c *fakeClient) Self() transport.Identity { return c.self }

func (c *fakeClient) RequestPairingCode(ctx context.Context, phoneNumber string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairingReqs = append(c.pairingReqs, phoneNumber)
	return c.pairingCode, nil
}

func (c *fakeClient) pairingRequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pairingReqs)
}

func (c *fakeClient) ListGroups(ctx context.Context) ([]transport.GroupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.GroupInfo, 0, len(c.groups))
	for _, info := range c.groups {
		out = append(out, info)
	}
	return out, nil
}

func (c *fakeClient) GroupMetadata(ctx context.Context, groupJID string) (*transport.GroupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.groups[groupJID]
	if !ok {
		return nil, errors.New("group not found")
	}
	return &info, nil
}

func (c *fakeClient) Logout(ctx context.Context) error { return nil }

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// fakeDialer hands out scripted clients in order. When the script runs dry
// it returns already-closed clients so a supervisor loop winds down.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	dials   int
	purged  []int64
	dialErr error
}

func newFakeDialer(clients ...*fakeClient) *fakeDialer {
	return &fakeDialer{clients: clients}
}

func (d *fakeDialer) Dial(ctx context.Context, botID int64) (transport.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if len(d.clients) == 0 {
		c := newFakeClient(transport.Identity{})
		c.Close()
		return c, nil
	}
	c := d.clients[0]
	d.clients = d.clients[1:]
	return c, nil
}

func (d *fakeDialer) PurgeCredentials(ctx context.Context, botID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.purged = append(d.purged, botID)
	return nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) purgeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.purged)
}

// fakeBotRepo is an in-memory BotRepository.
type fakeBotRepo struct {
	mu   sync.Mutex
	bots map[int64]*model.Bot
}

func newFakeBotRepo(bots ...*model.Bot) *fakeBotRepo {
	repo := &fakeBotRepo{bots: make(map[int64]*model.Bot)}
	for _, b := range bots {
		repo.bots[b.ID] = b
	}
	return repo
}

func (r *fakeBotRepo) FindByID(ctx context.Context, id int64) (*model.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (r *fakeBotRepo) UpdateStatus(ctx context.Context, id int64, status model.BotStatus, phoneNumber *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[id]; ok {
		b.Status = status
		if phoneNumber != nil {
			b.PhoneNumber = phoneNumber
		}
	}
	return nil
}

func (r *fakeBotRepo) SetMode(ctx context.Context, id int64, mode model.BotMode, phoneNumber *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[id]; ok {
		b.Mode = mode
		if phoneNumber != nil {
			b.PhoneNumber = phoneNumber
		}
	}
	return nil
}

func (r *fakeBotRepo) SetQRCode(ctx context.Context, id int64, code *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[id]; ok {
		b.QRCode = code
	}
	return nil
}

func (r *fakeBotRepo) SetDeviceJID(ctx context.Context, id int64, jid *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[id]; ok {
		b.DeviceJID = jid
	}
	return nil
}

func (r *fakeBotRepo) MarkDeleted(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[id]; ok {
		b.Deleted = true
	}
	return nil
}

func (r *fakeBotRepo) ClearStaleQRCodes(ctx context.Context) (int64, error) { return 0, nil }

func (r *fakeBotRepo) WithTx(tx *sqlx.Tx) repository.BotRepository { return r }

func (r *fakeBotRepo) isDeleted(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	return ok && b.Deleted
}
