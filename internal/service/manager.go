package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Luckybob666/wa-bot-sub000/internal/audit"
	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/repository"
	"github.com/Luckybob666/wa-bot-sub000/internal/store"
	"github.com/Luckybob666/wa-bot-sub000/internal/transport"
)

// Runtime is the live state of one running session: the current connection
// attempt's client and machine plus the stop signal shared by all attempts.
type Runtime struct {
	botID        int64
	mode         model.BotMode
	pairingPhone string

	stopOnce sync.Once
	stopCh   chan struct{}

	mu      sync.Mutex
	client  transport.Client
	machine *Machine
	bridge  *Bridge
}

func (rt *Runtime) stop() {
	rt.stopOnce.Do(func() {
		close(rt.stopCh)
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.machine != nil {
			rt.machine.BeginClosing()
		}
		if rt.client != nil {
			rt.client.Close()
		}
	})
}

func (rt *Runtime) stopped() bool {
	select {
	case <-rt.stopCh:
		return true
	default:
		return false
	}
}

func (rt *Runtime) attach(client transport.Client, machine *Machine, bridge *Bridge) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.client = client
	rt.machine = machine
	rt.bridge = bridge
}

func (rt *Runtime) detach() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.client = nil
	rt.machine = nil
	rt.bridge = nil
}

func (rt *Runtime) snapshot() (SessionState, string, *string, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.machine == nil {
		return "", "", nil, false
	}
	state, artifact, phoneNumber := rt.machine.Snapshot()
	return state, artifact, phoneNumber, true
}

func (rt *Runtime) currentBridge() (*Bridge, SessionState) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.machine == nil {
		return nil, ""
	}
	return rt.bridge, rt.machine.State()
}

// SyncStore is the full store surface the manager works against.
type SyncStore interface {
	store.Syncer
	store.Reader
}

// Manager owns the session fleet: start/stop/status operations, the
// reconnect supervisor per session, and operator-triggered roster syncs.
type Manager struct {
	registry   *Registry
	bots       repository.BotRepository
	st         SyncStore
	dialer     transport.Dialer
	rec        *Reconciler
	policy     RetryPolicy
	qrInterval time.Duration
	log        zerolog.Logger
}

func NewManager(
	registry *Registry,
	bots repository.BotRepository,
	st SyncStore,
	dialer transport.Dialer,
	rec *Reconciler,
	policy RetryPolicy,
	qrInterval time.Duration,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		registry:   registry,
		bots:       bots,
		st:         st,
		dialer:     dialer,
		rec:        rec,
		policy:     policy,
		qrInterval: qrInterval,
		log:        log,
	}
}

// Start brings a session up. At most one session runs per bot id; a second
// start while one is live is rejected, not queued.
func (m *Manager) Start(ctx context.Context, botID int64, mode model.BotMode, phoneNumber string) error {
	if !mode.Valid() {
		return apperrors.InvalidInput("mode", string(mode))
	}

	bot, err := m.bots.FindByID(ctx, botID)
	if err != nil {
		return apperrors.Database(err)
	}
	if bot == nil {
		return apperrors.NotFound("Bot")
	}
	if bot.Deleted {
		return apperrors.Retired(botID)
	}

	if mode == model.BotModePairingCode && phoneNumber == "" {
		if bot.PhoneNumber == nil {
			return apperrors.MissingRequired("phoneNumber")
		}
		phoneNumber = *bot.PhoneNumber
	}

	// An explicit start on a recreated id lifts any earlier retirement.
	m.registry.Revive(botID)

	rt := &Runtime{
		botID:        botID,
		mode:         mode,
		pairingPhone: phoneNumber,
		stopCh:       make(chan struct{}),
	}
	if !m.registry.Put(botID, rt) {
		return apperrors.AlreadyRunning(botID)
	}

	var phonePtr *string
	if phoneNumber != "" {
		phonePtr = &phoneNumber
	}
	if err := m.bots.SetMode(ctx, botID, mode, phonePtr); err != nil {
		m.log.Warn().Err(err).Int64("botId", botID).Msg("failed to persist session mode")
	}

	audit.Log(ctx, audit.Event{Type: audit.EventBotStart, BotID: botID, Details: map[string]any{"mode": mode}})
	go m.supervise(rt)
	return nil
}

// supervise runs connection attempts for one session until a terminal
// closure, an operator stop, or retirement. Each attempt gets a fresh
// machine over the same persisted credentials; reconnect delays come from
// the retry policy and the stop/retirement flags are rechecked when the
// timer fires.
func (m *Manager) supervise(rt *Runtime) {
	ctx := context.Background()
	log := m.log.With().Int64("botId", rt.botID).Logger()
	defer m.registry.Remove(rt.botID, rt)

	for {
		if rt.stopped() || m.registry.IsRetired(rt.botID) {
			return
		}

		client, err := m.dialer.Dial(ctx, rt.botID)
		if err != nil {
			log.Error().Err(err).Msg("transport dial failed")
			m.st.PushStatus(ctx, rt.botID, model.BotStatusOffline, nil, "failed to open transport")
			return
		}

		machine := NewMachine(rt.botID, rt.mode, rt.pairingPhone, client, m.st, m.qrInterval, log)
		bridge := NewBridge(rt.botID, client, machine, m.rec, m.st, m.st, log)
		rt.attach(client, machine, bridge)

		// A stop or retirement may have landed while dialing.
		if rt.stopped() || m.registry.IsRetired(rt.botID) {
			client.Close()
			rt.detach()
			return
		}

		m.st.PushStatus(ctx, rt.botID, model.BotStatusConnecting, nil, "")

		class := transport.CloseTransient
		if err := client.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("transport connect failed")
		} else {
			class = bridge.Run(ctx)
		}
		client.Close()
		rt.detach()

		if rt.stopped() || m.registry.IsRetired(rt.botID) {
			return
		}

		delay, retry := m.policy.Delay(class)
		if !retry {
			m.terminate(ctx, rt.botID, log)
			return
		}

		m.st.PushStatus(ctx, rt.botID, model.BotStatusConnecting, nil, fmt.Sprintf("reconnecting in %s", delay))
		timer := time.NewTimer(delay)
		select {
		case <-rt.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// terminate handles a terminal auth closure: credentials are purged and the
// session goes offline for good.
func (m *Manager) terminate(ctx context.Context, botID int64, log zerolog.Logger) {
	if err := m.dialer.PurgeCredentials(ctx, botID); err != nil {
		log.Error().Err(err).Msg("credential purge failed")
	}
	m.st.PushStatus(ctx, botID, model.BotStatusOffline, nil, "logged out, credentials purged")
	m.st.AppendEvent(ctx, botID, nil, nil, model.EventBotOffline, map[string]any{"reason": "logged_out"})
	audit.Log(ctx, audit.Event{Type: audit.EventBotLogout, BotID: botID})
}

// Stop ends a session gracefully. Idempotent: stopping a bot with no live
// session only records the offline status.
func (m *Manager) Stop(ctx context.Context, botID int64, purgeCredentials bool) error {
	bot, err := m.bots.FindByID(ctx, botID)
	if err != nil {
		return apperrors.Database(err)
	}
	if bot == nil {
		return apperrors.NotFound("Bot")
	}

	if rt, ok := m.registry.Get(botID); ok {
		rt.stop()
	}
	if purgeCredentials {
		if err := m.dialer.PurgeCredentials(ctx, botID); err != nil {
			m.log.Error().Err(err).Int64("botId", botID).Msg("credential purge failed")
		}
	}

	m.st.PushStatus(ctx, botID, model.BotStatusOffline, nil, "stopped by operator")
	m.st.AppendEvent(ctx, botID, nil, nil, model.EventBotOffline, map[string]any{"reason": "stopped"})
	audit.Log(ctx, audit.Event{Type: audit.EventBotStop, BotID: botID, Details: map[string]any{"purgeCredentials": purgeCredentials}})
	return nil
}

// NotifyDeleted handles an upstream identity deletion: the id is retired
// before anything else so no late event can write for it again, then the
// live session is torn down and credentials purged.
func (m *Manager) NotifyDeleted(ctx context.Context, botID int64) error {
	m.registry.Retire(botID)

	if rt, ok := m.registry.Get(botID); ok {
		rt.stop()
	}
	if err := m.dialer.PurgeCredentials(ctx, botID); err != nil {
		m.log.Error().Err(err).Int64("botId", botID).Msg("credential purge failed")
	}
	if err := m.bots.MarkDeleted(ctx, botID); err != nil {
		m.log.Error().Err(err).Int64("botId", botID).Msg("failed to mark bot deleted")
	}
	audit.Log(ctx, audit.Event{Type: audit.EventBotDeleted, BotID: botID})
	return nil
}

// StatusResult is the externally visible session state.
type StatusResult struct {
	BotID         int64   `json:"botId"`
	State         string  `json:"state"`
	PhoneNumber   *string `json:"phoneNumber,omitempty"`
	HasCredential bool    `json:"hasCredential"`
	Credential    string  `json:"credential,omitempty"`
}

// Status reports the live machine state when a session is running, falling
// back to the persisted row otherwise.
func (m *Manager) Status(ctx context.Context, botID int64) (*StatusResult, error) {
	bot, err := m.bots.FindByID(ctx, botID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if bot == nil {
		return nil, apperrors.NotFound("Bot")
	}

	res := &StatusResult{BotID: botID, PhoneNumber: bot.PhoneNumber}

	if rt, ok := m.registry.Get(botID); ok {
		if state, artifact, phoneNumber, live := rt.snapshot(); live {
			res.State = string(state)
			if phoneNumber != nil {
				res.PhoneNumber = phoneNumber
			}
			res.HasCredential = artifact != ""
			res.Credential = artifact
			return res, nil
		}
		// Between attempts: registered but no machine yet.
		res.State = string(StateConnecting)
		return res, nil
	}

	res.State = string(bot.Status)
	if bot.QRCode != nil {
		res.HasCredential = true
		res.Credential = *bot.QRCode
	}
	return res, nil
}

// SyncGroups runs a full roster synchronization for a live, online session.
func (m *Manager) SyncGroups(ctx context.Context, botID int64) (SyncCounts, error) {
	bridge, err := m.onlineBridge(botID)
	if err != nil {
		return SyncCounts{}, err
	}
	return bridge.RequestSync(ctx, "")
}

// SyncGroupMembers reconciles a single group's roster.
func (m *Manager) SyncGroupMembers(ctx context.Context, botID, groupID int64) (SyncCounts, error) {
	group, err := m.st.FindGroupByID(ctx, groupID)
	if err != nil {
		return SyncCounts{}, apperrors.Database(err)
	}
	if group == nil || group.BotID != botID {
		return SyncCounts{}, apperrors.NotFound("Group")
	}

	bridge, err := m.onlineBridge(botID)
	if err != nil {
		return SyncCounts{}, err
	}
	return bridge.RequestSync(ctx, group.GroupJID)
}

func (m *Manager) onlineBridge(botID int64) (*Bridge, error) {
	rt, ok := m.registry.Get(botID)
	if !ok {
		return nil, apperrors.NotRunning(botID)
	}
	bridge, state := rt.currentBridge()
	if bridge == nil || state != StateOnline {
		return nil, apperrors.NotOnline(botID)
	}
	return bridge, nil
}
