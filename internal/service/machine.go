package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/phone"
	"github.com/Luckybob666/wa-bot-sub000/internal/store"
	"github.com/Luckybob666/wa-bot-sub000/internal/transport"
)

// SessionState is the connection lifecycle of one session instance. A fresh
// machine is built for every connection attempt; Closed is final for the
// instance, reconnection is the supervisor's business.
type SessionState string

const (
	StateConnecting          SessionState = "connecting"
	StateAwaitingQR          SessionState = "awaiting_qr"
	StateAwaitingPairingCode SessionState = "awaiting_pairing_code"
	StateOnline              SessionState = "online"
	StateClosing             SessionState = "closing"
	StateClosed              SessionState = "closed"
)

// Machine owns one session instance's connection lifecycle: credential
// presentation, the transition to online, and closure. Roster traffic never
// passes through here.
type Machine struct {
	botID        int64
	mode         model.BotMode
	pairingPhone string
	client       transport.Client
	syncer       store.Syncer
	qrInterval   time.Duration
	log          zerolog.Logger

	mu            sync.Mutex
	state         SessionState
	artifact      string
	boundPhone    *string
	lastPush      time.Time
	codeRequested bool
}

func NewMachine(
	botID int64,
	mode model.BotMode,
	pairingPhone string,
	client transport.Client,
	syncer store.Syncer,
	qrInterval time.Duration,
	log zerolog.Logger,
) *Machine {
	return &Machine{
		botID:        botID,
		mode:         mode,
		pairingPhone: pairingPhone,
		client:       client,
		syncer:       syncer,
		qrInterval:   qrInterval,
		log:          log,
		state:        StateConnecting,
	}
}

func (m *Machine) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the externally visible view: current state, the latest
// credential artifact, and the bound phone number once online.
func (m *Machine) Snapshot() (SessionState, string, *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.artifact, m.boundPhone
}

// HandleCredential processes one credential artifact from the transport.
// In QR mode artifacts arrive repeatedly and pushes are throttled to one
// per qrInterval. In pairing-code mode the first artifact only signals that
// the transport is ready: exactly one code is requested per connection
// attempt and forwarded for display.
func (m *Machine) HandleCredential(ctx context.Context, code string) {
	m.mu.Lock()
	if m.state == StateClosing || m.state == StateClosed {
		m.mu.Unlock()
		return
	}

	if m.mode == model.BotModePairingCode {
		if m.codeRequested {
			m.mu.Unlock()
			return
		}
		m.codeRequested = true
		m.state = StateAwaitingPairingCode
		m.mu.Unlock()

		pairingCode, err := m.client.RequestPairingCode(ctx, m.pairingPhone)
		if err != nil {
			m.log.Error().Err(err).Msg("failed to request pairing code")
			return
		}

		m.mu.Lock()
		m.artifact = pairingCode
		m.mu.Unlock()

		m.syncer.PushCredential(ctx, m.botID, pairingCode)
		m.syncer.PushStatus(ctx, m.botID, model.BotStatusWaitingScan, nil, "pairing code issued")
		m.log.Info().Msg("pairing code forwarded")
		return
	}

	first := m.state != StateAwaitingQR
	m.state = StateAwaitingQR
	m.artifact = code

	now := time.Now()
	if !first && now.Sub(m.lastPush) < m.qrInterval {
		// Near-duplicate artifact; keep it locally but do not saturate
		// the sync channel.
		m.mu.Unlock()
		return
	}
	m.lastPush = now
	m.mu.Unlock()

	m.syncer.PushCredential(ctx, m.botID, code)
	if first {
		m.syncer.PushStatus(ctx, m.botID, model.BotStatusWaitingScan, nil, "scan the QR code to pair")
	}
}

// HandleConnected moves the machine online and records the bound phone
// number. The full roster pull is triggered by the bridge.
func (m *Machine) HandleConnected(ctx context.Context, self transport.Identity) {
	var phoneNumber *string
	if digits, ok := phone.Normalize(self.JID); ok {
		phoneNumber = &digits
	}

	m.mu.Lock()
	m.state = StateOnline
	m.boundPhone = phoneNumber
	m.artifact = ""
	m.mu.Unlock()

	m.syncer.PushStatus(ctx, m.botID, model.BotStatusOnline, phoneNumber, "")
	m.syncer.AppendEvent(ctx, m.botID, nil, nil, model.EventBotOnline, map[string]any{
		"jid":   self.JID,
		"phone": phoneNumber,
	})
	m.log.Info().Str("jid", self.JID).Msg("session online")
}

// HandleClosed finalizes the instance. The supervisor decides what happens
// next from the close class.
func (m *Machine) HandleClosed(ctx context.Context, class transport.CloseClass, note string) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = StateClosed
	m.codeRequested = false
	m.mu.Unlock()

	m.log.Info().Str("class", string(class)).Str("note", note).Msg("session closed")
}

// BeginClosing marks an operator-initiated graceful shutdown so that late
// transport events are ignored.
func (m *Machine) BeginClosing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateClosed {
		m.state = StateClosing
	}
}
