package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/transport"
)

func newTestMachine(mode model.BotMode, pairingPhone string, qrInterval time.Duration) (*Machine, *fakeStore, *fakeClient) {
	fs := newFakeStore()
	client := newFakeClient(transport.Identity{JID: "60123456789:2@s.whatsapp.net"})
	m := NewMachine(1, mode, pairingPhone, client, fs, qrInterval, zerolog.Nop())
	return m, fs, client
}

func TestMachineQRMode(t *testing.T) {
	ctx := context.Background()

	t.Run("first artifact pushes and moves to awaiting_qr", func(t *testing.T) {
		m, fs, _ := newTestMachine(model.BotModeQR, "", time.Hour)

		m.HandleCredential(ctx, "qr-1")

		assert.Equal(t, StateAwaitingQR, m.State())
		assert.Equal(t, 1, fs.credentialCount())
		assert.Equal(t, 1, fs.statusCount(model.BotStatusWaitingScan))
	})

	t.Run("artifacts within the interval are throttled", func(t *testing.T) {
		m, fs, _ := newTestMachine(model.BotModeQR, "", time.Hour)

		m.HandleCredential(ctx, "qr-1")
		m.HandleCredential(ctx, "qr-2")
		m.HandleCredential(ctx, "qr-3")

		assert.Equal(t, 1, fs.credentialCount())

		// The freshest artifact is still the one on offer.
		_, artifact, _ := m.Snapshot()
		assert.Equal(t, "qr-3", artifact)
	})

	t.Run("zero interval pushes every artifact", func(t *testing.T) {
		m, fs, _ := newTestMachine(model.BotModeQR, "", 0)

		m.HandleCredential(ctx, "qr-1")
		m.HandleCredential(ctx, "qr-2")

		assert.Equal(t, 2, fs.credentialCount())
		// Status still pushed once, on entry to awaiting_qr.
		assert.Equal(t, 1, fs.statusCount(model.BotStatusWaitingScan))
	})
}

func TestMachinePairingCodeMode(t *testing.T) {
	ctx := context.Background()

	t.Run("requests exactly one code per attempt", func(t *testing.T) {
		m, fs, client := newTestMachine(model.BotModePairingCode, "60123456789", time.Hour)

		m.HandleCredential(ctx, "qr-readiness-signal")
		m.HandleCredential(ctx, "qr-readiness-signal-2")

		require.Equal(t, 1, client.pairingRequestCount())
		assert.Equal(t, StateAwaitingPairingCode, m.State())
		assert.Equal(t, []string{"ABCD-1234"}, fs.credentials)
	})
}

func TestMachineConnected(t *testing.T) {
	ctx := context.Background()

	m, fs, _ := newTestMachine(model.BotModeQR, "", time.Hour)
	m.HandleCredential(ctx, "qr-1")

	m.HandleConnected(ctx, transport.Identity{JID: "60123456789:2@s.whatsapp.net", LID: "999888777@lid"})

	assert.Equal(t, StateOnline, m.State())

	state, artifact, phoneNumber := m.Snapshot()
	assert.Equal(t, StateOnline, state)
	assert.Empty(t, artifact)
	require.NotNil(t, phoneNumber)
	assert.Equal(t, "60123456789", *phoneNumber)

	last, ok := fs.lastStatus()
	require.True(t, ok)
	assert.Equal(t, model.BotStatusOnline, last.status)
	require.NotNil(t, last.phone)
	assert.Equal(t, "60123456789", *last.phone)

	assert.Equal(t, 1, fs.eventCount(model.EventBotOnline))
}

func TestMachineClosing(t *testing.T) {
	ctx := context.Background()

	t.Run("closing swallows late artifacts", func(t *testing.T) {
		m, fs, _ := newTestMachine(model.BotModeQR, "", time.Hour)

		m.BeginClosing()
		m.HandleCredential(ctx, "qr-late")

		assert.Equal(t, StateClosing, m.State())
		assert.Equal(t, 0, fs.credentialCount())
	})

	t.Run("closed is final for the instance", func(t *testing.T) {
		m, _, _ := newTestMachine(model.BotModeQR, "", time.Hour)

		m.HandleClosed(ctx, transport.CloseTransient, "stream error")
		assert.Equal(t, StateClosed, m.State())

		m.BeginClosing()
		assert.Equal(t, StateClosed, m.State())
	})
}
