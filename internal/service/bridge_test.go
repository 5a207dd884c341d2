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

const testBotID = int64(1)

var testSelf = transport.Identity{JID: "60123456789:2@s.whatsapp.net", LID: "111222333@lid"}

type bridgeHarness struct {
	store  *fakeStore
	client *fakeClient
	bridge *Bridge
}

func newBridgeHarness() *bridgeHarness {
	fs := newFakeStore()
	client := newFakeClient(testSelf)
	machine := NewMachine(testBotID, model.BotModeQR, "", client, fs, time.Hour, zerolog.Nop())
	rec := NewReconciler(fs, fs, 30*time.Second, zerolog.Nop())
	bridge := NewBridge(testBotID, client, machine, rec, fs, fs, zerolog.Nop())
	return &bridgeHarness{store: fs, client: client, bridge: bridge}
}

// run feeds the scripted events through the bridge and waits for both the
// connection loop and the roster loop to finish.
func (h *bridgeHarness) run(t *testing.T, events ...transport.Event) transport.CloseClass {
	t.Helper()
	for _, evt := range events {
		h.client.emit(evt)
	}
	h.client.Close()
	return h.bridge.Run(context.Background())
}

func TestBridgeFullSyncOnConnect(t *testing.T) {
	h := newBridgeHarness()
	h.client.setGroup(transport.GroupInfo{
		JID:  "g1@g.us",
		Name: "Ops",
		Participants: []transport.Participant{
			{JID: "60111111111@s.whatsapp.net", DisplayName: "Alice", IsAdmin: true},
			{JID: "60122222222@s.whatsapp.net"},
		},
	})

	class := h.run(t,
		transport.Connected{Self: testSelf},
		transport.Closed{Class: transport.CloseTransient, Note: "stream end"},
	)
	assert.Equal(t, transport.CloseTransient, class)

	status, ok := h.store.groupStatus(testBotID, "g1@g.us")
	require.True(t, ok)
	assert.Equal(t, model.GroupStatusActive, status)
	assert.Equal(t, 1, h.store.eventCount(model.EventGroupJoined))
	assert.Equal(t, 2, h.store.eventCount(model.EventMemberJoined))

	group, err := h.store.FindGroup(context.Background(), testBotID, "g1@g.us")
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Equal(t, "Ops", group.Name)
	assert.Equal(t, 2, group.MemberCount)

	alice, ok := h.store.memberState(group.ID, "60111111111@s.whatsapp.net")
	require.True(t, ok)
	assert.True(t, alice.IsAdmin)
	require.NotNil(t, alice.Phone)
	assert.Equal(t, "60111111111", *alice.Phone)
	require.NotNil(t, alice.DisplayName)
	assert.Equal(t, "Alice", *alice.DisplayName)

	assert.Equal(t, 1, h.store.statusCount(model.BotStatusOnline))
}

func TestBridgeAbsentGroupSweep(t *testing.T) {
	h := newBridgeHarness()
	// Stored but no longer present on the account.
	h.store.addGroup(testBotID, "gone@g.us", "Old", time.Now().Add(-time.Hour))
	h.client.setGroup(transport.GroupInfo{JID: "g1@g.us", Name: "Ops"})

	h.run(t,
		transport.Connected{Self: testSelf},
		transport.Closed{Class: transport.CloseTransient},
	)

	status, ok := h.store.groupStatus(testBotID, "gone@g.us")
	require.True(t, ok)
	assert.Equal(t, model.GroupStatusRemoved, status)
	assert.Equal(t, 1, h.store.eventCount(model.EventGroupRemoved))
}

func TestBridgeSelfRemoval(t *testing.T) {
	cases := []struct {
		name string
		left string
	}{
		{"full jid", "60123456789:2@s.whatsapp.net"},
		{"lid alias", "111222333@lid"},
		{"base segment", "60123456789@s.whatsapp.net"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newBridgeHarness()
			h.store.addGroup(testBotID, "g1@g.us", "Ops", time.Now().Add(-time.Hour))

			h.run(t, transport.ParticipantChange{
				GroupJID: "g1@g.us",
				Actor:    "60999999999@s.whatsapp.net",
				Left:     []string{tc.left},
			})

			status, ok := h.store.groupStatus(testBotID, "g1@g.us")
			require.True(t, ok)
			assert.Equal(t, model.GroupStatusRemoved, status)
			assert.Equal(t, 1, h.store.eventCount(model.EventGroupRemoved))
		})
	}
}

func TestBridgeDeltaJoinAndVoluntaryLeave(t *testing.T) {
	h := newBridgeHarness()
	group := h.store.addGroup(testBotID, "g1@g.us", "Ops", time.Now().Add(-time.Hour))
	h.client.setGroup(transport.GroupInfo{
		JID:  "g1@g.us",
		Name: "Ops",
		Participants: []transport.Participant{
			{JID: "60111111111@s.whatsapp.net", DisplayName: "Alice"},
		},
	})

	h.run(t,
		transport.ParticipantChange{GroupJID: "g1@g.us", Joined: []string{"60111111111@s.whatsapp.net"}},
		transport.ParticipantChange{
			GroupJID: "g1@g.us",
			Actor:    "60111111111:9@s.whatsapp.net",
			Left:     []string{"60111111111@s.whatsapp.net"},
		},
	)

	member, ok := h.store.memberState(group.ID, "60111111111@s.whatsapp.net")
	require.True(t, ok)
	assert.False(t, member.IsActive)
	assert.False(t, member.RemovedByAdmin, "same-party leave is voluntary")
	assert.Equal(t, 1, h.store.eventCount(model.EventMemberJoined))
	assert.Equal(t, 1, h.store.eventCount(model.EventMemberLeft))
	assert.Equal(t, 0, h.store.eventCount(model.EventMemberRemoved))
}

func TestBridgeDeltaAdminRemoval(t *testing.T) {
	h := newBridgeHarness()
	group := h.store.addGroup(testBotID, "g1@g.us", "Ops", time.Now().Add(-time.Hour))

	h.run(t,
		transport.ParticipantChange{GroupJID: "g1@g.us", Joined: []string{"60111111111@s.whatsapp.net"}},
		transport.ParticipantChange{
			GroupJID: "g1@g.us",
			Actor:    "60999999999@s.whatsapp.net",
			Left:     []string{"60111111111@s.whatsapp.net"},
		},
	)

	member, ok := h.store.memberState(group.ID, "60111111111@s.whatsapp.net")
	require.True(t, ok)
	assert.False(t, member.IsActive)
	assert.True(t, member.RemovedByAdmin)
	assert.Equal(t, 1, h.store.eventCount(model.EventMemberRemoved))
}

func TestBridgeDeltaForUnknownGroupPullsItWhole(t *testing.T) {
	h := newBridgeHarness()
	h.client.setGroup(transport.GroupInfo{
		JID:  "new@g.us",
		Name: "Fresh",
		Participants: []transport.Participant{
			{JID: "60111111111@s.whatsapp.net"},
			{JID: "60122222222@s.whatsapp.net"},
		},
	})

	h.run(t, transport.ParticipantChange{
		GroupJID: "new@g.us",
		Joined:   []string{"60111111111@s.whatsapp.net"},
	})

	group, err := h.store.FindGroup(context.Background(), testBotID, "new@g.us")
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Equal(t, "Fresh", group.Name)
	assert.Equal(t, 2, h.store.eventCount(model.EventMemberJoined))
}

func TestBridgeComparisonRecomputedOnRosterChange(t *testing.T) {
	h := newBridgeHarness()
	list := h.store.addTargetList("targets", []string{"60111111111", "60122222222", "60133333333"})
	group := h.store.addGroup(testBotID, "g1@g.us", "Ops", time.Now().Add(-time.Hour))
	group.TargetListID = &list.ID
	h.client.setGroup(transport.GroupInfo{
		JID:  "g1@g.us",
		Name: "Ops",
		Participants: []transport.Participant{
			{JID: "60111111111@s.whatsapp.net"},
			{JID: "60199999999@s.whatsapp.net"},
		},
	})

	h.run(t,
		transport.Connected{Self: testSelf},
		transport.Closed{Class: transport.CloseTransient},
	)

	stored, ok := h.store.comparison(group.ID)
	require.True(t, ok)
	assert.Equal(t, 1, stored.matched)
	assert.Equal(t, 2, stored.unmatched)
	assert.Equal(t, 1, stored.extra)
	assert.Equal(t, 33.33, stored.rate)
}

func TestBridgeRequestSyncAfterClose(t *testing.T) {
	h := newBridgeHarness()
	h.run(t, transport.Closed{Class: transport.CloseTransient})

	_, err := h.bridge.RequestSync(context.Background(), "")
	assert.Error(t, err)
}
