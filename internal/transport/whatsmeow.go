package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const eventBufferSize = 64

// DeviceRegistry maps bot ids to persisted device identifiers so that a
// redial can reuse stored credentials.
type DeviceRegistry interface {
	DeviceJID(ctx context.Context, botID int64) (*string, error)
	SetDeviceJID(ctx context.Context, botID int64, jid *string) error
}

// WhatsmeowDialer opens whatsmeow-backed clients. Credential material lives
// in the sqlstore container; the registry remembers which device belongs to
// which bot.
type WhatsmeowDialer struct {
	container *sqlstore.Container
	devices   DeviceRegistry
	log       zerolog.Logger
}

func NewWhatsmeowDialer(container *sqlstore.Container, devices DeviceRegistry, log zerolog.Logger) *WhatsmeowDialer {
	return &WhatsmeowDialer{
		container: container,
		devices:   devices,
		log:       log,
	}
}

func (d *WhatsmeowDialer) Dial(ctx context.Context, botID int64) (Client, error) {
	device, err := d.deviceFor(ctx, botID)
	if err != nil {
		return nil, err
	}

	logger := d.log.With().Int64("botId", botID).Logger()
	cli := whatsmeow.NewClient(device, waLog.Zerolog(logger))
	// Reconnection is owned by the supervisor's retry policy, not the
	// underlying library.
	cli.EnableAutoReconnect = false

	c := &waClient{
		cli:     cli,
		botID:   botID,
		devices: d.devices,
		events:  make(chan Event, eventBufferSize),
		log:     logger,
	}
	cli.AddEventHandler(c.handleEvent)

	return c, nil
}

func (d *WhatsmeowDialer) deviceFor(ctx context.Context, botID int64) (*store.Device, error) {
	jid, err := d.devices.DeviceJID(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("load device jid: %w", err)
	}
	if jid != nil {
		parsed, err := types.ParseJID(*jid)
		if err == nil {
			device, err := d.container.GetDevice(ctx, parsed)
			if err != nil {
				return nil, fmt.Errorf("load device: %w", err)
			}
			if device != nil {
				return device, nil
			}
		}
		// The stored identifier no longer resolves to a device; start a
		// fresh pairing.
		d.log.Warn().Int64("botId", botID).Str("deviceJid", *jid).Msg("stored device not found, creating a new one")
	}
	return d.container.NewDevice(), nil
}

func (d *WhatsmeowDialer) PurgeCredentials(ctx context.Context, botID int64) error {
	jid, err := d.devices.DeviceJID(ctx, botID)
	if err != nil {
		return fmt.Errorf("load device jid: %w", err)
	}
	if jid != nil {
		if parsed, perr := types.ParseJID(*jid); perr == nil {
			device, derr := d.container.GetDevice(ctx, parsed)
			if derr != nil {
				return fmt.Errorf("load device: %w", derr)
			}
			if device != nil {
				if derr := d.container.DeleteDevice(ctx, device); derr != nil {
					return fmt.Errorf("delete device: %w", derr)
				}
			}
		}
	}
	return d.devices.SetDeviceJID(ctx, botID, nil)
}

type waClient struct {
	cli     *whatsmeow.Client
	botID   int64
	devices DeviceRegistry
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	events chan Event
}

func (c *waClient) Events() <-chan Event {
	return c.events
}

func (c *waClient) Connect(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		qrChan, err := c.cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go c.forwardQR(qrChan)
	}
	if err := c.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *waClient) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			c.emit(QRCode{Code: item.Code})
		case "timeout":
			c.emit(Closed{Class: CloseTransient, Note: "qr scan timed out"})
		}
	}
}

func (c *waClient) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.rememberDevice()
		c.emit(Connected{Self: c.Self()})

	case *events.PairSuccess:
		c.rememberDevice()
		c.emit(PairSuccess{Self: c.Self()})

	case *events.LoggedOut:
		c.emit(Closed{Class: CloseLoggedOut, Note: fmt.Sprintf("logged out by server (reason %d)", int(e.Reason))})

	case *events.ClientOutdated:
		c.emit(Closed{Class: CloseLoggedOut, Note: "client version rejected by server"})

	case *events.TemporaryBan:
		c.emit(Closed{Class: CloseLoggedOut, Note: fmt.Sprintf("temporary ban: %v", e.Code)})

	case *events.StreamReplaced:
		c.emit(Closed{Class: CloseTransient, Note: "stream replaced by another connection"})

	case *events.StreamError:
		class := CloseTransient
		if e.Code == "515" {
			// Pairing completed; the server wants the socket renegotiated.
			class = CloseRestartRequired
		}
		c.emit(Closed{Class: class, Note: "stream error " + e.Code})

	case *events.Disconnected:
		c.emit(Closed{Class: CloseTransient, Note: "connection closed"})

	case *events.ConnectFailure:
		c.emit(Closed{Class: CloseTransient, Note: fmt.Sprintf("connect failure: %v", e.Reason)})

	case *events.JoinedGroup:
		c.emit(GroupJoined{Info: convertGroupInfo(&e.GroupInfo)})

	case *events.GroupInfo:
		change := ParticipantChange{GroupJID: e.JID.String()}
		if e.Sender != nil {
			change.Actor = e.Sender.String()
		}
		for _, j := range e.Join {
			change.Joined = append(change.Joined, j.String())
		}
		for _, l := range e.Leave {
			change.Left = append(change.Left, l.String())
		}
		if len(change.Joined) > 0 || len(change.Left) > 0 {
			c.emit(change)
		}
	}
}

// rememberDevice persists the bound device identifier as soon as the store
// has one, so the next dial reuses these credentials.
func (c *waClient) rememberDevice() {
	if c.cli.Store.ID == nil {
		return
	}
	jid := c.cli.Store.ID.String()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.devices.SetDeviceJID(ctx, c.botID, &jid); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist device jid")
	}
}

func (c *waClient) Self() Identity {
	var id Identity
	if c.cli.Store.ID != nil {
		id.JID = c.cli.Store.ID.String()
	}
	if !c.cli.Store.LID.IsEmpty() {
		id.LID = c.cli.Store.LID.String()
	}
	return id
}

func (c *waClient) RequestPairingCode(ctx context.Context, phoneNumber string) (string, error) {
	code, err := c.cli.PairPhone(ctx, phoneNumber, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", fmt.Errorf("pair phone: %w", err)
	}
	return code, nil
}

func (c *waClient) ListGroups(ctx context.Context) ([]GroupInfo, error) {
	groups, err := c.cli.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	infos := make([]GroupInfo, 0, len(groups))
	for _, g := range groups {
		infos = append(infos, convertGroupInfo(g))
	}
	return infos, nil
}

func (c *waClient) GroupMetadata(ctx context.Context, groupJID string) (*GroupInfo, error) {
	jid, err := types.ParseJID(groupJID)
	if err != nil {
		return nil, fmt.Errorf("parse group jid: %w", err)
	}
	g, err := c.cli.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("group metadata: %w", err)
	}
	info := convertGroupInfo(g)
	return &info, nil
}

func (c *waClient) Logout(ctx context.Context) error {
	return c.cli.Logout(ctx)
}

func (c *waClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.events)
	c.mu.Unlock()

	c.cli.Disconnect()
}

func (c *waClient) emit(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- evt:
	default:
		c.log.Warn().Str("event", fmt.Sprintf("%T", evt)).Msg("transport event buffer full, dropping event")
	}
}

func convertGroupInfo(g *types.GroupInfo) GroupInfo {
	info := GroupInfo{
		JID:  g.JID.String(),
		Name: g.Name,
	}
	for _, p := range g.Participants {
		part := Participant{
			JID:         p.JID.String(),
			DisplayName: p.DisplayName,
			IsAdmin:     p.IsAdmin || p.IsSuperAdmin,
		}
		if !p.LID.IsEmpty() {
			part.LID = p.LID.String()
		}
		info.Participants = append(info.Participants, part)
	}
	return info
}
