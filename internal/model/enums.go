package model

type BotMode string

const (
	BotModeQR          BotMode = "qr"
	BotModePairingCode BotMode = "pairing-code"
)

func (m BotMode) Valid() bool {
	return m == BotModeQR || m == BotModePairingCode
}

type BotStatus string

const (
	BotStatusOffline     BotStatus = "offline"
	BotStatusConnecting  BotStatus = "connecting"
	BotStatusWaitingScan BotStatus = "waiting_scan"
	BotStatusOnline      BotStatus = "online"
)

type GroupStatus string

const (
	GroupStatusActive  GroupStatus = "active"
	GroupStatusRemoved GroupStatus = "removed"
)

type MemberAction string

const (
	MemberActionJoined  MemberAction = "joined"
	MemberActionLeft    MemberAction = "left"
	MemberActionRemoved MemberAction = "removed"
)

type EventType string

const (
	EventMemberJoined  EventType = "member_joined"
	EventMemberLeft    EventType = "member_left"
	EventMemberRemoved EventType = "member_removed"
	EventGroupJoined   EventType = "group_joined"
	EventGroupRemoved  EventType = "group_removed"
	EventBotOnline     EventType = "bot_online"
	EventBotOffline    EventType = "bot_offline"
)
