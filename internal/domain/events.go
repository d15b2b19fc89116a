package domain

import "time"

type EventName string

const (
	MessageCreatedEvent      EventName = "message.created"
	MessageDeletedEvent      EventName = "message.deleted"
	NotificationCreatedEvent EventName = "notification.created"
	PresenceChangedEvent     EventName = "presence.updated"
	TypingStartedEvent       EventName = "typing.started"
	MemberRolesUpdatedEvent  EventName = "member.roles_updated"
	MemberRemovedEvent       EventName = "member.removed"
)

// Event is the closed set of domain events. Only types in this package
// implement it.
type Event interface {
	Name() EventName
	isEvent()
}

type MessageCreated struct {
	Message Message `json:"message"`
}

type MessageDeleted struct {
	SpaceID   string `json:"spaceId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	DeletedBy string `json:"deletedBy"`
}

type NotificationCreated struct {
	Notification Notification `json:"notification"`
}

type PresenceChanged struct {
	UserID    string         `json:"userId"`
	Status    PresenceStatus `json:"status"`
	Previous  PresenceStatus `json:"previous"`
	ChangedAt time.Time      `json:"changedAt"`
}

type TypingStarted struct {
	SpaceID   string `json:"spaceId"`
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

type MemberRolesUpdated struct {
	SpaceID string   `json:"spaceId"`
	UserID  string   `json:"userId"`
	RoleIDs []string `json:"roleIds"`
}

type MemberRemoved struct {
	SpaceID   string `json:"spaceId"`
	UserID    string `json:"userId"`
	RemovedBy string `json:"removedBy"`
}

func (MessageCreated) Name() EventName      { return MessageCreatedEvent }
func (MessageDeleted) Name() EventName      { return MessageDeletedEvent }
func (NotificationCreated) Name() EventName { return NotificationCreatedEvent }
func (PresenceChanged) Name() EventName     { return PresenceChangedEvent }
func (TypingStarted) Name() EventName       { return TypingStartedEvent }
func (MemberRolesUpdated) Name() EventName  { return MemberRolesUpdatedEvent }
func (MemberRemoved) Name() EventName       { return MemberRemovedEvent }

func (MessageCreated) isEvent()      {}
func (MessageDeleted) isEvent()      {}
func (NotificationCreated) isEvent() {}
func (PresenceChanged) isEvent()     {}
func (TypingStarted) isEvent()       {}
func (MemberRolesUpdated) isEvent()  {}
func (MemberRemoved) isEvent()       {}
