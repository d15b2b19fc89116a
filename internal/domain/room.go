package domain

import (
	"fmt"
	"strings"
)

const maxRoomKeyLength = 128

type RoomKind string

const (
	ChannelRoomKind RoomKind = "channel"
	DMRoomKind      RoomKind = "dm"
	UserRoomKind    RoomKind = "user"
	ThreadRoomKind  RoomKind = "thread"
	SpaceRoomKind   RoomKind = "space"
)

// Room is a delivery scope. It exists only as the set of connections
// subscribed to it.
type Room struct {
	Kind RoomKind
	ID   string
}

func (r Room) Key() string {
	return string(r.Kind) + ":" + r.ID
}

func (r Room) String() string { return r.Key() }

func ChannelRoom(id string) string { return Room{Kind: ChannelRoomKind, ID: id}.Key() }
func DMRoom(id string) string      { return Room{Kind: DMRoomKind, ID: id}.Key() }
func UserRoom(id string) string    { return Room{Kind: UserRoomKind, ID: id}.Key() }
func ThreadRoom(id string) string  { return Room{Kind: ThreadRoomKind, ID: id}.Key() }
func SpaceRoom(id string) string   { return Room{Kind: SpaceRoomKind, ID: id}.Key() }

// ParseRoom validates a room key of the form <kind>:<id>.
func ParseRoom(key string) (Room, error) {
	if key == "" || len(key) > maxRoomKeyLength {
		return Room{}, fmt.Errorf("%w: room key length", ErrInvalidInput)
	}

	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return Room{}, fmt.Errorf("%w: room key %q", ErrInvalidInput, key)
	}
	if strings.ContainsAny(id, ": \t\r\n") {
		return Room{}, fmt.Errorf("%w: room id %q", ErrInvalidInput, id)
	}

	switch k := RoomKind(kind); k {
	case ChannelRoomKind, DMRoomKind, UserRoomKind, ThreadRoomKind, SpaceRoomKind:
		return Room{Kind: k, ID: id}, nil
	default:
		return Room{}, fmt.Errorf("%w: room kind %q", ErrInvalidInput, kind)
	}
}
