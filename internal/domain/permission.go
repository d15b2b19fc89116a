package domain

import (
	"fmt"
	"math/bits"
	"strings"
)

// Permission is a capability bit set. A role grants the union of its bits.
type Permission uint64

const (
	Administrator Permission = 1 << iota
	ViewChannel
	SendMessages
	ManageMessages
	ManageChannels
	ManageRoles
	KickMembers
	BanMembers
	CreateInvite
	AttachFiles
	MentionEveryone
	AddReactions
	ManageSpace
	ManageThreads
)

var permissionNames = map[Permission]string{
	Administrator:   "ADMINISTRATOR",
	ViewChannel:     "VIEW_CHANNEL",
	SendMessages:    "SEND_MESSAGES",
	ManageMessages:  "MANAGE_MESSAGES",
	ManageChannels:  "MANAGE_CHANNELS",
	ManageRoles:     "MANAGE_ROLES",
	KickMembers:     "KICK_MEMBERS",
	BanMembers:      "BAN_MEMBERS",
	CreateInvite:    "CREATE_INVITE",
	AttachFiles:     "ATTACH_FILES",
	MentionEveryone: "MENTION_EVERYONE",
	AddReactions:    "ADD_REACTIONS",
	ManageSpace:     "MANAGE_SPACE",
	ManageThreads:   "MANAGE_THREADS",
}

// HasPermission reports whether effective satisfies every bit of required.
// Administrator satisfies anything.
func HasPermission(effective, required Permission) bool {
	if effective&Administrator != 0 {
		return true
	}
	return effective&required == required
}

func (p Permission) Has(required Permission) bool {
	return HasPermission(p, required)
}

func (p Permission) String() string {
	if p == 0 {
		return "NONE"
	}

	names := make([]string, 0, bits.OnesCount64(uint64(p)))
	for rest := p; rest != 0; {
		bit := Permission(1) << bits.TrailingZeros64(uint64(rest))
		rest &^= bit
		if name, ok := permissionNames[bit]; ok {
			names = append(names, name)
		} else {
			names = append(names, "UNKNOWN")
		}
	}
	return strings.Join(names, "|")
}

// ParsePermissions folds permission names as produced by String into a set.
func ParsePermissions(names ...string) (Permission, error) {
	var p Permission
	for _, name := range names {
		found := false
		for bit, n := range permissionNames {
			if strings.EqualFold(n, strings.TrimSpace(name)) {
				p |= bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, name)
		}
	}
	return p, nil
}
