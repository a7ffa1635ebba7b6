package main

import (
	"strings"
	"time"

	"github.com/horgh/irc"
)

// Channel holds everything to do with a channel.
type Channel struct {
	// Canonicalized name.
	Name string

	// Members in the channel. Client id.
	// If we have zero members, we should not exist.
	Members map[uint64]struct{}

	// Ops tracks users who have ops in the channel.
	Ops map[uint64]struct{}

	// Bans in the order they were set.
	Bans []Ban

	// Channel TS. Set on channel creation.
	TS int64
}

// Ban is a channel ban (+b).
//
// The mask is either nick!user@host, or an extended ban that a module
// understands, such as g:<group mask>.
type Ban struct {
	Mask string

	// nick!user@host of who set it.
	Setter string

	TS int64
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		Members: make(map[uint64]struct{}),
		Ops:     make(map[uint64]struct{}),
		TS:      time.Now().Unix(),
	}
}

// Check if a user has operator status in the channel.
func (c *Channel) userHasOps(u *User) bool {
	_, exists := c.Ops[u.LocalUser.ID]
	return exists
}

// Remove a user from the channel.
func (c *Channel) removeUser(u *User) {
	delete(c.Members, u.LocalUser.ID)
	delete(c.Ops, u.LocalUser.ID)
	delete(u.Channels, c.Name)
}

func (c *Channel) findBan(m string) int {
	for i, ban := range c.Bans {
		if strings.EqualFold(ban.Mask, m) {
			return i
		}
	}
	return -1
}

// addBan adds a ban. It returns false if the ban is already set.
func (c *Channel) addBan(m, setter string) bool {
	if c.findBan(m) != -1 {
		return false
	}

	c.Bans = append(c.Bans, Ban{
		Mask:   m,
		Setter: setter,
		TS:     time.Now().Unix(),
	})
	return true
}

// removeBan removes a ban. It returns false if there was no such ban.
func (c *Channel) removeBan(m string) bool {
	i := c.findBan(m)
	if i == -1 {
		return false
	}

	c.Bans = append(c.Bans[:i], c.Bans[i+1:]...)
	return true
}

// isBanned decides if any ban on the channel matches the user.
//
// Modules get the first say on each ban. If none of them claim it, we treat it
// as a nick!user@host mask.
func (c *Channel) isBanned(cb *Catbox, u *User) bool {
	for _, ban := range c.Bans {
		switch cb.checkBan(u, c, ban.Mask) {
		case BanMatch:
			return true
		case BanNoMatch:
			continue
		}

		if u.matchesHostmask(ban.Mask) {
			return true
		}
	}

	return false
}

// Send a message to every member of the channel.
func (c *Channel) messageMembers(cb *Catbox, m irc.Message) {
	for id := range c.Members {
		member, exists := cb.LocalUsers[id]
		if !exists {
			continue
		}
		member.maybeQueueMessage(m)
	}
}
