package main

import (
	"fmt"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/horgh/catbox-modules/internal/mask"
)

// User holds information about a user.
type User struct {
	DisplayNick string

	Modes map[byte]struct{}

	// Ident from USER. We don't check identd, so it shows with a ~ prefix.
	Username string
	Hostname string
	IP       string
	RealName string

	// Channel name (canonicalized) to Channel.
	Channels map[string]*Channel

	LocalUser *LocalUser

	// Data modules attach to the user. It goes away when the user does.
	Ext ext.Extensible
}

func (u *User) String() string {
	return u.nickUhost()
}

// ident is the username as shown to others.
func (u *User) ident() string {
	return "~" + u.Username
}

func (u *User) nickUhost() string {
	return fmt.Sprintf("%s!%s@%s", u.DisplayNick, u.ident(), u.Hostname)
}

func (u *User) isOperator() bool {
	_, exists := u.Modes['o']
	return exists
}

// Services are opers flagged +S. They're reachable even when modules would
// otherwise restrict messaging.
func (u *User) isService() bool {
	_, exists := u.Modes['S']
	return exists
}

func (u *User) onChannel(channel *Channel) bool {
	_, exists := u.Channels[channel.Name]
	return exists
}

// Determine if the user matches the user and host masks.
//
// Either may have wildcards. The user mask is checked against the bare
// username, so bot@* matches a user who sent USER bot. We check the hostname
// and the IP against the host mask.
func (u *User) matchesMask(userMask, hostMask string) bool {
	if !mask.Match(u.Username, userMask) {
		return false
	}

	return mask.Match(u.Hostname, hostMask) || mask.Match(u.IP, hostMask)
}

// Determine if the user matches a nick!user@host style mask.
func (u *User) matchesHostmask(m string) bool {
	return mask.Match(u.nickUhost(), m) ||
		mask.Match(fmt.Sprintf("%s!%s@%s", u.DisplayNick, u.ident(), u.IP), m)
}

func (u *User) modesString() string {
	s := "+"
	for _, mode := range []byte("ioS") {
		if _, exists := u.Modes[mode]; exists {
			s += string(mode)
		}
	}
	return s
}
