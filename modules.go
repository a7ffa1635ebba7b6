package main

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/horgh/irc"
)

// Module extends the server. It hooks into events by implementing any of the
// hook interfaces below.
type Module interface {
	Name() string

	// Extension items the module attaches to users. They get registered when
	// the module loads.
	Items() []ext.Item
}

// UserInitHook is called when a local user completes registration.
type UserInitHook interface {
	OnUserPostInit(u *LocalUser)
}

// PreMessageHook is called before a local user's PRIVMSG/NOTICE goes to
// another user. Returning false blocks the message. The hook is responsible
// for telling the user why.
type PreMessageHook interface {
	OnUserPreMessage(source *LocalUser, target *User) bool
}

// BanResult is what a module decided about a channel ban.
type BanResult int

const (
	// BanPassthru means the module has no opinion on the ban.
	BanPassthru BanResult = iota

	// BanMatch means the ban matches the user.
	BanMatch

	// BanNoMatch means the ban is the module's kind but does not match.
	BanNoMatch
)

// CheckBanHook is called for each ban when deciding if a user is banned from a
// channel.
type CheckBanHook interface {
	OnCheckBan(u *User, channel *Channel, banMask string) BanResult
}

// WhoisHook is called when building a WHOIS reply about target. It returns
// extra numerics to send between RPL_WHOISSERVER and RPL_ENDOFWHOIS.
type WhoisHook interface {
	OnWhois(source *LocalUser, target *User) []irc.Message
}

// CommandFunc handles a command from a local user.
type CommandFunc func(u *LocalUser, m irc.Message)

// CommandHook adds commands. Keys are upper case command names.
type CommandHook interface {
	Commands() map[string]CommandFunc
}

// loadModule creates the module and registers its items.
func (cb *Catbox) loadModule(name string, r *rand.Rand) error {
	var mod Module
	switch name {
	case "groups":
		mod = newGroupsModule(cb)
	case "solvemsg":
		mod = newSolveModule(cb, r)
	case "pretenduser":
		mod = newPretendModule(cb)
	default:
		return fmt.Errorf("unknown module: %s", name)
	}

	for _, item := range mod.Items() {
		if err := cb.Extensions.Register(item); err != nil {
			return err
		}
	}

	if h, ok := mod.(CommandHook); ok {
		for command := range h.Commands() {
			if cb.moduleCommand(command) != nil {
				return fmt.Errorf("command %s is already provided", command)
			}
		}
	}

	cb.Modules = append(cb.Modules, mod)
	log.Printf("Loaded module %s", mod.Name())
	return nil
}

func (cb *Catbox) userPostInit(u *LocalUser) {
	for _, mod := range cb.Modules {
		if h, ok := mod.(UserInitHook); ok {
			h.OnUserPostInit(u)
		}
	}
}

// Return false if any module blocks the message.
func (cb *Catbox) userPreMessage(source *LocalUser, target *User) bool {
	for _, mod := range cb.Modules {
		if h, ok := mod.(PreMessageHook); ok {
			if !h.OnUserPreMessage(source, target) {
				return false
			}
		}
	}
	return true
}

// checkBan asks modules about the ban. The first module with an opinion
// decides.
func (cb *Catbox) checkBan(u *User, channel *Channel, banMask string) BanResult {
	for _, mod := range cb.Modules {
		h, ok := mod.(CheckBanHook)
		if !ok {
			continue
		}
		if res := h.OnCheckBan(u, channel, banMask); res != BanPassthru {
			return res
		}
	}
	return BanPassthru
}

func (cb *Catbox) whoisLines(source *LocalUser, target *User) []irc.Message {
	var msgs []irc.Message
	for _, mod := range cb.Modules {
		if h, ok := mod.(WhoisHook); ok {
			msgs = append(msgs, h.OnWhois(source, target)...)
		}
	}
	return msgs
}

func (cb *Catbox) moduleCommand(command string) CommandFunc {
	for _, mod := range cb.Modules {
		h, ok := mod.(CommandHook)
		if !ok {
			continue
		}
		if f, exists := h.Commands()[command]; exists {
			return f
		}
	}
	return nil
}
