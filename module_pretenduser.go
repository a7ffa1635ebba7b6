package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// pretendModule lets opers run a command as if another local user sent it.
// It's for testing modules against real users.
type pretendModule struct {
	cb *Catbox
}

func newPretendModule(cb *Catbox) *pretendModule {
	return &pretendModule{cb: cb}
}

func (m *pretendModule) Name() string {
	return "pretenduser"
}

func (m *pretendModule) Items() []ext.Item {
	return nil
}

func (m *pretendModule) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		"PRETENDUSER": m.pretendCommand,
	}
}

// PRETENDUSER <nick> <command> [<params>...]
//
// The parameters after the nick are joined and parsed as a line from the
// target.
func (m *pretendModule) pretendCommand(u *LocalUser, msg irc.Message) {
	if !u.requireOper() {
		return
	}

	if len(msg.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"PRETENDUSER", "Not enough parameters"})
		return
	}

	target, ok := u.lookupUser(msg.Params[0])
	if !ok {
		return
	}

	line := strings.Join(msg.Params[1:], " ")
	pretend, err := irc.ParseMessage(line + "\r\n")
	if err != nil && !errors.Is(err, irc.ErrTruncated) {
		u.Notice(fmt.Sprintf("Invalid command: %s", err))
		return
	}

	log.Printf("Client %s: Running %q as %s", u, line, target)
	m.cb.noticeOpers(fmt.Sprintf("%s ran %s as %s", u.User.DisplayNick,
		pretend.Command, target.User.DisplayNick))

	target.handleMessage(pretend)
}
