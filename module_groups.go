package main

import (
	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/horgh/catbox-modules/internal/groups"
	"github.com/horgh/catbox-modules/internal/mask"
	"github.com/horgh/irc"
)

// groupsModule lets users be managed using services-assigned groups.
//
// Services set a user's groups with METADATA <nick> groups :<names>.
type groupsModule struct {
	cb     *Catbox
	item   *groups.Item
	filter *groups.Filter
}

func newGroupsModule(cb *Catbox) *groupsModule {
	item := groups.NewItem()
	return &groupsModule{
		cb:     cb,
		item:   item,
		filter: groups.NewFilter(item, mask.Match),
	}
}

func (m *groupsModule) Name() string {
	return "groups"
}

func (m *groupsModule) Items() []ext.Item {
	return []ext.Item{m.item}
}

func (m *groupsModule) OnCheckBan(u *User, channel *Channel,
	banMask string) BanResult {
	res := m.filter.CheckBan(&u.Ext, banMask)
	if res != groups.NotApplicable {
		m.cb.Metrics.BanChecks.WithLabelValues(res.String()).Inc()
	}

	switch res {
	case groups.Match:
		return BanMatch
	case groups.NoMatch:
		return BanNoMatch
	default:
		return BanPassthru
	}
}

func (m *groupsModule) OnWhois(source *LocalUser, target *User) []irc.Message {
	s, ok := m.filter.Whois(&target.Ext)
	if !ok {
		return nil
	}

	// 695 RPL_WHOISGROUPS (InspIRCd specific)
	return []irc.Message{
		{
			Prefix:  m.cb.Config.ServerName,
			Command: "695",
			Params: []string{source.User.DisplayNick, target.DisplayNick, s,
				"is a member of these groups"},
		},
	}
}
