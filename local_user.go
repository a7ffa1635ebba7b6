package main

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// CommandPenalty is the flood penalty each command costs. It is also how much
// drains each second.
const CommandPenalty = 1000

// LocalUser is a registered client.
type LocalUser struct {
	*LocalClient

	User *User

	// Last time the client sent anything. Idle clients get PINGed and
	// eventually dropped.
	LastActivityTime time.Time

	// Last time we sent a PING.
	LastPingTime time.Time

	// Last PRIVMSG/NOTICE, shown as idle time in WHOIS.
	LastMessageTime time.Time

	// Exempt users match an exempt mask. Modules don't restrict them.
	Exempt bool

	// Flood ledger. Over Config.FloodMaxPenalty the user is disconnected.
	FloodPenalty int

	// Drained up to this time.
	PenaltyDecayTime time.Time
}

// NewLocalUser makes a LocalUser from a LocalClient.
func NewLocalUser(c *LocalClient) *LocalUser {
	now := time.Now()

	return &LocalUser{
		LocalClient:      c,
		LastActivityTime: now,
		LastPingTime:     now,
		LastMessageTime:  now,
		PenaltyDecayTime: now,
	}
}

func (u *LocalUser) String() string {
	return fmt.Sprintf("%d %s", u.ID, u.User)
}

// Extensions returns the user's extension data.
func (u *LocalUser) Extensions() *ext.Extensible {
	return &u.User.Ext
}

// IsExempt reports whether the user is exempt from module restrictions.
func (u *LocalUser) IsExempt() bool {
	return u.Exempt
}

// Notice sends the user a NOTICE from the server.
func (u *LocalUser) Notice(s string) {
	u.messageFromServer("NOTICE", []string{u.User.DisplayNick, s})
}

// AddPenalty adds to the user's flood penalty.
//
// It never disconnects. handleMessage checks the ledger before the next
// command.
func (u *LocalUser) AddPenalty(n int) {
	u.FloodPenalty += n
}

// decayPenalty drains CommandPenalty for each whole second since the last
// drain.
func (u *LocalUser) decayPenalty(now time.Time) {
	seconds := int(now.Sub(u.PenaltyDecayTime) / time.Second)
	if seconds <= 0 {
		return
	}
	u.PenaltyDecayTime = u.PenaltyDecayTime.Add(time.Duration(seconds) * time.Second)

	u.FloodPenalty -= seconds * CommandPenalty
	if u.FloodPenalty < 0 {
		u.FloodPenalty = 0
	}
}

// messageFromServer queues a message from the server. Numerics get the
// user's nick as first parameter.
func (u *LocalUser) messageFromServer(command string, params []string) {
	if isNumericCommand(command) {
		params = append([]string{u.User.DisplayNick}, params...)
	}

	u.maybeQueueMessage(irc.Message{
		Prefix:  u.Catbox.Config.ServerName,
		Command: command,
		Params:  params,
	})
}

// messageUser queues a message from this user to another.
func (u *LocalUser) messageUser(to *User, command string, params []string) {
	to.LocalUser.maybeQueueMessage(irc.Message{
		Prefix:  u.User.nickUhost(),
		Command: command,
		Params:  params,
	})
}

func (u *LocalUser) serverNotice(s string) {
	u.Notice("*** Notice --- " + s)
}

// peers is everyone sharing a channel with the user, plus the user.
func (u *LocalUser) peers() map[uint64]*LocalUser {
	peers := map[uint64]*LocalUser{u.ID: u}
	for _, channel := range u.User.Channels {
		for id := range channel.Members {
			if member, exists := u.Catbox.LocalUsers[id]; exists {
				peers[id] = member
			}
		}
	}
	return peers
}

// lookupUser finds a registered user by nick. If there is none it sends
// ERR_NOSUCHNICK.
func (u *LocalUser) lookupUser(nick string) (*LocalUser, bool) {
	if id, exists := u.Catbox.Nicks[canonicalizeNick(nick)]; exists {
		if target, exists := u.Catbox.LocalUsers[id]; exists {
			return target, true
		}
	}

	// 401 ERR_NOSUCHNICK
	u.messageFromServer("401", []string{nick, "No such nick/channel"})
	return nil, false
}

// quit removes the user: from its channels, the nick table, and the oper
// list. Module data attached to it is released.
//
// Only the event loop may call this as it closes WriteChan.
func (u *LocalUser) quit(msg string) {
	if _, exists := u.Catbox.LocalUsers[u.ID]; !exists {
		return
	}

	for _, peer := range u.peers() {
		u.messageUser(peer.User, "QUIT", []string{msg})
	}

	for _, channel := range u.User.Channels {
		u.leave(channel)
	}

	u.messageFromServer("ERROR", []string{msg})
	close(u.WriteChan)

	delete(u.Catbox.Nicks, canonicalizeNick(u.User.DisplayNick))
	delete(u.Catbox.LocalUsers, u.ID)
	delete(u.Catbox.Opers, u.ID)

	if n := u.User.Ext.Release(); n > 0 {
		log.Printf("Client %s: Released %d extension item(s).", u, n)
	}
}

// leave takes the user out of the channel. Empty channels go away.
func (u *LocalUser) leave(channel *Channel) {
	channel.removeUser(u.User)
	if len(channel.Members) == 0 {
		delete(u.Catbox.Channels, channel.Name)
	}
}

// handleMessage runs one command from a registered user.
//
// The flood ledger is checked first. Each command is then charged
// CommandPenalty before it runs.
func (u *LocalUser) handleMessage(m irc.Message) {
	u.LastActivityTime = time.Now()

	if u.FloodPenalty > u.Catbox.Config.FloodMaxPenalty {
		u.quit("Excess Flood")
		return
	}
	u.AddPenalty(CommandPenalty)

	if m.Prefix != "" {
		u.messageFromServer("ERROR", []string{"Do not send a prefix"})
		return
	}

	switch m.Command {
	case "CAP", "PONG":
	case "USER":
		// 462 ERR_ALREADYREGISTRED
		u.messageFromServer("462", []string{
			"Unauthorized command (already registered)"})
	case "NICK":
		u.nickCommand(m)
	case "JOIN":
		u.joinCommand(m)
	case "PART":
		u.partCommand(m)
	case "PRIVMSG", "NOTICE":
		u.privmsgCommand(m)
	case "MOTD":
		u.motdCommand()
	case "QUIT":
		u.quitCommand(m)
	case "PING":
		u.pingCommand(m)
	case "DIE":
		u.dieCommand()
	case "WHOIS":
		u.whoisCommand(m)
	case "OPER":
		u.operCommand(m)
	case "MODE":
		u.modeCommand(m)
	case "METADATA":
		u.metadataCommand(m)
	default:
		if f := u.Catbox.moduleCommand(m.Command); f != nil {
			f(u, m)
			return
		}
		// 421 ERR_UNKNOWNCOMMAND
		u.messageFromServer("421", []string{m.Command, "Unknown command"})
	}
}

func (u *LocalUser) nickCommand(m irc.Message) {
	nick, ok := u.Catbox.checkNick(u.ID, m, u.messageFromServer)
	if !ok {
		return
	}

	// Peers see the change from the old nick.
	for _, peer := range u.peers() {
		u.messageUser(peer.User, "NICK", []string{nick})
	}

	delete(u.Catbox.Nicks, canonicalizeNick(u.User.DisplayNick))
	u.Catbox.Nicks[canonicalizeNick(nick)] = u.ID
	u.User.DisplayNick = nick
}

// JOIN <channel>{,<channel>} or JOIN 0 to leave every channel.
func (u *LocalUser) joinCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"JOIN", "Not enough parameters"})
		return
	}

	if m.Params[0] == "0" {
		for _, channel := range u.User.Channels {
			u.part(channel, "")
		}
		return
	}

	for _, name := range commaChannelsToChannelNames(m.Params[0]) {
		u.join(name)
	}
}

// join adds the user to the channel, creating it if needed. Bans are checked
// through modules first.
func (u *LocalUser) join(name string) {
	if !isValidChannel(name) {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{name, "Invalid channel name"})
		return
	}

	channel, exists := u.Catbox.Channels[name]
	switch {
	case !exists:
		channel = newChannel(name)
		u.Catbox.Channels[name] = channel
		channel.Ops[u.ID] = struct{}{}
	case u.User.onChannel(channel):
		return
	case channel.isBanned(u.Catbox, u.User):
		// 474 ERR_BANNEDFROMCHAN
		u.messageFromServer("474", []string{name, "Cannot join channel (+b)"})
		return
	}

	channel.Members[u.ID] = struct{}{}
	u.User.Channels[name] = channel

	channel.messageMembers(u.Catbox, irc.Message{
		Prefix:  u.User.nickUhost(),
		Command: "JOIN",
		Params:  []string{name},
	})

	if !exists {
		u.messageFromServer("MODE", []string{name, "+nso", u.User.DisplayNick})
	}

	u.namesReply(channel)
}

// namesReply lists the channel's members in one RPL_NAMREPLY.
func (u *LocalUser) namesReply(channel *Channel) {
	var names []string
	for id := range channel.Members {
		member, exists := u.Catbox.LocalUsers[id]
		if !exists {
			continue
		}
		prefix := ""
		if channel.userHasOps(member.User) {
			prefix = "@"
		}
		names = append(names, prefix+member.User.DisplayNick)
	}
	sort.Strings(names)

	// 353 RPL_NAMREPLY. @ marks a secret channel.
	u.messageFromServer("353", []string{"@", channel.Name,
		strings.Join(names, " ")})
	// 366 RPL_ENDOFNAMES
	u.messageFromServer("366", []string{channel.Name, "End of NAMES list"})
}

// PART <channel>{,<channel>} [<message>]
func (u *LocalUser) partCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"PART", "Not enough parameters"})
		return
	}

	msg := ""
	if len(m.Params) > 1 {
		msg = m.Params[1]
	}

	for _, name := range commaChannelsToChannelNames(m.Params[0]) {
		channel, exists := u.Catbox.Channels[name]
		if !exists || !u.User.onChannel(channel) {
			// 442 ERR_NOTONCHANNEL
			u.messageFromServer("442", []string{name, "You're not on that channel"})
			continue
		}
		u.part(channel, msg)
	}
}

func (u *LocalUser) part(channel *Channel, msg string) {
	params := []string{channel.Name}
	if msg != "" {
		params = append(params, msg)
	}

	channel.messageMembers(u.Catbox, irc.Message{
		Prefix:  u.User.nickUhost(),
		Command: "PART",
		Params:  params,
	})
	u.leave(channel)
}

// PRIVMSG and NOTICE: <target> <text>
//
// Messages to nicks pass through the modules' pre-message hooks. Channel
// messages require membership and no matching ban.
func (u *LocalUser) privmsgCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 411 ERR_NORECIPIENT
		u.messageFromServer("411", []string{
			fmt.Sprintf("No recipient given (%s)", m.Command)})
		return
	}

	target := m.Params[0]
	text := ""
	if len(m.Params) > 1 {
		text = u.fitText(m.Command, target, m.Params[1])
	}
	if text == "" {
		// 412 ERR_NOTEXTTOSEND
		u.messageFromServer("412", []string{"No text to send"})
		return
	}

	if strings.HasPrefix(target, "#") {
		u.messageChannel(m.Command, canonicalizeChannel(target), text)
		return
	}

	to, ok := u.lookupUser(target)
	if !ok {
		return
	}

	if !u.Catbox.userPreMessage(u, to.User) {
		return
	}

	u.LastMessageTime = time.Now()
	u.messageUser(to.User, m.Command, []string{to.User.DisplayNick, text})
}

// fitText shortens text so the relayed message fits in one line.
func (u *LocalUser) fitText(command, target, text string) string {
	// :prefix COMMAND target :text\r\n
	overhead := len(u.User.nickUhost()) + len(command) + len(target) + 7
	if limit := irc.MaxLineLength - overhead; len(text) > limit {
		if limit <= 0 {
			return ""
		}
		return text[:limit]
	}
	return text
}

func (u *LocalUser) messageChannel(command, name, text string) {
	channel, exists := u.Catbox.Channels[name]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{name, "No such channel"})
		return
	}

	// Channels are +n. Banned members may not speak unless opped.
	if !u.User.onChannel(channel) ||
		(!channel.userHasOps(u.User) && channel.isBanned(u.Catbox, u.User)) {
		// 404 ERR_CANNOTSENDTOCHAN
		u.messageFromServer("404", []string{name, "Cannot send to channel"})
		return
	}

	u.LastMessageTime = time.Now()

	for id := range channel.Members {
		if id == u.ID {
			continue
		}
		if member, exists := u.Catbox.LocalUsers[id]; exists {
			u.messageUser(member.User, command, []string{channel.Name, text})
		}
	}
}

// motdCommand sends the MOTD. Lines in the config value are separated by |.
func (u *LocalUser) motdCommand() {
	// 375 RPL_MOTDSTART
	u.messageFromServer("375", []string{
		fmt.Sprintf("- %s Message of the day -", u.Catbox.Config.ServerName)})
	for _, line := range strings.Split(u.Catbox.Config.MOTD, "|") {
		// 372 RPL_MOTD
		u.messageFromServer("372", []string{"- " + strings.TrimSpace(line)})
	}
	// 376 RPL_ENDOFMOTD
	u.messageFromServer("376", []string{"End of MOTD command"})
}

func (u *LocalUser) quitCommand(m irc.Message) {
	if len(m.Params) > 0 && m.Params[0] != "" {
		u.quit("Quit: " + m.Params[0])
		return
	}
	u.quit("Quit:")
}

// PING <origin>. We always answer as ourselves.
func (u *LocalUser) pingCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 409 ERR_NOORIGIN
		u.messageFromServer("409", []string{"No origin specified"})
		return
	}
	u.messageFromServer("PONG", []string{u.Catbox.Config.ServerName})
}

// DIE shuts down the server. Opers only.
func (u *LocalUser) dieCommand() {
	if !u.requireOper() {
		return
	}
	log.Printf("Client %s: Shutting down the server.", u)
	u.Catbox.shutdown()
}

// requireOper is true if the user is an oper. If not it tells them so.
func (u *LocalUser) requireOper() bool {
	if u.User.isOperator() {
		return true
	}
	// 481 ERR_NOPRIVILEGES
	u.messageFromServer("481", []string{
		"Permission Denied- You're not an IRC operator"})
	return false
}

// WHOIS <nick>. Modules may add lines before the end.
func (u *LocalUser) whoisCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		u.messageFromServer("431", []string{"No nickname given"})
		return
	}

	target, ok := u.lookupUser(m.Params[0])
	if !ok {
		return
	}
	who := target.User
	cfg := u.Catbox.Config

	// 311 RPL_WHOISUSER
	u.messageFromServer("311", []string{who.DisplayNick, who.ident(),
		who.Hostname, "*", who.RealName})
	// 312 RPL_WHOISSERVER
	u.messageFromServer("312", []string{who.DisplayNick, cfg.ServerName,
		cfg.ServerInfo})
	if who.isOperator() {
		// 313 RPL_WHOISOPERATOR
		u.messageFromServer("313", []string{who.DisplayNick, "is an IRC operator"})
	}

	for _, line := range u.Catbox.whoisLines(u, who) {
		u.maybeQueueMessage(line)
	}

	// 317 RPL_WHOISIDLE
	u.messageFromServer("317", []string{who.DisplayNick,
		fmt.Sprintf("%d", int(time.Since(target.LastMessageTime).Seconds())),
		fmt.Sprintf("%d", target.ConnectionStartTime.Unix()),
		"seconds idle, signon time"})
	// 318 RPL_ENDOFWHOIS
	u.messageFromServer("318", []string{who.DisplayNick, "End of WHOIS list"})
}

// OPER <name> <password>. Service opers also get +S.
func (u *LocalUser) operCommand(m irc.Message) {
	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"OPER", "Not enough parameters"})
		return
	}

	if u.User.isOperator() {
		// 381 RPL_YOUREOPER
		u.messageFromServer("381", []string{"You are already an IRC operator"})
		return
	}

	name := m.Params[0]
	if pass, exists := u.Catbox.Config.Opers[name]; !exists || pass != m.Params[1] {
		// 464 ERR_PASSWDMISMATCH
		u.messageFromServer("464", []string{"Password incorrect"})
		return
	}

	modes := "+o"
	u.User.Modes['o'] = struct{}{}
	if _, isService := u.Catbox.Config.ServiceOpers[name]; isService {
		u.User.Modes['S'] = struct{}{}
		modes += "S"
	}
	u.Catbox.Opers[u.ID] = u

	u.messageUser(u.User, "MODE", []string{u.User.DisplayNick, modes})
	// 381 RPL_YOUREOPER
	u.messageFromServer("381", []string{"You are now an IRC operator"})

	u.Catbox.noticeOpers(fmt.Sprintf("%s is now an operator (%s)",
		u.User.nickUhost(), name))
}

// MODE <nick> shows the user's own modes. MODE <channel> [<modes> <args>]
// shows or changes channel modes.
func (u *LocalUser) modeCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"MODE", "Not enough parameters"})
		return
	}
	target := m.Params[0]

	if channel, exists := u.Catbox.Channels[canonicalizeChannel(target)]; exists {
		u.channelModeCommand(channel, m.Params[1:])
		return
	}

	id, exists := u.Catbox.Nicks[canonicalizeNick(target)]
	switch {
	case !exists:
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{target, "No such channel"})
	case id != u.ID:
		// 502 ERR_USERSDONTMATCH
		u.messageFromServer("502", []string{"Cannot change mode for other users"})
	case len(m.Params) > 1:
		// 501 ERR_UMODEUNKNOWNFLAG
		u.messageFromServer("501", []string{"Unknown MODE flag"})
	default:
		// 221 RPL_UMODEIS
		u.messageFromServer("221", []string{u.User.modesString()})
	}
}

// Channels are always +ns. Only bans may change.
func (u *LocalUser) channelModeCommand(channel *Channel, params []string) {
	if len(params) == 0 {
		// 324 RPL_CHANNELMODEIS
		u.messageFromServer("324", []string{channel.Name, "+ns"})
		// 329 RPL_CREATIONTIME
		u.messageFromServer("329", []string{channel.Name,
			fmt.Sprintf("%d", channel.TS)})
		return
	}

	modes := params[0]

	if (modes == "b" || modes == "+b") && len(params) == 1 {
		for _, ban := range channel.Bans {
			// 367 RPL_BANLIST
			u.messageFromServer("367", []string{channel.Name, ban.Mask, ban.Setter,
				fmt.Sprintf("%d", ban.TS)})
		}
		// 368 RPL_ENDOFBANLIST
		u.messageFromServer("368", []string{channel.Name,
			"End of channel ban list"})
		return
	}

	if !u.User.onChannel(channel) {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442", []string{channel.Name,
			"You're not on that channel"})
		return
	}

	if !channel.userHasOps(u.User) {
		// 482 ERR_CHANOPRIVSNEEDED
		u.messageFromServer("482", []string{channel.Name,
			"You're not channel operator"})
		return
	}

	adding := true
	args := params[1:]
	modeStr := ""
	sign := byte(0)
	var changed []string

	for _, char := range modes {
		switch char {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'b':
			if len(args) == 0 {
				continue
			}
			banMask := args[0]
			args = args[1:]

			want := byte('-')
			ok := false
			if adding {
				want = '+'
				ok = channel.addBan(banMask, u.User.nickUhost())
			} else {
				ok = channel.removeBan(banMask)
			}
			if !ok {
				continue
			}

			if sign != want {
				modeStr += string(want)
				sign = want
			}
			modeStr += "b"
			changed = append(changed, banMask)
		default:
			// 472 ERR_UNKNOWNMODE
			u.messageFromServer("472", []string{string(char),
				"is unknown mode char to me"})
		}
	}

	if len(changed) == 0 {
		return
	}

	channel.messageMembers(u.Catbox, irc.Message{
		Prefix:  u.User.nickUhost(),
		Command: "MODE",
		Params:  append([]string{channel.Name, modeStr}, changed...),
	})
}

// METADATA lets services (and opers) see and set extension data on users.
//
// METADATA <nick>                   List the user's data.
// METADATA <nick> <key>             Show one item.
// METADATA <nick> <key> :<value>    Set one item. A blank value clears it.
func (u *LocalUser) metadataCommand(m irc.Message) {
	if !u.User.isService() && !u.requireOper() {
		return
	}

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"METADATA", "Not enough parameters"})
		return
	}

	target, ok := u.lookupUser(m.Params[0])
	if !ok {
		return
	}
	nick := target.User.DisplayNick
	reg := u.Catbox.Extensions

	if len(m.Params) == 1 {
		values := reg.SerializeAll(&target.User.Ext)
		for _, key := range reg.Names() {
			if value, exists := values[key]; exists {
				// 761 RPL_KEYVALUE
				u.messageFromServer("761", []string{nick, key, "*", value})
			}
		}
		// 762 RPL_METADATAEND
		u.messageFromServer("762", []string{"end of metadata"})
		return
	}

	key := strings.ToLower(m.Params[1])

	if len(m.Params) > 2 {
		err := reg.Unserialize(&target.User.Ext, key, m.Params[2])
		if errors.Is(err, ext.ErrLocalItem) {
			// 767 ERR_KEYINVALID
			u.messageFromServer("767", []string{key, "metadata key is not settable"})
			return
		}
		if err != nil {
			// 767 ERR_KEYINVALID
			u.messageFromServer("767", []string{key, "invalid metadata key"})
			return
		}

		u.Catbox.Metrics.MetadataUpdates.WithLabelValues(key).Inc()
		log.Printf("Client %s: Set metadata %s on %s: %q", u, key, target,
			m.Params[2])
	}

	value, err := reg.Serialize(&target.User.Ext, key)
	if err != nil {
		// 767 ERR_KEYINVALID
		u.messageFromServer("767", []string{key, "invalid metadata key"})
		return
	}

	if value == "" {
		// 766 ERR_KEYNOTSET
		u.messageFromServer("766", []string{nick, key, "key not set"})
		return
	}

	// 761 RPL_KEYVALUE
	u.messageFromServer("761", []string{nick, key, "*", value})
}
