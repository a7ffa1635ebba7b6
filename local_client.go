package main

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// Size of each client's outgoing queue. A client that falls this far behind
// is not reading and gets cut off.
const sendQueueLength = 32768

// LocalClient is a connection that has not yet registered. Registered
// connections are LocalUsers, which embed it.
type LocalClient struct {
	Conn *Conn

	// Unique for the life of the server.
	ID uint64

	// Remote address. Hostnames are not looked up.
	IP net.IP

	// Messages to write to the connection. Only the event loop sends on it,
	// and it closes it when the client goes away.
	WriteChan chan irc.Message

	ConnectionStartTime time.Time

	Catbox *Catbox

	// Set once WriteChan fills. Further messages are dropped.
	SendQueueExceeded bool

	// Registration details from NICK and USER.
	PreRegDisplayNick string
	PreRegUser        string
	PreRegRealName    string
}

// NewLocalClient creates a LocalClient
func NewLocalClient(cb *Catbox, id uint64, conn net.Conn) *LocalClient {
	c := NewConn(conn, cb.Config.DeadTime)

	return &LocalClient{
		Conn:                c,
		ID:                  id,
		IP:                  c.IP,
		WriteChan:           make(chan irc.Message, sendQueueLength),
		ConnectionStartTime: time.Now(),
		Catbox:              cb,
	}
}

func (c *LocalClient) String() string {
	return fmt.Sprintf("%d %s", c.ID, c.IP)
}

// maybeQueueMessage queues the message for the writer without blocking. If
// the queue is full the client is flagged and the message dropped.
func (c *LocalClient) maybeQueueMessage(m irc.Message) {
	if c.SendQueueExceeded {
		return
	}

	select {
	case c.WriteChan <- m:
	default:
		c.SendQueueExceeded = true
	}
}

// readLoop passes each message the client sends to the event loop. It ends
// when the connection fails or the server shuts down.
func (c *LocalClient) readLoop() {
	defer c.Catbox.WG.Done()

	for !c.Catbox.isShuttingDown() {
		m, err := c.Conn.ReadMessage()
		if errors.Is(err, errMalformed) {
			log.Printf("Client %s: Ignoring %s", c, err)
			continue
		}
		if err != nil {
			log.Printf("Client %s: %s", c, err)
			c.Catbox.newEvent(Event{Type: DeadClientEvent, Client: c})
			break
		}

		c.Catbox.newEvent(Event{
			Type:    MessageFromClientEvent,
			Client:  c,
			Message: m,
		})
	}

	log.Printf("Client %s: Reader done.", c)
}

// writeLoop writes queued messages until the event loop closes WriteChan,
// and then closes the connection. Queued messages may be lost if the server
// is shutting down.
func (c *LocalClient) writeLoop() {
	defer c.Catbox.WG.Done()

	defer func() {
		if err := c.Conn.Close(); err != nil {
			log.Printf("Client %s: Problem closing connection: %s", c, err)
		}
		log.Printf("Client %s: Writer done.", c)
	}()

	for {
		select {
		case m, ok := <-c.WriteChan:
			if !ok {
				return
			}
			if err := c.Conn.WriteMessage(m); err != nil {
				log.Printf("Client %s: %s", c, err)
				c.Catbox.newEvent(Event{Type: DeadClientEvent, Client: c})
				return
			}
		case <-c.Catbox.ShutdownChan:
			return
		}
	}
}

// quit drops an unregistered client.
func (c *LocalClient) quit(msg string) {
	if _, exists := c.Catbox.LocalClients[c.ID]; !exists {
		return
	}

	if c.PreRegDisplayNick != "" {
		delete(c.Catbox.Nicks, canonicalizeNick(c.PreRegDisplayNick))
	}

	c.messageFromServer("ERROR", []string{msg})
	close(c.WriteChan)
	delete(c.Catbox.LocalClients, c.ID)
}

// registerUser turns the client into a LocalUser once it has sent both NICK
// and USER.
func (c *LocalClient) registerUser() {
	lu := NewLocalUser(c)

	u := &User{
		DisplayNick: c.PreRegDisplayNick,
		Modes:       make(map[byte]struct{}),
		Username:    c.PreRegUser,
		Hostname:    c.IP.String(),
		IP:          c.IP.String(),
		RealName:    c.PreRegRealName,
		Channels:    make(map[string]*Channel),
		LocalUser:   lu,
	}
	lu.User = u
	lu.Exempt = c.Catbox.isExempt(u)

	delete(c.Catbox.LocalClients, c.ID)
	c.Catbox.LocalUsers[c.ID] = lu
	c.Catbox.Nicks[canonicalizeNick(u.DisplayNick)] = c.ID

	cfg := c.Catbox.Config
	welcome := []struct {
		numeric string
		params  []string
	}{
		// 001 RPL_WELCOME
		{"001", []string{"Welcome to the Internet Relay Network " + u.nickUhost()}},
		// 002 RPL_YOURHOST
		{"002", []string{fmt.Sprintf("Your host is %s, running version %s",
			cfg.ServerName, cfg.Version)}},
		// 003 RPL_CREATED
		{"003", []string{"This server was created " + cfg.CreatedDate}},
		// 004 RPL_MYINFO
		{"004", []string{cfg.ServerName, cfg.Version, "ioS", "nsb"}},
	}
	for _, w := range welcome {
		lu.messageFromServer(w.numeric, w.params)
	}
	lu.motdCommand()

	c.Catbox.userPostInit(lu)

	c.Catbox.noticeOpers(fmt.Sprintf("CLICONN %s %s %s %s exempt=%t",
		u.DisplayNick, u.Username, u.Hostname, u.IP, lu.Exempt))
	log.Printf("Client %s: Registered as %s (exempt: %t).", c, u, lu.Exempt)
}

// isExempt checks the user against the exempt-masks config.
func (cb *Catbox) isExempt(u *User) bool {
	for _, m := range cb.Config.ExemptMasks {
		if u.matchesMask(splitUserHostMask(m)) {
			return true
		}
	}
	return false
}

// Split a user@host mask at the last @. With no @ the user part is *.
func splitUserHostMask(m string) (string, string) {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] == '@' {
			return m[:i], m[i+1:]
		}
	}
	return "*", m
}

// messageFromServer queues a message from the server to the client. Numerics
// are addressed to the requested nick, or * if there is none yet.
func (c *LocalClient) messageFromServer(command string, params []string) {
	if isNumericCommand(command) {
		nick := c.PreRegDisplayNick
		if nick == "" {
			nick = "*"
		}
		params = append([]string{nick}, params...)
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:  c.Catbox.Config.ServerName,
		Command: command,
		Params:  params,
	})
}

// handleMessage handles a message before registration. Only the commands
// needed to register are allowed.
func (c *LocalClient) handleMessage(m irc.Message) {
	if m.Prefix != "" {
		c.messageFromServer("ERROR", []string{"Do not send a prefix"})
		return
	}

	switch m.Command {
	case "CAP", "PONG":
	case "NICK":
		c.nickCommand(m)
	case "USER":
		c.userCommand(m)
	case "QUIT":
		c.quit("Client quit")
	default:
		// 451 ERR_NOTREGISTERED
		c.messageFromServer("451", []string{"You have not registered"})
	}
}

func (c *LocalClient) nickCommand(m irc.Message) {
	nick, ok := c.Catbox.checkNick(c.ID, m, c.messageFromServer)
	if !ok {
		return
	}

	if c.PreRegDisplayNick != "" {
		delete(c.Catbox.Nicks, canonicalizeNick(c.PreRegDisplayNick))
	}
	c.Catbox.Nicks[canonicalizeNick(nick)] = c.ID
	c.PreRegDisplayNick = nick

	if c.PreRegUser != "" {
		c.registerUser()
	}
}

// checkNick validates a NICK request from client id. It replies through reply
// and returns false if the nick can't be used.
func (cb *Catbox) checkNick(id uint64, m irc.Message,
	reply func(string, []string)) (string, bool) {
	if len(m.Params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		reply("431", []string{"No nickname given"})
		return "", false
	}

	nick := m.Params[0]
	if len(nick) > cb.Config.MaxNickLength {
		nick = nick[:cb.Config.MaxNickLength]
	}

	if !isValidNick(cb.Config.MaxNickLength, nick) {
		// 432 ERR_ERRONEUSNICKNAME
		reply("432", []string{nick, "Erroneous nickname"})
		return "", false
	}

	if owner, exists := cb.Nicks[canonicalizeNick(nick)]; exists && owner != id {
		// 433 ERR_NICKNAMEINUSE
		reply("433", []string{nick, "Nickname is already in use"})
		return "", false
	}

	return nick, true
}

// USER <user> <mode> <unused> <realname>
func (c *LocalClient) userCommand(m irc.Message) {
	if len(m.Params) != 4 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"USER", "Not enough parameters"})
		return
	}

	if !isValidUser(c.Catbox.Config.MaxNickLength, m.Params[0]) {
		c.messageFromServer("ERROR", []string{"Invalid username"})
		return
	}
	if !isValidRealName(m.Params[3]) {
		c.messageFromServer("ERROR", []string{"Invalid realname"})
		return
	}

	c.PreRegUser = m.Params[0]
	c.PreRegRealName = m.Params[3]

	if c.PreRegDisplayNick != "" {
		c.registerUser()
	}
}
