package main

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// Catbox is the server. The event loop goroutine owns everything in it
// except the channels, the listener and the wait group.
type Catbox struct {
	Config *Config

	// Connections that have not finished NICK/USER, by client id.
	LocalClients map[uint64]*LocalClient

	// Registered users by client id.
	LocalUsers map[uint64]*LocalUser

	// Nicks in use, canonicalized, to client id. Unregistered clients hold
	// their nick here too.
	Nicks map[string]uint64

	// Channels by canonical name.
	Channels map[string]*Channel

	// Client id to operator.
	Opers map[uint64]*LocalUser

	// Loaded modules, in load order.
	Modules []Module

	// Extension items modules attach to users.
	Extensions *ext.Registry

	Metrics *Metrics

	// Closed by shutdown. Never sent on.
	ShutdownChan chan struct{}

	// Events for the event loop. Unbuffered.
	ToServerChan chan Event

	Listener net.Listener

	// Every goroutine started by run.
	WG sync.WaitGroup
}

// Event is something for the event loop to act on.
type Event struct {
	Type EventType

	Client *LocalClient

	Message irc.Message
}

// EventType says what happened.
type EventType int

const (
	// NullEvent is the zero value. It is never sent.
	NullEvent EventType = iota

	// NewClientEvent is a new connection.
	NewClientEvent

	// DeadClientEvent is a connection that failed to read or write.
	DeadClientEvent

	// MessageFromClientEvent carries a parsed line from a client.
	MessageFromClientEvent

	// WakeUpEvent is the periodic tick for pings, timeouts and flood decay.
	WakeUpEvent
)

func main() {
	log.SetFlags(0)

	args, err := getArgs()
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := checkAndParseConfig(args.ConfigFile)
	if err != nil {
		log.Fatalf("Configuration problem: %s", err)
	}

	cb, err := newCatbox(cfg, rand.New(rand.NewSource(args.Seed)))
	if err != nil {
		log.Fatal(err)
	}

	if err := cb.start(); err != nil {
		log.Fatal(err)
	}

	log.Printf("Server stopped.")
}

// newCatbox creates the server and loads its modules. Modules draw from r.
func newCatbox(cfg *Config, r *rand.Rand) (*Catbox, error) {
	cb := &Catbox{
		Config:       cfg,
		LocalClients: make(map[uint64]*LocalClient),
		LocalUsers:   make(map[uint64]*LocalUser),
		Nicks:        make(map[string]uint64),
		Channels:     make(map[string]*Channel),
		Opers:        make(map[uint64]*LocalUser),
		Extensions:   ext.NewRegistry(),
		Metrics:      newMetrics(),
		ShutdownChan: make(chan struct{}),
		ToServerChan: make(chan Event),
	}

	for _, name := range cfg.Modules {
		if err := cb.loadModule(name, r); err != nil {
			return nil, errors.Wrapf(err, "unable to load module %s", name)
		}
	}

	return cb, nil
}

// start listens and then runs until shutdown.
func (cb *Catbox) start() error {
	if err := cb.listen(); err != nil {
		return err
	}

	cb.run()
	return nil
}

// listen opens the TCP port and, if configured, the metrics port.
func (cb *Catbox) listen() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(cb.Config.ListenHost,
		cb.Config.ListenPort))
	if err != nil {
		return errors.Wrap(err, "unable to listen")
	}
	cb.Listener = ln

	if cb.Config.MetricsListen != "" {
		if err := cb.Metrics.serve(cb.Config.MetricsListen); err != nil {
			_ = ln.Close()
			return err
		}
	}

	return nil
}

// run starts the accept and wakeup goroutines, runs the event loop, and waits
// for everything to finish.
func (cb *Catbox) run() {
	cb.WG.Add(2)
	go cb.acceptConnections()
	go cb.alarm()

	log.Printf("Listening on %s", cb.Listener.Addr())

	cb.eventLoop()
	cb.WG.Wait()
}

func (cb *Catbox) eventLoop() {
	for {
		select {
		case evt := <-cb.ToServerChan:
			cb.handleEvent(evt)
		case <-cb.ShutdownChan:
			return
		}
	}
}

func (cb *Catbox) handleEvent(evt Event) {
	if evt.Type == WakeUpEvent {
		cb.checkAndPingClients()
		return
	}

	id := evt.Client.ID
	client, isClient := cb.LocalClients[id]
	user, isUser := cb.LocalUsers[id]

	switch evt.Type {
	case NewClientEvent:
		log.Printf("Client %s: Connected.", evt.Client)
		cb.LocalClients[id] = evt.Client

	case DeadClientEvent:
		switch {
		case isClient:
			log.Printf("Client %s: Connection lost.", client)
			client.quit("I/O error")
		case isUser:
			log.Printf("Client %s: Connection lost.", user)
			user.quit("I/O error")
		}

	case MessageFromClientEvent:
		switch {
		case isClient:
			client.handleMessage(evt.Message)
		case isUser:
			user.handleMessage(evt.Message)
		}

	default:
		log.Fatalf("Unexpected event: %d", evt.Type)
	}
}

// shutdown stops the server. Every connection is sent ERROR and closed.
//
// Only the event loop may call this.
func (cb *Catbox) shutdown() {
	log.Printf("Shutting down.")

	close(cb.ShutdownChan)

	if err := cb.Listener.Close(); err != nil {
		log.Printf("Problem closing listener: %s", err)
	}

	cb.Metrics.shutdown()

	for _, client := range cb.LocalClients {
		client.quit("Server shutting down")
	}
	for _, user := range cb.LocalUsers {
		user.quit("Server shutting down")
	}
}

// acceptConnections hands each new connection to the event loop and then
// starts its reader and writer.
func (cb *Catbox) acceptConnections() {
	defer cb.WG.Done()

	var id uint64
	for !cb.isShuttingDown() {
		conn, err := cb.Listener.Accept()
		if err != nil {
			if !cb.isShuttingDown() {
				log.Printf("Accept failed: %s", err)
			}
			continue
		}

		if id == ^uint64(0) {
			log.Fatalf("Out of client ids")
		}
		client := NewLocalClient(cb, id, conn)
		id++

		// The event loop must know the client before anything else about it
		// arrives.
		cb.newEvent(Event{Type: NewClientEvent, Client: client})

		cb.WG.Add(2)
		go client.readLoop()
		go client.writeLoop()
	}

	log.Printf("Accepter done.")
}

func (cb *Catbox) isShuttingDown() bool {
	select {
	case <-cb.ShutdownChan:
		return true
	default:
		return false
	}
}

// alarm wakes the event loop every WakeupTime.
func (cb *Catbox) alarm() {
	defer cb.WG.Done()

	ticker := time.NewTicker(cb.Config.WakeupTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cb.newEvent(Event{Type: WakeUpEvent})
		case <-cb.ShutdownChan:
			log.Printf("Alarm done.")
			return
		}
	}
}

// checkAndPingClients drops connections that are idle past DeadTime, PINGs
// users idle past PingTime, and drains flood penalties.
func (cb *Catbox) checkAndPingClients() {
	now := time.Now()

	for _, client := range cb.LocalClients {
		if now.Sub(client.ConnectionStartTime) > cb.Config.DeadTime {
			client.quit("Idle too long.")
		}
	}

	for _, user := range cb.LocalUsers {
		user.decayPenalty(now)
		cb.checkIdle(user, now)
	}
}

func (cb *Catbox) checkIdle(user *LocalUser, now time.Time) {
	idle := now.Sub(user.LastActivityTime)

	switch {
	case idle < cb.Config.PingTime:
	case idle > cb.Config.DeadTime:
		user.quit(fmt.Sprintf("Ping timeout: %d seconds", int(idle.Seconds())))
	case now.Sub(user.LastPingTime) >= cb.Config.PingTime:
		user.messageFromServer("PING", []string{cb.Config.ServerName})
		user.LastPingTime = now
	}
}

// newEvent sends an event to the event loop. It gives up if the server is
// shutting down, so it never blocks forever. Safe from any goroutine.
func (cb *Catbox) newEvent(evt Event) {
	select {
	case cb.ToServerChan <- evt:
	case <-cb.ShutdownChan:
	}
}

// noticeOpers sends a server notice to every local oper.
func (cb *Catbox) noticeOpers(s string) {
	for _, oper := range cb.Opers {
		oper.serverNotice(s)
	}
}
