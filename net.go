package main

import (
	"bufio"
	"net"
	"time"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// errMalformed wraps parse failures so the reader can skip the line instead
// of dropping the client.
var errMalformed = errors.New("malformed message")

// Conn wraps a client's TCP connection with line buffering and deadlines.
type Conn struct {
	conn    net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	timeout time.Duration

	// IP is the remote address. Nil if it could not be determined.
	IP net.IP
}

// NewConn wraps conn. Each read and write must finish within timeout.
func NewConn(conn net.Conn, timeout time.Duration) *Conn {
	c := &Conn{
		conn:    conn,
		r:       bufio.NewReader(conn),
		w:       bufio.NewWriter(conn),
		timeout: timeout,
	}

	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		c.IP = addr.IP
	}

	return c
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// ReadMessage reads and parses the next line.
//
// A line that does not parse gives an error wrapping errMalformed. The
// connection is still usable after that. Any other error means it is not.
func (c *Conn) ReadMessage() (irc.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return irc.Message{}, errors.Wrap(err, "unable to set read deadline")
	}

	line, err := c.r.ReadString('\n')
	if err != nil {
		return irc.Message{}, errors.Wrap(err, "read failed")
	}

	m, err := irc.ParseMessage(line)
	if err != nil && err != irc.ErrTruncated {
		return irc.Message{}, errors.Wrapf(errMalformed, "%q: %s", line, err)
	}

	return m, nil
}

// WriteMessage encodes the message and flushes it to the connection.
// Overlong messages are truncated rather than refused.
func (c *Conn) WriteMessage(m irc.Message) error {
	buf, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		return errors.Wrapf(err, "unable to encode %s", m)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return errors.Wrap(err, "unable to set write deadline")
	}

	if _, err := c.w.WriteString(buf); err != nil {
		return errors.Wrap(err, "write failed")
	}

	return errors.Wrap(c.w.Flush(), "flush failed")
}
