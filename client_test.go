package main

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/horgh/irc"
	"github.com/stretchr/testify/require"
)

// testClient is an IRC client connection to a catbox under test.
type testClient struct {
	t    *testing.T
	nick string
	conn net.Conn
	rw   *bufio.ReadWriter
}

// dialClient connects and registers. It returns once the server welcomes the
// client.
func dialClient(t *testing.T, addr, nick string) *testClient {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)

	c := &testClient{
		t:    t,
		nick: nick,
		conn: conn,
		rw:   bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
	}
	t.Cleanup(func() { _ = c.conn.Close() })

	c.send("NICK", nick)
	c.send("USER", nick, "0", "*", nick)
	c.waitFor("001", "")

	return c
}

func (c *testClient) send(command string, params ...string) {
	buf, err := irc.Message{Command: command, Params: params}.Encode()
	require.NoError(c.t, err)

	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err = c.rw.WriteString(buf)
	require.NoError(c.t, err)
	require.NoError(c.t, c.rw.Flush())
}

// waitFor reads until a message with the command arrives whose last parameter
// contains text. Messages before it are discarded.
func (c *testClient) waitFor(command, text string) irc.Message {
	deadline := time.Now().Add(10 * time.Second)
	require.NoError(c.t, c.conn.SetReadDeadline(deadline))

	for {
		line, err := c.rw.ReadString('\n')
		require.NoError(c.t, err, "%s waiting for %s", c.nick, command)

		m, err := irc.ParseMessage(line)
		if err != nil && err != irc.ErrTruncated {
			c.t.Fatalf("unable to parse message: %q: %s", line, err)
		}

		if m.Command == "PING" && command != "PING" {
			c.send("PONG", m.Params[0])
			continue
		}

		if m.Command != command {
			continue
		}

		if text == "" ||
			(len(m.Params) > 0 && strings.Contains(m.Params[len(m.Params)-1], text)) {
			return m
		}
	}
}
