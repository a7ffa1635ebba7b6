package main

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPretendUser(t *testing.T) {
	cb := newTestCatbox(t, testConfig())
	alice := newTestUser(cb, 1, "alice", false)
	admin := newTestUser(cb, 2, "admin", true)

	p := problemOf(t, cb, alice)
	require.NotNil(t, p)

	send(admin, "OPER", "admin", "adminpass")
	drain(admin)
	drain(alice)

	send(admin, "PRETENDUSER", "alice", "SOLVE", strconv.Itoa(p.Answer()))
	assert.NotNil(t, find(drain(alice), "NOTICE", "is the correct answer!"))
	assert.Nil(t, problemOf(t, cb, alice))
	assert.NotNil(t, find(drain(admin), "NOTICE", "admin ran SOLVE as alice"))

	send(admin, "PRETENDUSER", "alice", "JOIN", "#test")
	require.Contains(t, cb.Channels, "#test")
	assert.Contains(t, cb.Channels["#test"].Members, alice.ID)
	assert.NotContains(t, cb.Channels["#test"].Members, admin.ID)
}

func TestPretendUserErrors(t *testing.T) {
	cb := newTestCatbox(t, testConfig())
	alice := newTestUser(cb, 1, "alice", true)
	bob := newTestUser(cb, 2, "bob", true)
	admin := newTestUser(cb, 3, "admin", true)
	send(admin, "OPER", "admin", "adminpass")
	drain(admin)

	tests := []struct {
		user    *LocalUser
		params  []string
		command string
		text    string
	}{
		{bob, []string{"alice", "JOIN", "#test"}, "481", "Permission Denied"},
		{admin, []string{"alice"}, "461", "Not enough parameters"},
		{admin, []string{"nobody", "JOIN", "#test"}, "401", "No such nick"},
		{admin, []string{"alice", ":"}, "NOTICE", "Invalid command"},
	}

	for _, test := range tests {
		send(test.user, "PRETENDUSER", test.params...)
		assert.NotNil(t, find(drain(test.user), test.command, test.text),
			"%v", test.params)
	}

	assert.NotContains(t, cb.Channels, "#test")
	assert.Empty(t, alice.User.Channels)
}
