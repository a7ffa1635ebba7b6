package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `listen-host = 127.0.0.1
listen-port = 6667
server-name = irc.example.com
server-info = Test server
version = catbox-1.0
created-date = 2026-01-01
motd = Hello
max-nick-length = 9
wakeup-time = 1s
ping-time = 30s
dead-time = 240s
opers-config = %s
flood-max-penalty = 20000
%s
`

func writeConfig(t *testing.T, extra string) string {
	dir := t.TempDir()

	opersFile := filepath.Join(dir, "opers.conf")
	require.NoError(t, os.WriteFile(opersFile,
		[]byte("admin = adminpass\nservices = servicespass\n"), 0644))

	confFile := filepath.Join(dir, "catbox.conf")
	require.NoError(t, os.WriteFile(confFile,
		[]byte(fmt.Sprintf(baseConfig, opersFile, extra)), 0644))

	return confFile
}

func TestCheckAndParseConfig(t *testing.T) {
	cfg, err := checkAndParseConfig(writeConfig(t, `service-opers = services
exempt-masks = *@127.0.0.1, bot@*.example.com
modules = groups,solvemsg
metrics-listen = 127.0.0.1:9100`))
	require.NoError(t, err)

	assert.Equal(t, "irc.example.com", cfg.ServerName)
	assert.Equal(t, 9, cfg.MaxNickLength)
	assert.Equal(t, time.Second, cfg.WakeupTime)
	assert.Equal(t, 240*time.Second, cfg.DeadTime)
	assert.Equal(t, 20000, cfg.FloodMaxPenalty)
	assert.Equal(t, map[string]string{
		"admin":    "adminpass",
		"services": "servicespass",
	}, cfg.Opers)
	assert.Equal(t, map[string]struct{}{"services": {}}, cfg.ServiceOpers)
	assert.Equal(t, []string{"*@127.0.0.1", "bot@*.example.com"},
		cfg.ExemptMasks)
	assert.Equal(t, []string{"groups", "solvemsg"}, cfg.Modules)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsListen)
}

func TestCheckAndParseConfigOptional(t *testing.T) {
	cfg, err := checkAndParseConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Empty(t, cfg.ServiceOpers)
	assert.Empty(t, cfg.ExemptMasks)
	assert.Empty(t, cfg.Modules)
	assert.Equal(t, "", cfg.MetricsListen)
}

func TestCheckAndParseConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		extra string
	}{
		{"unknown module", "modules = groups,nope"},
		{"service is not an oper", "service-opers = nobody"},
		{"exempt mask without user", "exempt-masks = 127.0.0.1"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := checkAndParseConfig(writeConfig(t, test.extra))
			assert.Error(t, err)
		})
	}
}

func TestCheckAndParseConfigMissingFile(t *testing.T) {
	_, err := checkAndParseConfig(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input  string
		output []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a,b", []string{"a", "b"}},
		{" a , ,b ", []string{"a", "b"}},
	}

	for _, test := range tests {
		assert.Equal(t, test.output, splitList(test.input), "input %q", test.input)
	}
}
