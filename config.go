package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/horgh/config"
	"github.com/pkg/errors"
)

// Config holds a server's configuration.
type Config struct {
	ListenHost  string
	ListenPort  string
	ServerName  string
	ServerInfo  string
	Version     string
	CreatedDate string
	MOTD        string

	MaxNickLength int

	// Period of time to wait before waking server up (maximum).
	WakeupTime time.Duration

	// Period of time a client can be idle before we send it a PING.
	PingTime time.Duration

	// Period of time a client can be idle before we consider it dead.
	DeadTime time.Duration

	// Oper name to password.
	Opers map[string]string

	// Oper names that are services rather than people. Opering as one of these
	// gives umode +S.
	ServiceOpers map[string]struct{}

	// user@host masks of users exempt from module restrictions such as having
	// to solve a problem.
	ExemptMasks []string

	// Flood penalty a user may accumulate before we disconnect them.
	FloodMaxPenalty int

	// Modules to load.
	Modules []string

	// Address to serve metrics on. Blank to disable.
	MetricsListen string
}

// Modules we know how to load.
var knownModules = map[string]struct{}{
	"groups":      {},
	"pretenduser": {},
	"solvemsg":    {},
}

// checkAndParseConfig checks configuration keys are present and in an
// acceptable format.
//
// We parse some values into alternate representations.
func checkAndParseConfig(file string) (*Config, error) {
	configMap, err := config.ReadStringMap(file)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config")
	}

	requiredKeys := []string{
		"listen-host",
		"listen-port",
		"server-name",
		"server-info",
		"version",
		"created-date",
		"motd",
		"max-nick-length",
		"wakeup-time",
		"ping-time",
		"dead-time",
		"opers-config",
		"flood-max-penalty",
	}

	// Check each key we want is present and non-blank.
	for _, key := range requiredKeys {
		v, exists := configMap[key]
		if !exists {
			return nil, fmt.Errorf("missing required key: %s", key)
		}

		if len(v) == 0 {
			return nil, fmt.Errorf("configuration value is blank: %s", key)
		}
	}

	// Populate our struct.

	c := &Config{
		ListenHost:    configMap["listen-host"],
		ListenPort:    configMap["listen-port"],
		ServerName:    configMap["server-name"],
		ServerInfo:    configMap["server-info"],
		Version:       configMap["version"],
		CreatedDate:   configMap["created-date"],
		MOTD:          configMap["motd"],
		MetricsListen: configMap["metrics-listen"],
	}

	nickLen64, err := strconv.ParseInt(configMap["max-nick-length"], 10, 8)
	if err != nil {
		return nil, errors.Wrap(err, "max nick length is not valid")
	}
	c.MaxNickLength = int(nickLen64)

	c.WakeupTime, err = time.ParseDuration(configMap["wakeup-time"])
	if err != nil {
		return nil, errors.Wrap(err, "wakeup time is in invalid format")
	}

	c.PingTime, err = time.ParseDuration(configMap["ping-time"])
	if err != nil {
		return nil, errors.Wrap(err, "ping time is in invalid format")
	}

	c.DeadTime, err = time.ParseDuration(configMap["dead-time"])
	if err != nil {
		return nil, errors.Wrap(err, "dead time is in invalid format")
	}

	penalty, err := strconv.Atoi(configMap["flood-max-penalty"])
	if err != nil || penalty <= 0 {
		return nil, fmt.Errorf("flood max penalty is not valid: %s",
			configMap["flood-max-penalty"])
	}
	c.FloodMaxPenalty = penalty

	opers, err := config.ReadStringMap(configMap["opers-config"])
	if err != nil {
		return nil, errors.Wrap(err, "unable to load opers config")
	}
	c.Opers = opers

	c.ServiceOpers = map[string]struct{}{}
	for _, name := range splitList(configMap["service-opers"]) {
		if _, exists := c.Opers[name]; !exists {
			return nil, fmt.Errorf("service oper %s is not an oper", name)
		}
		c.ServiceOpers[name] = struct{}{}
	}

	for _, m := range splitList(configMap["exempt-masks"]) {
		if !strings.Contains(m, "@") {
			return nil, fmt.Errorf("exempt mask must be user@host: %s", m)
		}
		c.ExemptMasks = append(c.ExemptMasks, m)
	}

	for _, name := range splitList(configMap["modules"]) {
		if _, exists := knownModules[name]; !exists {
			return nil, fmt.Errorf("unknown module: %s", name)
		}
		c.Modules = append(c.Modules, name)
	}

	return c, nil
}

// Split a comma separated list. Blank entries are skipped.
func splitList(s string) []string {
	var l []string
	for _, piece := range strings.Split(s, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		l = append(l, piece)
	}
	return l
}
