package main

import (
	"flag"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Args are command line arguments.
type Args struct {
	ConfigFile string

	// Seed for the random source modules draw from (e.g., solvemsg problems).
	Seed int64
}

func getArgs() (Args, error) {
	configFile := flag.String("conf", "", "Configuration file.")
	seed := flag.Int64("seed", 0,
		"Random seed for module problems. 0 seeds from the current time.")

	flag.Parse()

	if len(*configFile) == 0 {
		flag.PrintDefaults()
		return Args{}, errors.New("you must provide a configuration file")
	}

	configPath, err := filepath.Abs(*configFile)
	if err != nil {
		return Args{}, errors.Wrapf(err,
			"unable to determine absolute path to config file: %s", *configFile)
	}

	args := Args{
		ConfigFile: configPath,
		Seed:       *seed,
	}
	if args.Seed == 0 {
		args.Seed = time.Now().UnixNano()
	}

	return args, nil
}
