package config

import (
	"flag"
	"os"

	"github.com/credkeeper/credkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   path to the durable store database
//	-l string   log level (debug, info, warn, error)
//	-no-auto-refresh   disable the background refresh timer
//
// Arguments are pre-filtered with flagx.FilterArgs so flags owned by other
// components do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-l", "-no-auto-refresh"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.StorePath, "d", cfg.StorePath, "path to the durable store database")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	noAutoRefresh := fs.Bool("no-auto-refresh", !cfg.AutoRefresh, "disable automatic session refresh")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.AutoRefresh = !*noAutoRefresh
}
