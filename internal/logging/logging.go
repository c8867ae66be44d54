// Package logging configures the process-wide subsystem loggers.
package logging

import (
	"fmt"
	"io"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mattn/go-isatty"

	"github.com/x5uw/SyncRoom/internal/config"
)

// Subsystems lists the loggers SyncRoom registers.
var Subsystems = []string{
	"broker", "spotify", "liveness", "store", "broadcast", "roomsync", "server", "cli",
}

// Build converts the [log] section into a go-log configuration. out is the
// stream whose terminal-ness decides the auto format.
func Build(cfg config.LogConfig, out io.Writer) (logging.Config, error) {
	lc := logging.Config{
		Stderr:          cfg.File == "",
		File:            cfg.File,
		SubsystemLevels: make(map[string]logging.LogLevel),
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return lc, fmt.Errorf("log level %q: %w", level, err)
	}
	lc.Level = lvl

	for name, level := range cfg.Subsystems {
		lvl, err := logging.LevelFromString(level)
		if err != nil {
			return lc, fmt.Errorf("log level %q for %s: %w", level, name, err)
		}
		lc.SubsystemLevels[name] = lvl
	}

	switch cfg.Format {
	case "", "auto":
		lc.Format = logging.PlaintextOutput
		if cfg.File == "" && isTerminal(out) {
			lc.Format = logging.ColorizedOutput
		}
	case "color":
		lc.Format = logging.ColorizedOutput
	case "text":
		lc.Format = logging.PlaintextOutput
	case "json":
		lc.Format = logging.JSONOutput
	default:
		return lc, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return lc, nil
}

// Setup applies cfg to every logger, including ones created later.
func Setup(cfg config.LogConfig) error {
	lc, err := Build(cfg, os.Stderr)
	if err != nil {
		return err
	}
	logging.SetupLogging(lc)
	return nil
}

// SetVerbose raises every SyncRoom subsystem to debug.
func SetVerbose() {
	for _, name := range Subsystems {
		_ = logging.SetLogLevel(name, "debug")
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
