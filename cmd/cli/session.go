package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog"

	"github.com/dvloznov/console-reconciler/internal/browser/cdp"
	"github.com/dvloznov/console-reconciler/internal/config"
	"github.com/dvloznov/console-reconciler/internal/console"
	"github.com/dvloznov/console-reconciler/internal/executor"
	"github.com/dvloznov/console-reconciler/internal/locator"
)

// selectorsPath is shared by every subcommand that drives the console.
var selectorsPath string

// newFlagSet returns a flag set carrying the flags common to all subcommands.
func newFlagSet(name string, cfg *config.Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&selectorsPath, "selectors", cfg.SelectorsPath, "Selector profile YAML (default: embedded profile)")
	fs.StringVar(&cfg.CDPURL, "cdp", cfg.CDPURL, "DevTools endpoint of the logged-in browser")
	return fs
}

// session is one attached console tab.
type session struct {
	con     *console.Console
	profile *config.Profile
	close   func()
}

// mustAttach loads the selector profile and attaches to the browser.
// Failing to reach the browser is the one fatal condition of every command.
func mustAttach(ctx context.Context, log zerolog.Logger, cfg *config.Config) *session {
	profile, err := config.LoadProfile(selectorsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load selector profile")
	}
	registry, err := profile.Registry(cfg.Waits)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid selector profile")
	}

	page, cancel, err := cdp.Attach(ctx, cfg.CDPURL, cfg.ConsoleURL)
	if err != nil {
		log.Fatal().Err(err).Str("cdp_url", cfg.CDPURL).Msg("console unavailable")
	}

	exec := executor.New(page, executor.Options{
		Overlays:       profile.OverlaySelectors(),
		OverlayTimeout: cfg.Waits.Overlay,
		SettleWindow:   cfg.Waits.Settle,
		PollInterval:   cfg.Waits.Poll,
	})
	loc := locator.New(page, registry, cfg.Waits.Poll)

	log.Info().Str("cdp_url", cfg.CDPURL).Int("concepts", len(registry.Concepts())).Msg("attached to console")
	return &session{
		con:     console.New(page, loc, exec),
		profile: profile,
		close:   cancel,
	}
}
