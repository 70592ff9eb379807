// Entry point for the diplomat facilitation bot.
//
// Two transports are supported:
//  1. slack: poll a real Slack channel (needs SLACK_BOT_TOKEN)
//  2. console: a local terminal chat session for trying plugins out
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"diplomat/internal/chat"
	"diplomat/internal/config"
	"diplomat/internal/console"
	"diplomat/internal/engine"
	"diplomat/internal/logging"
	"diplomat/internal/plugin"
	"diplomat/internal/plugins"
	"diplomat/internal/slackchat"
	"diplomat/internal/wizard"
)

func main() {
	configPath := flag.String("config", "diplomat.yaml", "path to the YAML configuration file")
	transport := flag.String("transport", "slack", "chat transport: slack or console")
	flag.Parse()

	if err := run(*configPath, *transport); err != nil {
		fmt.Fprintf(os.Stderr, "diplomat: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, transport string) error {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogDir)
	if err != nil {
		return err
	}
	defer log.Close()

	reg := plugin.NewRegistry()
	plugins.RegisterBuiltins(reg)
	wizard.Register(reg)

	roster, err := buildRoster(reg, cfg, log)
	if err != nil {
		return err
	}
	botID := chat.AuthorID(cfg.BotAuthorID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch transport {
	case "slack":
		adapter, err := slackchat.Connect(os.Getenv("SLACK_BOT_TOKEN"), cfg.Channel, botID, cfg.Observers)
		if err != nil {
			return err
		}
		e, err := engine.New(roster, adapter, adapter, adapter, botID,
			engine.WithLogger(log), engine.WithPluginTimeout(cfg.PluginTimeout()))
		if err != nil {
			return err
		}
		log.Printf("watching %s with %d plugin(s)", cfg.Channel, len(roster))
		return e.Run(ctx, cfg.PollInterval())

	case "console":
		session := console.NewSession(botID, "Diplomat")
		e, err := engine.New(roster, session, session, session, botID,
			engine.WithLogger(log), engine.WithPluginTimeout(cfg.PluginTimeout()))
		if err != nil {
			return err
		}
		go e.Run(ctx, cfg.PollInterval())
		return console.Run(session, "U1", "You")

	default:
		return fmt.Errorf("unknown transport %q (want slack or console)", transport)
	}
}

// buildRoster resolves every configured plugin through the registry.
// Unknown config keys are logged and skipped; a known plugin with a bad
// config aborts startup. Roster order is sorted by id so aggregation
// order is reproducible across runs.
func buildRoster(reg *plugin.Registry, cfg *config.Config, log *logging.Logger) ([]plugin.Plugin, error) {
	ids := cfg.EnabledPlugins()
	sort.Strings(ids)
	roster := make([]plugin.Plugin, 0, len(ids))
	for _, id := range ids {
		if !reg.Known(id) {
			log.Printf("ignoring unknown plugin key %q in config", id)
			continue
		}
		p, err := reg.Resolve(id, cfg.Plugins[id])
		if err != nil {
			return nil, err
		}
		roster = append(roster, p)
	}
	return roster, nil
}
