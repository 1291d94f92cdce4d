package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/threadrelay/pkg/auth"
	"github.com/go-go-golems/threadrelay/pkg/config"
	"github.com/go-go-golems/threadrelay/pkg/kore"
	"github.com/go-go-golems/threadrelay/pkg/relay"
	"github.com/go-go-golems/threadrelay/pkg/stream"
	"github.com/go-go-golems/threadrelay/pkg/threadstore"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "threadrelay",
	Short: "Relay between a browser chat widget and Slack-hosted support threads",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		log.Logger = zerolog.New(zerolog.NewConsoleWriter()).
			With().
			Timestamp().
			Logger()
		if logLevel != "" {
			lvl, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return errors.Wrapf(err, "parse log level %q", logLevel)
			}
			zerolog.SetGlobalLevel(lvl)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the websocket relay server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	settings, err := config.Load(config.NewViper(), cfgFile)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	backend, err := stream.NewBackend(settings.StreamSettings())
	if err != nil {
		return errors.Wrap(err, "build stream backend")
	}

	store := threadstore.NewSlackStore(settings.SlackToken)
	channelID, err := store.ChannelID(ctx, settings.ActiveChannel)
	if err != nil {
		return errors.Wrapf(err, "resolve active channel %q", settings.ActiveChannel)
	}
	log.Info().Str("channel", settings.ActiveChannel).Str("channel_id", channelID).Msg("resolved active channel")

	archiveID := ""
	if settings.ArchiveChannel != "" {
		archiveID, err = store.ChannelID(ctx, settings.ArchiveChannel)
		if err != nil {
			// Archival notes are best effort; the relay runs without them.
			log.Warn().Err(err).Str("channel", settings.ArchiveChannel).Msg("archive channel not resolved")
			archiveID = ""
		}
	}

	bridge := kore.NewClient(kore.Config{
		WebhookURL:   settings.KoreWebhookURL,
		ClientID:     settings.KoreClientID,
		ClientSecret: settings.KoreClientSecret,
		Identity:     settings.KoreIdentity,
		BotID:        settings.KoreBotID,
		Timeout:      settings.RemoteTimeout,
	})

	router, err := relay.NewRouter(relay.RouterConfig{
		Store:            store,
		Bridge:           bridge,
		Sessions:         relay.NewSessionManager(),
		ChannelID:        channelID,
		ArchiveChannelID: archiveID,
		AgentUserID:      settings.AgentUserID,
		PollInterval:     settings.PollInterval,
	})
	if err != nil {
		return errors.Wrap(err, "build router")
	}

	srv, err := relay.NewServer(ctx, relay.ServerConfig{
		Addr:     settings.Addr,
		Verifier: auth.NewTokenVerifier(settings.AuthSecret, settings.AuthIssuer),
		Router:   router,
		Backend:  backend,
	})
	if err != nil {
		return errors.Wrap(err, "build server")
	}
	return srv.Run(ctx)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
