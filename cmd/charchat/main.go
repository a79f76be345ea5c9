package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/ent0n29/charlink/internal/app"
	"github.com/ent0n29/charlink/internal/config"
	"github.com/ent0n29/charlink/internal/connector"
	"github.com/ent0n29/charlink/internal/inworld"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "charchat: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("charchat", flag.ContinueOnError)
	uid := fs.String("uid", "", "player id (random when empty)")
	character := fs.String("character", "", "character id or resource name")
	useMock := fs.Bool("mock", false, "talk to an in-process mock provider")
	logPath := fs.String("log", "", "append logs to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// The terminal belongs to the UI; logs go to a file or nowhere.
	logger := zerolog.Nop()
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		logger = zerolog.New(f).With().Timestamp().Str("app", "charchat").Logger()
	}

	in := cfg.Inworld
	if *useMock || in.ProviderMode == config.ProviderMock {
		mock, err := app.StartMockProvider(logger)
		if err != nil {
			return fmt.Errorf("mock provider: %w", err)
		}
		defer mock.Close()
		in = mock.Apply(in)
	}
	if *character != "" {
		in.Character = *character
	}

	conn := connector.New(connector.Options{
		Key:        in.Key,
		Secret:     in.Secret,
		UID:        *uid,
		Scene:      in.Scene,
		Character:  in.Character,
		PlayerName: in.PlayerName,
		ServerID:   in.ServerID,
		Connection: inworld.ConnectionConfig{
			GatewayURL:      in.GatewayURL,
			TokenURL:        in.TokenURL,
			DialTimeout:     in.DialTimeout,
			RequestTimeout:  in.RequestTimeout,
			MaxDialAttempts: in.MaxDialAttempts,
		},
		Logger: logger,
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("provider error")
		},
		OnDisconnect: func() {
			logger.Info().Time("at", time.Now()).Msg("provider disconnected")
		},
	})
	defer conn.Close()

	if _, err := tea.NewProgram(newModel(conn), tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}
