package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/charlink/internal/config"
	"github.com/ent0n29/charlink/internal/connector"
	"github.com/ent0n29/charlink/internal/httpapi"
	"github.com/ent0n29/charlink/internal/inworld"
	"github.com/ent0n29/charlink/internal/observability"
	"github.com/ent0n29/charlink/internal/transcript"
)

const (
	mockKey    = "mock-key"
	mockSecret = "mock-secret"
	mockScene  = "workspaces/demo/scenes/lobby"
)

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Registry    *connector.Registry
	Transcripts transcript.Store
	Recorder    *transcript.Recorder
	Metrics     *observability.Metrics
	Logger      zerolog.Logger

	// Cleanup releases the transcript store, the recorder and the in-process
	// mock provider. Call it after the HTTP server has stopped.
	Cleanup func(ctx context.Context) error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := transcript.NewStore(ctx, cfg.TranscriptURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}
	recorder := transcript.NewRecorder(store, cfg.TranscriptQueueSize, logger)
	recorder.SetDropHook(metrics.ObserveTranscriptDrop)

	var mock *MockProvider
	if cfg.Inworld.ProviderMode == config.ProviderMock {
		mock, err = StartMockProvider(logger)
		if err != nil {
			_ = recorder.Close(ctx)
			_ = store.Close()
			return nil, err
		}
		cfg.Inworld = mock.Apply(cfg.Inworld)
		logger.Info().Str("url", mock.URL).Msg("character provider: in-process mock")
	} else {
		logger.Info().Str("scene", cfg.Inworld.Scene).Msg("character provider: remote")
	}

	registry := connector.NewRegistry(connectorFactory(cfg.Inworld, logger, metrics, recorder), cfg.SessionInactivityTimeout, metrics)
	registry.SetExpireHook(func(c *connector.Connector) {
		logger.Info().Str("uid", c.UID()).Msg("connector expired")
	})

	api := httpapi.New(cfg, registry, store, metrics, logger)

	cleanup := func(ctx context.Context) error {
		registry.CloseAll()
		var errs []string
		if err := recorder.Close(ctx); err != nil {
			errs = append(errs, err.Error())
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if mock != nil {
			if err := mock.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Registry:    registry,
		Transcripts: store,
		Recorder:    recorder,
		Metrics:     metrics,
		Logger:      logger,
		Cleanup:     cleanup,
	}, nil
}

// connectorFactory binds the configured credentials and endpoints to every
// connector the registry creates. Request fields override the defaults.
func connectorFactory(in config.InworldConfig, logger zerolog.Logger, metrics *observability.Metrics, recorder *transcript.Recorder) connector.Factory {
	conn := inworld.ConnectionConfig{
		GatewayURL:      in.GatewayURL,
		TokenURL:        in.TokenURL,
		DialTimeout:     in.DialTimeout,
		RequestTimeout:  in.RequestTimeout,
		MaxDialAttempts: in.MaxDialAttempts,
	}
	return func(req connector.CreateRequest) *connector.Connector {
		return connector.New(connector.Options{
			Key:        in.Key,
			Secret:     in.Secret,
			UID:        req.UID,
			Scene:      in.Scene,
			Character:  firstNonEmpty(req.Character, in.Character),
			PlayerName: firstNonEmpty(req.PlayerName, in.PlayerName),
			ServerID:   firstNonEmpty(req.ServerID, in.ServerID),
			Connection: conn,
			Logger:     logger.With().Str("component", "connector").Logger(),
			Metrics:    metrics,
			Recorder:   recorder,
		})
	}
}

// MockProvider is an in-process character provider on a loopback port.
type MockProvider struct {
	URL  string
	mock *inworld.MockServer
	srv  *http.Server
}

func StartMockProvider(logger zerolog.Logger) (*MockProvider, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("mock provider listen: %w", err)
	}
	mock := inworld.NewMockServer()
	srv := &http.Server{
		Handler:           mock,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("mock provider stopped")
		}
	}()
	return &MockProvider{URL: "http://" + ln.Addr().String(), mock: mock, srv: srv}, nil
}

// Apply points the provider endpoints at the mock and fills in credentials
// it accepts.
func (p *MockProvider) Apply(in config.InworldConfig) config.InworldConfig {
	conn := p.mock.Configure(p.URL, inworld.ConnectionConfig{})
	in.GatewayURL = conn.GatewayURL
	in.TokenURL = conn.TokenURL
	in.Key = firstNonEmpty(in.Key, mockKey)
	in.Secret = firstNonEmpty(in.Secret, mockSecret)
	in.Scene = firstNonEmpty(in.Scene, mockScene)
	return in
}

func (p *MockProvider) Close() error { return p.srv.Close() }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
