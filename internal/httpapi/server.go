package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/charlink/internal/config"
	"github.com/ent0n29/charlink/internal/connector"
	"github.com/ent0n29/charlink/internal/inworld"
	"github.com/ent0n29/charlink/internal/observability"
	"github.com/ent0n29/charlink/internal/policy"
	"github.com/ent0n29/charlink/internal/transcript"
)

const maxTranscriptLimit = 500

type Server struct {
	cfg         config.Config
	registry    *connector.Registry
	transcripts transcript.Store
	metrics     *observability.Metrics
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, registry *connector.Registry, transcripts transcript.Store, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		registry:    registry,
		transcripts: transcripts,
		metrics:     metrics,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Game clients and CLIs usually omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{uid}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)
			r.Post("/token", s.handleGenerateToken)
			r.Post("/flush", s.handleFlush)
			r.Post("/text", s.handleSendText)
			r.Post("/custom", s.handleSendCustom)
			r.Get("/character", s.handleGetCharacter)
			r.Put("/character", s.handleSetCharacter)
			r.Get("/characters", s.handleListCharacters)
			r.Get("/transcript", s.handleTranscript)
			r.Get("/ws", s.handleSessionWS)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"provider_mode":     s.cfg.Inworld.ProviderMode,
		"active_connectors": s.registry.ActiveCount(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req connector.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	c, err := s.registry.Create(req)
	if err != nil {
		if errors.Is(err, connector.ErrExists) {
			respondError(w, http.StatusConflict, "session_exists", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	info, err := s.registry.Info(c.UID())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Info(chi.URLParam(r, "uid"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if err := s.registry.Close(uid); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"uid": uid, "closed": true})
}

func (s *Server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := c.Client().GenerateSessionToken(r.Context()); err != nil {
		status, code := http.StatusBadGateway, "token_failed"
		var apiErr *inworld.Error
		if errors.As(err, &apiErr) {
			code = apiErr.Code
			if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
				status = http.StatusUnauthorized
			}
		}
		respondError(w, status, code, err.Error())
		return
	}
	sessionID, _ := c.SessionID()
	respondJSON(w, http.StatusOK, map[string]any{"session_id": sessionID})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"uid":    c.UID(),
		"events": c.FlushQueue(),
	})
}

type sendTextRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req sendTextRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sent": c.SendText(r.Context(), req.Message)})
}

type sendCustomRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleSendCustom(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req sendCustomRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id, err := policy.NormalizeTrigger(req.ID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_trigger", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sent": c.SendCustom(r.Context(), id)})
}

type setCharacterRequest struct {
	CharacterID string `json:"character_id"`
}

func (s *Server) handleSetCharacter(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req setCharacterRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.CharacterID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "character_id is required")
		return
	}
	ch, ok := c.SetCharacter(r.Context(), req.CharacterID)
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"ok": false})
		return
	}
	respondJSON(w, http.StatusOK, ch)
}

func (s *Server) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ch, ok := c.Client().CurrentCharacter(r.Context())
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"ok": false})
		return
	}
	respondJSON(w, http.StatusOK, ch)
}

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	chars, ok := c.Client().Characters(r.Context())
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"ok": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"characters": chars})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if s.transcripts == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "transcripts not configured")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxTranscriptLimit)
	}
	lines, err := s.transcripts.Recent(r.Context(), uid, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_failed", err.Error())
		return
	}
	if lines == nil {
		lines = []transcript.Line{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"uid": uid, "lines": lines})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

// lookup resolves the {uid} route parameter and marks the connector active.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*connector.Connector, bool) {
	uid := chi.URLParam(r, "uid")
	c, err := s.registry.Get(uid)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	_ = s.registry.Touch(uid)
	return c, true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
