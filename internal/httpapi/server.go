package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/ollavoice/internal/config"
	"github.com/ent0n29/ollavoice/internal/locale"
	"github.com/ent0n29/ollavoice/internal/observability"
	"github.com/ent0n29/ollavoice/internal/protocol"
	"github.com/ent0n29/ollavoice/internal/session"
)

const (
	readyTimeout   = 3 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	// Audio blobs arrive base64-encoded inside JSON.
	wsReadLimit = 16 << 20
)

type Assistant interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
}

// Models is the model list and process default shared by all sessions.
type Models interface {
	Known() []string
	Refresh(ctx context.Context) ([]string, error)
	Resolve(ctx context.Context, name string) bool
	Default() string
	SetDefault(name string)
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	assistant Assistant
	models    Models
	catalog   *locale.Catalog
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
	static    http.Handler
}

func New(cfg config.Config, sessions *session.Manager, assistant Assistant, models Models, catalog *locale.Catalog, metrics *observability.Metrics) *Server {
	if catalog == nil {
		catalog = locale.Default()
	}
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		assistant: assistant,
		models:    models,
		catalog:   catalog,
		metrics:   metrics,
		static:    newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin browsers only unless configured otherwise.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
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
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))
	r.Get("/service-worker.js", s.handleServiceWorker)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/models", s.handleListModels)
	r.Get("/current-model", s.handleGetCurrentModel)
	r.Post("/current-model", s.handleSetCurrentModel)
	r.Get("/sessions", s.handleListSessions)
	r.Get("/ws", s.handleWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

// handleReady checks that the model server answers and serves the default model.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	models, err := s.models.Refresh(ctx)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "model_server_unreachable",
			"error":  err.Error(),
		})
		return
	}
	def := s.models.Default()
	if !slices.Contains(models, def) {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "default_model_missing",
			"model":  def,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"model":  def,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		respondJSON(w, http.StatusOK, map[string]any{"models": []string{}})
		return
	}
	models := s.models.Known()
	if len(models) == 0 {
		models, _ = s.models.Refresh(r.Context())
	}
	if models == nil {
		models = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleGetCurrentModel(w http.ResponseWriter, _ *http.Request) {
	current := s.cfg.DefaultModel
	if s.models != nil {
		current = s.models.Default()
	}
	respondJSON(w, http.StatusOK, map[string]any{"currentModel": current})
}

func (s *Server) handleSetCurrentModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "model is required")
		return
	}
	if s.models == nil || !s.models.Resolve(r.Context(), model) {
		respondError(w, http.StatusNotFound, "unknown_model", fmt.Sprintf("unknown model %q", model))
		return
	}
	s.models.SetDefault(model)
	log.Info().Str("model", model).Msg("default model changed")
	respondJSON(w, http.StatusOK, map[string]any{"currentModel": model})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "assistant not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	model := s.cfg.DefaultModel
	if s.models != nil {
		model = s.models.Default()
	}
	lang, ok := s.catalog.Parse(s.cfg.DefaultLang)
	if !ok {
		lang = locale.DefaultLang
	}
	sess := s.sessions.Create(session.CreateOptions{
		Lang:         lang,
		Model:        model,
		QueueSize:    s.cfg.AudioQueueSize,
		HistoryLimit: s.cfg.ConversationLimit,
	})
	defer func() {
		_, _ = s.sessions.End(sess.ID)
		s.metrics.SetActiveSessions(s.sessions.ActiveCount())
		s.metrics.CountSessionEvent("ws_disconnected")
	}()
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.CountSessionEvent("ws_connected")
	logger := observability.SessionLogger(sess.ID)
	logger.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		if err := s.assistant.RunConnection(ctx, sess, inbound, outbound); err != nil {
			logger.Warn().Err(err).Msg("connection ended with error")
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					cancel()
					return
				}
			case raw, ok := <-outbound:
				if !ok {
					return
				}
				msg, ok := raw.(protocol.Outbound)
				if !ok {
					continue
				}
				data, err := protocol.Marshal(msg)
				if err != nil {
					logger.Error().Err(err).Msg("encode outbound message")
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					s.metrics.CountSessionEvent("ws_write_error")
					cancel()
					return
				}
				s.metrics.CountWSMessage("outbound", string(msg.EventName()))
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid client message")
			prefix := s.catalog.Get(sess.Lang()).Message(locale.MsgErrorPrefix)
			select {
			case outbound <- protocol.Error{Message: fmt.Sprintf("%s: %v", prefix, err)}:
				s.metrics.ObserveOutboundMessage(string(protocol.EventError), "queued")
			default:
				// The writer owns the socket; drop when its queue is full.
				s.metrics.ObserveOutboundMessage(string(protocol.EventError), "drop_full")
			}
			continue
		}

		s.metrics.CountWSMessage("inbound", inboundEventName(parsed))
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	logger.Info().Msg("client disconnected")
}

func inboundEventName(v any) string {
	switch v.(type) {
	case protocol.StartListening:
		return string(protocol.EventStartListening)
	case protocol.StopListening:
		return string(protocol.EventStopListening)
	case protocol.AudioData:
		return string(protocol.EventAudioData)
	case protocol.TextInput:
		return string(protocol.EventTextInput)
	case protocol.ChangeModel:
		return string(protocol.EventChangeModel)
	case protocol.ChangeTTSLang:
		return string(protocol.EventChangeTTSLang)
	case protocol.CancelResponse:
		return string(protocol.EventCancelResponse)
	case protocol.CancelSpeech:
		return string(protocol.EventCancelSpeech)
	default:
		return "unknown"
	}
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
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errEmptyBody
	}
	return sonic.Unmarshal(data, out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
