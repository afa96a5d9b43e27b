package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
	apperrors "wamirror/internal/errors"
	"wamirror/internal/ingest"
	"wamirror/internal/middleware"
	"wamirror/internal/models"
	"wamirror/internal/service"
	"wamirror/internal/store"
	"wamirror/internal/tracing"
	"wamirror/internal/validation"
)

const signatureHeader = "X-Hub-Signature-256"

type Server struct {
	router     *mux.Router
	handler    http.Handler
	logger     *logrus.Logger
	cfg        *models.Config
	ingestor   *ingest.Ingestor
	msgService service.MessageService
	store      store.Store
	realtime   http.Handler
	verbose    bool
	server     *http.Server
}

func NewServer(cfg *models.Config, ingestor *ingest.Ingestor, msgService service.MessageService, st store.Store, realtime http.Handler, logger *logrus.Logger, verbose bool) *Server {
	if cfg.Webhook.MaxBodyBytes <= 0 {
		cfg.Webhook.MaxBodyBytes = constants.DefaultWebhookMaxBodyBytes
	}

	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		cfg:        cfg,
		ingestor:   ingestor,
		msgService: msgService,
		store:      st,
		realtime:   realtime,
		verbose:    verbose,
	}

	s.setupRoutes()
	// CORS sits outside the router: mux middleware never sees unmatched
	// OPTIONS preflights.
	s.handler = middleware.CORS(cfg.Server.AllowedOrigins)(s.router)
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))
	s.router.Use(s.verboseContext)

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	s.router.HandleFunc("/webhook", s.handleWebhook()).Methods(http.MethodPost)
	s.router.HandleFunc("/webhook", s.handleWebhookVerify()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chats", s.handleListChats()).Methods(http.MethodGet)
	api.HandleFunc("/chats/{wa_id}", s.handleGetChat()).Methods(http.MethodGet)
	api.HandleFunc("/send", s.handleSend()).Methods(http.MethodPost)

	if s.realtime != nil {
		s.router.Handle("/ws", s.realtime).Methods(http.MethodGet)
	}
}

func (s *Server) Start() error {
	s.logger.Infof("Starting server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) verboseContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(service.WithVerbose(r.Context(), s.verbose)))
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "store": "ok"}
		code := http.StatusOK
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Store health check failed")
			status["status"] = "degraded"
			status["store"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
		s.writeJSON(w, r, code, status)
	}
}

// handleWebhook ingests one provider delivery. Only an unparseable body or a
// bad signature is rejected; unit-level failures still answer 200 so the
// provider does not redeliver a payload that will never fully succeed.
func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, s.cfg.Webhook.MaxBodyBytes); err != nil {
			s.writeError(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Webhook.MaxBodyBytes)

		body, err := verifySignature(r, s.cfg.Webhook.Secret, signatureHeader)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		// A client disconnect must not abort a payload half way through.
		ctx := context.WithoutCancel(r.Context())
		report, err := s.ingestor.IngestJSON(ctx, "webhook", body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, report)
	}
}

// handleWebhookVerify answers the subscription handshake providers send when
// a webhook URL is registered.
func (s *Server) handleWebhookVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		token := s.cfg.Webhook.VerifyToken
		if token == "" || query.Get("hub.mode") != "subscribe" || !secureEqual(query.Get("hub.verify_token"), token) {
			s.writeError(w, r, apperrors.NewAuthError("webhook verification failed"))
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, query.Get("hub.challenge"))
	}
}

func (s *Server) handleListChats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chats, err := s.msgService.ListConversations(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, chats)
	}
}

func (s *Server) handleGetChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		thread, err := s.msgService.GetConversation(r.Context(), mux.Vars(r)["wa_id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, thread)
	}
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Webhook.MaxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, r, apperrors.NewMalformedPayloadError("api.send", err))
			return
		}

		msg, err := s.msgService.SendMessage(r.Context(), body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusCreated, msg)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: tracing.RequestID(r.Context()),
			service.LogFieldEndpoint:  r.URL.Path,
		}).WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.HTTPStatusCode(err)
	fields := logrus.Fields{
		service.LogFieldRequestID:  tracing.RequestID(r.Context()),
		service.LogFieldEndpoint:   r.URL.Path,
		service.LogFieldStatusCode: code,
	}
	if code >= http.StatusInternalServerError {
		apperrors.NewLogger(s.logger).LogError(err, "Request failed", fields)
	} else {
		apperrors.NewLogger(s.logger).LogWarn(err, "Request rejected", fields)
	}
	s.writeJSON(w, r, code, apperrors.ToHTTPResponse(err, tracing.RequestID(r.Context())))
}

// originHosts converts CORS origins into the host patterns the websocket
// upgrader matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			hosts = append(hosts, "*")
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
