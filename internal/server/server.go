package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/stripe/stripe-go/v82"

	"GiftChat/internal/cache"
	"GiftChat/internal/chatbot"
	"GiftChat/internal/fulfillment"
	"GiftChat/internal/payment"
	"GiftChat/internal/session"
)

// webhookBodyLimit caps webhook payloads. Stripe events are small; anything
// larger is not worth buffering before signature verification.
const webhookBodyLimit = 64 * 1024

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Server exposes the chat, webhook, and health endpoints over HTTP.
type Server struct {
	bot       *chatbot.ChatBot
	payments  *payment.Client
	fulfiller *fulfillment.Service
	events    *cache.EventCache
	logger    *slog.Logger
	router    chi.Router
}

// New creates a Server with its routes configured.
func New(bot *chatbot.ChatBot, payments *payment.Client, fulfiller *fulfillment.Service, events *cache.EventCache, logger *slog.Logger) *Server {
	s := &Server{
		bot:       bot,
		payments:  payments,
		fulfiller: fulfiller,
		events:    events,
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/chat", s.handleChat)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/health", s.handleHealth)

	s.router = r
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP on addr until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// WriteTimeout stays above the 60s request timeout so slow model
		// calls produce a handled error instead of a dropped connection.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = session.DefaultSessionID
	}

	reply, err := s.bot.SendMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.logger.Error("chat turn failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply, SessionID: req.SessionID})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	event, err := s.payments.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.logger.Warn("webhook verification failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			s.logger.Warn("malformed webhook event payload", "event_id", event.ID, "error", err)
			writeError(w, http.StatusBadRequest, "malformed event payload")
			return
		}
		if !s.events.MarkProcessed(event.ID) {
			s.logger.Info("skipping duplicate webhook event", "event_id", event.ID)
			break
		}
		// Fulfillment failures are logged but still acknowledged. A non-2xx
		// here would make Stripe retry a verified event forever.
		if _, err := s.fulfiller.FulfillCheckout(r.Context(), &sess); err != nil {
			if errors.Is(err, fulfillment.ErrAlreadyFulfilled) {
				s.logger.Info("checkout session already fulfilled", "checkout_session_id", sess.ID)
			} else {
				s.logger.Error("fulfillment failed", "event_id", event.ID, "error", err)
			}
		}
	default:
		s.logger.Info("ignoring webhook event", "type", event.Type)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
