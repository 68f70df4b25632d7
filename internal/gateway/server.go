package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/session"
	"github.com/conductorhq/conductor/internal/version"
	"github.com/google/uuid"
)

// Server exposes the approval operator surface over HTTP. Upstream session
// managers create approval requests through it, and operators without access
// to the chat channel can settle them by id.
type Server struct {
	cfg        config.GatewayConfig
	coord      *approval.Coordinator
	sessions   *session.Manager
	httpServer *http.Server
}

// New creates a gateway server over the coordinator and session directory.
func New(cfg config.GatewayConfig, coord *approval.Coordinator, sessions *session.Manager) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18920
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:      cfg,
		coord:    coord,
		sessions: sessions,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	mux := NewHandler(s.cfg.Token, s.coord, s.sessions)
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// NewHandler builds the gateway route table.
func NewHandler(token string, coord *approval.Coordinator, sessions *session.Manager) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": getRequestID(r),
		})
	})

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": getRequestID(r),
		})
	})

	mux.HandleFunc("GET /approvals", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}

		query := approval.Query{
			Status:    approval.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
			SessionID: strings.TrimSpace(r.URL.Query().Get("session_id")),
			AgentID:   strings.TrimSpace(r.URL.Query().Get("agent_id")),
		}
		requests, err := coord.List(query)
		if err != nil {
			slog.Error("gateway list approvals failed", "request_id", requestID, "error", err)
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to list approvals")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"approvals":  requests,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("POST /approvals", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}

		var req struct {
			SessionID      string `json:"session_id"`
			AgentID        string `json:"agent_id"`
			Details        string `json:"details"`
			TimeoutMinutes int    `json:"timeout_minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}

		created, err := coord.Create(r.Context(), approval.CreateInput{
			SessionID: req.SessionID,
			AgentID:   req.AgentID,
			Details:   req.Details,
			Timeout:   time.Duration(req.TimeoutMinutes) * time.Minute,
		})
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"approval":   created,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("GET /approvals/{id}", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}

		req, found, err := coord.Get(r.PathValue("id"))
		if err != nil {
			slog.Error("gateway get approval failed", "request_id", requestID, "error", err)
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to load approval")
			return
		}
		if !found {
			writeError(w, requestID, http.StatusNotFound, "not_found", "approval not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"approval":   req,
			"request_id": requestID,
		})
	})

	decide := func(approved bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			requestID := getRequestID(r)
			if !authorize(w, r, token, requestID) {
				return
			}

			var req struct {
				ApprovedBy string `json:"approved_by"`
				Note       string `json:"note"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
				return
			}
			if strings.TrimSpace(req.ApprovedBy) == "" {
				writeError(w, requestID, http.StatusBadRequest, "bad_request", "approved_by is required")
				return
			}

			result, err := coord.Resolve(r.Context(), r.PathValue("id"), approval.DecisionInput{
				Approved:   approved,
				ApprovedBy: req.ApprovedBy,
				Note:       req.Note,
			})
			if err != nil {
				slog.Error("gateway resolve failed", "request_id", requestID, "error", err)
				writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to resolve approval")
				return
			}
			writeResult(w, requestID, result)
		}
	}
	mux.HandleFunc("POST /approvals/{id}/approve", decide(true))
	mux.HandleFunc("POST /approvals/{id}/reject", decide(false))

	mux.HandleFunc("POST /approvals/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}

		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}

		result, err := coord.Cancel(r.Context(), r.PathValue("id"), req.Reason)
		if err != nil {
			slog.Error("gateway cancel failed", "request_id", requestID, "error", err)
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to cancel approval")
			return
		}
		writeResult(w, requestID, result)
	})

	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}
		if sessions == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "session directory is not configured")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sessions":   sessions.List(),
			"request_id": requestID,
		})
	})

	return mux
}

// writeResult maps lifecycle outcomes onto HTTP statuses. Terminal-state
// rejections are conflicts, not server errors.
func writeResult(w http.ResponseWriter, requestID string, result approval.Result) {
	switch result.Outcome {
	case approval.OutcomeOK:
		writeJSON(w, http.StatusOK, map[string]any{
			"approval":   result.Request,
			"request_id": requestID,
		})
	case approval.OutcomeNotFound:
		writeError(w, requestID, http.StatusNotFound, "not_found", "approval not found")
	case approval.OutcomeExpired:
		writeError(w, requestID, http.StatusGone, "expired", result.Detail)
	case approval.OutcomeAlreadyResolved, approval.OutcomeAlreadyCancelled, approval.OutcomeAlreadyTerminal:
		writeError(w, requestID, http.StatusConflict, string(result.Outcome), result.Detail)
	case approval.OutcomeNotExpired:
		writeError(w, requestID, http.StatusConflict, string(result.Outcome), "deadline has not passed")
	default:
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "unexpected outcome")
	}
}

func authorize(w http.ResponseWriter, r *http.Request, token, requestID string) bool {
	if strings.TrimSpace(token) == "" {
		return true
	}
	if !isAuthorized(r, token) {
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return false
	}
	return true
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
