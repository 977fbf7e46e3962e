// Package app wires the board and throttle into a thin HTTP transport.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"guestboard/internal/auth"
	"guestboard/internal/board"
	"guestboard/internal/config"
	"guestboard/internal/identity"
	"guestboard/internal/throttle"
)

const accessCookie = "board_session"

type HTTPServer struct {
	ledger   *board.Service
	throttle *throttle.Service
	hasher   *identity.Hasher
	cfg      config.Config
	logger   zerolog.Logger
}

func NewHTTPServer(ledger *board.Service, gate *throttle.Service, hasher *identity.Hasher, cfg config.Config, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		ledger:   ledger,
		throttle: gate,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/comments" {
		s.handleListComments(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/comments" {
		s.handleSubmitComment(w, r)
		return
	}

	if r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/comments/") {
		s.handleDeleteComment(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": s.isAuthenticated(r)})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Unknown route", nil)
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	result, err := s.ledger.List(r.Context(), page, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSubmitComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeServiceError(w, board.ErrMalformedInput)
		return
	}

	identityHash := s.hasher.Hash(clientAddr(r))
	created, err := s.ledger.Submit(r.Context(), identityHash, body.Text, s.isAuthenticated(r), s.isAdmin(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	rawID := strings.TrimPrefix(r.URL.Path, "/api/comments/")
	id, err := strconv.Atoi(rawID)
	if err != nil || id < 1 {
		s.writeServiceError(w, &board.DomainError{
			Status:  http.StatusBadRequest,
			Code:    board.ErrMalformedInput.Code,
			Message: "Comment id must be a positive integer",
		})
		return
	}

	remaining, err := s.ledger.Delete(r.Context(), r.Header.Get("X-Admin-Token"), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id, "remaining": remaining})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeServiceError(w, board.ErrMalformedInput)
		return
	}

	identityHash := s.hasher.Hash(clientAddr(r))
	outcome, err := s.throttle.Authenticate(r.Context(), identityHash, body.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	switch outcome.Status {
	case throttle.StatusSuccess:
		expiresAt := time.Now().Add(s.cfg.AccessTTL)
		token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
			Identity: identityHash,
			Exp:      expiresAt.Unix(),
		})
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     accessCookie,
			Value:    token,
			Path:     "/",
			Expires:  expiresAt,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": string(outcome.Status)})
	case throttle.StatusLocked:
		retryAfter := int(time.Until(outcome.LockedUntil).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"code":        "RATE_LIMITED",
			"status":      string(outcome.Status),
			"count":       outcome.Count,
			"lockedUntil": outcome.LockedUntil.UTC().Format(time.RFC3339),
			"retryAfter":  retryAfter,
		})
	default:
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"code":   "UNAUTHENTICATED",
			"status": string(outcome.Status),
			"count":  outcome.Count,
		})
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var domainErr *board.DomainError
	if errors.As(err, &domainErr) {
		writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
		return
	}
	s.logger.Error().Err(err).Msg("internal error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal error", nil)
}

func (s *HTTPServer) isAuthenticated(r *http.Request) bool {
	cookie, err := r.Cookie(accessCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	_, err = auth.ParseToken([]byte(s.cfg.TokenSecret), cookie.Value)
	return err == nil
}

func (s *HTTPServer) isAdmin(r *http.Request) bool {
	token := r.Header.Get("X-Admin-Token")
	return token != "" && token == s.cfg.AdminSecret
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.cfg.CORSOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-Token, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func clientAddr(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
