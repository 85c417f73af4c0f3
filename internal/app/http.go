package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mosaic/api/internal/auth"
	"mosaic/api/internal/export"
	"mosaic/api/internal/realtime"
)

type HTTPServer struct {
	service    *Service
	gateway    *realtime.Gateway
	corsOrigin string
}

func NewHTTPServer(service *Service, gateway *realtime.Gateway, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, gateway: gateway, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}
		session, err := s.service.Login(r.Context(), body.Email, body.DisplayName)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "Logged in", sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeFail(w, http.StatusUnauthorized, "Refresh token invalid")
			return
		}
		writeSuccess(w, http.StatusOK, "Session refreshed", sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeSuccess(w, http.StatusOK, "Logged out", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeSuccess(w, http.StatusOK, "", map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeSuccess(w, http.StatusOK, "", map[string]any{"authenticated": false})
			return
		}
		writeSuccess(w, http.StatusOK, "", map[string]any{
			"authenticated": true,
			"user": map[string]any{
				"id":          session.UserID,
				"email":       session.Email,
				"displayName": session.DisplayName,
			},
		})
		return
	}

	// Realtime upgrade cannot carry an Authorization header from a browser
	// WebSocket, so the token rides in the query string.
	if parts := splitPath(r.URL.Path); len(parts) == 3 && parts[0] == "api" && parts[1] == "realtime" && r.Method == http.MethodGet {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			writeFail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeFail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		appID := parts[2]
		if err := s.service.AuthorizeApp(r.Context(), session, appID); err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		s.gateway.Relay(w, r, realtime.AppChannel(appID), realtime.StateChannel(appID))
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 0 || parts[0] != "api" {
		writeFail(w, http.StatusNotFound, "Not found")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "templates" && r.Method == http.MethodGet:
		category := strings.TrimSpace(r.URL.Query().Get("category"))
		text := strings.TrimSpace(r.URL.Query().Get("search"))
		items, err := s.service.ListTemplates(r.Context(), category, text)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "Templates retrieved successfully", map[string]any{
			"templates": items,
			"count":     len(items),
		})
		s.service.EmitTemplateAccess(session, category, items)
		return

	case len(parts) == 2 && parts[1] == "apps":
		switch r.Method {
		case http.MethodGet:
			s.handleListApps(w, r, session)
		case http.MethodPost:
			s.handleCreateApp(w, r, session)
		default:
			writeFail(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return

	case len(parts) == 3 && parts[1] == "apps" && r.Method == http.MethodDelete:
		s.handleArchiveApp(w, r, session, parts[2])
		return

	case len(parts) >= 3 && parts[1] == "canvas":
		s.handleCanvas(w, r, session, parts[2], parts[3:])
		return
	}

	writeFail(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleCanvas(w http.ResponseWriter, r *http.Request, session Session, appID string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		canvas, err := s.service.GetCanvas(r.Context(), session, appID)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "", canvas)

	case len(rest) == 0 && r.Method == http.MethodPut:
		var body CanvasUpdateInput
		if err := decodeBody(r, &body); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}
		canvas, err := s.service.UpdateCanvas(r.Context(), session, appID, body)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "", canvas)

	case len(rest) == 1 && rest[0] == "elements" && r.Method == http.MethodPost:
		var body CreateElementInput
		if err := decodeBody(r, &body); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}
		element, err := s.service.CreateElement(r.Context(), session, appID, body)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusCreated, "", element)

	case len(rest) == 2 && rest[0] == "elements" && r.Method == http.MethodPut:
		var body UpdateElementInput
		if err := decodeBody(r, &body); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}
		element, err := s.service.UpdateElement(r.Context(), session, appID, rest[1], body)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "", element)

	case len(rest) == 2 && rest[0] == "elements" && r.Method == http.MethodDelete:
		if err := s.service.DeleteElement(r.Context(), session, appID, rest[1]); err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "Element deleted successfully", nil)

	case len(rest) == 3 && rest[0] == "elements" && rest[2] == "duplicate" && r.Method == http.MethodPost:
		var body DuplicateElementInput
		if err := decodeBody(r, &body); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}
		element, err := s.service.DuplicateElement(r.Context(), session, appID, rest[1], body)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusCreated, "", element)

	case len(rest) == 1 && rest[0] == "state" && r.Method == http.MethodPatch:
		var body struct {
			CanvasState CanvasStateInput `json:"canvasState"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}
		canvas, err := s.service.SaveCanvasState(r.Context(), session, appID, body.CanvasState)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "Canvas state saved successfully", map[string]any{
			"canvasId":      canvas.ID,
			"elementsCount": len(body.CanvasState.Elements),
		})

	case len(rest) == 1 && rest[0] == "history" && r.Method == http.MethodGet:
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeFail(w, http.StatusUnprocessableEntity, "limit must be an integer")
				return
			}
			limit = parsed
		}
		entries, err := s.service.ListHistory(r.Context(), session, appID, limit)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "", map[string]any{"history": entries})

	case len(rest) == 1 && rest[0] == "snapshots" && r.Method == http.MethodGet:
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeFail(w, http.StatusUnprocessableEntity, "limit must be an integer")
				return
			}
			limit = parsed
		}
		commits, err := s.service.ListSnapshots(r.Context(), session, appID, limit)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "", map[string]any{"snapshots": commits})

	case len(rest) == 2 && rest[0] == "snapshots" && r.Method == http.MethodGet:
		state, err := s.service.GetSnapshot(r.Context(), session, appID, rest[1])
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		writeSuccess(w, http.StatusOK, "", map[string]any{"state": state})

	case len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet:
		result, err := s.service.ExportCanvas(r.Context(), session, appID)
		if err != nil {
			status, message := mapError(err)
			writeFail(w, status, message)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	case len(rest) == 1 && rest[0] == "assets" && r.Method == http.MethodPost:
		s.handleUploadAsset(w, r, session, appID)

	default:
		writeFail(w, http.StatusNotFound, "Not found")
	}
}

func (s *HTTPServer) handleListApps(w http.ResponseWriter, r *http.Request, session Session) {
	apps, err := s.service.ListApps(r.Context(), session)
	if err != nil {
		status, message := mapError(err)
		writeFail(w, status, message)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"apps": apps})
}

func (s *HTTPServer) handleCreateApp(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	app, err := s.service.CreateApp(r.Context(), session, body.Name)
	if err != nil {
		status, message := mapError(err)
		writeFail(w, status, message)
		return
	}
	writeSuccess(w, http.StatusCreated, "App created", map[string]any{"app": app})
}

func (s *HTTPServer) handleArchiveApp(w http.ResponseWriter, r *http.Request, session Session, appID string) {
	if err := s.service.ArchiveApp(r.Context(), session, appID); err != nil {
		status, message := mapError(err)
		writeFail(w, status, message)
		return
	}
	writeSuccess(w, http.StatusOK, "App archived", nil)
}

const maxUploadBytes = 32 << 20

func (s *HTTPServer) handleUploadAsset(w http.ResponseWriter, r *http.Request, session Session, appID string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeFail(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	asset, err := s.service.UploadAsset(
		r.Context(),
		session,
		appID,
		header.Filename,
		header.Header.Get("Content-Type"),
		header.Size,
		file,
	)
	if err != nil {
		status, message := mapError(err)
		writeFail(w, status, message)
		return
	}
	writeSuccess(w, http.StatusCreated, "Asset uploaded", map[string]any{"asset": asset})
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"user": map[string]any{
			"id":          session.UserID,
			"email":       session.Email,
			"displayName": session.DisplayName,
		},
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeFail(w, http.StatusUnauthorized, "Unauthorized")
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeFail(w, http.StatusUnauthorized, "Unauthorized")
			return Session{}, false
		}
		writeFail(w, http.StatusInternalServerError, "Session lookup failed")
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade reach the underlying connection through
// the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	response := map[string]any{"success": true}
	if message != "" {
		response["message"] = message
	}
	if data != nil {
		response["data"] = data
	}
	writeJSON(w, status, response)
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "Not found"
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "Unauthorized"
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "PDF export unavailable"
	}
	return http.StatusInternalServerError, "Server error"
}
