package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"snagaudit/internal/app"
	"snagaudit/internal/ratelimit"
	"snagaudit/internal/util"
	"snagaudit/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                       *app.App
	RedisAddr                 string
	RedisPassword             string
	SessionRateLimitPerMinute int
	SeedRateLimitPerMinute    int
	DemoSeed                  bool
}

// Server exposes the audit tracker's HTTP endpoints.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	sessionLimiter *ratelimit.FixedWindowLimiter
	seedLimiter    *ratelimit.FixedWindowLimiter
	demoSeed       bool
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	sessionLimit := cfg.SessionRateLimitPerMinute
	if sessionLimit <= 0 {
		sessionLimit = 30
	}
	seedLimit := cfg.SeedRateLimitPerMinute
	if seedLimit <= 0 {
		seedLimit = 2
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "snagaudit:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	sessionLimiter, err := newLimiter("session-start", sessionLimit)
	if err != nil {
		return nil, err
	}
	seedLimiter, err := newLimiter("seed", seedLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		sessionLimiter: sessionLimiter,
		seedLimiter:    seedLimiter,
		demoSeed:       cfg.DemoSeed,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/v1/seed", s.handleSeed)

	// auditor
	s.mux.HandleFunc("/api/v1/auditor/projects", s.handleAuditorProjects)
	s.mux.HandleFunc("/api/v1/projects/", s.handleProjectSubtree)
	s.mux.HandleFunc("/api/v1/audit-sessions", s.handleStartSession)
	s.mux.HandleFunc("/api/v1/audit-sessions/", s.handleSessionByID)
	s.mux.HandleFunc("/api/v1/audit-items", s.handleRecordItem)
	s.mux.HandleFunc("/api/v1/audit-items/", s.handleItemByID)

	// builder
	s.mux.HandleFunc("/api/v1/builder/projects", s.handleBuilderProjects)
	s.mux.HandleFunc("/api/v1/builder/projects/", s.handleBuilderProjectByID)
	s.mux.HandleFunc("/api/v1/builder/all-defects", s.handleAllDefects)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.demoSeed {
		writeError(w, http.StatusForbidden, "seeding is disabled")
		return
	}
	if !s.allowRate(w, r, s.seedLimiter, "too many seed attempts") {
		return
	}
	res, err := s.app.SeedDemo()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleAuditorProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	projects, err := s.app.ListProjects()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// /api/v1/projects/{projectId}/structure[?nodeId=...&history=1]
func (s *Server) handleProjectSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/projects/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "structure" {
		http.NotFound(w, r)
		return
	}
	projectID := parts[0]
	nodeID := r.URL.Query().Get("nodeId")
	if nodeID == "" {
		tree, err := s.app.StructureTree(projectID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		// A project with no PROJECT-level node serializes as null.
		writeJSON(w, http.StatusOK, tree)
		return
	}
	detail, err := s.app.GetNodeDetail(projectID, nodeID, wantHistory(r))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.sessionLimiter, "too many session starts") {
		return
	}
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "projectId is required")
		return
	}
	session, err := s.app.StartSession(req.ProjectID, req.AuditorID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// /api/v1/audit-sessions/{id}/submit | summary | checklist/{nodeId}
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/audit-sessions/")
	parts := strings.SplitN(path, "/", 3)
	if parts[0] == "" || len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]
	switch {
	case parts[1] == "submit" && len(parts) == 2:
		s.handleSubmitSession(w, r, sessionID)
	case parts[1] == "summary" && len(parts) == 2:
		s.handleSessionSummary(w, r, sessionID)
	case parts[1] == "checklist" && len(parts) == 3 && parts[2] != "":
		s.handleChecklist(w, r, sessionID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSubmitSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	submittedAt, err := s.app.SubmitSession(sessionID)
	if err != nil {
		var evidenceErr *app.EvidenceError
		if errors.As(err, &evidenceErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"ok":                 false,
				"error":              "all FAIL items must have at least one photo",
				"missingMediaItemId": evidenceErr.ItemID,
			})
			return
		}
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"sessionId":   sessionID,
		"submittedAt": submittedAt,
	})
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary, err := s.app.SessionSummary(sessionID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request, sessionID, nodeID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	checklist, err := s.app.GetChecklist(sessionID, nodeID, wantHistory(r))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checklist)
}

func (s *Server) handleRecordItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req recordItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AuditSessionID == "" || req.StructureNodeID == "" || req.TemplateAuditPointID == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "auditSessionId, structureNodeId, templateAuditPointId and status are required")
		return
	}
	status, ok := parseItemStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be PASS or FAIL")
		return
	}
	item, err := s.app.RecordItem(app.RecordItemParams{
		SessionID: req.AuditSessionID,
		NodeID:    req.StructureNodeID,
		PointID:   req.TemplateAuditPointID,
		Status:    status,
		Notes:     req.Notes,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// /api/v1/audit-items/{id}/media[/upload-url]
func (s *Server) handleItemByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/audit-items/")
	parts := strings.SplitN(path, "/", 3)
	if parts[0] == "" || len(parts) < 2 || parts[1] != "media" {
		http.NotFound(w, r)
		return
	}
	itemID := parts[0]
	if len(parts) == 3 {
		if parts[2] != "upload-url" {
			http.NotFound(w, r)
			return
		}
		s.handleMediaUploadURL(w, r, itemID)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleAttachMedia(w, r, itemID)
	case http.MethodGet:
		s.handleListMedia(w, r, itemID)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAttachMedia(w http.ResponseWriter, r *http.Request, itemID string) {
	var req attachMediaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.StorageKey == "" {
		writeError(w, http.StatusBadRequest, "storageKey is required")
		return
	}
	media, err := s.app.AttachMedia(itemID, req.StorageKey)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, media)
}

func (s *Server) handleMediaUploadURL(w http.ResponseWriter, r *http.Request, itemID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req uploadURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	upload, err := s.app.MediaUploadURL(r.Context(), itemID, req.Filename)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request, itemID string) {
	links, err := s.app.ListItemMedia(r.Context(), itemID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": links,
		"count": len(links),
	})
}

func (s *Server) handleBuilderProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summaries, err := s.app.ProjectSummaries()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// /api/v1/builder/projects/{id}/defects
func (s *Server) handleBuilderProjectByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/builder/projects/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "defects" {
		http.NotFound(w, r)
		return
	}
	defects, err := s.app.GetProjectDefects(parts[0])
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defects)
}

func (s *Server) handleAllDefects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	defects, err := s.app.AllDefects()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"defects": defects})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// writeAppError maps domain errors onto the response taxonomy: missing
// entities are 404, invalid state transitions 409, anything unexpected a
// generic 500 that leaks no internals.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrProjectNotFound),
		errors.Is(err, app.ErrNodeNotFound),
		errors.Is(err, app.ErrTemplateNotFound),
		errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, app.ErrPointNotFound),
		errors.Is(err, app.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrSessionSubmitted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrAlreadySeeded):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type startSessionRequest struct {
	ProjectID string `json:"projectId"`
	AuditorID string `json:"auditorId"`
}

type recordItemRequest struct {
	AuditSessionID       string `json:"auditSessionId"`
	StructureNodeID      string `json:"structureNodeId"`
	TemplateAuditPointID string `json:"templateAuditPointId"`
	Status               string `json:"status"`
	Notes                string `json:"notes"`
}

type attachMediaRequest struct {
	StorageKey string `json:"storageKey"`
}

type uploadURLRequest struct {
	Filename string `json:"filename"`
}

func parseItemStatus(status string) (domain.ItemStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case string(domain.ItemPass):
		return domain.ItemPass, true
	case string(domain.ItemFail):
		return domain.ItemFail, true
	default:
		return "", false
	}
}

func wantHistory(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("history")) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":     msg,
		"requestId": strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		parts := strings.Split(xfwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
