package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bauplan/api/internal/export"
	"bauplan/api/internal/plan"
	"bauplan/api/internal/search"
	"bauplan/api/internal/session"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
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

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
			"redis":    map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		if err := s.service.PingLeases(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["redis"] = map[string]any{
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

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		response := s.service.Search(search.Query{
			Text:            q.Get("q"),
			FilterType:      search.ResultType(q.Get("type")),
			FilterProjectID: q.Get("projectId"),
			Limit:           limit,
			Offset:          offset,
		})
		writeJSON(w, http.StatusOK, response)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 2 && parts[0] == "api" && parts[1] == "projects" {
		switch r.Method {
		case http.MethodGet:
			projects, err := s.service.ListProjects(r.Context())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
		case http.MethodPost:
			var body CreateProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.CreateProject(r.Context(), body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, project)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) < 3 || parts[0] != "api" || parts[1] != "projects" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	projectID := parts[2]
	rest := parts[3:]

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		project, err := s.service.GetProject(r.Context(), projectID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
		return
	}

	switch rest[0] {
	case "session":
		s.handleSession(w, r, projectID, rest[1:])
	case "plan":
		s.handlePlan(w, r, projectID, rest[1:])
	case "storeys":
		s.handleStoreys(w, r, projectID, rest[1:])
	case "walls":
		s.handleWalls(w, r, projectID, rest[1:])
	case "snap":
		s.handleSnap(w, r, projectID, rest[1:])
	case "rooms":
		s.handleRooms(w, r, projectID, rest[1:])
	case "doors":
		s.handleDoors(w, r, projectID, rest[1:])
	case "undo", "redo":
		s.handleHistory(w, r, projectID, rest)
	case "save-points":
		s.handleSavePoints(w, r, projectID, rest[1:])
	case "export":
		s.handleExport(w, r, projectID, rest[1:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// The bearer token doubles as the editor handle; there is no account
// system in front of the plan.
func (s *HTTPServer) requireEditor(w http.ResponseWriter, r *http.Request) (string, bool) {
	editor := bearerToken(r)
	if editor == "" {
		writeError(w, http.StatusUnauthorized, "EDITOR_REQUIRED", "An editor handle is required as bearer token", nil)
		return "", false
	}
	return editor, true
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	if len(rest) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.service.SessionInfo(r.Context(), projectID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPost:
		var body OpenSessionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Editor == "" {
			body.Editor = bearerToken(r)
		}
		view, err := s.service.OpenSession(r.Context(), projectID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	case http.MethodDelete:
		editor, ok := s.requireEditor(w, r)
		if !ok {
			return
		}
		if err := s.service.CloseSession(r.Context(), projectID, editor); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handlePlan(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	view, err := s.service.StoreyView(r.Context(), projectID, r.URL.Query().Get("storeyId"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleStoreys(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		storeys, err := s.service.ListStoreys(r.Context(), projectID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"storeys": storeys})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body CreateStoreyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		storey, err := s.service.CreateStorey(r.Context(), projectID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, storey)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body UpdateStoreyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		storey, err := s.service.UpdateStorey(r.Context(), projectID, rest[0], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, storey)
	case len(rest) == 2 && rest[1] == "activate" && r.Method == http.MethodPost:
		editor, ok := s.requireEditor(w, r)
		if !ok {
			return
		}
		view, err := s.service.ActivateStorey(r.Context(), projectID, editor, rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleWalls(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	editor, ok := s.requireEditor(w, r)
	if !ok {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body AddWallInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.AddWall(r.Context(), projectID, editor, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	case len(rest) == 1 && rest[0] == "merge" && r.Method == http.MethodPost:
		var body MergeWallsInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.MergeWalls(r.Context(), projectID, editor, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		result, err := s.service.DeleteWall(r.Context(), projectID, editor, rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case len(rest) == 2 && rest[1] == "split" && r.Method == http.MethodPost:
		var body SplitWallInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.SplitWall(r.Context(), projectID, editor, rest[0], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSnap(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	editor, ok := s.requireEditor(w, r)
	if !ok {
		return
	}
	var body SnapInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.Snap(projectID, editor, body)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	editor, ok := s.requireEditor(w, r)
	if !ok {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body CreateRoomInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		room, err := s.service.CreateRoom(r.Context(), projectID, editor, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, room)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body UpdateRoomInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		room, err := s.service.UpdateRoom(r.Context(), projectID, editor, rest[0], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteRoom(r.Context(), projectID, editor, rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case len(rest) == 2 && rest[1] == "duplicate" && r.Method == http.MethodPost:
		var body DuplicateRoomInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		room, err := s.service.DuplicateRoom(r.Context(), projectID, editor, rest[0], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, room)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDoors(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	editor, ok := s.requireEditor(w, r)
	if !ok {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body CreateDoorInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		door, err := s.service.CreateDoor(r.Context(), projectID, editor, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, door)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body UpdateDoorInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		door, err := s.service.UpdateDoor(r.Context(), projectID, editor, rest[0], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, door)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteDoor(r.Context(), projectID, editor, rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	if len(rest) != 1 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	editor, ok := s.requireEditor(w, r)
	if !ok {
		return
	}
	var result EditResult
	var err error
	if rest[0] == "undo" {
		result, err = s.service.Undo(r.Context(), projectID, editor)
	} else {
		result, err = s.service.Redo(r.Context(), projectID, editor)
	}
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSavePoints(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		editor, ok := s.requireEditor(w, r)
		if !ok {
			return
		}
		var body SavePointInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		info, err := s.service.SavePoint(r.Context(), projectID, editor, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, info)
	case len(rest) == 0 && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		history, err := s.service.SavePointHistory(r.Context(), projectID, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"savePoints": history})
	case len(rest) == 1 && r.Method == http.MethodGet:
		doc, err := s.service.GetSavePoint(r.Context(), projectID, rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	var body struct {
		StoreyID string `json:"storeyId"`
		Format   string `json:"format"`
		Upload   bool   `json:"upload"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	format := export.Format(body.Format)
	if format == "" {
		format = export.FormatPDF
	}

	result, err := s.service.Export(r.Context(), export.Request{
		ProjectID: projectID,
		StoreyID:  body.StoreyID,
		Format:    format,
		Upload:    body.Upload,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}

	if result.ObjectURL != "" {
		w.Header().Set("X-Object-URL", result.ObjectURL)
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.Write(result.Data)
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

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
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

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
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

var planErrorCodes = []struct {
	err    error
	status int
	code   string
}{
	{plan.ErrWallNotFound, http.StatusNotFound, "WALL_NOT_FOUND"},
	{plan.ErrRoomNotFound, http.StatusNotFound, "ROOM_NOT_FOUND"},
	{plan.ErrStoreyNotFound, http.StatusNotFound, "STOREY_NOT_FOUND"},
	{plan.ErrDegenerateWall, http.StatusUnprocessableEntity, "WALL_DEGENERATE"},
	{plan.ErrWallTooShort, http.StatusUnprocessableEntity, "WALL_TOO_SHORT"},
	{plan.ErrPointOffWall, http.StatusUnprocessableEntity, "POINT_OFF_WALL"},
	{plan.ErrSplitNearEndpoint, http.StatusUnprocessableEntity, "SPLIT_NEAR_ENDPOINT"},
	{plan.ErrWallsIncompatible, http.StatusUnprocessableEntity, "MERGE_INCOMPATIBLE"},
	{plan.ErrWallsNotCollinear, http.StatusUnprocessableEntity, "MERGE_NOT_COLLINEAR"},
	{plan.ErrWallsNotConnected, http.StatusUnprocessableEntity, "MERGE_NOT_CONNECTED"},
	{plan.ErrEdgeUnmatched, http.StatusUnprocessableEntity, "ROOM_EDGE_UNMATCHED"},
	{plan.ErrInsideGhostArea, http.StatusUnprocessableEntity, "ROOM_IN_GHOST_AREA"},
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	for _, m := range planErrorCodes {
		if errors.Is(err, m.err) {
			return m.status, m.code, err.Error(), nil
		}
	}
	if errors.Is(err, session.ErrLeaseHeld) {
		return http.StatusLocked, "PLAN_LOCKED", "The plan is being edited by someone else", nil
	}
	if errors.Is(err, session.ErrLeaseNotHeld) {
		return http.StatusConflict, "LEASE_NOT_HELD", "The edit lease is no longer held", nil
	}
	if errors.Is(err, export.ErrPlanUnavailable) {
		return http.StatusNotFound, "PLAN_UNAVAILABLE", err.Error(), nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", err.Error(), nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
