// ABOUTME: REST API handlers: grant minting, document creation, backlog notes,
// ABOUTME: carry-forward invocation, and document export

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/huddle-sync/internal/auth"
	"github.com/2389/huddle-sync/internal/carryforward"
	"github.com/2389/huddle-sync/internal/document"
	"github.com/2389/huddle-sync/internal/room"
	"github.com/2389/huddle-sync/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireServiceToken guards an API handler with the configured service
// token. With no hash configured the API is open, which is only sane for
// local development.
func (g *Gateway) requireServiceToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.config.Auth.ServiceTokenHash == "" {
			next(w, r)
			return
		}
		token, err := auth.BearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := auth.CheckServiceToken(g.config.Auth.ServiceTokenHash, token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid service token")
			return
		}
		next(w, r)
	}
}

type mintTokenRequest struct {
	PrincipalID string `json:"principalId"`
}

type mintTokenResponse struct {
	Token     string    `json:"token"`
	RoomID    string    `json:"roomId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleMintToken mints a short-lived room grant for one principal and one
// document's room.
func (g *Gateway) handleMintToken(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("documentId")

	var req mintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PrincipalID == "" {
		writeError(w, http.StatusBadRequest, "principalId is required")
		return
	}

	if _, err := g.store.GetDocument(r.Context(), documentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "resolving document")
		return
	}

	roomID := room.Name(documentID)
	ttl := g.config.Auth.GrantTTL
	token, err := g.verifier.Generate(req.PrincipalID, roomID, ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "minting grant")
		return
	}

	g.logger.Info("room grant minted", "document_id", documentID, "principal", req.PrincipalID)
	writeJSON(w, http.StatusOK, mintTokenResponse{
		Token:     token,
		RoomID:    roomID,
		ExpiresAt: time.Now().Add(ttl),
	})
}

type createDocumentRequest struct {
	ID          string    `json:"id"`
	FolderID    string    `json:"folderId"`
	Title       string    `json:"title"`
	MeetingDate time.Time `json:"meetingDate"`
	WeekNumber  int       `json:"weekNumber"`
}

// handleCreateDocument creates the durable metadata row for a new meeting
// document. Collections start empty; the first room join loads them.
func (g *Gateway) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FolderID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "folderId and title are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	info := &store.DocumentInfo{
		ID:          req.ID,
		FolderID:    req.FolderID,
		Title:       req.Title,
		MeetingDate: req.MeetingDate,
		WeekNumber:  req.WeekNumber,
	}
	if err := g.store.CreateDocument(r.Context(), info); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// handleListBacklog reads the store-only backlog collection. The backlog is
// never part of the live document, so every read goes to the store.
func (g *Gateway) handleListBacklog(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	records, err := g.store.ListRecords(r.Context(), documentID, document.CollectionBacklog)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading backlog")
		return
	}
	if records == nil {
		records = []document.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

type createBacklogRequest struct {
	Text  string `json:"text"`
	Owner string `json:"owner"`
}

func (g *Gateway) handleCreateBacklog(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	var req createBacklogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	existing, err := g.store.ListRecords(r.Context(), documentID, document.CollectionBacklog)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading backlog")
		return
	}
	next := 0
	for _, rec := range existing {
		if rec.Order() >= next {
			next = rec.Order() + 1
		}
	}

	note := &document.BacklogNote{
		RecordMeta: document.RecordMeta{ID: uuid.NewString(), OrderIndex: next},
		Text:       req.Text,
		Owner:      req.Owner,
	}
	if err := g.store.SaveRecord(r.Context(), documentID, document.CollectionBacklog, note); err != nil {
		writeError(w, http.StatusInternalServerError, "saving backlog note")
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (g *Gateway) handleUpdateBacklog(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	noteID := r.PathValue("noteId")

	var fields json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := g.store.UpdateRecordFields(r.Context(), documentID, document.CollectionBacklog, noteID, fields); err != nil {
		if errors.Is(err, document.ErrInvalidFields) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "updating backlog note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleDeleteBacklog(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	noteID := r.PathValue("noteId")

	if err := g.store.DeleteRecord(r.Context(), documentID, document.CollectionBacklog, noteID); err != nil {
		writeError(w, http.StatusInternalServerError, "deleting backlog note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCarryForwardCandidates lists the previous document's items for a
// mode, grouped by owner, for the selection UI.
func (g *Gateway) handleCarryForwardCandidates(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	mode := carryforward.Mode(r.URL.Query().Get("mode"))

	cands, err := g.engine.Candidates(r.Context(), documentID, mode)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, carryforward.ErrUnknownMode):
			status = http.StatusBadRequest
		case errors.Is(err, store.ErrNotFound):
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cands)
}

type carryForwardRequest struct {
	Mode        carryforward.Mode `json:"mode"`
	SelectedIDs []string          `json:"selectedIds"`
}

// handleCarryForward runs a carry-forward batch. Partial failure is a 200
// with succeeded < requested, not an error status.
func (g *Gateway) handleCarryForward(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	var req carryForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := g.engine.CarryForward(r.Context(), documentID, req.Mode, req.SelectedIDs)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, carryforward.ErrUnknownMode):
			status = http.StatusBadRequest
		case errors.Is(err, store.ErrNotFound):
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	if result.Records == nil {
		result.Records = []document.Record{}
	}
	writeJSON(w, http.StatusOK, result)
}
