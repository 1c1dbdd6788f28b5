package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/splax/deskpulse/internal/broadcast"
	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
	"github.com/splax/deskpulse/internal/service/workspace"
	"github.com/splax/deskpulse/internal/ws"
)

type createWorkspaceRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type upsertMemberRequest struct {
	Role domain.Role `json:"role"`
}

type createInviteRequest struct {
	Role       domain.Role `json:"role"`
	TTLSeconds int64       `json:"ttlSeconds"`
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

func (r *Router) handleListWorkspaces(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	list, err := r.workspaces.List(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": list})
}

func (r *Router) handleCreateWorkspace(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var body createWorkspaceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRecordBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	created, err := r.workspaces.Create(req.Context(), info.UserID, body.Name, body.Color)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleDeleteWorkspace(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	if err := r.workspaces.Delete(req.Context(), info.UserID, req.PathValue("id")); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleMembers(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	members, err := r.workspaces.Members(req.Context(), info.UserID, req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (r *Router) handleUpsertMember(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var body upsertMemberRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRecordBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	err := r.workspaces.UpsertMember(req.Context(), info.UserID, req.PathValue("id"), req.PathValue("userID"), body.Role)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleInvites(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	invites, err := r.workspaces.PendingInvites(req.Context(), info.UserID, req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

func (r *Router) handleCreateInvite(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var body createInviteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRecordBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	ttl := time.Duration(body.TTLSeconds) * time.Second
	invite, token, err := r.workspaces.CreateInvite(req.Context(), info.UserID, req.PathValue("id"), body.Role, ttl)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invite": invite, "token": token})
}

func (r *Router) handleAcceptInvite(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var body acceptInviteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRecordBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	member, err := r.workspaces.AcceptInvite(req.Context(), info.UserID, req.PathValue("id"), body.Token)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (r *Router) handleFetchRecords(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	workspaceID := req.PathValue("id")
	table, err := domain.ParseTable(req.PathValue("table"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if _, err := r.workspaces.Authorize(req.Context(), info.UserID, workspaceID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	list, err := r.records.Fetch(req.Context(), table, workspaceID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if list == nil {
		list = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": list})
}

func (r *Router) handlePutRecord(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	workspaceID := req.PathValue("id")
	entityID := req.PathValue("entityID")
	table, err := domain.ParseTable(req.PathValue("table"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	var record domain.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRecordBodyBytes)).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if record.ID == "" {
		record.ID = entityID
	}
	if record.WorkspaceID == "" {
		record.WorkspaceID = workspaceID
	}
	if record.ID != entityID || record.WorkspaceID != workspaceID {
		writeError(w, http.StatusBadRequest, "record id and workspace must match the path")
		return
	}
	if _, err := r.workspaces.AuthorizeWrite(req.Context(), info.UserID, workspaceID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	stored, err := r.records.Upsert(req.Context(), info.UserID, table, record)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (r *Router) handleDeleteRecord(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	workspaceID := req.PathValue("id")
	table, err := domain.ParseTable(req.PathValue("table"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if _, err := r.workspaces.AuthorizeWrite(req.Context(), info.UserID, workspaceID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if err := r.records.Delete(req.Context(), info.UserID, table, workspaceID, req.PathValue("entityID")); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handlePresenceWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for presence websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	workspaceID := strings.TrimSpace(req.URL.Query().Get("workspace_id"))
	if workspaceID == "" {
		writeError(w, http.StatusBadRequest, "workspace_id query parameter required")
		return
	}
	if _, err := r.workspaces.Authorize(req.Context(), info.UserID, workspaceID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if r.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "presence unavailable")
		return
	}
	sub, err := r.bus.Join(req.Context(), broadcast.PresenceTopic(workspaceID))
	if err != nil {
		r.logger.Warn("presence join failed", "workspace_id", workspaceID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "presence unavailable")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		_ = sub.Close()
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger.With("workspace_id", workspaceID, "user_id", info.UserID))
	go ws.Bridge(r.ctx, client, sub, r.bridge)
}

// writeServiceError maps service and repository errors to HTTP statuses.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, workspace.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnknownTable),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, repository.ErrInvalidArgument),
		errors.Is(err, workspace.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
