package app

import (
	"net/http"

	"roadmapper/api/internal/document"
)

func (s *HTTPServer) handleRoadmapCollection(w http.ResponseWriter, r *http.Request, session Session) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.service.model.ListRoadmaps(r.Context(), session.Caller())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roadmaps": items})
	case http.MethodPost:
		var body document.RoadmapInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.model.CreateRoadmap(r.Context(), session.Caller(), body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleRoadmap(w http.ResponseWriter, r *http.Request, session Session, roadmapID string, parts []string) {
	ctx := r.Context()
	caller := session.Caller()

	if len(parts) == 3 && r.Method == http.MethodGet {
		doc, err := s.service.model.LoadDocument(ctx, caller, roadmapID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	if len(parts) == 3 && r.Method == http.MethodPut {
		var body document.RoadmapPatch
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.model.UpdateRoadmap(ctx, caller, roadmapID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		if err := s.service.model.DeleteRoadmap(ctx, caller, roadmapID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 4 && parts[3] == "transfer" && r.Method == http.MethodPost {
		var body struct {
			Username string `json:"username"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		roadmap, err := s.service.model.TransferOwnership(ctx, caller, roadmapID, body.Username)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, roadmap)
		return
	}

	if len(parts) == 4 && parts[3] == "milestones" && r.Method == http.MethodPost {
		var body document.MilestoneInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.model.AddMilestone(ctx, caller, roadmapID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	if len(parts) == 4 && parts[3] == "notes" && r.Method == http.MethodPost {
		var body document.NoteInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.model.AddNote(ctx, caller, roadmapID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	if len(parts) == 4 && parts[3] == "connections" && r.Method == http.MethodPost {
		var body document.ConnectionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.model.AddConnection(ctx, caller, roadmapID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	if len(parts) == 4 && parts[3] == "risks" && r.Method == http.MethodPost {
		var body document.RiskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.model.AddRiskMarker(ctx, caller, roadmapID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	if len(parts) == 4 && parts[3] == "comments" && r.Method == http.MethodGet {
		items, err := s.service.ListComments(ctx, caller, roadmapID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": items})
		return
	}

	if len(parts) == 4 && parts[3] == "comments" && r.Method == http.MethodPost {
		var body struct {
			Body string `json:"body"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.AddComment(ctx, caller, roadmapID, body.Body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	if len(parts) == 4 && parts[3] == "activity" && r.Method == http.MethodGet {
		limit, ok := queryInt(w, r.URL.Query().Get("limit"), "limit")
		if !ok {
			return
		}
		items, err := s.service.ListActivity(ctx, caller, roadmapID, limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": items})
		return
	}

	if len(parts) == 4 && parts[3] == "webhooks" && r.Method == http.MethodGet {
		items, err := s.service.ListWebhooks(ctx, caller, roadmapID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"webhooks": items})
		return
	}

	if len(parts) == 4 && parts[3] == "webhooks" && r.Method == http.MethodPost {
		var body struct {
			URL string `json:"url"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateWebhook(ctx, caller, roadmapID, body.URL)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"webhook": created,
			"secret":  created.Secret,
		})
		return
	}

	if len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodGet {
		result, err := s.service.Export(ctx, caller, roadmapID, r.URL.Query().Get("format"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeFile(w, result)
		return
	}

	if len(parts) == 5 && parts[3] == "export" && parts[4] == "archive" && r.Method == http.MethodPost {
		archived, err := s.service.ArchiveExport(ctx, caller, roadmapID, r.URL.Query().Get("format"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, archived)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleElement serves /api/{kind}/{id} for items addressed by their own id.
func (s *HTTPServer) handleElement(w http.ResponseWriter, r *http.Request, session Session, kind, id string) {
	ctx := r.Context()
	caller := session.Caller()

	if r.Method == http.MethodPut && kind == "milestones" {
		var body document.MilestonePatch
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.model.UpdateMilestone(ctx, caller, id, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}

	if r.Method == http.MethodPut && kind == "notes" {
		var body document.NotePatch
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.model.UpdateNote(ctx, caller, id, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}

	if r.Method != http.MethodDelete {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	var err error
	switch kind {
	case "milestones":
		err = s.service.model.DeleteMilestone(ctx, caller, id)
	case "notes":
		err = s.service.model.DeleteNote(ctx, caller, id)
	case "connections":
		err = s.service.model.DeleteConnection(ctx, caller, id)
	case "risks":
		err = s.service.model.DeleteRiskMarker(ctx, caller, id)
	case "comments":
		err = s.service.DeleteComment(ctx, caller, id)
	case "webhooks":
		err = s.service.DeleteWebhook(ctx, caller, id)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
