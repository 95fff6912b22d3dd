package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/model"
	"github.com/newronx/waitlist/internal/service"
)

// StoryHandler exposes the testimonial endpoints.
type StoryHandler struct {
	waitlist *service.WaitlistService
	logger   *slog.Logger
}

func NewStoryHandler(waitlist *service.WaitlistService, logger *slog.Logger) *StoryHandler {
	return &StoryHandler{waitlist: waitlist, logger: logger}
}

type storyRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Story string `json:"story"`
}

// HandleSubmit records a free-text testimonial. Stories start out pending
// and only show up publicly once approved.
//
// HTTP: POST /api/stories
func (h *StoryHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req storyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}
	story, err := h.waitlist.SubmitStory(r.Context(), req.Email, req.Name, req.Story)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Thanks for sharing your story!",
		"story":   story,
	})
}

type moderateRequest struct {
	Status model.StoryStatus `json:"status"`
}

// HandleModerate moves a story to approved or rejected.
//
// HTTP: PUT /api/stories/{id}/status
func (h *StoryHandler) HandleModerate(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}
	story, err := h.waitlist.ModerateStory(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "story": story})
}

// HandleList returns stories, optionally filtered by moderation status.
// Without a filter only approved stories are returned; this is the public
// wall, not the moderation queue.
//
// HTTP: GET /api/stories?status=pending&limit=20&offset=0
func (h *StoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := model.StoryStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.StoryApproved
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	stories, err := h.waitlist.ListStories(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(stories),
		"stories": stories,
	})
}
