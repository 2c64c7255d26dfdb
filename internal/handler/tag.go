package handler

import (
	"net/http"

	"github.com/sakif/brainbox/internal/auth"
	"github.com/sakif/brainbox/internal/service"
)

// TagHandler serves CRUD for tags. Tag IDs are slugs derived from the name,
// so the name itself is immutable after creation.
type TagHandler struct {
	tags *service.TagService
}

func NewTagHandler(tags *service.TagService) *TagHandler {
	return &TagHandler{tags: tags}
}

type createTagRequest struct {
	Name        string `json:"tagName"`
	ColorCode   string `json:"colorCode"`
	Description string `json:"description"`
}

type updateTagRequest struct {
	ColorCode   string `json:"colorCode"`
	Description string `json:"description"`
}

// HandleCreate creates a tag.
//
// HTTP: POST /api/tags
func (h *TagHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	tag, err := h.tags.Create(r.Context(), userID, req.Name, req.ColorCode, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tag)
}

// HandleList returns all of the user's tags with their content counts.
//
// HTTP: GET /api/tags
func (h *TagHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	tags, err := h.tags.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tags)
}

// HandleGet returns a single tag.
//
// HTTP: GET /api/tags/{id}
func (h *TagHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	tag, err := h.tags.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tag)
}

// HandleUpdate changes a tag's color or description.
//
// HTTP: PATCH /api/tags/{id}
func (h *TagHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req updateTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	tag, err := h.tags.Update(r.Context(), userID, r.PathValue("id"), req.ColorCode, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tag)
}

// HandleDelete removes a tag and every reference to it.
//
// HTTP: DELETE /api/tags/{id}
func (h *TagHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.tags.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
