package handler

import (
	"net/http"
	"strconv"

	"github.com/sakif/brainbox/internal/auth"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/service"
)

// ContentHandler serves CRUD for saved content items.
type ContentHandler struct {
	content *service.ContentService
}

func NewContentHandler(content *service.ContentService) *ContentHandler {
	return &ContentHandler{content: content}
}

type createContentRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Link          string   `json:"link"`
	ContentType   string   `json:"contentType"`
	PersonalNotes string   `json:"personalNotes"`
	ThumbnailURL  string   `json:"thumbnailUrl"`
	TagIDs        []string `json:"tagsId"`
}

type updateContentRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Link          string   `json:"link"`
	PersonalNotes string   `json:"personalNotes"`
	ThumbnailURL  string   `json:"thumbnailUrl"`
	TagIDs        []string `json:"tagsId"`
}

// HandleCreate saves a new content item.
//
// HTTP: POST /api/content
func (h *ContentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	item, err := h.content.Create(r.Context(), userID, service.CreateContentInput{
		Title:         req.Title,
		Description:   req.Description,
		Link:          req.Link,
		ContentType:   model.ContentType(req.ContentType),
		PersonalNotes: req.PersonalNotes,
		ThumbnailURL:  req.ThumbnailURL,
		TagIDs:        req.TagIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// HandleList returns the user's content, newest first. Supports ?limit= and
// ?offset= for paging.
//
// HTTP: GET /api/content
func (h *ContentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	items, err := h.content.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// HandleGet returns a single content item.
//
// HTTP: GET /api/content/{id}
func (h *ContentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	item, err := h.content.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// HandleUpdate applies a partial update. Omitted fields keep their values;
// an explicit "tagsId" replaces the tag set (empty array clears it).
//
// HTTP: PATCH /api/content/{id}
func (h *ContentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req updateContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	item, err := h.content.Update(r.Context(), userID, r.PathValue("id"), service.UpdateContentInput{
		Title:         req.Title,
		Description:   req.Description,
		Link:          req.Link,
		PersonalNotes: req.PersonalNotes,
		ThumbnailURL:  req.ThumbnailURL,
		TagIDs:        req.TagIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// HandleDelete removes a content item and its tag references.
//
// HTTP: DELETE /api/content/{id}
func (h *ContentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.content.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
