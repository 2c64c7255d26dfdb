package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/sakif/brainbox/internal/auth"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/service"
)

// ExtensionHandler serves two route groups: session-authenticated pairing
// management under /api/extension, and key-authenticated endpoints under
// /ext that the browser extension itself calls.
type ExtensionHandler struct {
	ext     *service.ExtensionService
	content *service.ContentService
	tags    *service.TagService
	logger  *slog.Logger
}

func NewExtensionHandler(
	ext *service.ExtensionService,
	content *service.ContentService,
	tags *service.TagService,
	logger *slog.Logger,
) *ExtensionHandler {
	return &ExtensionHandler{
		ext:     ext,
		content: content,
		tags:    tags,
		logger:  logger,
	}
}

type createConnectionRequest struct {
	BrowserType       string `json:"browserType"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	DeviceName        string `json:"deviceName"`
}

// connectionCreatedResponse carries the one-time plaintext API key next to
// the connection record. The key never appears in any other response.
type connectionCreatedResponse struct {
	Connection *model.ExtensionConnection `json:"connection"`
	APIKey     string                     `json:"apiKey"`
}

// HandleCreateConnection pairs a new device and returns its API key once.
//
// HTTP: POST /api/extension/connections
func (h *ExtensionHandler) HandleCreateConnection(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	conn, apiKey, err := h.ext.CreateConnection(r.Context(), userID, service.CreateConnectionInput{
		BrowserType:       model.BrowserType(req.BrowserType),
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceName:        req.DeviceName,
		UserAgent:         r.UserAgent(),
		IPAddress:         clientIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, connectionCreatedResponse{
		Connection: conn,
		APIKey:     apiKey,
	})
}

// HandleListConnections returns connection history, active and terminated.
//
// HTTP: GET /api/extension/connections
func (h *ExtensionHandler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	conns, err := h.ext.ListConnections(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conns)
}

// HandleDisconnect terminates a connection. The row is kept for history;
// only its key stops working.
//
// HTTP: DELETE /api/extension/connections/{id}
func (h *ExtensionHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.ext.DisconnectConnection(r.Context(), userID, r.PathValue("id"), "user requested"); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetDetails returns the user's extension aggregate and settings.
//
// HTTP: GET /api/extension/details
func (h *ExtensionHandler) HandleGetDetails(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	details, err := h.ext.GetDetails(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// RequireAPIKey authenticates /ext requests by their extension API key.
// On success the user and connection IDs land in the request context and
// the connection's heartbeat is refreshed, so any authenticated call keeps
// the connection alive.
func (h *ExtensionHandler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "missing API key",
			})
			return
		}

		conn, err := h.ext.ValidateAPIKey(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}

		if err := h.ext.UpdateConnectionActivity(r.Context(), conn.UserID, conn.ID); err != nil {
			// Heartbeat refresh is bookkeeping; don't fail the request over it.
			h.logger.Warn("failed to refresh connection activity",
				slog.String("connectionId", conn.ID),
				slog.String("error", err.Error()),
			)
		}

		ctx := auth.WithExtensionIdentity(r.Context(), conn.UserID, conn.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type extensionSaveRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Link          string   `json:"link"`
	ContentType   string   `json:"contentType"`
	PersonalNotes string   `json:"personalNotes"`
	ThumbnailURL  string   `json:"thumbnailUrl"`
	TagNames      []string `json:"tags"`
}

// HandleSaveContent saves a content item on behalf of the extension. Tags
// arrive as names rather than IDs; unknown names are created on the fly.
//
// HTTP: POST /ext/content
func (h *ExtensionHandler) HandleSaveContent(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	connectionID, _ := auth.ConnectionIDFromContext(r.Context())

	var req extensionSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	tagIDs := make([]string, 0, len(req.TagNames))
	for _, name := range req.TagNames {
		tag, err := h.tags.Ensure(r.Context(), userID, name)
		if err != nil {
			writeError(w, err)
			return
		}
		tagIDs = append(tagIDs, tag.ID)
	}

	item, err := h.content.Create(r.Context(), userID, service.CreateContentInput{
		Title:         req.Title,
		Description:   req.Description,
		Link:          req.Link,
		ContentType:   model.ContentType(req.ContentType),
		PersonalNotes: req.PersonalNotes,
		ThumbnailURL:  req.ThumbnailURL,
		TagIDs:        tagIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.ext.UpdateConnectionStats(r.Context(), userID, connectionID, 1, 1); err != nil {
		h.logger.Warn("failed to update connection stats",
			slog.String("connectionId", connectionID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusCreated, item)
}

// HandleHeartbeat acknowledges a liveness ping. The actual heartbeat write
// already happened in RequireAPIKey, but counting it as an API call keeps
// the per-connection stats honest.
//
// HTTP: POST /ext/heartbeat
func (h *ExtensionHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	connectionID, _ := auth.ConnectionIDFromContext(r.Context())

	if err := h.ext.UpdateConnectionStats(r.Context(), userID, connectionID, 0, 1); err != nil {
		h.logger.Warn("failed to update connection stats",
			slog.String("connectionId", connectionID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// extractAPIKey pulls the extension key from the X-API-Key header, falling
// back to a Bearer token.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// clientIP prefers the left-most X-Forwarded-For entry, then falls back to
// the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
