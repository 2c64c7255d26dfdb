package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/auth"
	"github.com/sakif/brainbox/internal/metrics"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

// DefaultMaxConnections is the connection ceiling applied when the server
// config doesn't override it.
const DefaultMaxConnections = 2

// inactiveAfter is how long a connection can go without a heartbeat before
// it is presented as inactive. Purely presentational — the next
// authenticated call flips it back to connected.
const inactiveAfter = 5 * time.Minute

// ExtensionService manages the browser-extension pairing lifecycle: issuing
// API keys, validating them on every extension call, and revoking
// connections.
type ExtensionService struct {
	conns   repository.ConnectionRepository
	keys    *auth.APIKeyService
	ceiling int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewExtensionService(
	conns repository.ConnectionRepository,
	keys *auth.APIKeyService,
	ceiling int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ExtensionService {
	if ceiling <= 0 {
		ceiling = DefaultMaxConnections
	}
	return &ExtensionService{
		conns:   conns,
		keys:    keys,
		ceiling: ceiling,
		metrics: m,
		logger:  logger,
	}
}

// CreateConnectionInput is the device metadata sent by the extension during
// pairing.
type CreateConnectionInput struct {
	BrowserType       model.BrowserType
	DeviceFingerprint string
	UserAgent         string
	IPAddress         string
	DeviceName        string // optional; derived from browser + OS if empty
}

// CreateConnection pairs a new device and returns the connection plus the
// plaintext API key. The key is returned exactly once — only its hash is
// stored, so a lost key means pairing again.
//
// Fails with a capacity error when the user already has `ceiling` active
// connections, and with a conflict error when an active connection already
// holds the same device fingerprint.
func (s *ExtensionService) CreateConnection(ctx context.Context, userID string, in CreateConnectionInput) (*model.ExtensionConnection, string, error) {
	if !in.BrowserType.Valid() {
		return nil, "", apperror.ValidationFailed("browserType", "unknown browser type")
	}
	fingerprint := strings.TrimSpace(in.DeviceFingerprint)
	if fingerprint == "" {
		return nil, "", apperror.ValidationFailed("deviceFingerprint", "device fingerprint is required")
	}

	active, err := s.conns.ListActiveConnectionsByUser(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("loading active connections: %w", err)
	}
	if len(active) >= s.ceiling {
		return nil, "", apperror.CapacityExceeded(fmt.Sprintf(
			"connection limit reached (%d) — disconnect a device before pairing a new one", s.ceiling))
	}
	for _, conn := range active {
		if conn.DeviceFingerprint == fingerprint {
			return nil, "", apperror.Conflict("connection", "this device is already connected")
		}
	}

	plaintext, hash, preview, err := s.keys.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("generating API key: %w", err)
	}

	deviceName := strings.TrimSpace(in.DeviceName)
	if deviceName == "" {
		deviceName = deriveDeviceName(in.BrowserType, in.UserAgent)
	}

	conn := &model.ExtensionConnection{
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		BrowserType:       in.BrowserType,
		DeviceName:        deviceName,
		UserAgent:         in.UserAgent,
		IPAddress:         in.IPAddress,
		APIKeyHash:        hash,
		APIKeyPreview:     preview,
	}
	if err := s.conns.CreateConnection(ctx, conn); err != nil {
		return nil, "", err
	}

	s.logger.Info("extension connection created",
		slog.String("userId", userID),
		slog.String("connectionId", conn.ID),
		slog.String("browser", string(conn.BrowserType)),
		slog.String("device", conn.DeviceName),
	)
	return conn, plaintext, nil
}

// ValidateAPIKey resolves an API key to its active connection, or returns
// an unauthorized error.
//
// The hash cannot be looked up by value, only verified, so this scans every
// active connection and runs the bcrypt comparison against each. That is
// O(active connections) per call — accepted while the ceiling keeps
// cardinality at ≤ a couple per user. A connection whose last heartbeat is
// older than its user's connection timeout is transitioned to expired here
// (transactionally, freeing a ceiling slot) and its key rejected.
func (s *ExtensionService) ValidateAPIKey(ctx context.Context, secret string) (*model.ExtensionConnection, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		s.metrics.KeyValidations.WithLabelValues("invalid").Inc()
		return nil, apperror.Unauthorized("API key required")
	}

	active, err := s.conns.ListActiveConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active connections: %w", err)
	}

	for i := range active {
		conn := &active[i]
		if !s.keys.Verify(conn.APIKeyHash, secret) {
			continue
		}

		expired, err := s.expireIfStale(ctx, conn)
		if err != nil {
			return nil, err
		}
		if expired {
			s.metrics.KeyValidations.WithLabelValues("expired").Inc()
			return nil, apperror.Unauthorized("API key expired — pair the extension again")
		}

		s.metrics.KeyValidations.WithLabelValues("ok").Inc()
		return conn, nil
	}

	s.metrics.KeyValidations.WithLabelValues("invalid").Inc()
	return nil, apperror.Unauthorized("invalid API key")
}

// expireIfStale applies the timeout-driven terminal transition when the
// connection's heartbeat is older than its user's configured timeout.
func (s *ExtensionService) expireIfStale(ctx context.Context, conn *model.ExtensionConnection) (bool, error) {
	details, err := s.conns.GetExtensionDetails(ctx, conn.UserID)
	if err != nil {
		if isNotFound(err) {
			return false, nil // no details row, no timeout configured
		}
		return false, fmt.Errorf("loading extension details: %w", err)
	}

	timeout := time.Duration(details.Settings.ConnectionTimeoutMinutes) * time.Minute
	if timeout <= 0 || time.Since(conn.LastHeartbeat) <= timeout {
		return false, nil
	}

	if err := s.conns.ExpireConnection(ctx, conn.UserID, conn.ID); err != nil {
		if isNotFound(err) {
			return true, nil // raced with a disconnect; either way it's gone
		}
		return false, fmt.Errorf("expiring connection: %w", err)
	}

	s.logger.Info("extension connection expired",
		slog.String("userId", conn.UserID),
		slog.String("connectionId", conn.ID),
	)
	return true, nil
}

// DisconnectConnection revokes a pairing. Soft delete: the row survives
// with status=disconnected and the reason recorded; the user's active
// counter decrements in the same transaction. There is no way back — the
// extension must pair again for a new key.
func (s *ExtensionService) DisconnectConnection(ctx context.Context, userID, connectionID, reason string) error {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return apperror.ValidationFailed("connectionId", "connection ID is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "user requested"
	}

	if err := s.conns.DisconnectConnection(ctx, userID, connectionID, reason); err != nil {
		return err
	}

	s.logger.Info("extension connection disconnected",
		slog.String("userId", userID),
		slog.String("connectionId", connectionID),
		slog.String("reason", reason),
	)
	return nil
}

// UpdateConnectionActivity touches lastActivity/lastHeartbeat and forces
// the status back to connected. Called on every authenticated extension
// request, so an inactive connection revives simply by being used.
func (s *ExtensionService) UpdateConnectionActivity(ctx context.Context, userID, connectionID string) error {
	return s.conns.TouchConnection(ctx, userID, connectionID, model.StatusConnected)
}

// UpdateConnectionStats applies increment-only counters for content saved
// and API calls made through a connection.
func (s *ExtensionService) UpdateConnectionStats(ctx context.Context, userID, connectionID string, contentSaved, apiCalls int) error {
	if contentSaved < 0 || apiCalls < 0 {
		return apperror.ValidationFailed("stats", "stat increments must not be negative")
	}
	if contentSaved == 0 && apiCalls == 0 {
		return nil
	}
	return s.conns.IncrementConnectionStats(ctx, userID, connectionID, repository.StatsDelta{
		ContentSaved: contentSaved,
		APICalls:     apiCalls,
	})
}

// ListConnections returns the user's connection history, annotating active
// rows whose heartbeat has gone quiet as inactive. The annotation is
// presentational only; nothing is written.
func (s *ExtensionService) ListConnections(ctx context.Context, userID string) ([]model.ExtensionConnection, error) {
	conns, err := s.conns.ListConnectionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	for i := range conns {
		if conns[i].IsActive && conns[i].Status == model.StatusConnected &&
			time.Since(conns[i].LastHeartbeat) > inactiveAfter {
			conns[i].Status = model.StatusInactive
		}
	}
	return conns, nil
}

// GetDetails returns the user's extension aggregate, creating it with
// defaults on first access.
func (s *ExtensionService) GetDetails(ctx context.Context, userID string) (*model.UserExtensionDetails, error) {
	return s.conns.EnsureExtensionDetails(ctx, userID)
}

// deriveDeviceName builds a human-readable name like "Chrome on macOS"
// from the browser type and a rough OS sniff of the user-agent string.
func deriveDeviceName(browser model.BrowserType, userAgent string) string {
	names := map[model.BrowserType]string{
		model.BrowserChrome:  "Chrome",
		model.BrowserFirefox: "Firefox",
		model.BrowserSafari:  "Safari",
		model.BrowserEdge:    "Edge",
	}

	os := "Unknown OS"
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		os = "macOS"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		os = "iOS"
	}

	return names[browser] + " on " + os
}
