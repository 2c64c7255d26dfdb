package model

import "time"

// BrowserType identifies which browser an extension connection came from.
type BrowserType string

const (
	BrowserChrome  BrowserType = "chrome"
	BrowserFirefox BrowserType = "firefox"
	BrowserSafari  BrowserType = "safari"
	BrowserEdge    BrowserType = "edge"
)

// Valid reports whether bt is one of the supported browsers.
func (bt BrowserType) Valid() bool {
	switch bt {
	case BrowserChrome, BrowserFirefox, BrowserSafari, BrowserEdge:
		return true
	}
	return false
}

// ConnectionStatus is the lifecycle state of an extension connection.
//
// State machine:
//
//	connected ⇄ inactive        (heartbeat freshness, repeatable)
//	connected|inactive → disconnected   (explicit disconnect, terminal)
//	connected|inactive → expired        (heartbeat older than the user's
//	                                     connection timeout, terminal)
//
// There is no transition out of disconnected or expired — reconnecting
// creates a new connection with a new id and a new key.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusInactive     ConnectionStatus = "inactive"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusExpired      ConnectionStatus = "expired"
)

// ExtensionConnection represents one authorized browser/device pairing.
//
// The API key secret is never stored: APIKeyHash holds a bcrypt hash that
// can only be verified, not reversed, and APIKeyPreview holds a truncated
// display form ("bbx_a1b2…f9e8") for the settings UI.
//
// Connections are soft-deleted: disconnect and expiry flip IsActive and set
// a terminal status, but the row is kept for connection history.
type ExtensionConnection struct {
	ID                 string           `json:"id"                 db:"id"`
	UserID             string           `json:"userId"             db:"user_id"`
	DeviceFingerprint  string           `json:"deviceFingerprint"  db:"device_fingerprint"`
	BrowserType        BrowserType      `json:"browserType"        db:"browser_type"`
	DeviceName         string           `json:"deviceName"         db:"device_name"`
	UserAgent          string           `json:"-"                  db:"user_agent"`
	IPAddress          string           `json:"-"                  db:"ip_address"`
	APIKeyHash         string           `json:"-"                  db:"api_key_hash"`
	APIKeyPreview      string           `json:"apiKeyPreview"      db:"api_key_preview"`
	Status             ConnectionStatus `json:"status"             db:"status"`
	ConnectedAt        time.Time        `json:"connectedAt"        db:"connected_at"`
	LastActivity       time.Time        `json:"lastActivity"       db:"last_activity"`
	LastHeartbeat      time.Time        `json:"lastHeartbeat"      db:"last_heartbeat"`
	TotalContentSaved  int              `json:"totalContentSaved"  db:"total_content_saved"`
	TotalAPICallsMade  int              `json:"totalApiCallsMade"  db:"total_api_calls_made"`
	IsActive           bool             `json:"isActive"           db:"is_active"`
	DisconnectedReason string           `json:"disconnectedReason,omitempty" db:"disconnected_reason"`
	CreatedAt          time.Time        `json:"createdAt"          db:"created_at"`
	UpdatedAt          time.Time        `json:"updatedAt"          db:"updated_at"`
}

// ExtensionSettings are per-user preferences for the extension integration.
type ExtensionSettings struct {
	NotifyOnConnect          bool `json:"notifyOnConnect"          db:"notify_on_connect"`
	ConnectionTimeoutMinutes int  `json:"connectionTimeoutMinutes" db:"connection_timeout_minutes"`
	RequireReauth            bool `json:"requireReauth"            db:"require_reauth"`
}

// UserExtensionDetails is the per-user aggregate of connection history.
// Created lazily on the first pairing attempt if absent.
type UserExtensionDetails struct {
	UserID                      string            `json:"userId"                      db:"user_id"`
	TotalActiveConnections      int               `json:"totalActiveConnections"      db:"total_active_connections"`
	TotalHistoricalConnections  int               `json:"totalHistoricalConnections"  db:"total_historical_connections"`
	LastActivity                time.Time         `json:"lastActivity"                db:"last_activity"`
	TotalContentSaved           int               `json:"totalContentSaved"           db:"total_content_saved"`
	TotalAPICallsAllConnections int               `json:"totalApiCallsAllConnections" db:"total_api_calls_all_connections"`
	Settings                    ExtensionSettings `json:"settings"`
	CreatedAt                   time.Time         `json:"createdAt"                   db:"created_at"`
	UpdatedAt                   time.Time         `json:"updatedAt"                   db:"updated_at"`
}

// DefaultExtensionSettings are applied when details are created lazily.
func DefaultExtensionSettings() ExtensionSettings {
	return ExtensionSettings{
		NotifyOnConnect:          true,
		ConnectionTimeoutMinutes: 30,
		RequireReauth:            false,
	}
}
