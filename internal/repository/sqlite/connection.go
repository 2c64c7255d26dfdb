package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

var _ repository.ConnectionRepository = (*DB)(nil)

const connectionColumns = `id, user_id, device_fingerprint, browser_type, device_name,
	user_agent, ip_address, api_key_hash, api_key_preview, status,
	connected_at, last_activity, last_heartbeat, total_content_saved,
	total_api_calls_made, is_active, disconnected_reason, created_at, updated_at`

// CreateConnection inserts the connection row and bumps the user's
// active/historical counters in one transaction, so a connection can never
// exist without being counted (and vice versa). The details row is created
// lazily here — this is the first write path a new extension user hits.
func (db *DB) CreateConnection(ctx context.Context, conn *model.ExtensionConnection) error {
	conn.ID = xid.New().String()

	now := time.Now()
	conn.Status = model.StatusConnected
	conn.IsActive = true
	conn.ConnectedAt = now
	conn.LastActivity = now
	conn.LastHeartbeat = now
	conn.CreatedAt = now
	conn.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO extension_connections (`+connectionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.UserID, conn.DeviceFingerprint, conn.BrowserType, conn.DeviceName,
		conn.UserAgent, conn.IPAddress, conn.APIKeyHash, conn.APIKeyPreview, conn.Status,
		conn.ConnectedAt, conn.LastActivity, conn.LastHeartbeat, conn.TotalContentSaved,
		conn.TotalAPICallsMade, conn.IsActive, conn.DisconnectedReason, conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("connection", "this device is already connected")
		}
		return fmt.Errorf("sqlite: creating connection: %w", err)
	}

	if err := ensureDetailsTx(ctx, tx, conn.UserID, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_extension_details
		 SET total_active_connections = total_active_connections + 1,
		     total_historical_connections = total_historical_connections + 1,
		     last_activity = ?, updated_at = ?
		 WHERE user_id = ?`,
		now, now, conn.UserID,
	); err != nil {
		return fmt.Errorf("sqlite: incrementing connection counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing connection create: %w", err)
	}
	return nil
}

func (db *DB) GetConnectionByID(ctx context.Context, userID, id string) (*model.ExtensionConnection, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM extension_connections
		 WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	conn, err := scanConnection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("connection", id)
		}
		return nil, fmt.Errorf("sqlite: getting connection %s: %w", id, err)
	}
	return conn, nil
}

func (db *DB) ListConnectionsByUser(ctx context.Context, userID string) ([]model.ExtensionConnection, error) {
	return db.listConnections(ctx,
		`SELECT `+connectionColumns+` FROM extension_connections
		 WHERE user_id = ? ORDER BY connected_at DESC`,
		userID,
	)
}

func (db *DB) ListActiveConnectionsByUser(ctx context.Context, userID string) ([]model.ExtensionConnection, error) {
	return db.listConnections(ctx,
		`SELECT `+connectionColumns+` FROM extension_connections
		 WHERE user_id = ? AND is_active = 1 ORDER BY connected_at DESC`,
		userID,
	)
}

// ListActiveConnections returns active connections for ALL users. The
// API-key hash cannot be looked up by value, only verified, so validation
// has to scan — acceptable while active cardinality stays small.
func (db *DB) ListActiveConnections(ctx context.Context) ([]model.ExtensionConnection, error) {
	return db.listConnections(ctx,
		`SELECT `+connectionColumns+` FROM extension_connections
		 WHERE is_active = 1`,
	)
}

// DisconnectConnection soft-deletes: the row survives with a terminal
// status and a reason, and the active counter decrement rides the same
// transaction (floored at 0).
func (db *DB) DisconnectConnection(ctx context.Context, userID, id, reason string) error {
	return db.terminateConnection(ctx, userID, id, model.StatusDisconnected, reason)
}

// ExpireConnection is the heartbeat-timeout terminal transition.
func (db *DB) ExpireConnection(ctx context.Context, userID, id string) error {
	return db.terminateConnection(ctx, userID, id, model.StatusExpired, "connection timed out")
}

func (db *DB) terminateConnection(ctx context.Context, userID, id string, status model.ConnectionStatus, reason string) error {
	now := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE extension_connections
		 SET is_active = 0, status = ?, disconnected_reason = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND is_active = 1`,
		status, reason, now, id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: terminating connection %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("connection", id)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_extension_details
		 SET total_active_connections = MAX(0, total_active_connections - 1),
		     updated_at = ?
		 WHERE user_id = ?`,
		now, userID,
	); err != nil {
		return fmt.Errorf("sqlite: decrementing active connections: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing connection terminate: %w", err)
	}
	return nil
}

// TouchConnection refreshes activity timestamps and forces the status —
// called on every authenticated extension request, so a connection that
// drifted to inactive comes back to connected on its next call.
func (db *DB) TouchConnection(ctx context.Context, userID, id string, status model.ConnectionStatus) error {
	now := time.Now()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE extension_connections
		 SET last_activity = ?, last_heartbeat = ?, status = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND is_active = 1`,
		now, now, status, now, id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching connection %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("connection", id)
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE user_extension_details SET last_activity = ?, updated_at = ?
		 WHERE user_id = ?`,
		now, now, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching extension details: %w", err)
	}
	return nil
}

// IncrementConnectionStats applies increment-only counters as atomic SQL
// increments rather than read-modify-write, so concurrent calls from the
// same device cannot lose updates.
func (db *DB) IncrementConnectionStats(ctx context.Context, userID, id string, delta repository.StatsDelta) error {
	now := time.Now()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE extension_connections
		 SET total_content_saved = total_content_saved + ?,
		     total_api_calls_made = total_api_calls_made + ?,
		     updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		delta.ContentSaved, delta.APICalls, now, id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing connection stats %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("connection", id)
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE user_extension_details
		 SET total_content_saved = total_content_saved + ?,
		     total_api_calls_all_connections = total_api_calls_all_connections + ?,
		     updated_at = ?
		 WHERE user_id = ?`,
		delta.ContentSaved, delta.APICalls, now, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing extension details stats: %w", err)
	}
	return nil
}

func (db *DB) GetExtensionDetails(ctx context.Context, userID string) (*model.UserExtensionDetails, error) {
	var d model.UserExtensionDetails
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, total_active_connections, total_historical_connections,
		        last_activity, total_content_saved, total_api_calls_all_connections,
		        notify_on_connect, connection_timeout_minutes, require_reauth,
		        created_at, updated_at
		 FROM user_extension_details WHERE user_id = ?`,
		userID,
	).Scan(
		&d.UserID, &d.TotalActiveConnections, &d.TotalHistoricalConnections,
		&d.LastActivity, &d.TotalContentSaved, &d.TotalAPICallsAllConnections,
		&d.Settings.NotifyOnConnect, &d.Settings.ConnectionTimeoutMinutes, &d.Settings.RequireReauth,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("extension details", userID)
		}
		return nil, fmt.Errorf("sqlite: getting extension details: %w", err)
	}
	return &d, nil
}

func (db *DB) EnsureExtensionDetails(ctx context.Context, userID string) (*model.UserExtensionDetails, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureDetailsTx(ctx, tx, userID, time.Now()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing details ensure: %w", err)
	}

	return db.GetExtensionDetails(ctx, userID)
}

// ensureDetailsTx lazily creates the per-user details row with default
// settings inside an existing transaction.
func ensureDetailsTx(ctx context.Context, tx *sql.Tx, userID string, now time.Time) error {
	defaults := model.DefaultExtensionSettings()
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_extension_details
		 (user_id, last_activity, notify_on_connect, connection_timeout_minutes,
		  require_reauth, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, now, defaults.NotifyOnConnect, defaults.ConnectionTimeoutMinutes,
		defaults.RequireReauth, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: ensuring extension details: %w", err)
	}
	return nil
}

func (db *DB) listConnections(ctx context.Context, query string, args ...any) ([]model.ExtensionConnection, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing connections: %w", err)
	}
	defer rows.Close()

	conns := make([]model.ExtensionConnection, 0, 4)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning connection row: %w", err)
		}
		conns = append(conns, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating connections: %w", err)
	}
	return conns, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(s scanner) (*model.ExtensionConnection, error) {
	var c model.ExtensionConnection
	err := s.Scan(
		&c.ID, &c.UserID, &c.DeviceFingerprint, &c.BrowserType, &c.DeviceName,
		&c.UserAgent, &c.IPAddress, &c.APIKeyHash, &c.APIKeyPreview, &c.Status,
		&c.ConnectedAt, &c.LastActivity, &c.LastHeartbeat, &c.TotalContentSaved,
		&c.TotalAPICallsMade, &c.IsActive, &c.DisconnectedReason, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
