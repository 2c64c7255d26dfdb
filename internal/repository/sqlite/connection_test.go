package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

func createTestConnection(t *testing.T, db *DB, userID, fingerprint string) *model.ExtensionConnection {
	t.Helper()
	conn := &model.ExtensionConnection{
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		BrowserType:       model.BrowserChrome,
		DeviceName:        "Chrome on Linux",
		APIKeyHash:        "$2a$04$fakehash",
		APIKeyPreview:     "bbx_abcd…ef01",
	}
	if err := db.CreateConnection(context.Background(), conn); err != nil {
		t.Fatalf("failed to create test connection: %v", err)
	}
	return conn
}

func TestCreateConnection_SetsDefaultsAndCounters(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")

	conn := createTestConnection(t, db, user.ID, "fp-1")

	if conn.ID == "" {
		t.Error("CreateConnection() did not set conn.ID")
	}
	if conn.Status != model.StatusConnected || !conn.IsActive {
		t.Errorf("new connection status = %s active = %v, want connected/active", conn.Status, conn.IsActive)
	}

	// Creating a connection must create the details row and count itself.
	details, err := db.GetExtensionDetails(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetExtensionDetails() error = %v", err)
	}
	if details.TotalActiveConnections != 1 {
		t.Errorf("TotalActiveConnections = %d, want 1", details.TotalActiveConnections)
	}
	if details.TotalHistoricalConnections != 1 {
		t.Errorf("TotalHistoricalConnections = %d, want 1", details.TotalHistoricalConnections)
	}
	if details.Settings.ConnectionTimeoutMinutes != 30 {
		t.Errorf("ConnectionTimeoutMinutes = %d, want default 30", details.Settings.ConnectionTimeoutMinutes)
	}
}

func TestCreateConnection_ActiveFingerprintIsUnique(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")
	ctx := context.Background()

	createTestConnection(t, db, user.ID, "fp-1")

	dup := &model.ExtensionConnection{
		UserID:            user.ID,
		DeviceFingerprint: "fp-1",
		BrowserType:       model.BrowserChrome,
		APIKeyHash:        "$2a$04$other",
		APIKeyPreview:     "bbx_aaaa…bbbb",
	}
	if err := db.CreateConnection(ctx, dup); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate active fingerprint error = %v, want ErrConflict", err)
	}
}

// The fingerprint index is partial (WHERE is_active = 1): disconnecting
// frees the fingerprint for a fresh pairing while history keeps both rows.
func TestCreateConnection_FingerprintReusableAfterDisconnect(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")
	ctx := context.Background()

	first := createTestConnection(t, db, user.ID, "fp-1")
	if err := db.DisconnectConnection(ctx, user.ID, first.ID, "user requested"); err != nil {
		t.Fatalf("DisconnectConnection() error = %v", err)
	}

	createTestConnection(t, db, user.ID, "fp-1")

	all, err := db.ListConnectionsByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListConnectionsByUser() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("history has %d rows, want 2", len(all))
	}
}

func TestDisconnectConnection_SoftDeletes(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")
	ctx := context.Background()

	conn := createTestConnection(t, db, user.ID, "fp-1")

	if err := db.DisconnectConnection(ctx, user.ID, conn.ID, "user requested"); err != nil {
		t.Fatalf("DisconnectConnection() error = %v", err)
	}

	found, err := db.GetConnectionByID(ctx, user.ID, conn.ID)
	if err != nil {
		t.Fatalf("GetConnectionByID() error = %v (row must survive soft delete)", err)
	}
	if found.IsActive {
		t.Error("IsActive = true after disconnect")
	}
	if found.Status != model.StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", found.Status)
	}
	if found.DisconnectedReason != "user requested" {
		t.Errorf("DisconnectedReason = %q", found.DisconnectedReason)
	}

	details, err := db.GetExtensionDetails(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetExtensionDetails() error = %v", err)
	}
	if details.TotalActiveConnections != 0 {
		t.Errorf("TotalActiveConnections = %d after disconnect, want 0", details.TotalActiveConnections)
	}
	if details.TotalHistoricalConnections != 1 {
		t.Errorf("TotalHistoricalConnections = %d, want 1", details.TotalHistoricalConnections)
	}
}

// Terminating twice must fail: the first transition already consumed the
// active row, so the second sees nothing to update and the counter cannot
// be double-decremented.
func TestDisconnectConnection_AlreadyTerminated(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")
	ctx := context.Background()

	conn := createTestConnection(t, db, user.ID, "fp-1")

	if err := db.DisconnectConnection(ctx, user.ID, conn.ID, "first"); err != nil {
		t.Fatalf("DisconnectConnection() error = %v", err)
	}
	err := db.DisconnectConnection(ctx, user.ID, conn.ID, "second")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DisconnectConnection() error = %v, want ErrNotFound", err)
	}

	details, _ := db.GetExtensionDetails(ctx, user.ID)
	if details.TotalActiveConnections != 0 {
		t.Errorf("TotalActiveConnections = %d, want 0", details.TotalActiveConnections)
	}
}

func TestExpireConnection(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")
	ctx := context.Background()

	conn := createTestConnection(t, db, user.ID, "fp-1")

	if err := db.ExpireConnection(ctx, user.ID, conn.ID); err != nil {
		t.Fatalf("ExpireConnection() error = %v", err)
	}

	found, _ := db.GetConnectionByID(ctx, user.ID, conn.ID)
	if found.Status != model.StatusExpired || found.IsActive {
		t.Errorf("Status = %s active = %v, want expired/inactive", found.Status, found.IsActive)
	}
}

func TestListActiveConnections_SkipsTerminated(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	ctx := context.Background()

	a1 := createTestConnection(t, db, alice.ID, "fp-a1")
	createTestConnection(t, db, alice.ID, "fp-a2")
	createTestConnection(t, db, bob.ID, "fp-b1")
	if err := db.DisconnectConnection(ctx, alice.ID, a1.ID, "bye"); err != nil {
		t.Fatalf("DisconnectConnection() error = %v", err)
	}

	all, err := db.ListActiveConnections(ctx)
	if err != nil {
		t.Fatalf("ListActiveConnections() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListActiveConnections() returned %d, want 2", len(all))
	}

	alices, err := db.ListActiveConnectionsByUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListActiveConnectionsByUser() error = %v", err)
	}
	if len(alices) != 1 {
		t.Errorf("ListActiveConnectionsByUser() returned %d, want 1", len(alices))
	}
}

func TestTouchConnection_InactiveRowNotFound(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")
	ctx := context.Background()

	conn := createTestConnection(t, db, user.ID, "fp-1")
	if err := db.TouchConnection(ctx, user.ID, conn.ID, model.StatusConnected); err != nil {
		t.Fatalf("TouchConnection() on active row error = %v", err)
	}

	if err := db.DisconnectConnection(ctx, user.ID, conn.ID, "bye"); err != nil {
		t.Fatalf("DisconnectConnection() error = %v", err)
	}
	err := db.TouchConnection(ctx, user.ID, conn.ID, model.StatusConnected)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("TouchConnection() on terminated row error = %v, want ErrNotFound", err)
	}
}

func TestIncrementConnectionStats_RollsUpToDetails(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")
	ctx := context.Background()

	conn := createTestConnection(t, db, user.ID, "fp-1")

	deltas := []repository.StatsDelta{
		{ContentSaved: 1, APICalls: 1},
		{ContentSaved: 0, APICalls: 1},
		{ContentSaved: 2, APICalls: 3},
	}
	for _, d := range deltas {
		if err := db.IncrementConnectionStats(ctx, user.ID, conn.ID, d); err != nil {
			t.Fatalf("IncrementConnectionStats(%+v) error = %v", d, err)
		}
	}

	found, _ := db.GetConnectionByID(ctx, user.ID, conn.ID)
	if found.TotalContentSaved != 3 || found.TotalAPICallsMade != 5 {
		t.Errorf("connection stats = %d/%d, want 3/5", found.TotalContentSaved, found.TotalAPICallsMade)
	}

	details, _ := db.GetExtensionDetails(ctx, user.ID)
	if details.TotalContentSaved != 3 || details.TotalAPICallsAllConnections != 5 {
		t.Errorf("details stats = %d/%d, want 3/5", details.TotalContentSaved, details.TotalAPICallsAllConnections)
	}
}

func TestEnsureExtensionDetails(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ext@example.com")
	ctx := context.Background()

	// First call creates with defaults.
	details, err := db.EnsureExtensionDetails(ctx, user.ID)
	if err != nil {
		t.Fatalf("EnsureExtensionDetails() error = %v", err)
	}
	if !details.Settings.NotifyOnConnect {
		t.Error("NotifyOnConnect default should be true")
	}

	// Second call returns the existing row untouched.
	again, err := db.EnsureExtensionDetails(ctx, user.ID)
	if err != nil {
		t.Fatalf("second EnsureExtensionDetails() error = %v", err)
	}
	if again.CreatedAt != details.CreatedAt {
		t.Error("EnsureExtensionDetails() recreated an existing row")
	}
}
