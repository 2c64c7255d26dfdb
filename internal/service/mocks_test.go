package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/metrics"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

// Hand-written in-memory fakes. They implement the repository interfaces
// the same way sqlite.DB does, minus the database — and they let tests
// inject failures that a real store would only produce under duress.
//
// The reconciler runs one goroutine per tag, so every fake guards its maps
// with a mutex.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ----- content -----

type mockContentRepo struct {
	mu       sync.Mutex
	items    map[string]*model.Content
	nextID   int
	countErr error // forced error for CountContentByTag
}

func newMockContentRepo() *mockContentRepo {
	return &mockContentRepo{items: make(map[string]*model.Content)}
}

var _ repository.ContentRepository = (*mockContentRepo)(nil)

func (m *mockContentRepo) CreateContent(_ context.Context, content *model.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	content.ID = fmt.Sprintf("content-%d", m.nextID)
	stored := *content
	m.items[content.ID] = &stored
	return nil
}

func (m *mockContentRepo) GetContentByID(_ context.Context, userID, id string) (*model.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.UserID != userID {
		return nil, apperror.NotFound("content", id)
	}
	result := *item
	return &result, nil
}

func (m *mockContentRepo) ListContent(_ context.Context, userID string, opts repository.ListOptions) ([]model.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]model.Content, 0, len(m.items))
	for _, item := range m.items {
		if item.UserID == userID {
			result = append(result, *item)
		}
	}
	return result, nil
}

func (m *mockContentRepo) UpdateContent(_ context.Context, content *model.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[content.ID]; !ok {
		return apperror.NotFound("content", content.ID)
	}
	stored := *content
	m.items[content.ID] = &stored
	return nil
}

func (m *mockContentRepo) DeleteContent(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.UserID != userID {
		return apperror.NotFound("content", id)
	}
	delete(m.items, id)
	return nil
}

func (m *mockContentRepo) CountContentByTag(_ context.Context, userID, tagID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, item := range m.items {
		if item.UserID != userID {
			continue
		}
		for _, id := range item.TagIDs {
			if id == tagID {
				count++
				break
			}
		}
	}
	return count, nil
}

// ----- tags -----

type mockTagRepo struct {
	mu          sync.Mutex
	tags        map[string]*model.Tag // keyed userID+"/"+id
	setCountErr error
	setCalls    int // number of SetContentCount invocations
}

func newMockTagRepo() *mockTagRepo {
	return &mockTagRepo{tags: make(map[string]*model.Tag)}
}

var _ repository.TagRepository = (*mockTagRepo)(nil)

func tagKey(userID, id string) string { return userID + "/" + id }

func (m *mockTagRepo) CreateTag(_ context.Context, tag *model.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tagKey(tag.UserID, tag.ID)
	if _, ok := m.tags[key]; ok {
		return apperror.Conflict("tag", fmt.Sprintf("tag %q already exists", tag.TagName))
	}
	stored := *tag
	m.tags[key] = &stored
	return nil
}

func (m *mockTagRepo) GetTagByID(_ context.Context, userID, id string) (*model.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[tagKey(userID, id)]
	if !ok {
		return nil, apperror.NotFound("tag", id)
	}
	result := *tag
	return &result, nil
}

func (m *mockTagRepo) ListTags(_ context.Context, userID string) ([]model.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]model.Tag, 0, len(m.tags))
	for _, tag := range m.tags {
		if tag.UserID == userID {
			result = append(result, *tag)
		}
	}
	return result, nil
}

func (m *mockTagRepo) UpdateTag(_ context.Context, tag *model.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tagKey(tag.UserID, tag.ID)
	if _, ok := m.tags[key]; !ok {
		return apperror.NotFound("tag", tag.ID)
	}
	stored := *tag
	m.tags[key] = &stored
	return nil
}

func (m *mockTagRepo) DeleteTag(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tagKey(userID, id)
	if _, ok := m.tags[key]; !ok {
		return apperror.NotFound("tag", id)
	}
	delete(m.tags, key)
	return nil
}

func (m *mockTagRepo) SetContentCount(_ context.Context, userID, id string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setCountErr != nil {
		return m.setCountErr
	}
	tag, ok := m.tags[tagKey(userID, id)]
	if !ok {
		return apperror.NotFound("tag", id)
	}
	tag.ContentCount = count
	return nil
}

func (m *mockTagRepo) contentCount(t *testing.T, userID, id string) int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[tagKey(userID, id)]
	if !ok {
		t.Fatalf("tag %s not found in mock", id)
	}
	return tag.ContentCount
}

// ----- stats -----

type mockStatsRepo struct {
	mu    sync.Mutex
	stats map[string]*model.UserStats
}

func newMockStatsRepo() *mockStatsRepo {
	return &mockStatsRepo{stats: make(map[string]*model.UserStats)}
}

var _ repository.StatsRepository = (*mockStatsRepo)(nil)

func (m *mockStatsRepo) InitStats(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stats[userID]; !ok {
		m.stats[userID] = &model.UserStats{UserID: userID}
	}
	return nil
}

func (m *mockStatsRepo) GetStats(_ context.Context, userID string) (*model.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[userID]
	if !ok {
		return nil, apperror.NotFound("user stats", userID)
	}
	result := *s
	return &result, nil
}

func (m *mockStatsRepo) AdjustContentCount(_ context.Context, userID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stats[userID]; ok {
		s.TotalContent = max(0, s.TotalContent+delta)
	}
	return nil
}

func (m *mockStatsRepo) AdjustTagCount(_ context.Context, userID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stats[userID]; ok {
		s.TotalTags = max(0, s.TotalTags+delta)
	}
	return nil
}

// ----- connections -----

type mockConnRepo struct {
	mu      sync.Mutex
	conns   map[string]*model.ExtensionConnection
	details map[string]*model.UserExtensionDetails
	nextID  int
}

func newMockConnRepo() *mockConnRepo {
	return &mockConnRepo{
		conns:   make(map[string]*model.ExtensionConnection),
		details: make(map[string]*model.UserExtensionDetails),
	}
}

var _ repository.ConnectionRepository = (*mockConnRepo)(nil)

func (m *mockConnRepo) ensureDetails(userID string) *model.UserExtensionDetails {
	d, ok := m.details[userID]
	if !ok {
		d = &model.UserExtensionDetails{
			UserID:   userID,
			Settings: model.DefaultExtensionSettings(),
		}
		m.details[userID] = d
	}
	return d
}

func (m *mockConnRepo) CreateConnection(_ context.Context, conn *model.ExtensionConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.conns {
		if existing.UserID == conn.UserID && existing.IsActive &&
			existing.DeviceFingerprint == conn.DeviceFingerprint {
			return apperror.Conflict("connection", "this device is already connected")
		}
	}
	m.nextID++
	conn.ID = fmt.Sprintf("conn-%d", m.nextID)
	conn.Status = model.StatusConnected
	conn.IsActive = true
	now := time.Now()
	conn.ConnectedAt = now
	conn.LastActivity = now
	conn.LastHeartbeat = now
	stored := *conn
	m.conns[conn.ID] = &stored

	d := m.ensureDetails(conn.UserID)
	d.TotalActiveConnections++
	d.TotalHistoricalConnections++
	return nil
}

func (m *mockConnRepo) GetConnectionByID(_ context.Context, userID, id string) (*model.ExtensionConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok || conn.UserID != userID {
		return nil, apperror.NotFound("connection", id)
	}
	result := *conn
	return &result, nil
}

func (m *mockConnRepo) ListConnectionsByUser(_ context.Context, userID string) ([]model.ExtensionConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]model.ExtensionConnection, 0, len(m.conns))
	for _, conn := range m.conns {
		if conn.UserID == userID {
			result = append(result, *conn)
		}
	}
	return result, nil
}

func (m *mockConnRepo) ListActiveConnectionsByUser(_ context.Context, userID string) ([]model.ExtensionConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]model.ExtensionConnection, 0, len(m.conns))
	for _, conn := range m.conns {
		if conn.UserID == userID && conn.IsActive {
			result = append(result, *conn)
		}
	}
	return result, nil
}

func (m *mockConnRepo) ListActiveConnections(_ context.Context) ([]model.ExtensionConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]model.ExtensionConnection, 0, len(m.conns))
	for _, conn := range m.conns {
		if conn.IsActive {
			result = append(result, *conn)
		}
	}
	return result, nil
}

func (m *mockConnRepo) terminate(userID, id string, status model.ConnectionStatus, reason string) error {
	conn, ok := m.conns[id]
	if !ok || conn.UserID != userID || !conn.IsActive {
		return apperror.NotFound("connection", id)
	}
	conn.IsActive = false
	conn.Status = status
	conn.DisconnectedReason = reason
	d := m.ensureDetails(userID)
	d.TotalActiveConnections = max(0, d.TotalActiveConnections-1)
	return nil
}

func (m *mockConnRepo) DisconnectConnection(_ context.Context, userID, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminate(userID, id, model.StatusDisconnected, reason)
}

func (m *mockConnRepo) ExpireConnection(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminate(userID, id, model.StatusExpired, "connection timed out")
}

func (m *mockConnRepo) TouchConnection(_ context.Context, userID, id string, status model.ConnectionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok || conn.UserID != userID || !conn.IsActive {
		return apperror.NotFound("connection", id)
	}
	conn.Status = status
	return nil
}

func (m *mockConnRepo) IncrementConnectionStats(_ context.Context, userID, id string, delta repository.StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok || conn.UserID != userID {
		return apperror.NotFound("connection", id)
	}
	conn.TotalContentSaved += delta.ContentSaved
	conn.TotalAPICallsMade += delta.APICalls
	d := m.ensureDetails(userID)
	d.TotalContentSaved += delta.ContentSaved
	d.TotalAPICallsAllConnections += delta.APICalls
	return nil
}

func (m *mockConnRepo) GetExtensionDetails(_ context.Context, userID string) (*model.UserExtensionDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[userID]
	if !ok {
		return nil, apperror.NotFound("extension details", userID)
	}
	result := *d
	return &result, nil
}

func (m *mockConnRepo) EnsureExtensionDetails(_ context.Context, userID string) (*model.UserExtensionDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := *m.ensureDetails(userID)
	return &result, nil
}

// ----- users -----

type mockUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return apperror.Conflict("user", "email is already registered")
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *user
	return &result, nil
}

func (m *mockUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			result := *user
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *mockUserRepo) UpsertGitHubUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.GitHubID == user.GitHubID && user.GitHubID != 0 {
			existing.Login = user.Login
			existing.Email = user.Email
			existing.AvatarURL = user.AvatarURL
			existing.UpdatedAt = time.Now()
			*user = *existing
			return nil
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

// newTestTagCountService wires a reconciler over the given fakes.
func newTestTagCountService(content *mockContentRepo, tags *mockTagRepo) *TagCountService {
	return NewTagCountService(content, tags, metrics.New(), testLogger())
}
