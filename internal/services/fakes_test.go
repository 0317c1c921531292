package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/screener-back/pkg/models"
)

type fakeSource struct {
	market  models.MarketType
	tickers []models.RawTicker
	err     error
	oi      map[string]float64
	funding map[string]float64
	onFetch func()
}

func (f *fakeSource) Market() models.MarketType { return f.market }

func (f *fakeSource) FetchTickers(ctx context.Context) ([]models.RawTicker, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.tickers, f.err
}

func (f *fakeSource) FetchOpenInterest(ctx context.Context, symbol string) float64 {
	return f.oi[symbol]
}

func (f *fakeSource) FetchFundingRate(ctx context.Context, symbol string) float64 {
	return f.funding[symbol]
}

// memStore is an in-memory snapshot, symbol and alert rule store
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	symbols   map[string]*models.Symbol
	snapshots []*models.Snapshot
	creates   int
	appendErr map[string]error
	latestErr error

	rules     []*models.AlertRule
	triggered map[int64]time.Time
	markErr   error
	profiles  map[int64]*models.UserProfile
	users     []*models.User
}

func newMemStore() *memStore {
	return &memStore{
		symbols:   make(map[string]*models.Symbol),
		appendErr: make(map[string]error),
		triggered: make(map[int64]time.Time),
		profiles:  make(map[int64]*models.UserProfile),
	}
}

func symbolKey(code string, market models.MarketType) string {
	return string(market) + "/" + code
}

func (m *memStore) GetOrCreateSymbol(ctx context.Context, code string, market models.MarketType) (*models.Symbol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.symbols[symbolKey(code, market)]; ok {
		return s, nil
	}
	m.nextID++
	m.creates++
	s := &models.Symbol{ID: m.nextID, Symbol: code, Name: code, MarketType: market}
	m.symbols[symbolKey(code, market)] = s
	return s, nil
}

func (m *memStore) GetSymbol(ctx context.Context, code string, market models.MarketType) (*models.Symbol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbols[symbolKey(code, market)], nil
}

func (m *memStore) addSnapshot(s *models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
}

func (m *memStore) AppendSnapshot(ctx context.Context, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.appendErr[snap.Symbol]; err != nil {
		return err
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memStore) latestWhere(match func(*models.Snapshot) bool) *models.Snapshot {
	var latest *models.Snapshot
	for _, s := range m.snapshots {
		if !match(s) {
			continue
		}
		if latest == nil || !s.Timestamp.Before(latest.Timestamp) {
			latest = s
		}
	}
	return latest
}

func (m *memStore) LatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latestWhere(func(s *models.Snapshot) bool { return s.SymbolID == symbolID }), nil
}

func (m *memStore) LatestSnapshotByTicker(ctx context.Context, code string, market models.MarketType) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestWhere(func(s *models.Snapshot) bool {
		return s.Symbol == code && s.MarketType == market
	}), nil
}

func (m *memStore) LatestSnapshotsPerSymbol(ctx context.Context, market models.MarketType, since time.Time, page models.Page) ([]*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newest := map[int64]*models.Snapshot{}
	for _, s := range m.snapshots {
		if s.MarketType != market || s.Timestamp.Before(since) {
			continue
		}
		if cur, ok := newest[s.SymbolID]; !ok || !s.Timestamp.Before(cur.Timestamp) {
			newest[s.SymbolID] = s
		}
	}
	out := make([]*models.Snapshot, 0, len(newest))
	for _, s := range newest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return pageOf(out, page.Normalize()), nil
}

func (m *memStore) CountSymbolsWithSnapshots(ctx context.Context, market models.MarketType, since time.Time) (int64, error) {
	snaps, err := m.LatestSnapshotsPerSymbol(ctx, market, since, models.Page{Size: models.MaxPageSize})
	return int64(len(snaps)), err
}

func (m *memStore) SnapshotHistoryWindow(ctx context.Context, code string, market models.MarketType, offset, limit int) ([]*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Snapshot
	for _, s := range m.snapshots {
		if s.Symbol == code && s.MarketType == market {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ActiveAlertRules(ctx context.Context) ([]*models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AlertRule
	for _, r := range m.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.triggered[id] = at
	for _, r := range m.rules {
		if r.ID == id {
			t := at
			r.LastTriggeredAt = &t
		}
	}
	return nil
}

func (m *memStore) CreateAlertRule(ctx context.Context, rule *models.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = int64(len(m.rules) + 1)
	m.rules = append(m.rules, rule)
	return nil
}

func (m *memStore) ListAlertRules(ctx context.Context, userID *int64) ([]*models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AlertRule
	for _, r := range m.rules {
		if userID == nil || (r.UserID != nil && *r.UserID == *userID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) SetAlertRuleActive(ctx context.Context, id int64, active bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			r.Active = active
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DeleteAlertRule(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[userID], nil
}

func (m *memStore) CreateUserWithProfile(ctx context.Context, user *models.User, profile *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return errors.New("email already registered")
		}
	}
	user.ID = int64(len(m.users) + 1)
	profile.UserID = user.ID
	m.users = append(m.users, user)
	m.profiles[user.ID] = profile
	return nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID, text})
	return f.err
}

type fakePublisher struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
	cycles    []*models.IngestCycle
	alerts    []*models.AlertEvent
	err       error
}

func (f *fakePublisher) PublishSnapshot(snap *models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return f.err
}

func (f *fakePublisher) PublishCycle(event *models.IngestCycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, event)
	return f.err
}

func (f *fakePublisher) PublishAlert(event *models.AlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, event)
	return f.err
}

func int64Ptr(v int64) *int64 { return &v }

// fakeCache is a latest-snapshot cache whose writes can be made to fail
type fakeCache struct {
	mu      sync.Mutex
	latest  map[int64]*models.Snapshot
	evicted []int64
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{latest: make(map[int64]*models.Snapshot)}
}

func (f *fakeCache) SetLatestSnapshot(ctx context.Context, snap *models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.latest[snap.SymbolID] = snap
	return nil
}

func (f *fakeCache) InvalidateLatestSnapshot(ctx context.Context, symbolID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.latest, symbolID)
	f.evicted = append(f.evicted, symbolID)
	return nil
}

func (f *fakeCache) GetLatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[symbolID], nil
}

func pageOf(snaps []*models.Snapshot, page models.Page) []*models.Snapshot {
	start := page.Offset()
	if start >= len(snaps) {
		return []*models.Snapshot{}
	}
	end := start + page.Size
	if end > len(snaps) {
		end = len(snaps)
	}
	return snaps[start:end]
}
