package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supernoba/marketstream/internal/model"
	"github.com/supernoba/marketstream/internal/store"
)

type fakeStore struct {
	records  map[string]model.ConnectionRecord
	ttls     map[string]time.Duration
	owners   map[string]map[string]struct{}
	realtime map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[string]model.ConnectionRecord),
		ttls:     make(map[string]time.Duration),
		owners:   make(map[string]map[string]struct{}),
		realtime: make(map[string]struct{}),
	}
}

func (f *fakeStore) PutConnection(_ context.Context, connID string, rec model.ConnectionRecord, ttl time.Duration) error {
	f.records[connID] = rec
	f.ttls[connID] = ttl
	return nil
}

func (f *fakeStore) GetConnection(_ context.Context, connID string) (model.ConnectionRecord, error) {
	rec, ok := f.records[connID]
	if !ok {
		return model.ConnectionRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) DeleteConnection(_ context.Context, connID string) error {
	delete(f.records, connID)
	delete(f.ttls, connID)
	return nil
}

func (f *fakeStore) ConnectionExists(_ context.Context, connID string) (bool, error) {
	_, ok := f.records[connID]
	return ok, nil
}

func (f *fakeStore) AddOwnerConnection(_ context.Context, userID, connID string) error {
	if f.owners[userID] == nil {
		f.owners[userID] = make(map[string]struct{})
	}
	f.owners[userID][connID] = struct{}{}
	return nil
}

func (f *fakeStore) RemoveOwnerConnection(_ context.Context, userID, connID string) error {
	delete(f.owners[userID], connID)
	return nil
}

func (f *fakeStore) OwnerConnections(_ context.Context, userID string) ([]string, error) {
	out := make([]string, 0, len(f.owners[userID]))
	for id := range f.owners[userID] {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeStore) AddRealtimeConnection(_ context.Context, connID string) error {
	f.realtime[connID] = struct{}{}
	return nil
}

func (f *fakeStore) RemoveRealtimeConnection(_ context.Context, connID string) error {
	delete(f.realtime, connID)
	return nil
}

type fakeUnsubscriber struct {
	calls []string
}

func (f *fakeUnsubscriber) UnsubscribeAll(_ context.Context, connID string) error {
	f.calls = append(f.calls, connID)
	return nil
}

func TestOnConnect(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	reg := NewRegistry(fs, &fakeUnsubscriber{}, "stream-1", 24*time.Hour, nil)
	reg.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, reg.OnConnect(ctx, "c1", "u1", model.TierRealtime))

	rec := fs.records["c1"]
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, model.TierRealtime, rec.Tier)
	assert.Equal(t, "stream-1", rec.Instance, "record must name its home instance")
	assert.Equal(t, int64(1700000000), rec.ConnectedAt)
	assert.Equal(t, 24*time.Hour, fs.ttls["c1"])

	_, inOwner := fs.owners["u1"]["c1"]
	assert.True(t, inOwner)
	_, inRealtime := fs.realtime["c1"]
	assert.True(t, inRealtime)
}

func TestOnConnect_AnonymousSkipsRealtimeSet(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	reg := NewRegistry(fs, &fakeUnsubscriber{}, "stream-1", 24*time.Hour, nil)

	require.NoError(t, reg.OnConnect(ctx, "c1", "anon-1", model.TierAnonymous))

	_, inRealtime := fs.realtime["c1"]
	assert.False(t, inRealtime)
}

func TestOnConnect_EmptyUserSkipsOwnerSet(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	reg := NewRegistry(fs, &fakeUnsubscriber{}, "stream-1", 24*time.Hour, nil)

	require.NoError(t, reg.OnConnect(ctx, "c1", "", model.TierAnonymous))

	assert.Empty(t, fs.owners, "no owner set may be created for an empty user id")
	assert.Contains(t, fs.records, "c1")
}

func TestOnConnect_Idempotent(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	reg := NewRegistry(fs, &fakeUnsubscriber{}, "stream-1", 24*time.Hour, nil)

	require.NoError(t, reg.OnConnect(ctx, "c1", "u1", model.TierRealtime))
	require.NoError(t, reg.OnConnect(ctx, "c1", "u1", model.TierRealtime))

	assert.Len(t, fs.owners["u1"], 1)
	assert.Len(t, fs.records, 1)
}

func TestOnDisconnect(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	unsub := &fakeUnsubscriber{}
	reg := NewRegistry(fs, unsub, "stream-1", 24*time.Hour, nil)

	require.NoError(t, reg.OnConnect(ctx, "c1", "u1", model.TierRealtime))
	require.NoError(t, reg.OnDisconnect(ctx, "c1"))

	assert.Equal(t, []string{"c1"}, unsub.calls, "subscriptions must be torn down")
	assert.Empty(t, fs.records)
	assert.Empty(t, fs.owners["u1"])
	assert.Empty(t, fs.realtime)
}

func TestOnDisconnect_MissingRecord(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	unsub := &fakeUnsubscriber{}
	reg := NewRegistry(fs, unsub, "stream-1", 24*time.Hour, nil)

	// Record already expired; cleanup must still run without error.
	require.NoError(t, reg.OnDisconnect(ctx, "ghost"))
	assert.Equal(t, []string{"ghost"}, unsub.calls)
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	unsub := &fakeUnsubscriber{}
	reg := NewRegistry(fs, unsub, "stream-1", 24*time.Hour, nil)

	require.NoError(t, reg.OnConnect(ctx, "live", "u1", model.TierRealtime))
	require.NoError(t, reg.OnConnect(ctx, "dead", "u1", model.TierRealtime))

	// Simulate the dead record expiring out from under the owner set.
	delete(fs.records, "dead")

	stale, err := reg.SweepStale(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, []string{"dead"}, stale)
	assert.Equal(t, []string{"dead"}, unsub.calls)
	_, liveInOwner := fs.owners["u1"]["live"]
	assert.True(t, liveInOwner, "live connection must survive the sweep")
	_, deadInOwner := fs.owners["u1"]["dead"]
	assert.False(t, deadInOwner)
	_, deadInRealtime := fs.realtime["dead"]
	assert.False(t, deadInRealtime)
}
