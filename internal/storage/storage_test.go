package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-booking/internal/cache"
	"clinic-booking/internal/kv"
	"clinic-booking/internal/logging"
	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
)

// flaky wraps a memory backend and fails the named operations.
type flaky struct {
	*kv.Memory
	mu    sync.Mutex
	fail  map[string]error
	reads int
}

func newFlaky() *flaky { return &flaky{Memory: kv.NewMemory(), fail: map[string]error{}} }

func (f *flaky) failOn(op string, err error) {
	f.mu.Lock()
	f.fail[op] = err
	f.mu.Unlock()
}

func (f *flaky) err(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *flaky) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	if err := f.err("get"); err != nil {
		return "", err
	}
	return f.Memory.Get(ctx, key)
}

func (f *flaky) Set(ctx context.Context, key, value string) error {
	if err := f.err("set"); err != nil {
		return err
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flaky) Remove(ctx context.Context, key string) error {
	if err := f.err("remove"); err != nil {
		return err
	}
	return f.Memory.Remove(ctx, key)
}

func (f *flaky) Clear(ctx context.Context) error {
	if err := f.err("clear"); err != nil {
		return err
	}
	return f.Memory.Clear(ctx)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*storage.Service, *flaky, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 8, 21, 9, 0, 0, 0, time.UTC)}
	b := newFlaky()
	svc := storage.New(b, cache.New(cache.WithClock(clk.Now)), logging.Discard(), storage.WithClock(clk.Now))
	return svc, b, clk
}

func sample() []model.Appointment {
	return []model.Appointment{{
		ID: "a1", PatientID: "p1", PatientName: "Ana", DoctorID: "d1", DoctorName: "Dr. Lima",
		Date: "21/08/2025", Time: "14:30", Specialty: "Cardiologia", Status: model.StatusPending,
	}}
}

func TestSetThenGetRoundTrip(t *testing.T) {
	svc, b, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.SetItem(ctx, storage.KeyAppointments, sample(), 0))

	got := storage.GetItem(ctx, svc, storage.KeyAppointments, []model.Appointment(nil))
	assert.Equal(t, sample(), got)
	assert.Equal(t, 0, b.reads, "served from cache")

	raw, err := b.Memory.Get(ctx, storage.Namespace+storage.KeyAppointments)
	require.NoError(t, err)
	assert.Contains(t, raw, `"specialty":"Cardiologia"`)
}

func TestGetReadsBackendOnMiss(t *testing.T) {
	svc, b, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, b.Memory.Set(ctx, storage.Namespace+storage.KeySettings,
		`{"notifications":false,"autoBackup":true,"theme":"dark","language":"en"}`))

	got, found, err := storage.Load[model.AppSettings](ctx, svc, storage.KeySettings)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.ThemeDark, got.Theme)
	assert.True(t, got.AutoBackup)
	assert.Equal(t, 1, b.reads)

	storage.GetItem(ctx, svc, storage.KeySettings, model.DefaultSettings())
	assert.Equal(t, 1, b.reads, "second read is cached")
}

func TestGetDefaultWhenAbsent(t *testing.T) {
	svc, _, _ := setup(t)
	def := model.DefaultSettings()

	got := storage.GetItem(context.Background(), svc, storage.KeySettings, def)
	assert.Equal(t, def, got)

	_, ok := storage.Lookup[model.AppSettings](context.Background(), svc, storage.KeySettings)
	assert.False(t, ok)
}

func TestTTLExpiresInCacheAndBackend(t *testing.T) {
	svc, _, clk := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.SetItem(ctx, storage.KeyStatisticsCache, map[string]int{"total": 3}, 10*time.Minute))

	clk.Advance(9 * time.Minute)
	got := storage.GetItem(ctx, svc, storage.KeyStatisticsCache, map[string]int(nil))
	assert.Equal(t, map[string]int{"total": 3}, got)

	// a fresh process only has the backend copy
	svc.Invalidate(storage.KeyStatisticsCache)
	got = storage.GetItem(ctx, svc, storage.KeyStatisticsCache, map[string]int(nil))
	assert.Equal(t, map[string]int{"total": 3}, got)

	clk.Advance(time.Minute)
	got = storage.GetItem(ctx, svc, storage.KeyStatisticsCache, map[string]int{"default": 1})
	assert.Equal(t, map[string]int{"default": 1}, got)

	keys, err := svc.Keys(ctx)
	require.NoError(t, err)
	assert.NotContains(t, keys, storage.KeyStatisticsCache, "expired item is dropped from the backend")
}

func TestRemoveThenDefault(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.SetItem(ctx, storage.KeyToken, "jwt", 0))
	require.NoError(t, svc.RemoveItem(ctx, storage.KeyToken))

	assert.Equal(t, "none", storage.GetItem(ctx, svc, storage.KeyToken, "none"))
}

func TestWriteErrorsPropagate(t *testing.T) {
	svc, b, _ := setup(t)
	ctx := context.Background()
	disk := errors.New("disk full")

	err := svc.SetItem(ctx, storage.KeyToken, make(chan int), 0)
	require.ErrorIs(t, err, storage.ErrSerialization)

	b.failOn("set", disk)
	err = svc.SetItem(ctx, storage.KeyToken, "jwt", 0)
	require.ErrorIs(t, err, storage.ErrBackend)
	require.ErrorIs(t, err, disk)
	var se *storage.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "set", se.Op)
	assert.Equal(t, storage.KeyToken, se.Key)

	_, ok := storage.Lookup[string](ctx, svc, storage.KeyToken)
	assert.False(t, ok, "failed write must not populate the cache")

	b.failOn("remove", disk)
	require.ErrorIs(t, svc.RemoveItem(ctx, storage.KeyToken), storage.ErrBackend)

	b.failOn("clear", disk)
	require.ErrorIs(t, svc.ClearAll(ctx), storage.ErrBackend)
}

func TestReadErrorsFailSoft(t *testing.T) {
	svc, b, _ := setup(t)
	ctx := context.Background()

	b.failOn("get", errors.New("io"))
	assert.Equal(t, "fallback", storage.GetItem(ctx, svc, storage.KeyToken, "fallback"))

	_, _, err := storage.Load[string](ctx, svc, storage.KeyToken)
	require.ErrorIs(t, err, storage.ErrBackend)
}

func TestCorruptValueFailsSoft(t *testing.T) {
	svc, b, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, b.Memory.Set(ctx, storage.Namespace+storage.KeyAppointments, `{not json`))

	got := storage.GetItem(ctx, svc, storage.KeyAppointments, []model.Appointment{})
	assert.Empty(t, got)

	_, _, err := storage.Load[[]model.Appointment](ctx, svc, storage.KeyAppointments)
	require.ErrorIs(t, err, storage.ErrSerialization)
}

func TestCachedValueOfOtherTypeFallsBackToBackend(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.SetItem(ctx, storage.KeySettings, map[string]any{"theme": "dark", "language": "en"}, 0))

	got, found, err := storage.Load[model.AppSettings](ctx, svc, storage.KeySettings)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.ThemeDark, got.Theme)
}

func TestClearAllWipesEverything(t *testing.T) {
	svc, b, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, b.Memory.Set(ctx, "unrelated", "x"))
	require.NoError(t, svc.SetItem(ctx, storage.KeyToken, "jwt", 0))
	require.NoError(t, svc.ClearAll(ctx))

	keys, err := b.Memory.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	_, ok := storage.Lookup[string](ctx, svc, storage.KeyToken)
	assert.False(t, ok)
}

func TestKeysAndRawKeys(t *testing.T) {
	svc, b, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.SetItem(ctx, storage.KeySettings, model.DefaultSettings(), 0))
	require.NoError(t, b.Memory.Set(ctx, storage.LegacyAppointmentsKey, `[]`))

	keys, err := svc.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{storage.KeySettings}, keys)

	ok, err := svc.HasRawKey(ctx, storage.LegacyAppointmentsKey)
	require.NoError(t, err)
	assert.True(t, ok)
}
