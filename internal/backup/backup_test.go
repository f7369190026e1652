package backup_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"clinic-booking/internal/backup"
	"clinic-booking/internal/cache"
	"clinic-booking/internal/kv"
	"clinic-booking/internal/logging"
	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
	"clinic-booking/internal/store"
)

// failingSets fails writes to one backend key once armed.
type failingSets struct {
	*kv.Memory
	mu     sync.Mutex
	failOn string
}

func (f *failingSets) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	fail := f.failOn != "" && key == f.failOn
	f.mu.Unlock()
	if fail {
		return errors.New("write refused")
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *failingSets) arm(key string) {
	f.mu.Lock()
	f.failOn = storage.Namespace + key
	f.mu.Unlock()
}

func setup(t *testing.T) (*backup.Codec, *store.Store, *failingSets) {
	t.Helper()
	b := &failingSets{Memory: kv.NewMemory()}
	svc := storage.New(b, cache.New(), logging.Discard())
	st := store.New(svc)
	st.Users().Initialize(context.Background())
	return backup.New(st, logging.Discard()), st, b
}

func seed(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.AddAppointment(ctx, model.Appointment{
		ID: "a1", PatientID: "p1", PatientName: "Ana", DoctorID: "d1", DoctorName: "Dr. Lima",
		Date: "21/08/2025", Time: "14:30", Specialty: "Cardiologia", Status: model.StatusConfirmed,
	}))
	require.NoError(t, st.AddNotification(ctx, model.Notification{
		ID: "n1", UserID: "p1", Title: "t", Message: "m", Type: model.NotificationConfirmed,
		CreatedAt: time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC), AppointmentID: "a1",
	}))
	require.NoError(t, st.Users().Register(ctx, model.RegisteredUser{
		ID: "p1", Name: "Ana", Email: "ana@clinic.com", Role: model.RolePatient, Password: "$2a$10$hash",
	}))
	dark := model.ThemeDark
	_, err := st.UpdateSettings(ctx, store.SettingsPatch{Theme: &dark})
	require.NoError(t, err)
}

func TestCreateOnEmptyStore(t *testing.T) {
	c, _, _ := setup(t)
	blob, err := c.Create(context.Background())
	require.NoError(t, err)

	assert.True(t, gjson.GetBytes(blob, "timestamp").Exists())
	assert.Equal(t, "[]", gjson.GetBytes(blob, "data.appointments").Raw)
	assert.Equal(t, "light", gjson.GetBytes(blob, "data.settings.theme").String())
}

func TestRoundTrip(t *testing.T) {
	c, st, _ := setup(t)
	ctx := context.Background()
	seed(t, st)

	blob, err := c.Create(ctx)
	require.NoError(t, err)
	before, err := c.Snapshot(ctx)
	require.NoError(t, err)

	// a second device restores the blob
	c2, st2, _ := setup(t)
	require.NoError(t, c2.Restore(ctx, blob))
	after, err := c2.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, before.Data, after.Data)
	u, err := st2.Users().ByEmail("ana@clinic.com")
	require.NoError(t, err)
	assert.Equal(t, "p1", u.ID)
}

func TestRestoreInvalidJSON(t *testing.T) {
	c, st, _ := setup(t)
	ctx := context.Background()
	seed(t, st)

	err := c.Restore(ctx, []byte(`{"data": [`))
	require.ErrorIs(t, err, storage.ErrRestore)
	require.ErrorIs(t, err, storage.ErrSerialization)
	assert.Len(t, st.Appointments(ctx), 1)
}

func TestRestoreWithoutDataIsNoop(t *testing.T) {
	c, st, _ := setup(t)
	ctx := context.Background()
	seed(t, st)

	require.NoError(t, c.Restore(ctx, []byte(`{"timestamp":"2025-08-21T09:00:00Z"}`)))
	assert.Len(t, st.Appointments(ctx), 1)
	assert.Equal(t, model.ThemeDark, st.Settings(ctx).Theme)
}

func TestRestoreMissingSectionsBecomeEmpty(t *testing.T) {
	c, st, _ := setup(t)
	ctx := context.Background()
	seed(t, st)

	require.NoError(t, c.Restore(ctx, []byte(`{"data":{"appointments":[]}}`)))
	assert.Empty(t, st.Appointments(ctx))
	assert.Empty(t, st.Notifications(ctx))
	assert.Equal(t, model.DefaultSettings(), st.Settings(ctx))
	list, err := st.Users().List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRestoreRejectsInvalidRecords(t *testing.T) {
	c, st, _ := setup(t)
	ctx := context.Background()
	seed(t, st)

	blob := `{"data":{"appointments":[{"id":"x","patientId":"p","doctorId":"d","status":"archived"}]}}`
	err := c.Restore(ctx, []byte(blob))
	require.ErrorIs(t, err, storage.ErrRestore)
	require.ErrorIs(t, err, storage.ErrValidation)

	got := st.Appointments(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
}

func TestRestoreMergesSettingsOverDefaults(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		want     func(s *model.AppSettings)
	}{
		{"empty object", `{}`, func(s *model.AppSettings) {}},
		{"null", `null`, func(s *model.AppSettings) {}},
		{"theme only", `{"theme":"dark"}`, func(s *model.AppSettings) { s.Theme = model.ThemeDark }},
		{"explicit false kept", `{"notifications":false,"language":"en-US"}`, func(s *model.AppSettings) {
			s.Notifications = false
			s.Language = "en-US"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, st, _ := setup(t)
			ctx := context.Background()
			seed(t, st)

			require.NoError(t, c.Restore(ctx, []byte(`{"data":{"settings":`+tt.settings+`}}`)))
			want := model.DefaultSettings()
			tt.want(&want)
			assert.Equal(t, want, st.Settings(ctx))
		})
	}
}

func TestRestoreRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"appointment ids", `{"appointments":[` +
			`{"id":"x","patientId":"p","doctorId":"d","status":"pending"},` +
			`{"id":"x","patientId":"p","doctorId":"d","status":"confirmed"}]}`},
		{"notification ids", `{"notifications":[` +
			`{"id":"n","userId":"p","type":"general"},{"id":"n","userId":"q","type":"general"}]}`},
		{"user emails", `{"registeredUsers":[` +
			`{"id":"u1","email":"ana@clinic.com","role":"patient"},` +
			`{"id":"u2","email":"ANA@clinic.com","role":"doctor"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, st, _ := setup(t)
			ctx := context.Background()
			seed(t, st)

			err := c.Restore(ctx, []byte(`{"data":`+tt.data+`}`))
			require.ErrorIs(t, err, storage.ErrRestore)
			require.ErrorIs(t, err, storage.ErrValidation)
			assert.Len(t, st.Appointments(ctx), 1, "nothing written")
		})
	}
}

func TestRestoreLeavesSessionKeys(t *testing.T) {
	c, st, _ := setup(t)
	ctx := context.Background()
	svc := st.Storage()
	require.NoError(t, svc.SetItem(ctx, storage.KeyToken, "jwt-value", 0))

	require.NoError(t, c.Restore(ctx, []byte(`{"data":{}}`)))
	assert.Equal(t, "jwt-value", storage.GetItem(ctx, svc, storage.KeyToken, ""))
}

func TestRestoreRollsBackOnWriteFailure(t *testing.T) {
	c, st, b := setup(t)
	ctx := context.Background()
	seed(t, st)
	b.arm(storage.KeyNotifications)

	blob := `{"data":{"appointments":[],"notifications":[]}}`
	err := c.Restore(ctx, []byte(blob))
	require.ErrorIs(t, err, storage.ErrRestore)
	require.ErrorIs(t, err, storage.ErrBackend)

	got := st.Appointments(ctx)
	require.Len(t, got, 1, "appointments written before the failure are rolled back")
	assert.Equal(t, "a1", got[0].ID)
}

func TestFileHelpers(t *testing.T) {
	c, st, _ := setup(t)
	ctx := context.Background()
	seed(t, st)

	path := filepath.Join(t.TempDir(), "nested", backup.FileName(time.Date(2025, 8, 21, 3, 0, 0, 0, time.UTC)))
	assert.True(t, strings.HasSuffix(path, "clinic-backup-20250821T030000Z.json"))
	require.NoError(t, c.WriteFile(ctx, path))

	c2, st2, _ := setup(t)
	require.NoError(t, c2.ReadFile(ctx, path))
	assert.Len(t, st2.Appointments(ctx), 1)

	require.Error(t, c2.ReadFile(ctx, filepath.Join(t.TempDir(), "missing.json")))
}
