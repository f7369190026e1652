// Package backup serializes the domain collections into a single document
// and restores them from one.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
	"clinic-booking/internal/store"
)

type Codec struct {
	st  *store.Store
	log *logrus.Logger
	now func() time.Time
}

func New(st *store.Store, log *logrus.Logger) *Codec {
	return &Codec{st: st, log: log, now: time.Now}
}

// Snapshot reads every collection strictly. Absent collections become empty
// lists and absent settings the defaults.
func (c *Codec) Snapshot(ctx context.Context) (model.BackupSnapshot, error) {
	appointments, err := c.st.LoadAppointments(ctx)
	if err != nil {
		return model.BackupSnapshot{}, err
	}
	notifications, err := c.st.LoadNotifications(ctx)
	if err != nil {
		return model.BackupSnapshot{}, err
	}
	users, err := c.st.Users().Load(ctx)
	if err != nil {
		return model.BackupSnapshot{}, err
	}
	settings, err := c.st.LoadSettings(ctx)
	if err != nil {
		return model.BackupSnapshot{}, err
	}

	return model.BackupSnapshot{
		Timestamp: c.now().UTC(),
		Data: model.BackupData{
			Appointments:    nonNil(appointments),
			Notifications:   nonNil(notifications),
			RegisteredUsers: nonNil(users),
			Settings:        settings,
		},
	}, nil
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func (c *Codec) Create(ctx context.Context) ([]byte, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"Function": "Create",
			"Error":    err,
		}).Error("failed to read collections for backup")
		return nil, err
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, storage.NewError("backup", "", storage.ErrSerialization, err)
	}
	return out, nil
}

func restoreErr(kind error, err error) error {
	return storage.NewError("restore", "", storage.ErrRestore, fmt.Errorf("%w: %w", kind, err))
}

type restorable interface {
	Key() string
	Validate() error
}

// validateAll checks every record and rejects repeated ids, which would make
// the id-based mutators act on several records at once.
func validateAll[T restorable](section string, list []T) error {
	seen := make(map[string]struct{}, len(list))
	for _, it := range list {
		if err := it.Validate(); err != nil {
			return err
		}
		if _, dup := seen[it.Key()]; dup {
			return fmt.Errorf("%s: duplicate id %q", section, it.Key())
		}
		seen[it.Key()] = struct{}{}
	}
	return nil
}

func uniqueEmails(list []model.RegisteredUser) error {
	seen := make(map[string]struct{}, len(list))
	for _, u := range list {
		email := strings.ToLower(u.Email)
		if _, dup := seen[email]; dup {
			return fmt.Errorf("registeredUsers: duplicate email %q", u.Email)
		}
		seen[email] = struct{}{}
	}
	return nil
}

// Restore replaces the domain collections with the blob's data section. A
// blob without data is accepted and changes nothing. The user and token
// keys are never touched.
func (c *Codec) Restore(ctx context.Context, blob []byte) error {
	if !gjson.ValidBytes(blob) {
		return restoreErr(storage.ErrSerialization, errors.New("backup is not valid JSON"))
	}
	if !gjson.GetBytes(blob, "data").IsObject() {
		c.log.WithFields(logrus.Fields{
			"Function": "Restore",
		}).Warn("backup has no data section, nothing restored")
		return nil
	}

	// fields missing from the settings object keep their defaults
	snap := model.BackupSnapshot{Data: model.BackupData{Settings: model.DefaultSettings()}}
	if err := json.Unmarshal(blob, &snap); err != nil {
		return restoreErr(storage.ErrSerialization, err)
	}
	data := snap.Data
	data.Appointments = nonNil(data.Appointments)
	data.Notifications = nonNil(data.Notifications)
	data.RegisteredUsers = nonNil(data.RegisteredUsers)

	for _, err := range []error{
		validateAll("appointments", data.Appointments),
		validateAll("notifications", data.Notifications),
		validateAll("registeredUsers", data.RegisteredUsers),
		uniqueEmails(data.RegisteredUsers),
		data.Settings.Validate(),
	} {
		if err != nil {
			return restoreErr(storage.ErrValidation, err)
		}
	}

	prev, err := c.Snapshot(ctx)
	if err != nil {
		return storage.NewError("restore", "", storage.ErrRestore, err)
	}
	if err := c.write(ctx, data); err != nil {
		c.log.WithFields(logrus.Fields{
			"Function": "Restore",
			"Error":    err,
		}).Error("restore failed, rolling back")
		if rbErr := c.write(ctx, prev.Data); rbErr != nil {
			c.log.WithFields(logrus.Fields{
				"Function": "Restore",
				"Error":    rbErr,
			}).Error("rollback failed")
		}
		return storage.NewError("restore", "", storage.ErrRestore, err)
	}
	// statistics computed from the previous data are stale now
	if err := c.st.Storage().RemoveItem(ctx, storage.KeyStatisticsCache); err != nil {
		c.log.WithFields(logrus.Fields{
			"Function": "Restore",
			"Error":    err,
		}).Warn("failed to drop cached statistics")
	}

	c.log.WithFields(logrus.Fields{
		"Function":      "Restore",
		"Appointments":  len(data.Appointments),
		"Notifications": len(data.Notifications),
		"Users":         len(data.RegisteredUsers),
	}).Info("backup restored")
	return nil
}

func (c *Codec) write(ctx context.Context, d model.BackupData) error {
	if err := c.st.SaveAppointments(ctx, d.Appointments); err != nil {
		return err
	}
	if err := c.st.SaveNotifications(ctx, d.Notifications); err != nil {
		return err
	}
	if err := c.st.Users().Replace(ctx, d.RegisteredUsers); err != nil {
		return err
	}
	return c.st.SaveSettings(ctx, d.Settings)
}

// WriteFile creates a backup at path.
func (c *Codec) WriteFile(ctx context.Context, path string) error {
	blob, err := c.Create(ctx)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create backup dir: %w", err)
		}
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// ReadFile restores the backup stored at path.
func (c *Codec) ReadFile(ctx context.Context, path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	return c.Restore(ctx, blob)
}

// FileName is the name the auto-backup job gives a backup taken at t.
func FileName(t time.Time) string {
	return "clinic-backup-" + t.UTC().Format("20060102T150405Z") + ".json"
}
