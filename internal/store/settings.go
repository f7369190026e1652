package store

import (
	"context"

	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
)

type SettingsPatch struct {
	Notifications *bool
	AutoBackup    *bool
	Theme         *model.Theme
	Language      *string
}

func (p SettingsPatch) apply(s model.AppSettings) model.AppSettings {
	if p.Notifications != nil {
		s.Notifications = *p.Notifications
	}
	if p.AutoBackup != nil {
		s.AutoBackup = *p.AutoBackup
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	return s
}

// fillDefaults covers settings objects stored by builds that wrote only
// some fields.
func fillDefaults(s model.AppSettings) model.AppSettings {
	def := model.DefaultSettings()
	if s.Theme == "" {
		s.Theme = def.Theme
	}
	if s.Language == "" {
		s.Language = def.Language
	}
	return s
}

func (s *Store) Settings(ctx context.Context) model.AppSettings {
	return fillDefaults(storage.GetItem(ctx, s.svc, storage.KeySettings, model.DefaultSettings()))
}

func (s *Store) LoadSettings(ctx context.Context) (model.AppSettings, error) {
	v, found, err := storage.Load[model.AppSettings](ctx, s.svc, storage.KeySettings)
	if err != nil {
		return model.AppSettings{}, err
	}
	if !found {
		return model.DefaultSettings(), nil
	}
	return fillDefaults(v), nil
}

func (s *Store) SaveSettings(ctx context.Context, v model.AppSettings) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.saveSettingsLocked(ctx, v)
}

func (s *Store) saveSettingsLocked(ctx context.Context, v model.AppSettings) error {
	if err := v.Validate(); err != nil {
		return storage.NewError("save", storage.KeySettings, storage.ErrValidation, err)
	}
	return s.svc.SetItem(ctx, storage.KeySettings, v, 0)
}

// UpdateSettings merges p into the stored settings.
func (s *Store) UpdateSettings(ctx context.Context, p SettingsPatch) (model.AppSettings, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	cur, err := s.LoadSettings(ctx)
	if err != nil {
		return model.AppSettings{}, err
	}
	next := p.apply(cur)
	if err := s.saveSettingsLocked(ctx, next); err != nil {
		return model.AppSettings{}, err
	}
	return next, nil
}
