package store

import (
	"context"

	"clinic-booking/internal/model"
)

func (s *Store) Notifications(ctx context.Context) []model.Notification {
	return s.notifications.all(ctx)
}

func (s *Store) LoadNotifications(ctx context.Context) ([]model.Notification, error) {
	return s.notifications.load(ctx)
}

func (s *Store) SaveNotifications(ctx context.Context, list []model.Notification) error {
	return s.notifications.save(ctx, list)
}

func (s *Store) AddNotification(ctx context.Context, n model.Notification) error {
	return s.notifications.add(ctx, n)
}

func (s *Store) UpdateNotification(ctx context.Context, id string, fn func(model.Notification) model.Notification) (bool, error) {
	return s.notifications.update(ctx, id, fn)
}

// UpdateNotificationsWhere returns the number of notifications changed.
func (s *Store) UpdateNotificationsWhere(ctx context.Context, match func(model.Notification) bool, fn func(model.Notification) model.Notification) (int, error) {
	return s.notifications.updateWhere(ctx, match, fn)
}

func (s *Store) DeleteNotification(ctx context.Context, id string) (bool, error) {
	return s.notifications.remove(ctx, id)
}
