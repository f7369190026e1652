// Package store holds the domain repositories. Each collection lives under
// one key as a JSON array and every compound mutation is a
// read-modify-write of the whole array, serialized per key.
package store

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
)

type Store struct {
	svc *storage.Service
	log *logrus.Logger

	appointments  *collection[model.Appointment]
	notifications *collection[model.Notification]
	users         *Users

	settingsMu sync.Mutex
}

func New(svc *storage.Service) *Store {
	return &Store{
		svc:           svc,
		log:           svc.Logger(),
		appointments:  newCollection[model.Appointment](svc, storage.KeyAppointments),
		notifications: newCollection[model.Notification](svc, storage.KeyNotifications),
		users:         newUsers(svc),
	}
}

// Users is the registered-users repository. Call Initialize before use.
func (s *Store) Users() *Users { return s.users }

func (s *Store) Storage() *storage.Service { return s.svc }

// CheckLegacyKeys warns when the unprefixed appointments key written by old
// builds is present. Its content is not merged.
func (s *Store) CheckLegacyKeys(ctx context.Context) bool {
	ok, err := s.svc.HasRawKey(ctx, storage.LegacyAppointmentsKey)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"Function": "CheckLegacyKeys",
			"Error":    err,
		}).Warn("could not check legacy appointments key")
		return false
	}
	if ok {
		s.log.WithFields(logrus.Fields{
			"Function": "CheckLegacyKeys",
			"Key":      storage.LegacyAppointmentsKey,
		}).Warn("legacy unprefixed appointments key present; it is ignored")
	}
	return ok
}
