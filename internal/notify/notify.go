// Package notify creates and reads per-user notifications on top of the
// single notifications collection.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clinic-booking/internal/model"
	"clinic-booking/internal/store"
)

type Service struct {
	st    *store.Store
	log   *logrus.Logger
	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(st *store.Store, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		st:    st,
		log:   log,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Draft is what callers provide; id, createdAt and read are filled in.
type Draft struct {
	UserID        string
	Title         string
	Message       string
	Type          model.NotificationType
	AppointmentID string
}

// List returns userID's notifications, newest first. Equal timestamps keep
// insertion order.
func (s *Service) List(ctx context.Context, userID string) []model.Notification {
	var out []model.Notification
	for _, n := range s.st.Notifications(ctx) {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Service) Create(ctx context.Context, d Draft) (model.Notification, error) {
	if d.Type == "" {
		d.Type = model.NotificationGeneral
	}
	n := model.Notification{
		ID:            s.newID(),
		UserID:        d.UserID,
		Title:         d.Title,
		Message:       d.Message,
		Type:          d.Type,
		Read:          false,
		CreatedAt:     s.now().UTC(),
		AppointmentID: d.AppointmentID,
	}
	if err := s.st.AddNotification(ctx, n); err != nil {
		s.log.WithFields(logrus.Fields{
			"Function": "Create",
			"UserID":   d.UserID,
			"Type":     d.Type,
			"Error":    err,
		}).Error("failed to create notification")
		return model.Notification{}, err
	}
	return n, nil
}

func markRead(n model.Notification) model.Notification {
	n.Read = true
	return n
}

// MarkAsRead is a no-op for unknown ids.
func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	_, err := s.st.UpdateNotification(ctx, id, markRead)
	return err
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID string) error {
	_, err := s.st.UpdateNotificationsWhere(ctx,
		func(n model.Notification) bool { return n.UserID == userID && !n.Read },
		markRead,
	)
	return err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.st.DeleteNotification(ctx, id)
	return err
}

// UnreadCount is 0 when the collection cannot be read.
func (s *Service) UnreadCount(ctx context.Context, userID string) int {
	count := 0
	for _, n := range s.List(ctx, userID) {
		if !n.Read {
			count++
		}
	}
	return count
}

// HasReminder reports whether userID already got a reminder for appointmentID.
func (s *Service) HasReminder(ctx context.Context, userID, appointmentID string) bool {
	for _, n := range s.List(ctx, userID) {
		if n.Type == model.NotificationReminder && n.AppointmentID == appointmentID {
			return true
		}
	}
	return false
}

func (s *Service) AppointmentConfirmed(ctx context.Context, a model.Appointment) error {
	_, err := s.Create(ctx, Draft{
		UserID: a.PatientID,
		Title:  "Appointment confirmed",
		Message: fmt.Sprintf("Your appointment with %s (%s) on %s at %s has been confirmed.",
			a.DoctorName, a.Specialty, a.Date, a.Time),
		Type:          model.NotificationConfirmed,
		AppointmentID: a.ID,
	})
	return err
}

// AppointmentCancelled notifies userID; reason is appended when given.
func (s *Service) AppointmentCancelled(ctx context.Context, a model.Appointment, userID, reason string) error {
	msg := fmt.Sprintf("Your appointment with %s on %s at %s has been cancelled.", a.DoctorName, a.Date, a.Time)
	if userID == a.DoctorID {
		msg = fmt.Sprintf("The appointment with %s on %s at %s has been cancelled.", a.PatientName, a.Date, a.Time)
	}
	if reason != "" {
		msg += " Reason: " + reason
	}
	_, err := s.Create(ctx, Draft{
		UserID:        userID,
		Title:         "Appointment cancelled",
		Message:       msg,
		Type:          model.NotificationCancelled,
		AppointmentID: a.ID,
	})
	return err
}

// NewAppointment tells the doctor about a booking request.
func (s *Service) NewAppointment(ctx context.Context, a model.Appointment) error {
	_, err := s.Create(ctx, Draft{
		UserID: a.DoctorID,
		Title:  "New appointment",
		Message: fmt.Sprintf("%s booked an appointment on %s at %s (%s).",
			a.PatientName, a.Date, a.Time, a.Specialty),
		Type:          model.NotificationGeneral,
		AppointmentID: a.ID,
	})
	return err
}

func (s *Service) AppointmentReminder(ctx context.Context, a model.Appointment) error {
	_, err := s.Create(ctx, Draft{
		UserID: a.PatientID,
		Title:  "Appointment reminder",
		Message: fmt.Sprintf("Reminder: you have an appointment with %s on %s at %s.",
			a.DoctorName, a.Date, a.Time),
		Type:          model.NotificationReminder,
		AppointmentID: a.ID,
	})
	return err
}
