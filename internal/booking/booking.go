// Package booking implements the appointment lifecycle: a patient books,
// the doctor confirms or either side cancels.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clinic-booking/internal/model"
	"clinic-booking/internal/notify"
	"clinic-booking/internal/store"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const (
	DateLayout = "02/01/2006"
	TimeLayout = "15:04"
)

type Service struct {
	st     *store.Store
	notify *notify.Service
	log    *logrus.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st *store.Store, n *notify.Service, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{st: st, notify: n, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

type BookRequest struct {
	PatientID   string
	PatientName string
	DoctorID    string
	DoctorName  string
	Date        string // DD/MM/YYYY
	Time        string // HH:MM
	Specialty   string
}

func (r BookRequest) validate(now time.Time) error {
	if r.PatientID == "" || r.DoctorID == "" {
		return fmt.Errorf("%w: patient and doctor required", ErrInvalidArgument)
	}
	if strings.TrimSpace(r.Specialty) == "" {
		return fmt.Errorf("%w: specialty required", ErrInvalidArgument)
	}
	day, err := time.ParseInLocation(DateLayout, r.Date, now.Location())
	if err != nil {
		return fmt.Errorf("%w: date must be DD/MM/YYYY", ErrInvalidArgument)
	}
	if _, err := time.Parse(TimeLayout, r.Time); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalidArgument)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if day.Before(today) {
		return fmt.Errorf("%w: cannot book in the past", ErrInvalidArgument)
	}
	return nil
}

// Book stores a pending appointment and tells the doctor about it. A failed
// notification is logged but does not undo the booking.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if err := req.validate(s.now()); err != nil {
		return model.Appointment{}, err
	}

	a := model.Appointment{
		ID:          uuid.New().String(),
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		DoctorID:    req.DoctorID,
		DoctorName:  req.DoctorName,
		Date:        req.Date,
		Time:        req.Time,
		Specialty:   req.Specialty,
		Status:      model.StatusPending,
	}
	if err := s.st.AddAppointment(ctx, a); err != nil {
		return model.Appointment{}, err
	}
	if err := s.notify.NewAppointment(ctx, a); err != nil {
		s.logNotifyFailure("Book", a.ID, err)
	}
	return a, nil
}

func (s *Service) logNotifyFailure(fn, id string, err error) {
	s.log.WithFields(logrus.Fields{
		"Function":      fn,
		"AppointmentID": id,
		"Error":         err,
	}).Warn("appointment saved but notification failed")
}

// transition applies fn to the stored appointment under the collection
// lock, so the status check and the write cannot interleave with another
// transition of the same appointment.
func (s *Service) transition(ctx context.Context, id string, fn func(model.Appointment) (model.Appointment, error)) (model.Appointment, error) {
	if id == "" {
		return model.Appointment{}, fmt.Errorf("%w: id required", ErrInvalidArgument)
	}
	a, err := s.st.TransitionAppointment(ctx, id, fn)
	if errors.Is(err, store.ErrNoRecord) {
		return model.Appointment{}, ErrNotFound
	}
	return a, err
}

// Confirm moves a pending appointment to confirmed and tells the patient.
func (s *Service) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	a, err := s.transition(ctx, id, func(a model.Appointment) (model.Appointment, error) {
		if a.Status != model.StatusPending {
			return a, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusConfirmed)
		}
		a.Status = model.StatusConfirmed
		return a, nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.notify.AppointmentConfirmed(ctx, a); err != nil {
		s.logNotifyFailure("Confirm", id, err)
	}
	return a, nil
}

// Cancel cancels the appointment on behalf of byUserID and notifies the
// other party.
func (s *Service) Cancel(ctx context.Context, id, byUserID, reason string) (model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	a, err := s.transition(ctx, id, func(a model.Appointment) (model.Appointment, error) {
		if a.Status == model.StatusCancelled {
			return a, fmt.Errorf("%w: already cancelled", ErrInvalidTransition)
		}
		a.Status = model.StatusCancelled
		if reason != "" {
			a.CancelReason = reason
		}
		return a, nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	recipient := a.PatientID
	if byUserID == a.PatientID {
		recipient = a.DoctorID
	}
	if err := s.notify.AppointmentCancelled(ctx, a, recipient, reason); err != nil {
		s.logNotifyFailure("Cancel", id, err)
	}
	return a, nil
}

// Delete is the admin hard delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id required", ErrInvalidArgument)
	}
	ok, err := s.st.DeleteAppointment(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
