package store

import (
	"context"

	"github.com/sirupsen/logrus"

	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
)

// AppointmentPatch is a shallow merge: nil fields keep the stored value.
type AppointmentPatch struct {
	Status       *model.Status
	CancelReason *string
	Date         *string
	Time         *string
}

func (p AppointmentPatch) apply(a model.Appointment) model.Appointment {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.CancelReason != nil {
		a.CancelReason = *p.CancelReason
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.Time != nil {
		a.Time = *p.Time
	}
	return a
}

func (s *Store) Appointments(ctx context.Context) []model.Appointment {
	return s.appointments.all(ctx)
}

// LoadAppointments fails on backend or decode errors instead of returning
// an empty list.
func (s *Store) LoadAppointments(ctx context.Context) ([]model.Appointment, error) {
	return s.appointments.load(ctx)
}

func (s *Store) SaveAppointments(ctx context.Context, list []model.Appointment) error {
	return s.changed(ctx, s.appointments.save(ctx, list))
}

func (s *Store) AddAppointment(ctx context.Context, a model.Appointment) error {
	return s.changed(ctx, s.appointments.add(ctx, a))
}

// UpdateAppointment reports false, with no write, when id is unknown.
func (s *Store) UpdateAppointment(ctx context.Context, id string, p AppointmentPatch) (bool, error) {
	ok, err := s.appointments.update(ctx, id, p.apply)
	if !ok {
		return false, err
	}
	return true, s.changed(ctx, err)
}

// TransitionAppointment runs fn on the stored appointment while holding the
// collection lock, so fn sees the latest status. An error from fn aborts
// the write and is returned as is. Unknown ids yield ErrNoRecord.
func (s *Store) TransitionAppointment(ctx context.Context, id string, fn func(model.Appointment) (model.Appointment, error)) (model.Appointment, error) {
	a, err := s.appointments.transition(ctx, id, fn)
	if err != nil {
		return model.Appointment{}, err
	}
	return a, s.changed(ctx, nil)
}

func (s *Store) DeleteAppointment(ctx context.Context, id string) (bool, error) {
	ok, err := s.appointments.remove(ctx, id)
	if !ok {
		return false, err
	}
	return true, s.changed(ctx, err)
}

// changed drops the cached statistics after a successful appointment write.
func (s *Store) changed(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	if err := s.svc.RemoveItem(ctx, storage.KeyStatisticsCache); err != nil {
		s.log.WithFields(logrus.Fields{
			"Function": "changed",
			"Error":    err,
		}).Warn("failed to drop cached statistics")
	}
	return nil
}

func (s *Store) AppointmentByID(ctx context.Context, id string) (model.Appointment, bool) {
	for _, a := range s.Appointments(ctx) {
		if a.ID == id {
			return a, true
		}
	}
	return model.Appointment{}, false
}

func (s *Store) AppointmentsByPatient(ctx context.Context, patientID string) []model.Appointment {
	var out []model.Appointment
	for _, a := range s.Appointments(ctx) {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) AppointmentsByDoctor(ctx context.Context, doctorID string) []model.Appointment {
	var out []model.Appointment
	for _, a := range s.Appointments(ctx) {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out
}
