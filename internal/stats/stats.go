// Package stats derives read-only appointment statistics.
package stats

import (
	"context"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
)

type StatusPercentages struct {
	Pending   float64 `json:"pending"`
	Confirmed float64 `json:"confirmed"`
	Cancelled float64 `json:"cancelled"`
}

type Statistics struct {
	TotalAppointments       int               `json:"totalAppointments"`
	PendingAppointments     int               `json:"pendingAppointments"`
	ConfirmedAppointments   int               `json:"confirmedAppointments"`
	CancelledAppointments   int               `json:"cancelledAppointments"`
	UniquePatients          int               `json:"uniquePatients"`
	UniqueDoctors           int               `json:"uniqueDoctors"`
	AppointmentsBySpecialty map[string]int    `json:"appointmentsBySpecialty"`
	AppointmentsByMonth     map[string]int    `json:"appointmentsByMonth"`
	StatusPercentages       StatusPercentages `json:"statusPercentages"`
}

// Snapshot is what Cached stores under the statisticsCache key.
type Snapshot struct {
	GeneratedAt time.Time  `json:"generatedAt"`
	Statistics  Statistics `json:"statistics"`
}

var datePattern = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// MonthKey turns DD/MM/YYYY into MM/YYYY.
func MonthKey(date string) (string, bool) {
	m := datePattern.FindStringSubmatch(date)
	if m == nil {
		return "", false
	}
	return m[2] + "/" + m[3], true
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Summarize computes statistics over list. Appointments with a malformed
// date count everywhere except the month histogram.
func Summarize(list []model.Appointment, log *logrus.Logger) Statistics {
	st := Statistics{
		TotalAppointments:       len(list),
		AppointmentsBySpecialty: map[string]int{},
		AppointmentsByMonth:     map[string]int{},
	}
	patients := map[string]struct{}{}
	doctors := map[string]struct{}{}

	for _, a := range list {
		switch a.Status {
		case model.StatusPending:
			st.PendingAppointments++
		case model.StatusConfirmed:
			st.ConfirmedAppointments++
		case model.StatusCancelled:
			st.CancelledAppointments++
		}
		patients[a.PatientID] = struct{}{}
		doctors[a.DoctorID] = struct{}{}
		st.AppointmentsBySpecialty[a.Specialty]++

		month, ok := MonthKey(a.Date)
		if !ok {
			if log != nil {
				log.WithFields(logrus.Fields{
					"Function":      "Summarize",
					"AppointmentID": a.ID,
					"Date":          a.Date,
				}).Warn("skipping malformed appointment date")
			}
			continue
		}
		st.AppointmentsByMonth[month]++
	}

	st.UniquePatients = len(patients)
	st.UniqueDoctors = len(doctors)
	st.StatusPercentages = StatusPercentages{
		Pending:   percent(st.PendingAppointments, st.TotalAppointments),
		Confirmed: percent(st.ConfirmedAppointments, st.TotalAppointments),
		Cancelled: percent(st.CancelledAppointments, st.TotalAppointments),
	}
	return st
}

// AppointmentLoader is the read-only view the aggregator needs.
type AppointmentLoader interface {
	LoadAppointments(ctx context.Context) ([]model.Appointment, error)
}

type Aggregator struct {
	src AppointmentLoader
	svc *storage.Service
	log *logrus.Logger
	now func() time.Time
}

// NewAggregator reads from src. svc may be nil when Cached is not used.
func NewAggregator(src AppointmentLoader, svc *storage.Service, log *logrus.Logger) *Aggregator {
	return &Aggregator{src: src, svc: svc, log: log, now: time.Now}
}

func (a *Aggregator) summarize(ctx context.Context, keep func(model.Appointment) bool) (Statistics, error) {
	list, err := a.src.LoadAppointments(ctx)
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"Function": "Aggregator.summarize",
			"Error":    err,
		}).Error("failed to load appointments")
		return Statistics{}, err
	}
	if keep != nil {
		var filtered []model.Appointment
		for _, it := range list {
			if keep(it) {
				filtered = append(filtered, it)
			}
		}
		list = filtered
	}
	return Summarize(list, a.log), nil
}

func (a *Aggregator) Overall(ctx context.Context) (Statistics, error) {
	return a.summarize(ctx, nil)
}

func (a *Aggregator) ForDoctor(ctx context.Context, doctorID string) (Statistics, error) {
	return a.summarize(ctx, func(it model.Appointment) bool { return it.DoctorID == doctorID })
}

func (a *Aggregator) ForPatient(ctx context.Context, patientID string) (Statistics, error) {
	return a.summarize(ctx, func(it model.Appointment) bool { return it.PatientID == patientID })
}

// Cached returns the overall statistics memoized under the statisticsCache
// key for ttl. A failed cache write is logged and the fresh result returned.
func (a *Aggregator) Cached(ctx context.Context, ttl time.Duration) (Snapshot, error) {
	if snap, ok := storage.Lookup[Snapshot](ctx, a.svc, storage.KeyStatisticsCache); ok {
		return snap, nil
	}

	st, err := a.Overall(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{GeneratedAt: a.now().UTC(), Statistics: st}
	if err := a.svc.SetItem(ctx, storage.KeyStatisticsCache, snap, ttl); err != nil {
		a.log.WithFields(logrus.Fields{
			"Function": "Aggregator.Cached",
			"Error":    err,
		}).Warn("failed to cache statistics")
	}
	return snap, nil
}
