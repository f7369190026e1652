// Package scheduler runs the periodic jobs: appointment reminders and the
// optional automatic backup.
package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"clinic-booking/internal/backup"
	"clinic-booking/internal/metrics"
	"clinic-booking/internal/model"
	"clinic-booking/internal/notify"
	"clinic-booking/internal/store"
)

const (
	JobReminders = "reminders"
	JobBackup    = "auto_backup"
)

type Scheduler struct {
	st        *store.Store
	notify    *notify.Service
	backup    *backup.Codec
	backupDir string
	log       *logrus.Logger
	now       func() time.Time
	cron      *cron.Cron
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(st *store.Store, n *notify.Service, b *backup.Codec, backupDir string, log *logrus.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		st:        st,
		notify:    n,
		backup:    b,
		backupDir: backupDir,
		log:       log,
		now:       time.Now,
		cron:      cron.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start registers both jobs and starts the cron runner. ctx bounds every
// job run.
func (s *Scheduler) Start(ctx context.Context, reminderSpec, backupSpec string) error {
	if _, err := s.cron.AddFunc(reminderSpec, func() { s.run(ctx, JobReminders, s.remind) }); err != nil {
		return fmt.Errorf("failed to schedule reminder job: %w", err)
	}
	if _, err := s.cron.AddFunc(backupSpec, func() { s.run(ctx, JobBackup, s.autoBackup) }); err != nil {
		return fmt.Errorf("failed to schedule backup job: %w", err)
	}
	s.cron.Start()
	s.log.WithFields(logrus.Fields{
		"Function":  "Start",
		"Reminders": reminderSpec,
		"Backup":    backupSpec,
	}).Info("scheduler started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(ctx context.Context, job string, fn func(context.Context) error) {
	err := fn(ctx)
	metrics.JobRuns.WithLabelValues(job, strconv.FormatBool(err == nil)).Inc()
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"Function": "run",
			"Job":      job,
			"Error":    err,
		}).Error("scheduled job failed")
	}
}

func (s *Scheduler) remind(ctx context.Context) error {
	_, err := s.SendReminders(ctx)
	return err
}

func (s *Scheduler) autoBackup(ctx context.Context) error {
	_, err := s.AutoBackup(ctx)
	return err
}

// SendReminders creates one reminder per confirmed appointment dated
// tomorrow, skipping patients already reminded for it. It returns how many
// were sent.
func (s *Scheduler) SendReminders(ctx context.Context) (int, error) {
	list, err := s.st.LoadAppointments(ctx)
	if err != nil {
		return 0, err
	}
	tomorrow := s.now().AddDate(0, 0, 1).Format("02/01/2006")

	sent := 0
	for _, a := range list {
		if a.Status != model.StatusConfirmed || a.Date != tomorrow {
			continue
		}
		if s.notify.HasReminder(ctx, a.PatientID, a.ID) {
			continue
		}
		if err := s.notify.AppointmentReminder(ctx, a); err != nil {
			return sent, err
		}
		sent++
	}

	s.log.WithFields(logrus.Fields{
		"Function": "SendReminders",
		"Date":     tomorrow,
		"Sent":     sent,
	}).Info("reminders sent")
	return sent, nil
}

// AutoBackup writes a backup file when the autoBackup setting is on. It
// returns the written path, or "" when the setting is off.
func (s *Scheduler) AutoBackup(ctx context.Context) (string, error) {
	settings, err := s.st.LoadSettings(ctx)
	if err != nil {
		return "", err
	}
	if !settings.AutoBackup {
		return "", nil
	}

	path := filepath.Join(s.backupDir, backup.FileName(s.now()))
	if err := s.backup.WriteFile(ctx, path); err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{
		"Function": "AutoBackup",
		"Path":     path,
	}).Info("automatic backup written")
	return path, nil
}
