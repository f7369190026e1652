package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clinic-booking/internal/auth"
	"clinic-booking/internal/backup"
	"clinic-booking/internal/booking"
	"clinic-booking/internal/config"
	"clinic-booking/internal/model"
	"clinic-booking/internal/notify"
	"clinic-booking/internal/scheduler"
	"clinic-booking/internal/stats"
	"clinic-booking/internal/storage"
	"clinic-booking/internal/store"
)

const usage = `usage: server [command]

commands:
  (none)                               run the scheduler until interrupted
  backup <file>                        write a backup document to file
  restore <file>                       replace the collections with a backup document
  stats                                print the overall appointment statistics
  keys                                 list the stored keys
  remind                               send tomorrow's reminders now

session commands (JWT_SECRET required):
  register <name> <email> <password> [role] [specialty]
  signin <email> <password>
  signout
  whoami
  book <doctor-email> <DD/MM/YYYY> <HH:MM>
  confirm <appointment-id>
  cancel <appointment-id> [reason...]
  delete <appointment-id>              admin only
  appointments                         list your appointments
  notifications                        list your notifications
  read-all                             mark your notifications as read`

var (
	errUsage       = errors.New(usage)
	errNotSignedIn = errors.New("not signed in, run signin first")
	errForbidden   = errors.New("not allowed for the signed-in user")
)

// app wires the services a single command needs.
type app struct {
	cfg    *config.Config
	st     *store.Store
	codec  *backup.Codec
	notify *notify.Service
	log    *logrus.Logger
	out    io.Writer
	now    func() time.Time
}

func newApp(cfg *config.Config, st *store.Store, log *logrus.Logger, out io.Writer) *app {
	return &app{
		cfg:    cfg,
		st:     st,
		codec:  backup.New(st, log),
		notify: notify.New(st, log),
		log:    log,
		out:    out,
		now:    time.Now,
	}
}

func (a *app) scheduler() *scheduler.Scheduler {
	return scheduler.New(a.st, a.notify, a.codec, a.cfg.BackupDir, a.log, scheduler.WithClock(a.now))
}

func (a *app) booking() *booking.Service {
	return booking.New(a.st, a.notify, a.log, booking.WithClock(a.now))
}

func (a *app) sessions() (*auth.Sessions, error) {
	if err := a.cfg.RequireSecret(); err != nil {
		return nil, err
	}
	return auth.NewSessions(a.st, a.cfg.JWTSecret, nil), nil
}

func (a *app) current(ctx context.Context) (model.User, error) {
	s, err := a.sessions()
	if err != nil {
		return model.User{}, err
	}
	u, ok := s.Current(ctx)
	if !ok {
		return model.User{}, errNotSignedIn
	}
	return u, nil
}

func (a *app) printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(out))
	return err
}

func need(args []string, n int) error {
	if len(args) < n {
		return errUsage
	}
	return nil
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "backup", "restore":
		if err := need(args, 2); err != nil {
			return err
		}
		if args[0] == "backup" {
			return a.codec.WriteFile(ctx, args[1])
		}
		return a.codec.ReadFile(ctx, args[1])
	case "stats":
		snap, err := stats.NewAggregator(a.st, a.st.Storage(), a.log).Cached(ctx, a.cfg.StatsCacheTTL)
		if err != nil {
			return err
		}
		return a.printJSON(snap)
	case "keys":
		return a.keys(ctx)
	case "remind":
		n, err := a.scheduler().SendReminders(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.out, "%d reminders sent\n", n)
		return err
	case "register":
		return a.register(ctx, args[1:])
	case "signin":
		return a.signIn(ctx, args[1:])
	case "signout":
		s, err := a.sessions()
		if err != nil {
			return err
		}
		return s.SignOut(ctx)
	case "whoami":
		u, err := a.current(ctx)
		if err != nil {
			return err
		}
		return a.printJSON(u)
	case "book":
		return a.book(ctx, args[1:])
	case "confirm", "cancel", "delete":
		return a.transition(ctx, args[0], args[1:])
	case "appointments":
		return a.appointments(ctx)
	case "notifications", "read-all":
		u, err := a.current(ctx)
		if err != nil {
			return err
		}
		if args[0] == "read-all" {
			return a.notify.MarkAllAsRead(ctx, u.ID)
		}
		return a.printJSON(a.notify.List(ctx, u.ID))
	default:
		return errUsage
	}
}

func (a *app) keys(ctx context.Context) error {
	keys, err := a.st.Storage().Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if slices.Contains(storage.Known, k) {
			fmt.Fprintln(a.out, k)
		} else {
			fmt.Fprintln(a.out, k, "(unknown)")
		}
	}
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if err := need(args, 3); err != nil {
		return err
	}
	s, err := a.sessions()
	if err != nil {
		return err
	}
	req := auth.RegisterRequest{Name: args[0], Email: args[1], Password: args[2]}
	if len(args) > 3 {
		req.Role = model.Role(args[3])
	}
	if len(args) > 4 {
		req.Specialty = strings.Join(args[4:], " ")
	}
	u, err := s.Register(ctx, req)
	if err != nil {
		return err
	}
	return a.printJSON(u)
}

func (a *app) signIn(ctx context.Context, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}
	s, err := a.sessions()
	if err != nil {
		return err
	}
	u, _, err := s.SignIn(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "signed in as %s (%s)\n", u.Name, u.Role)
	return err
}

func (a *app) book(ctx context.Context, args []string) error {
	if err := need(args, 3); err != nil {
		return err
	}
	u, err := a.current(ctx)
	if err != nil {
		return err
	}
	if u.Role != model.RolePatient {
		return errForbidden
	}
	doctor, err := a.st.Users().ByEmail(args[0])
	if err != nil {
		return fmt.Errorf("doctor %s: %w", args[0], err)
	}
	if doctor.Role != model.RoleDoctor {
		return fmt.Errorf("%w: %s is not a doctor", booking.ErrInvalidArgument, args[0])
	}

	appt, err := a.booking().Book(ctx, booking.BookRequest{
		PatientID:   u.ID,
		PatientName: u.Name,
		DoctorID:    doctor.ID,
		DoctorName:  doctor.Name,
		Date:        args[1],
		Time:        args[2],
		Specialty:   doctor.Specialty,
	})
	if err != nil {
		return err
	}
	return a.printJSON(appt)
}

// transition runs confirm, cancel or delete after checking the signed-in
// user may act on the appointment. Only the doctor confirms, either party
// cancels, and deletes are for admins.
func (a *app) transition(ctx context.Context, verb string, args []string) error {
	if err := need(args, 1); err != nil {
		return err
	}
	u, err := a.current(ctx)
	if err != nil {
		return err
	}
	id := args[0]
	appt, ok := a.st.AppointmentByID(ctx, id)
	if !ok {
		return booking.ErrNotFound
	}

	admin := u.Role == model.RoleAdmin
	svc := a.booking()
	switch verb {
	case "confirm":
		if !admin && u.ID != appt.DoctorID {
			return errForbidden
		}
		appt, err = svc.Confirm(ctx, id)
	case "cancel":
		if !admin && u.ID != appt.DoctorID && u.ID != appt.PatientID {
			return errForbidden
		}
		appt, err = svc.Cancel(ctx, id, u.ID, strings.Join(args[1:], " "))
	case "delete":
		if !admin {
			return errForbidden
		}
		if err := svc.Delete(ctx, id); err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.out, "appointment %s deleted\n", id)
		return err
	}
	if err != nil {
		return err
	}
	return a.printJSON(appt)
}

func (a *app) appointments(ctx context.Context) error {
	u, err := a.current(ctx)
	if err != nil {
		return err
	}
	var list []model.Appointment
	switch u.Role {
	case model.RoleDoctor:
		list = a.st.AppointmentsByDoctor(ctx, u.ID)
	case model.RoleAdmin:
		list = a.st.Appointments(ctx)
	default:
		list = a.st.AppointmentsByPatient(ctx, u.ID)
	}
	if list == nil {
		list = []model.Appointment{}
	}
	return a.printJSON(list)
}
