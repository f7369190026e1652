package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid marks a record that fails its shape check.
var ErrInvalid = errors.New("invalid record")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Appointment dates are kept in the DD/MM/YYYY and HH:MM text forms the
// booking screens produce.
type Appointment struct {
	ID           string `json:"id"`
	PatientID    string `json:"patientId"`
	PatientName  string `json:"patientName"`
	DoctorID     string `json:"doctorId"`
	DoctorName   string `json:"doctorName"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Specialty    string `json:"specialty"`
	Status       Status `json:"status"`
	CancelReason string `json:"cancelReason,omitempty"`
}

func (a Appointment) Key() string { return a.ID }

func (a Appointment) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return invalid("appointment id required")
	}
	if a.PatientID == "" || a.DoctorID == "" {
		return invalid("appointment %s: patient and doctor required", a.ID)
	}
	if !a.Status.Valid() {
		return invalid("appointment %s: unknown status %q", a.ID, a.Status)
	}
	return nil
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// RegisteredUser.Password holds a bcrypt hash, never the raw password.
type RegisteredUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Image     string `json:"image"`
	Password  string `json:"password"`
	Specialty string `json:"specialty,omitempty"`
}

func (u RegisteredUser) Key() string { return u.ID }

func (u RegisteredUser) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return invalid("user id required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return invalid("user %s: email required", u.ID)
	}
	if !u.Role.Valid() {
		return invalid("user %s: unknown role %q", u.ID, u.Role)
	}
	return nil
}

// Public is the profile persisted under the signed-in user key.
func (u RegisteredUser) Public() User {
	return User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Image:     u.Image,
		Specialty: u.Specialty,
	}
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Image     string `json:"image"`
	Specialty string `json:"specialty,omitempty"`
}

type NotificationType string

const (
	NotificationConfirmed NotificationType = "appointment_confirmed"
	NotificationCancelled NotificationType = "appointment_cancelled"
	NotificationReminder  NotificationType = "appointment_reminder"
	NotificationGeneral   NotificationType = "general"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationConfirmed, NotificationCancelled, NotificationReminder, NotificationGeneral:
		return true
	}
	return false
}

type Notification struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Type          NotificationType `json:"type"`
	Read          bool             `json:"read"`
	CreatedAt     time.Time        `json:"createdAt"`
	AppointmentID string           `json:"appointmentId,omitempty"`
}

func (n Notification) Key() string { return n.ID }

func (n Notification) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return invalid("notification id required")
	}
	if n.UserID == "" {
		return invalid("notification %s: user id required", n.ID)
	}
	if !n.Type.Valid() {
		return invalid("notification %s: unknown type %q", n.ID, n.Type)
	}
	return nil
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type AppSettings struct {
	Notifications bool   `json:"notifications"`
	AutoBackup    bool   `json:"autoBackup"`
	Theme         Theme  `json:"theme"`
	Language      string `json:"language"`
}

func DefaultSettings() AppSettings {
	return AppSettings{
		Notifications: true,
		AutoBackup:    false,
		Theme:         ThemeLight,
		Language:      "pt-BR",
	}
}

func (s AppSettings) Validate() error {
	if s.Theme != ThemeLight && s.Theme != ThemeDark {
		return invalid("settings: unknown theme %q", s.Theme)
	}
	if s.Language == "" {
		return invalid("settings: language required")
	}
	return nil
}

type BackupData struct {
	Appointments    []Appointment    `json:"appointments"`
	Notifications   []Notification   `json:"notifications"`
	RegisteredUsers []RegisteredUser `json:"registeredUsers"`
	Settings        AppSettings      `json:"settings"`
}

type BackupSnapshot struct {
	Timestamp time.Time  `json:"timestamp"`
	Data      BackupData `json:"data"`
}
