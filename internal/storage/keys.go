package storage

// Namespace prefixes every key written to the backend.
const Namespace = "@clinic:"

const (
	KeyUser            = "user"
	KeyToken           = "token"
	KeyAppointments    = "appointments"
	KeyNotifications   = "notifications"
	KeyRegisteredUsers = "registeredUsers"
	KeySettings        = "settings"
	KeyStatisticsCache = "statisticsCache"
)

// LegacyAppointmentsKey is the unprefixed key an older admin screen wrote
// appointments under. It is never read as a source of appointments.
const LegacyAppointmentsKey = "appointments"

// Known lists the fixed key set.
var Known = []string{
	KeyUser,
	KeyToken,
	KeyAppointments,
	KeyNotifications,
	KeyRegisteredUsers,
	KeySettings,
	KeyStatisticsCache,
}
