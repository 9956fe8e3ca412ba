package models

// NotificationSettings holds the per-installation notification preferences
type NotificationSettings struct {
	Enabled bool   `json:"enabled"`
	Time    string `json:"time"` // HH:MM, local
	Sound   bool   `json:"sound"`
	Vibrate bool   `json:"vibrate"`
}

// DefaultNotificationSettings returns the settings used before the user
// changes anything
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled: true,
		Time:    "09:00",
		Sound:   true,
		Vibrate: true,
	}
}
