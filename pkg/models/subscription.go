package models

import (
	"database/sql"
	"time"
)

// Subscription is one remote-registered push recipient: a device/browser
// endpoint plus its delivery timezone and preferred time of day.
// LastSentDate is the dedup marker, a YYYY-MM-DD string in the
// subscription's own timezone.
type Subscription struct {
	ID               int64          `json:"id" db:"id"`
	Endpoint         string         `json:"endpoint" db:"endpoint"`
	SubscriptionJSON string         `json:"subscription_json" db:"subscription_json"`
	Timezone         string         `json:"timezone" db:"timezone"`
	HHMM             string         `json:"hhmm" db:"hhmm"`
	LastSentDate     sql.NullString `json:"last_sent_date" db:"last_sent_date"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// PushMessage is the wire payload carried by a push delivery
type PushMessage struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}
