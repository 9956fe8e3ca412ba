package registry

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/rewatch/pkg/models"
)

// Default reminder text pushed to subscriptions; the remote side has no
// access to the client's video titles
const (
	dispatchTitle = "Rewatch Reminder"
	dispatchBody  = "You have videos to review today!"
)

// ErrEndpointGone marks a terminal delivery failure: the endpoint is
// invalid or expired and the subscription must be dropped. Everything else
// is transient and leaves the row untouched.
var ErrEndpointGone = errors.New("registry: endpoint gone")

// PushSender delivers one payload to one serialized subscription
type PushSender interface {
	Send(subscriptionJSON string, payload []byte) error
}

// DispatchResult summarizes one dispatch run
type DispatchResult struct {
	OK   bool      `json:"ok"`
	Sent int       `json:"sent"`
	At   time.Time `json:"at"`
}

// Dispatcher is the periodic job that pushes reminders to subscribed
// devices at their local preferred time. It is the only cross-device
// consistent delivery path: dedup is keyed per subscription, in the
// subscription's own timezone.
type Dispatcher struct {
	store  *Store
	sender PushSender
	log    zerolog.Logger

	now func() time.Time
}

// NewDispatcher wires the dispatch job
func NewDispatcher(store *Store, sender PushSender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		sender: sender,
		log:    logger,
		now:    time.Now,
	}
}

// Run walks all subscriptions once. A subscription receives a push when its
// current local time matches its preferred HH:MM and it has not been sent
// to today (in its own local date). Terminal delivery failures delete the
// row; transient ones leave it for the next run.
func (d *Dispatcher) Run() DispatchResult {
	now := d.now()

	subs, err := d.store.All()
	if err != nil {
		d.log.Error().Err(err).Msg("dispatch: listing subscriptions failed")
		return DispatchResult{OK: false, At: now}
	}

	payload, _ := json.Marshal(models.PushMessage{Title: dispatchTitle, Body: dispatchBody})

	sent := 0
	for _, sub := range subs {
		loc, err := time.LoadLocation(sub.Timezone)
		if err != nil {
			// Неизвестный часовой пояс трактуем как UTC
			loc = time.UTC
		}
		local := now.In(loc)

		if local.Format("15:04") != sub.HHMM {
			continue
		}
		todayLocal := local.Format("2006-01-02")
		if sub.LastSentDate.Valid && sub.LastSentDate.String == todayLocal {
			continue
		}

		if err := d.sender.Send(sub.SubscriptionJSON, payload); err != nil {
			if errors.Is(err, ErrEndpointGone) {
				d.log.Info().Str("endpoint", sub.Endpoint).Msg("dispatch: endpoint gone, deleting subscription")
				if derr := d.store.Delete(sub.Endpoint); derr != nil {
					d.log.Warn().Err(derr).Msg("dispatch: failed to delete dead subscription")
				}
			} else {
				d.log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("dispatch: transient delivery failure")
			}
			continue
		}

		if err := d.store.MarkSent(sub.ID, todayLocal); err != nil {
			d.log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("dispatch: failed to record sent date")
		}
		sent++
	}

	return DispatchResult{OK: true, Sent: sent, At: now}
}
