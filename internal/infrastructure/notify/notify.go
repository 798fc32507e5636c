// Package notify delivers domain notifications over redis pub/sub, Google
// Cloud Pub/Sub, SMTP and the application log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
)

// Channel is a named delivery route.
type Channel interface {
	domain.Notifier
	Name() string
}

// Dispatcher fans a notification out to every channel. A failing channel
// does not stop delivery on the others.
type Dispatcher struct {
	channels []Channel
	metrics  *observability.Metrics
	now      func() time.Time
}

var _ domain.Notifier = (*Dispatcher)(nil)

func NewDispatcher(metrics *observability.Metrics, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}

	var errs []error
	for _, ch := range d.channels {
		err := ch.Notify(ctx, n)
		if d.metrics != nil {
			d.metrics.RecordNotification(ch.Name(), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Channels lists the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}
