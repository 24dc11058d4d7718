package trigger

import (
	"time"

	"go.uber.org/zap"

	"github.com/atlasacademy/appwatch/internal/logfields"
)

const intervalLoggerName = "interval-trigger"

// Interval fires a Scheduled trigger event in a fixed period.
// If the receiver is still busy with the previous run when the ticker fires,
// the event is dropped, periodic triggers provide their own retry cadence.
type Interval struct {
	period time.Duration
	c      chan<- *Event
	logger *zap.Logger

	stop chan struct{}
	done chan struct{}
}

type intervalOption func(*Interval)

func WithIntervalLogger(logger *zap.Logger) intervalOption {
	return func(i *Interval) {
		i.logger = logger
	}
}

func NewInterval(period time.Duration, eventChan chan<- *Event, opts ...intervalOption) *Interval {
	interval := Interval{
		period: period,
		c:      eventChan,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(&interval)
	}

	if interval.logger == nil {
		interval.logger = zap.L().Named(intervalLoggerName)
	}

	return &interval
}

// Start runs the ticker loop in a go-routine and returns.
func (i *Interval) Start() {
	go func() {
		defer close(i.done)

		ticker := time.NewTicker(i.period)
		defer ticker.Stop()

		i.logger.Info(
			"interval trigger started",
			logfields.Event("interval_trigger_started"),
			zap.Duration("period", i.period),
		)

		for {
			select {
			case <-i.stop:
				i.logger.Info(
					"interval trigger terminated",
					logfields.Event("interval_trigger_terminated"),
				)
				return

			case <-ticker.C:
				ev := NewEvent(KindScheduled)

				select {
				case i.c <- ev:
					i.logger.Debug(
						"scheduled trigger fired",
						logfields.Event("scheduled_trigger_fired"),
					)

				default:
					i.logger.Warn(
						"scheduled trigger dropped, runner is busy",
						logfields.Event("scheduled_trigger_dropped"),
					)
				}
			}
		}
	}()
}

// Stop terminates the ticker loop and waits until it returned.
func (i *Interval) Stop() {
	select {
	case <-i.stop:
	default:
		close(i.stop)
	}

	<-i.done
}
