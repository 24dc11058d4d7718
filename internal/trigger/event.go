// Package trigger provides the event sources that start an update run.
package trigger

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atlasacademy/appwatch/internal/logfields"
)

// Kind identifies the source that fired a trigger event.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindScheduled
	KindReleasePublished
	KindManualDispatch
)

var kindString = [...]string{
	KindUndefined:        "undefined",
	KindScheduled:        "scheduled",
	KindReleasePublished: "release-published",
	KindManualDispatch:   "manual-dispatch",
}

func (k Kind) String() string {
	if int(k) > len(kindString)-1 {
		return fmt.Sprintf("unsupported Kind value: %d", uint8(k))
	}

	return kindString[k]
}

// Event starts one update run.
// It carries no data that the pipeline depends on, the additional fields only
// identify the trigger in logs.
type Event struct {
	Kind Kind
	Time time.Time

	// set for release-published events, empty otherwise
	DeliveryID string
	ReleaseTag string
	JSON       []byte
}

func NewEvent(kind Kind) *Event {
	return &Event{Kind: kind, Time: time.Now()}
}

func (e *Event) String() string {
	if e.DeliveryID != "" {
		return fmt.Sprintf("%s (deliveryID: %s)", e.Kind, e.DeliveryID)
	}

	return e.Kind.String()
}

func (e *Event) LogFields() []zap.Field {
	fields := make([]zap.Field, 0, 4) // cap == max. size of fields we append

	fields = append(fields, logfields.Trigger(e.Kind.String()))
	fields = append(fields, zap.Time("trigger_time", e.Time))

	if e.DeliveryID != "" {
		fields = append(fields, zap.String("github.delivery_id", e.DeliveryID))
	}

	if e.ReleaseTag != "" {
		fields = append(fields, logfields.ReleaseTag(e.ReleaseTag))
	}

	return fields
}
