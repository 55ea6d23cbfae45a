package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// EventType is one of the host events the scheduler reacts to.
type EventType uint8

const (
	AreaChanged EventType = iota + 1
	Moved
	Closed
	ForegroundChanged
)

var eventNames = map[EventType]string{
	AreaChanged:       "area_changed",
	Moved:             "moved",
	Closed:            "closed",
	ForegroundChanged: "foreground_changed",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// ErrUnknownEventType is returned for event names or types without a reaction.
var ErrUnknownEventType = errors.New("unknown event type")

// ParseEventType returns the event type with the given wire name.
func ParseEventType(name string) (EventType, error) {
	for t, n := range eventNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEventType, name)
}

// Event is one host notification.
type Event struct {
	Type EventType
	// Area is informational; the area snapshot always comes from the
	// StateProvider.
	Area string
	At   time.Time
}
