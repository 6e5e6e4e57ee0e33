package wire

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/chorus/types"
)

// EventName identifies a transport-level named event. Wire event names
// follow `direction.actor.action.modifier`, e.g.
// `server-to-client.writer.stream.chunk`.
type EventName struct {
	Direction types.Direction
	Actor     string
	Action    types.Action
	Modifier  types.Modifier
}

// String renders the dotted wire form.
func (n EventName) String() string {
	return strings.Join(
		[]string{string(n.Direction), n.Actor, string(n.Action), string(n.Modifier)},
		".",
	)
}

// StreamEvent builds a stream event name for the given direction, actor,
// and modifier. The actor set is open; callers parameterize by name rather
// than enumerating actors.
func StreamEvent(direction types.Direction, actor string, modifier types.Modifier) EventName {
	return EventName{
		Direction: direction,
		Actor:     actor,
		Action:    types.ActionStream,
		Modifier:  modifier,
	}
}

// ParseEventName parses a dotted wire event name.
// Actor names must not contain dots; the four segments are positional.
func ParseEventName(s string) (EventName, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return EventName{}, fmt.Errorf("event name %q: expected 4 segments, got %d", s, len(parts))
	}

	name := EventName{
		Direction: types.Direction(parts[0]),
		Actor:     parts[1],
		Action:    types.Action(parts[2]),
		Modifier:  types.Modifier(parts[3]),
	}

	if !name.Direction.Valid() {
		return EventName{}, fmt.Errorf("event name %q: unrecognized direction %q", s, parts[0])
	}
	if name.Actor == "" {
		return EventName{}, fmt.Errorf("event name %q: empty actor", s)
	}
	if name.Action != types.ActionStream {
		return EventName{}, fmt.Errorf("event name %q: unrecognized action %q", s, parts[2])
	}
	if !name.Modifier.Valid() {
		return EventName{}, fmt.Errorf("event name %q: unrecognized modifier %q", s, parts[3])
	}

	return name, nil
}
