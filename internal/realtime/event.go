package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Topic identifies the kind of server-side change an event signals.
type Topic string

const (
	TopicAllocationProcess  Topic = "allocation_process"
	TopicAcceptRejectFamily Topic = "accept_reject_allocation_family"
)

var ErrUnknownTopic = errors.New("unknown realtime topic")

// Event is an invalidation signal. It carries no state to apply; receivers
// re-fetch whatever they display.
type Event struct {
	Topic   Topic  `json:"type"`
	Message string `json:"message,omitempty"`
}

func (t Topic) Known() bool {
	return t == TopicAllocationProcess || t == TopicAcceptRejectFamily
}

// Parse decodes an inbound envelope.
func Parse(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !ev.Topic.Known() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownTopic, ev.Topic)
	}
	return ev, nil
}

// AllocationProcess builds the event broadcast while an allocation is processed.
func AllocationProcess(message string) Event {
	return Event{Topic: TopicAllocationProcess, Message: message}
}

// AcceptRejectFamily builds the event broadcast after a family is accepted or rejected.
func AcceptRejectFamily() Event {
	return Event{Topic: TopicAcceptRejectFamily}
}
