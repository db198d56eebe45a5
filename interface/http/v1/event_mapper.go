package v1

import (
	"context"
	"fmt"
	"github.com/shimmeringbee/httpkit/state"
)

type EventExporter interface {
	MapEvent(context.Context, any) ([]any, error)
	InitialEvents(context.Context) ([]any, error)
}

const (
	SwitchAddedMessage        = "SwitchAdded"
	SwitchRemovedMessage      = "SwitchRemoved"
	SwitchStateChangedMessage = "SwitchStateChanged"
)

// SwitchMessage is the wire form of a registry event sent to event stream clients.
type SwitchMessage struct {
	Type   string       `json:"type"`
	Source string       `json:"source,omitempty"`
	Switch state.Switch `json:"switch"`
}

type eventMapper struct {
	registry state.SwitchRegistry
}

func (e eventMapper) MapEvent(_ context.Context, event any) ([]any, error) {
	switch ev := event.(type) {
	case state.SwitchAdded:
		return []any{SwitchMessage{Type: SwitchAddedMessage, Source: ev.Source, Switch: ev.Switch}}, nil
	case state.SwitchRemoved:
		return []any{SwitchMessage{Type: SwitchRemovedMessage, Switch: ev.Switch}}, nil
	case state.SwitchStateChanged:
		return []any{SwitchMessage{Type: SwitchStateChangedMessage, Source: ev.Source, Switch: ev.Switch}}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %T", event)
	}
}

// InitialEvents describes every switch present when a client connects, so it can build its view before
// receiving live events.
func (e eventMapper) InitialEvents(_ context.Context) ([]any, error) {
	switches := e.registry.List()
	events := make([]any, 0, len(switches))

	for _, sw := range switches {
		events = append(events, SwitchMessage{Type: SwitchAddedMessage, Switch: sw})
	}

	return events, nil
}
