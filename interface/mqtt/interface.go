package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/shimmeringbee/httpkit/state"
	"github.com/shimmeringbee/logwrap"
	"github.com/tidwall/gjson"
	"strings"
	"sync"
	"time"
)

type Publisher func(ctx context.Context, topic string, payload []byte) error

type mqttError string

func (m mqttError) Error() string {
	return string(m)
}

const UnknownTopic = mqttError("unknown topic")
const MalformedPayload = mqttError("malformed payload")

// Interface mirrors the switch registry onto MQTT. Topics are relative, the caller applies any prefix.
//
//	switches/<id>/config     retained config of the switch, empty when removed
//	switches/<id>/state      {"on":bool}, empty when removed
//	switches/<id>/state/set  accepts {"on":bool} or a bare boolean
type Interface struct {
	Registry        state.SwitchRegistry
	EventSubscriber state.EventSubscriber
	Logger          logwrap.Logger

	PublishStateOnConnect bool

	lock      sync.RWMutex
	publisher Publisher
	stop      chan bool
}

func (i *Interface) IncomingMessage(ctx context.Context, topic string, payload []byte) error {
	topicParts := strings.Split(topic, "/")

	if len(topicParts) == 4 && topicParts[0] == "switches" && topicParts[2] == "state" && topicParts[3] == "set" {
		return i.incomingSetState(ctx, topicParts[1], payload)
	}

	return fmt.Errorf("%w: %s", UnknownTopic, topic)
}

func (i *Interface) incomingSetState(ctx context.Context, id string, payload []byte) error {
	on, err := parseOn(payload)
	if err != nil {
		return err
	}

	i.Logger.LogDebug(ctx, "Setting switch state from MQTT.", logwrap.Datum("id", id), logwrap.Datum("on", on))

	if err := i.Registry.SetState(id, state.SwitchState{On: on}); err != nil {
		return fmt.Errorf("unable to set state of switch: %w", err)
	}

	return nil
}

func parseOn(payload []byte) (bool, error) {
	if !gjson.ValidBytes(payload) {
		return false, fmt.Errorf("%w: not valid JSON", MalformedPayload)
	}

	result := gjson.ParseBytes(payload)
	if result.IsObject() {
		result = result.Get("on")
	}

	if result.Type != gjson.True && result.Type != gjson.False {
		return false, fmt.Errorf("%w: 'on' must be a boolean", MalformedPayload)
	}

	return result.Bool(), nil
}

func EmptyPublisher(ctx context.Context, topic string, payload []byte) error {
	return nil
}

func (i *Interface) currentPublisher() Publisher {
	i.lock.RLock()
	defer i.lock.RUnlock()

	if i.publisher == nil {
		return EmptyPublisher
	}

	return i.publisher
}

func (i *Interface) Connected(ctx context.Context, publisher Publisher) error {
	i.lock.Lock()
	i.publisher = publisher
	i.lock.Unlock()

	if i.PublishStateOnConnect {
		i.Logger.LogInfo(ctx, "MQTT connected, publishing current state of all switches.")
		go i.publishAll()
	}

	return nil
}

func (i *Interface) Disconnected() {
	i.lock.Lock()
	defer i.lock.Unlock()

	i.publisher = EmptyPublisher
}

func (i *Interface) publishAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, sw := range i.Registry.List() {
		i.publishSwitch(ctx, sw)
	}
}

func switchTopic(id string, parts ...string) string {
	return strings.Join(append([]string{"switches", id}, parts...), "/")
}

func (i *Interface) publishSwitch(ctx context.Context, sw state.Switch) {
	swCtx := i.Logger.AddOptionsToContext(ctx, logwrap.Datum("id", sw.Config.Identifier))

	if err := i.publishJSON(swCtx, switchTopic(sw.Config.Identifier, "config"), sw.Config); err != nil {
		i.Logger.LogError(swCtx, "Failed to publish switch config.", logwrap.Err(err))
	}

	i.publishState(swCtx, sw)
}

func (i *Interface) publishState(ctx context.Context, sw state.Switch) {
	if err := i.publishJSON(ctx, switchTopic(sw.Config.Identifier, "state"), sw.State); err != nil {
		i.Logger.LogError(ctx, "Failed to publish switch state.", logwrap.Err(err))
	}
}

// publishRemoved clears the topics of a removed switch, with a retained publisher this deletes them.
func (i *Interface) publishRemoved(ctx context.Context, sw state.Switch) {
	publisher := i.currentPublisher()

	for _, topic := range []string{switchTopic(sw.Config.Identifier, "config"), switchTopic(sw.Config.Identifier, "state")} {
		if err := publisher(ctx, topic, []byte{}); err != nil {
			i.Logger.LogError(ctx, "Failed to clear removed switch.", logwrap.Datum("topic", topic), logwrap.Err(err))
		}
	}
}

func (i *Interface) publishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err = i.currentPublisher()(ctx, topic, payload); err != nil {
		return fmt.Errorf("failed to publish data to mqtt: %w", err)
	}

	return nil
}

func (i *Interface) Start() {
	i.stop = make(chan bool, 1)

	ch := make(chan any, 100)
	i.EventSubscriber.Subscribe(ch)

	go i.handleEvents(ch)
}

func (i *Interface) Stop() {
	if i.stop != nil {
		i.stop <- true
	}
}

func (i *Interface) handleEvents(ch chan any) {
	defer i.EventSubscriber.Unsubscribe(ch)

	for {
		select {
		case event := <-ch:
			i.serviceUpdateOnEvent(event)
		case <-i.stop:
			return
		}
	}
}

const MaximumServiceUpdateTime = 1 * time.Second

func (i *Interface) serviceUpdateOnEvent(e any) {
	ctx, cancel := context.WithTimeout(context.Background(), MaximumServiceUpdateTime)
	defer cancel()

	switch event := e.(type) {
	case state.SwitchAdded:
		i.publishSwitch(ctx, event.Switch)
	case state.SwitchStateChanged:
		i.publishState(i.Logger.AddOptionsToContext(ctx, logwrap.Datum("id", event.Switch.Config.Identifier)), event.Switch)
	case state.SwitchRemoved:
		i.publishRemoved(ctx, event.Switch)
	}
}
