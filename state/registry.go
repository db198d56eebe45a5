package state

import (
	"context"
	"fmt"
	"github.com/shimmeringbee/logwrap"
	"sync"
)

type SwitchRegistry interface {
	Create(SwitchConfig) (Switch, error)
	List() []Switch
	Find(id string) (Switch, error)
	Delete(id string) error
	State(id string) (SwitchState, error)
	SetState(id string, state SwitchState) error
}

var _ SwitchRegistry = (*Registry)(nil)

// Registry is the authoritative, insertion ordered, collection of switches. Every mutation, including the
// AccessoryHost call it causes, is applied under a single lock, so operations are observed in the order they
// arrive and the host is consistent by the time an operation returns.
type Registry struct {
	host      AccessoryHost
	publisher EventPublisher
	logger    logwrap.Logger

	lock    *sync.Mutex
	records []*switchRecord
}

func NewRegistry(host AccessoryHost, publisher EventPublisher, l logwrap.Logger) *Registry {
	if publisher == nil {
		publisher = NullEventPublisher
	}

	return &Registry{
		host:      host,
		publisher: publisher,
		logger:    l,
		lock:      &sync.Mutex{},
	}
}

func (r *Registry) find(id string) (int, *switchRecord) {
	for i, rec := range r.records {
		if rec.config.Identifier == id {
			return i, rec
		}
	}

	return -1, nil
}

func (r *Registry) contains(target *switchRecord) bool {
	for _, rec := range r.records {
		if rec == target {
			return true
		}
	}

	return false
}

func (r *Registry) Create(cfg SwitchConfig) (Switch, error) {
	if err := cfg.Validate(); err != nil {
		return Switch{}, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, rec := r.find(cfg.Identifier); rec != nil {
		return Switch{}, fmt.Errorf("switch '%s': %w", cfg.Identifier, ErrDuplicateId)
	}

	handle, err := r.host.Materialize(cfg)
	if err != nil {
		return Switch{}, fmt.Errorf("failed to materialise switch '%s': %w", cfg.Identifier, err)
	}

	rec := &switchRecord{config: cfg, handle: handle}

	if err := r.bind(rec); err != nil {
		if destroyErr := r.host.Destroy(handle); destroyErr != nil {
			r.logger.LogError(context.Background(), "Failed to destroy presentation of unbound switch.", logwrap.Datum("id", cfg.Identifier), logwrap.Err(destroyErr))
		}

		return Switch{}, fmt.Errorf("failed to bind switch '%s': %w", cfg.Identifier, err)
	}

	r.records = append(r.records, rec)

	r.logger.LogInfo(context.Background(), "Created switch.", logwrap.Datum("id", cfg.Identifier), logwrap.Datum("name", cfg.Name))
	r.publisher.Publish(SwitchAdded{Switch: rec.export(), Source: SourceAPI})

	return rec.export(), nil
}

// bind hands the host the getter/setter pair it uses when a smart home client reads or flips the switch. It
// is called with the registry lock held, the host only invokes the pair later from its own goroutines.
func (r *Registry) bind(rec *switchRecord) error {
	return r.host.BindToggle(rec.handle, func() bool {
		r.lock.Lock()
		defer r.lock.Unlock()

		return rec.state.On
	}, func(on bool) {
		r.toggled(rec, on)
	})
}

// toggled applies a state change which originated in the presentation layer, it is not pushed back. Hosts
// which keep a copy of the state are told the value under the registry lock, so their copy ends in the same
// order as the registry's when a SetState races the toggle.
func (r *Registry) toggled(rec *switchRecord, on bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.contains(rec) {
		r.logger.LogWarn(context.Background(), "Toggle received for switch no longer in registry.", logwrap.Datum("id", rec.config.Identifier))
		return
	}

	rec.state.On = on

	if recorder, ok := r.host.(StateRecorder); ok {
		if err := recorder.RecordState(rec.handle, on); err != nil {
			r.logger.LogWarn(context.Background(), "Failed to record toggled state with host.", logwrap.Datum("id", rec.config.Identifier), logwrap.Err(err))
		}
	}

	r.logger.LogDebug(context.Background(), "Switch toggled by presentation layer.", logwrap.Datum("id", rec.config.Identifier), logwrap.Datum("on", on))
	r.publisher.Publish(SwitchStateChanged{Switch: rec.export(), Source: SourceHomeKit})
}

func (r *Registry) List() []Switch {
	r.lock.Lock()
	defer r.lock.Unlock()

	switches := make([]Switch, 0, len(r.records))

	for _, rec := range r.records {
		switches = append(switches, rec.export())
	}

	return switches
}

func (r *Registry) Find(id string) (Switch, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, rec := r.find(id)
	if rec == nil {
		return Switch{}, fmt.Errorf("switch '%s': %w", id, ErrNotFound)
	}

	return rec.export(), nil
}

// Delete removes the switch and its presentation object. Deleting an id which is not present is not an error.
func (r *Registry) Delete(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	idx, rec := r.find(id)
	if rec == nil {
		r.logger.LogDebug(context.Background(), "Delete requested for unknown switch, ignoring.", logwrap.Datum("id", id))
		return nil
	}

	if err := r.host.Destroy(rec.handle); err != nil {
		return fmt.Errorf("failed to destroy presentation of switch '%s': %w", id, err)
	}

	r.records = append(r.records[:idx], r.records[idx+1:]...)

	r.logger.LogInfo(context.Background(), "Removed switch.", logwrap.Datum("id", id))
	r.publisher.Publish(SwitchRemoved{Switch: rec.export()})

	return nil
}

func (r *Registry) State(id string) (SwitchState, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, rec := r.find(id)
	if rec == nil {
		return SwitchState{}, fmt.Errorf("switch '%s': %w", id, ErrNotFound)
	}

	return rec.state, nil
}

// SetState overwrites the state of a switch and pushes it to the presentation layer. If the push fails the
// previous state is retained.
func (r *Registry) SetState(id string, state SwitchState) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, rec := r.find(id)
	if rec == nil {
		return fmt.Errorf("switch '%s': %w", id, ErrNotFound)
	}

	previous := rec.state
	rec.state = state

	if err := r.host.PushState(rec.handle, state.On); err != nil {
		rec.state = previous
		return fmt.Errorf("failed to push state of switch '%s': %w", id, err)
	}

	r.publisher.Publish(SwitchStateChanged{Switch: rec.export(), Source: SourceAPI})

	return nil
}

// Restore rebuilds the registry from presentation objects the host already holds from a previous run. It
// must complete before any other operation is accepted.
func (r *Registry) Restore() error {
	existing, err := r.host.EnumerateExisting()
	if err != nil {
		return fmt.Errorf("failed to enumerate existing accessories: %w", err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	for _, e := range existing {
		ctx := r.logger.AddOptionsToContext(context.Background(), logwrap.Datum("id", e.Config.Identifier))

		reason := ""

		if err := e.Config.Validate(); err != nil {
			reason = err.Error()
		} else if _, dup := r.find(e.Config.Identifier); dup != nil {
			reason = ErrDuplicateId.Error()
		}

		if len(reason) > 0 {
			r.logger.LogWarn(ctx, "Discarding persisted accessory.", logwrap.Datum("reason", reason))

			if err := r.host.Destroy(e.Handle); err != nil {
				r.logger.LogError(ctx, "Failed to destroy discarded accessory.", logwrap.Err(err))
			}

			continue
		}

		rec := &switchRecord{config: e.Config, state: e.State, handle: e.Handle}

		if err := r.bind(rec); err != nil {
			return fmt.Errorf("failed to bind restored switch '%s': %w", e.Config.Identifier, err)
		}

		r.records = append(r.records, rec)

		r.logger.LogInfo(ctx, "Restored switch.", logwrap.Datum("name", e.Config.Name), logwrap.Datum("on", e.State.On))
		r.publisher.Publish(SwitchAdded{Switch: rec.export(), Source: SourceRestore})
	}

	return nil
}
