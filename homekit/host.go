package homekit

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"hash/fnv"
	"math/big"
	"net/http"
	"sync"
	"time"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	haplog "github.com/brutella/hap/log"
	"github.com/pkg/errors"
	"github.com/shimmeringbee/logwrap"

	"github.com/shimmeringbee/httpkit/state"
)

const (
	Manufacturer = "HTTPKit"
	SwitchModel  = "HTTPKit Switch"

	DefaultBridgeName = "HTTPKit Bridge"

	// store keys, kept alongside the pairing data hap persists in the same store
	accessoriesStoreKey = "httpkit_accessories"
	pinStoreKey         = "httpkit_pin"

	bridgeAccessoryId = 1
)

// time to wait for further accessory changes before restarting the HAP server
var ReloadSettleDuration = 500 * time.Millisecond

var (
	ErrUnknownHandle   = errors.New("unknown accessory handle")
	ErrHandleCollision = errors.New("accessory id collides with an existing accessory")
)

var (
	_ state.AccessoryHost = (*Host)(nil)
	_ state.StateRecorder = (*Host)(nil)
)

// Host presents switches as HomeKit accessories behind a single bridge. It keeps its own copy of every
// switch's config and state so it can persist them in the hap.Store and replay them on the next start.
type Host struct {
	ListenAddr string
	Interfaces []string
	Debug      bool

	store  hap.Store
	bridge *accessory.Bridge
	logger logwrap.Logger
	pin    string

	lock     *sync.Mutex
	switches []*hostedSwitch
	reload   chan struct{}
}

type hostedSwitch struct {
	handle state.Handle
	acc    *accessory.Switch

	config state.SwitchConfig
	on     bool

	get func() bool
	set func(bool)
}

func NewHost(store hap.Store, name string, l logwrap.Logger) *Host {
	if len(name) == 0 {
		name = DefaultBridgeName
	}

	bridge := accessory.NewBridge(accessory.Info{
		Name:         name,
		Manufacturer: Manufacturer,
	})
	bridge.A.Id = bridgeAccessoryId

	return &Host{
		store:  store,
		bridge: bridge,
		logger: l,
		lock:   &sync.Mutex{},
		reload: make(chan struct{}, 1),
	}
}

// HandleFor derives the accessory id for a switch, HomeKit clients key their configuration on it so it
// must be stable across restarts.
func HandleFor(id string) state.Handle {
	hash := fnv.New64()
	hash.Write([]byte("Switch_" + id))
	return state.Handle(hash.Sum64())
}

func (h *Host) find(handle state.Handle) (int, *hostedSwitch) {
	for i, hs := range h.switches {
		if hs.handle == handle {
			return i, hs
		}
	}

	return -1, nil
}

func (h *Host) newHostedSwitch(handle state.Handle, cfg state.SwitchConfig, on bool) *hostedSwitch {
	acc := accessory.NewSwitch(accessory.Info{
		Name:         cfg.Name,
		SerialNumber: cfg.Identifier,
		Manufacturer: Manufacturer,
		Model:        SwitchModel,
	})
	acc.A.Id = uint64(handle)
	acc.Switch.On.SetValue(on)

	hs := &hostedSwitch{handle: handle, acc: acc, config: cfg, on: on}

	acc.A.IdentifyFunc = func(*http.Request) {
		h.logger.LogInfo(context.Background(), "Accessory identified.", logwrap.Datum("id", cfg.Identifier), logwrap.Datum("name", cfg.Name))
	}

	acc.Switch.On.ValueRequestFunc = func(*http.Request) (any, int) {
		return h.currentValue(hs), 0
	}

	acc.Switch.On.OnValueRemoteUpdate(func(on bool) {
		if err := h.remoteUpdate(handle, on); err != nil {
			h.logger.LogWarn(context.Background(), "Remote update for unknown accessory.", logwrap.Datum("id", cfg.Identifier), logwrap.Err(err))
		}
	})

	return hs
}

func (h *Host) Materialize(cfg state.SwitchConfig) (state.Handle, error) {
	handle := HandleFor(cfg.Identifier)

	h.lock.Lock()

	if _, existing := h.find(handle); existing != nil || handle == bridgeAccessoryId {
		h.lock.Unlock()
		return 0, errors.Wrapf(ErrHandleCollision, "switch '%s'", cfg.Identifier)
	}

	h.switches = append(h.switches, h.newHostedSwitch(handle, cfg, false))
	h.persist()

	h.lock.Unlock()

	h.requestReload()

	return handle, nil
}

func (h *Host) Destroy(handle state.Handle) error {
	h.lock.Lock()

	idx, hs := h.find(handle)
	if hs == nil {
		h.lock.Unlock()
		return errors.Wrapf(ErrUnknownHandle, "destroy %d", handle)
	}

	h.switches = append(h.switches[:idx], h.switches[idx+1:]...)
	h.persist()

	h.lock.Unlock()

	h.requestReload()

	return nil
}

func (h *Host) BindToggle(handle state.Handle, get func() bool, set func(bool)) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	_, hs := h.find(handle)
	if hs == nil {
		return errors.Wrapf(ErrUnknownHandle, "bind %d", handle)
	}

	hs.get = get
	hs.set = set

	return nil
}

func (h *Host) PushState(handle state.Handle, on bool) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	_, hs := h.find(handle)
	if hs == nil {
		return errors.Wrapf(ErrUnknownHandle, "push %d", handle)
	}

	hs.on = on
	hs.acc.Switch.On.SetValue(on)
	h.persist()

	return nil
}

// RecordState stores a toggled value the registry has applied, without touching the characteristic.
func (h *Host) RecordState(handle state.Handle, on bool) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	_, hs := h.find(handle)
	if hs == nil {
		return errors.Wrapf(ErrUnknownHandle, "record %d", handle)
	}

	if hs.on != on {
		hs.on = on
		h.persist()
	}

	return nil
}

// EnumerateExisting returns every switch persisted by a previous run, creating the accessory for any not
// already hosted.
func (h *Host) EnumerateExisting() ([]state.ExistingAccessory, error) {
	persisted, err := h.load()
	if err != nil {
		return nil, err
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	var existing []state.ExistingAccessory
	seen := map[state.Handle]bool{}

	for _, p := range persisted {
		handle := HandleFor(p.Config.Identifier)

		if seen[handle] {
			h.logger.LogWarn(context.Background(), "Skipping duplicate persisted accessory.", logwrap.Datum("id", p.Config.Identifier))
			continue
		}
		seen[handle] = true

		_, hs := h.find(handle)
		if hs == nil {
			hs = h.newHostedSwitch(handle, p.Config, p.State.On)
			h.switches = append(h.switches, hs)
		}

		existing = append(existing, state.ExistingAccessory{
			Handle: handle,
			Config: hs.config,
			State:  state.SwitchState{On: hs.on},
		})
	}

	return existing, nil
}

func (h *Host) currentValue(hs *hostedSwitch) bool {
	h.lock.Lock()
	get, on := hs.get, hs.on
	h.lock.Unlock()

	if get != nil {
		return get()
	}

	return on
}

// remoteUpdate records a value written by a HomeKit client and hands it to the bound setter. The host lock
// is released before the setter runs, as the setter takes the registry lock.
func (h *Host) remoteUpdate(handle state.Handle, on bool) error {
	h.lock.Lock()

	_, hs := h.find(handle)
	if hs == nil {
		h.lock.Unlock()
		return errors.Wrapf(ErrUnknownHandle, "remote update %d", handle)
	}

	hs.on = on
	set := hs.set
	h.persist()

	h.lock.Unlock()

	if set != nil {
		set(on)
	}

	return nil
}

func (h *Host) load() ([]state.Switch, error) {
	data, err := h.store.Get(accessoriesStoreKey)
	if err != nil || len(data) == 0 {
		return nil, nil
	}

	var persisted []state.Switch
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, errors.Wrap(err, "failed to parse persisted accessories")
	}

	return persisted, nil
}

// persist must be called with the host lock held.
func (h *Host) persist() {
	persisted := make([]state.Switch, 0, len(h.switches))

	for _, hs := range h.switches {
		persisted = append(persisted, state.Switch{
			Config: hs.config,
			State:  state.SwitchState{On: hs.on},
		})
	}

	data, err := json.Marshal(persisted)
	if err == nil {
		err = h.store.Set(accessoriesStoreKey, data)
	}

	if err != nil {
		h.logger.LogError(context.Background(), "Failed to persist accessories.", logwrap.Err(err))
	}
}

func (h *Host) accessories() []*accessory.A {
	as := make([]*accessory.A, 0, len(h.switches))

	for _, hs := range h.switches {
		as = append(as, hs.acc.A)
	}

	return as
}

func (h *Host) requestReload() {
	select {
	case h.reload <- struct{}{}:
	default:
	}
}

func (h *Host) drainReload() {
	for {
		select {
		case <-h.reload:
		default:
			return
		}
	}
}

// Sets the PIN code for the HAP server.
// If the given pin is empty, it will be read from the store, or failing that, one will be generated and
// persisted.
func (h *Host) SetPin(pin string) (string, error) {
	if pin == "" {
		if storePin, err := h.store.Get(pinStoreKey); err == nil {
			pin = string(storePin)
		}
	}

	savePin := pin == ""

	if pin == "" {
		for {
			rnd, err := rand.Int(rand.Reader, big.NewInt(99999999+1))
			if err != nil {
				return "", errors.Wrap(err, "can't generate PIN")
			}

			pin = rnd.Text(10) + "00000000"
			pin = pin[:8]

			if !hap.InvalidPins[pin] {
				break
			}
		}
	} else if hap.InvalidPins[pin] {
		return "", errors.Errorf("insecure pin %s", pin)
	}

	if savePin {
		if err := h.store.Set(pinStoreKey, []byte(pin)); err != nil {
			return "", errors.Wrap(err, "failed to persist PIN")
		}
	}

	h.pin = pin
	return pin, nil
}

func (h *Host) Pin() string {
	return h.pin
}

// Start runs the HAP server until ctx is cancelled. brutella/hap fixes the accessory list when the server
// is constructed, so the server is rebuilt whenever switches are materialised or destroyed.
func (h *Host) Start(ctx context.Context) error {
	if h.pin == "" {
		if _, err := h.SetPin(""); err != nil {
			return err
		}
	}

	if h.Debug {
		haplog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	for {
		h.drainReload()

		h.lock.Lock()
		as := h.accessories()
		h.lock.Unlock()

		server, err := hap.NewServer(h.store, h.bridge.A, as...)
		if err != nil {
			return errors.Wrap(err, "failed to create HomeKit server")
		}

		server.Pin = h.pin
		server.Addr = h.ListenAddr
		server.Ifaces = h.Interfaces

		h.logger.LogInfo(ctx, "Starting HomeKit server.", logwrap.Datum("accessories", len(as)))

		serverCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)

		go func() {
			done <- server.ListenAndServe(serverCtx)
		}()

		select {
		case <-h.reload:
			select {
			case <-time.After(ReloadSettleDuration):
			case <-ctx.Done():
			}

			cancel()
			<-done

			if ctx.Err() != nil {
				return nil
			}

			h.logger.LogInfo(ctx, "Accessories changed, restarting HomeKit server.")
		case err := <-done:
			cancel()

			if ctx.Err() != nil {
				return nil
			}

			return errors.Wrap(err, "HomeKit server stopped")
		}
	}
}
