package state

// Handle is an opaque reference to a presentation object held by an AccessoryHost.
type Handle uint64

type ExistingAccessory struct {
	Handle Handle
	Config SwitchConfig
	State  SwitchState
}

// AccessoryHost is the presentation layer that mirrors switches to smart home clients. The Registry is the
// only caller, implementations must not call back into the Registry from within these methods.
type AccessoryHost interface {
	Materialize(SwitchConfig) (Handle, error)
	Destroy(Handle) error
	BindToggle(h Handle, get func() bool, set func(bool)) error
	PushState(h Handle, on bool) error
	EnumerateExisting() ([]ExistingAccessory, error)
}

// StateRecorder is implemented by hosts which keep their own copy of switch state. RecordState stores the
// value without updating what smart home clients see.
type StateRecorder interface {
	RecordState(h Handle, on bool) error
}
