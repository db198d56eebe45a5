package state

import (
	"github.com/stretchr/testify/mock"
)

var _ AccessoryHost = (*MockAccessoryHost)(nil)

type MockAccessoryHost struct {
	mock.Mock
}

func (m *MockAccessoryHost) Materialize(cfg SwitchConfig) (Handle, error) {
	args := m.Called(cfg)
	return args.Get(0).(Handle), args.Error(1)
}

func (m *MockAccessoryHost) Destroy(h Handle) error {
	args := m.Called(h)
	return args.Error(0)
}

func (m *MockAccessoryHost) BindToggle(h Handle, get func() bool, set func(bool)) error {
	args := m.Called(h, get, set)
	return args.Error(0)
}

func (m *MockAccessoryHost) PushState(h Handle, on bool) error {
	args := m.Called(h, on)
	return args.Error(0)
}

func (m *MockAccessoryHost) EnumerateExisting() ([]ExistingAccessory, error) {
	args := m.Called()
	return args.Get(0).([]ExistingAccessory), args.Error(1)
}

var _ StateRecorder = (*MockRecordingAccessoryHost)(nil)

type MockRecordingAccessoryHost struct {
	MockAccessoryHost
}

func (m *MockRecordingAccessoryHost) RecordState(h Handle, on bool) error {
	args := m.Called(h, on)
	return args.Error(0)
}

var _ SwitchRegistry = (*MockSwitchRegistry)(nil)

type MockSwitchRegistry struct {
	mock.Mock
}

func (m *MockSwitchRegistry) Create(cfg SwitchConfig) (Switch, error) {
	args := m.Called(cfg)
	return args.Get(0).(Switch), args.Error(1)
}

func (m *MockSwitchRegistry) List() []Switch {
	args := m.Called()
	return args.Get(0).([]Switch)
}

func (m *MockSwitchRegistry) Find(id string) (Switch, error) {
	args := m.Called(id)
	return args.Get(0).(Switch), args.Error(1)
}

func (m *MockSwitchRegistry) Delete(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockSwitchRegistry) State(id string) (SwitchState, error) {
	args := m.Called(id)
	return args.Get(0).(SwitchState), args.Error(1)
}

func (m *MockSwitchRegistry) SetState(id string, state SwitchState) error {
	args := m.Called(id, state)
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(v any) {
	m.Called(v)
}
