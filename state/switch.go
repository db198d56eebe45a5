package state

import (
	"fmt"
	"strings"
)

type SwitchConfig struct {
	Identifier string `json:"id"`
	Name       string `json:"name"`
	OnURL      string `json:"on_url"`
	OffURL     string `json:"off_url"`
}

type SwitchState struct {
	On bool `json:"on"`
}

// Switch is the externally visible projection of a switch held by the Registry, the presentation
// handle is never part of it.
type Switch struct {
	Config SwitchConfig `json:"config"`
	State  SwitchState  `json:"state"`
}

// Characters which can not appear in a switch identifier, it is used both as a URL path segment and as an
// MQTT topic level.
const reservedIdentifierCharacters = "/+#"

func (c SwitchConfig) Validate() error {
	if len(c.Identifier) == 0 {
		return fmt.Errorf("switch id must not be empty: %w", ErrMalformedInput)
	}

	if strings.ContainsAny(c.Identifier, reservedIdentifierCharacters) {
		return fmt.Errorf("switch id must not contain any of '%s': %w", reservedIdentifierCharacters, ErrMalformedInput)
	}

	if c.Identifier == "." || c.Identifier == ".." {
		return fmt.Errorf("switch id must not be a relative path element: %w", ErrMalformedInput)
	}

	if len(c.Name) == 0 {
		return fmt.Errorf("switch name must not be empty: %w", ErrMalformedInput)
	}

	return nil
}

type switchRecord struct {
	config SwitchConfig
	state  SwitchState
	handle Handle
}

func (r *switchRecord) export() Switch {
	return Switch{
		Config: r.config,
		State:  r.state,
	}
}
