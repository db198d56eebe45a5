package config

import (
	"encoding/json"
	"fmt"
	"github.com/tidwall/gjson"
)

type constructors map[string]func() any

// unmarshalTyped reads the Type key of a configuration document and decodes its Config stanza into the
// structure constructed for that type. A missing stanza leaves the constructed structure at its defaults
// when optional is set.
func unmarshalTyped(data []byte, kind string, known constructors, optional bool) (string, any, error) {
	result := gjson.GetBytes(data, "Type")
	if !result.Exists() {
		return "", nil, fmt.Errorf("failed to find %s type information", kind)
	}

	t := result.String()

	constructor, found := known[t]
	if !found {
		return t, nil, fmt.Errorf("unknown %s configuration type: %s", kind, t)
	}

	cfg := constructor()

	stanza := gjson.GetBytes(data, "Config")
	if !stanza.Exists() {
		if optional {
			return t, cfg, nil
		}

		return t, nil, fmt.Errorf("unable to find Config stanza: %s", t)
	}

	if err := json.Unmarshal([]byte(stanza.Raw), cfg); err != nil {
		return t, nil, err
	}

	return t, cfg, nil
}
