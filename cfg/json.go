package cfg

import (
	"encoding/json"

	"github.com/open-flash/avm1/raw"
)

// MarshalJSON implements json.Marshaler. The empty label encodes as null.
func (l Label) MarshalJSON() ([]byte, error) {
	if l == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(l))
}

// MarshalJSON implements json.Marshaler. Actions and the flow are encoded as
// discriminated objects ("action" and "flow" keys).
func (b Block) MarshalJSON() ([]byte, error) {
	actions := make([]json.RawMessage, len(b.Actions))
	for i, a := range b.Actions {
		m, err := raw.MarshalAction(a)
		if err != nil {
			return nil, err
		}
		actions[i] = m
	}
	flow, err := MarshalFlow(b.Flow)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Label   Label             `json:"label"`
		Actions []json.RawMessage `json:"actions"`
		Flow    json.RawMessage   `json:"flow"`
	}{b.Label, actions, flow})
}

// MarshalFlow encodes f as a single JSON object: the variant's fields plus a
// "flow" discriminator holding its FlowName.
func MarshalFlow(f Flow) ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(f.FlowName())
	if err != nil {
		return nil, err
	}
	out := append([]byte(`{"flow":`), name...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
