package raw

import "encoding/json"

// MarshalAction encodes a as a single JSON object: the variant's fields plus
// an "action" discriminator holding its ActionName. All variants are structs,
// so the merge is textual.
func MarshalAction(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(a.ActionName())
	if err != nil {
		return nil, err
	}
	out := append([]byte(`{"action":`), name...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
