package value

import "encoding/json"

// MarshalJSON renders the Value through its dictionary form so the HTTP
// surface can embed property maps directly as JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	d, err := v.ToDictionary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// UnmarshalJSON reconstructs a Value from its dictionary form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	nv, err := FromDictionary(m)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

// MarshalJSON renders a Dictionary as a plain JSON object of dictionary-form
// values, keyed by property name.
func (d Dictionary) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]interface{}, len(d))
	for k, v := range d {
		dv, err := v.ToDictionary()
		if err != nil {
			return nil, err
		}
		out[k] = dv
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses a Dictionary from the JSON object produced by
// MarshalJSON.
func (d *Dictionary) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Dictionary, len(raw))
	for k, m := range raw {
		v, err := FromDictionary(m)
		if err != nil {
			return err
		}
		out[k] = v
	}
	*d = out
	return nil
}
