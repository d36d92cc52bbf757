package hlc

import "encoding/json"

// MarshalJSON renders the HLC as its canonical wire string, per spec.md §6.
func (h HLC) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON parses the canonical wire string form.
func (h *HLC) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
