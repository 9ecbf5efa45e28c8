package offsetstate

import "encoding/json"

// Serialize renders s into the opaque byte form the host framework
// persists as source-offset.
func Serialize(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// Deserialize restores a State previously produced by Serialize.
func Deserialize(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ToOffsetMap renders s into the map[string]interface{} shape the
// poll() contract attaches to each emitted record as source_offset.
func ToOffsetMap(s *State) map[string]interface{} {
	raw, _ := Serialize(s)
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return m
}
