package model

// ParamSpec describes one decoded event field.
type ParamSpec struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`
}

// EventTopic maps a 32-byte event signature hash to its decoding schema.
// Rows are seeded by migration and read-only at runtime; the registry caches
// them per process.
type EventTopic struct {
	TopicHash string `json:"topic_hash"`
	Name      string `json:"name"`
	// Signatures holds chain-specific signature variants used to match
	// webhook payload formats.
	Signatures []string    `json:"signatures,omitempty"`
	Params     []ParamSpec `json:"params"`
}

// IndexedParams returns the indexed subset of the schema in order.
func (t EventTopic) IndexedParams() []ParamSpec {
	out := make([]ParamSpec, 0, len(t.Params))
	for _, p := range t.Params {
		if p.Indexed {
			out = append(out, p)
		}
	}
	return out
}

// DataParams returns the non-indexed subset of the schema in order.
func (t EventTopic) DataParams() []ParamSpec {
	out := make([]ParamSpec, 0, len(t.Params))
	for _, p := range t.Params {
		if !p.Indexed {
			out = append(out, p)
		}
	}
	return out
}
