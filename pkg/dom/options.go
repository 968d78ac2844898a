package dom

import (
	"encoding/json"
	"fmt"
)

const (
	DefaultMaxTextLength = 100
	DefaultEllipsis      = "…"
)

// Options control serialization. Start from DefaultOptions; the zero
// value disables compound annotations.
type Options struct {
	MaxTextLength    int    `json:"max_text_length" yaml:"max_text_length"`
	Ellipsis         string `json:"ellipsis" yaml:"ellipsis"`
	IncludeStructure bool   `json:"include_structure" yaml:"include_structure"`
	IncludeCompounds bool   `json:"include_compounds" yaml:"include_compounds"`
}

func DefaultOptions() Options {
	return Options{
		MaxTextLength:    DefaultMaxTextLength,
		Ellipsis:         DefaultEllipsis,
		IncludeCompounds: true,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxTextLength <= 0 {
		o.MaxTextLength = DefaultMaxTextLength
	}
	if o.Ellipsis == "" {
		o.Ellipsis = DefaultEllipsis
	}
	return o
}

// ParseOptions reads options from a JSON object ([]byte, string or
// json.RawMessage) or a decoded map. Missing keys keep their defaults and
// unknown keys are ignored.
func ParseOptions(v any) (Options, error) {
	opts := DefaultOptions()
	var raw []byte
	switch x := v.(type) {
	case nil:
		return opts, nil
	case Options:
		return x.withDefaults(), nil
	case []byte:
		raw = x
	case json.RawMessage:
		raw = x
	case string:
		raw = []byte(x)
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return opts, fmt.Errorf("encode options: %w", err)
		}
		raw = b
	default:
		return opts, fmt.Errorf("unsupported options type %T", v)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return DefaultOptions(), fmt.Errorf("decode options: %w", err)
	}
	return opts.withDefaults(), nil
}
