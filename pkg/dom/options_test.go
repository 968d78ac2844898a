package dom

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Options
		wantErr bool
	}{
		{
			name: "nil gives defaults",
			in:   nil,
			want: DefaultOptions(),
		},
		{
			name: "json object",
			in:   `{"max_text_length": 40, "include_structure": true}`,
			want: Options{MaxTextLength: 40, Ellipsis: DefaultEllipsis, IncludeStructure: true, IncludeCompounds: true},
		},
		{
			name: "raw message",
			in:   json.RawMessage(`{"include_compounds": false}`),
			want: Options{MaxTextLength: DefaultMaxTextLength, Ellipsis: DefaultEllipsis, IncludeCompounds: false},
		},
		{
			name: "decoded map",
			in:   map[string]any{"ellipsis": "...", "max_text_length": float64(12)},
			want: Options{MaxTextLength: 12, Ellipsis: "...", IncludeCompounds: true},
		},
		{
			name: "unknown keys ignored",
			in:   `{"future_flag": 1, "max_text_length": 7}`,
			want: Options{MaxTextLength: 7, Ellipsis: DefaultEllipsis, IncludeCompounds: true},
		},
		{
			name: "zero values take defaults",
			in:   `{"max_text_length": 0, "ellipsis": ""}`,
			want: DefaultOptions(),
		},
		{
			name: "null",
			in:   []byte("null"),
			want: DefaultOptions(),
		},
		{
			name:    "wrong type",
			in:      `{"max_text_length": "long"}`,
			want:    DefaultOptions(),
			wantErr: true,
		},
		{
			name:    "unsupported input",
			in:      42,
			want:    DefaultOptions(),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOptions(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
