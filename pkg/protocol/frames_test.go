package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseFrameType(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"request", `{"type":"req","id":"1","method":"health"}`, FrameTypeRequest, false},
		{"event", `{"type":"event","event":"shutdown"}`, FrameTypeEvent, false},
		{"missing type", `{"id":"1"}`, "", false},
		{"not json", `req`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrameType([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrameType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFrameType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryableErrorWireShape(t *testing.T) {
	data, err := json.Marshal(NewRetryableError("7", ErrResourceExhausted, "slow down", 1500*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"res","id":"7","ok":false,"error":{"code":"RESOURCE_EXHAUSTED","message":"slow down","retryable":true,"retryAfterMs":1500}}`
	if string(data) != want {
		t.Errorf("wire shape:\n got %s\nwant %s", data, want)
	}
}
