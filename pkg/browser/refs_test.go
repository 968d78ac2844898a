package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "3", want: 3},
		{in: " [12] ", want: 12},
		{in: "@7", want: 7},
		{in: "index=1", want: 1},
		{in: "e5", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "[]", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndex(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIndex(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseIndex(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestRefStore(t *testing.T) {
	ctx := context.Background()
	rs := NewRefStore(2)

	for i := 1; i <= 3; i++ {
		rec := &RefRecord{
			TargetID:   fmt.Sprintf("tab%d", i),
			Identities: identity.IdentityMap{1: identity.Handle(100 + i)},
		}
		if err := rs.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	if rs.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rs.Len())
	}
	if _, err := rs.Load(ctx, "tab1"); !errors.Is(err, ErrNoRecord) {
		t.Errorf("oldest tab error = %v, want ErrNoRecord", err)
	}

	rec, err := rs.Load(ctx, "tab3")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if h, ok := rec.Handle(1); !ok || h != 103 {
		t.Errorf("Handle(1) = %d, %v; want 103, true", h, ok)
	}
	if _, ok := rec.Handle(2); ok {
		t.Error("Handle(2) found, want missing")
	}

	if err := rs.Delete(ctx, "tab3"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := rs.Load(ctx, "tab3"); !errors.Is(err, ErrNoRecord) {
		t.Errorf("deleted tab error = %v, want ErrNoRecord", err)
	}
}

func TestLookupWithoutSnapshot(t *testing.T) {
	m := New(WithLogger(quietLogger()))
	ctx := context.Background()

	if _, err := m.lookup(ctx, "tab", 1); !errors.Is(err, ErrUnknownIndex) {
		t.Errorf("error = %v, want ErrUnknownIndex", err)
	}

	_ = m.records.Save(ctx, &RefRecord{TargetID: "tab", ExtractionID: "x", Identities: identity.IdentityMap{1: 42}})
	if h, err := m.lookup(ctx, "tab", 1); err != nil || h != 42 {
		t.Errorf("lookup(1) = %d, %v; want 42", h, err)
	}
	if _, err := m.lookup(ctx, "tab", 2); !errors.Is(err, ErrUnknownIndex) {
		t.Errorf("error = %v, want ErrUnknownIndex", err)
	}
}

func TestPageOperationsBeforeStart(t *testing.T) {
	m := New(WithLogger(quietLogger()))
	ctx := context.Background()

	if _, err := m.Snapshot(ctx, "", DefaultSnapshotOptions()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Snapshot() error = %v, want ErrNotRunning", err)
	}
	if _, err := m.Click(ctx, "", 1, ClickOpts{}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Click() error = %v, want ErrNotRunning", err)
	}
	if _, err := m.ListTabs(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("ListTabs() error = %v, want ErrNotRunning", err)
	}
	if st := m.Status(); st.Running {
		t.Errorf("Status() = %+v, want not running", st)
	}
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
