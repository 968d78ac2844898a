package dom

import (
	"math"
	"testing"
)

func TestRectIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want Rect
	}{
		{"overlap", box(0, 0, 10, 10), box(5, 5, 10, 10), box(5, 5, 5, 5)},
		{"contained", box(0, 0, 100, 100), box(10, 10, 5, 5), box(10, 10, 5, 5)},
		{"disjoint", box(0, 0, 10, 10), box(20, 20, 5, 5), Rect{}},
		{"touching edges", box(0, 0, 10, 10), box(10, 0, 10, 10), Rect{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersect(tt.b); got != tt.want {
				t.Errorf("Intersect() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestContainmentPct(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want float64
	}{
		{"identical", box(0, 0, 10, 10), box(0, 0, 10, 10), 1},
		{"small inside large", box(10, 10, 10, 10), box(0, 0, 100, 100), 1},
		{"large around small", box(0, 0, 100, 100), box(10, 10, 10, 10), 1},
		{"half overlap", box(0, 0, 10, 10), box(5, 0, 10, 10), 0.5},
		{"empty box", box(0, 0, 0, 10), box(0, 0, 10, 10), 0},
		{"disjoint", box(0, 0, 10, 10), box(50, 50, 10, 10), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainmentPct(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ContainmentPct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScrollInfoOverflows(t *testing.T) {
	if (ScrollInfo{}).Overflows() {
		t.Error("zero scroll info should not overflow")
	}
	if !(ScrollInfo{Height: 900, ClientHeight: 300, Width: 200, ClientWidth: 200}).Overflows() {
		t.Error("taller content should overflow")
	}
	if (ScrollInfo{Height: 300.5, ClientHeight: 300, Width: 200, ClientWidth: 200}).Overflows() {
		t.Error("sub-pixel difference should not count as overflow")
	}
}
