package chunk

import (
	"reflect"
	"testing"
)

func TestPlan(t *testing.T) {
	for _, tc := range []struct {
		name      string
		totalRows int
		size      int
		want      []Range
	}{
		{"empty", 0, 10, nil},
		{"single_partial", 7, 10, []Range{{0, 7}}},
		{"exact_fit", 10, 5, []Range{{0, 5}, {5, 10}}},
		{"uneven_tail", 11, 5, []Range{{0, 5}, {5, 10}, {10, 11}}},
		{"size_one", 3, 1, []Range{{0, 1}, {1, 2}, {2, 3}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Plan(tc.totalRows, tc.size)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Plan(%d, %d) = %v, want %v", tc.totalRows, tc.size, got, tc.want)
			}
		})
	}
}

func TestPlanCoversExactly(t *testing.T) {
	got, err := Plan(1_000_003, 4096)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	covered := 0
	prevEnd := 0
	for _, r := range got {
		if r.Start != prevEnd {
			t.Fatalf("range %v does not start at previous end %d", r, prevEnd)
		}
		if r.Len() <= 0 || r.Len() > 4096 {
			t.Fatalf("range %v has bad length", r)
		}
		covered += r.Len()
		prevEnd = r.End
	}
	if covered != 1_000_003 {
		t.Errorf("covered %d rows, want 1000003", covered)
	}
}

func TestPlanRejectsBadInput(t *testing.T) {
	if _, err := Plan(10, 0); err == nil {
		t.Error("Plan(10, 0): expected error")
	}
	if _, err := Plan(10, -5); err == nil {
		t.Error("Plan(10, -5): expected error")
	}
	if _, err := Plan(-1, 5); err == nil {
		t.Error("Plan(-1, 5): expected error")
	}
}
