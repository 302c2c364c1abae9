package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStateUpgradeLegacy(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		want    State
		changed bool
	}{
		{
			name:    "legacy layout moves to admin",
			state:   State{SelectedCategories: []string{"design"}},
			want:    State{UserCategories: map[string][]string{"42": {"design"}}},
			changed: true,
		},
		{
			name:    "legacy empty list means all",
			state:   State{SelectedCategories: []string{}},
			want:    State{UserCategories: map[string][]string{"42": {}}},
			changed: true,
		},
		{
			name:  "current layout untouched",
			state: State{UserCategories: map[string][]string{"7": {NoneSentinel}}},
			want:  State{UserCategories: map[string][]string{"7": {NoneSentinel}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.state
			if got := st.UpgradeLegacy(42); got != tt.changed {
				t.Errorf("UpgradeLegacy() = %v, want %v", got, tt.changed)
			}
			if diff := cmp.Diff(tt.want, st); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStatsTotal(t *testing.T) {
	s := Stats{Approved: 3, Pending: 2, Rejected: 1}
	if got := s.Total(); got != 6 {
		t.Errorf("Total() = %d, want 6", got)
	}
}
