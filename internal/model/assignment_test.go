package model

import "testing"

// TestCanAdvance verifies the delivery lifecycle transition table.
func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to AssignmentStatus
		want     bool
	}{
		// happy-path forward transitions
		{AssignmentPending, AssignmentDriverAccepted, true},
		{AssignmentDriverAccepted, AssignmentEnRoutePickup, true},
		{AssignmentEnRoutePickup, AssignmentAtPickup, true},
		{AssignmentAtPickup, AssignmentInTransit, true},
		{AssignmentInTransit, AssignmentCompleted, true},
		// invalid: skipping stages
		{AssignmentPending, AssignmentEnRoutePickup, false},
		{AssignmentPending, AssignmentCompleted, false},
		{AssignmentDriverAccepted, AssignmentAtPickup, false},
		{AssignmentEnRoutePickup, AssignmentInTransit, false},
		{AssignmentAtPickup, AssignmentCompleted, false},
		// invalid: moving backwards
		{AssignmentInTransit, AssignmentAtPickup, false},
		{AssignmentDriverAccepted, AssignmentPending, false},
		// invalid: terminal states have no outgoing transitions
		{AssignmentCompleted, AssignmentInTransit, false},
		{AssignmentCancelled, AssignmentPending, false},
		// cancellation is not part of the advance table
		{AssignmentPending, AssignmentCancelled, false},
		{AssignmentInTransit, AssignmentCancelled, false},
	}
	for _, tc := range cases {
		got := CanAdvance(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanAdvance(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []AssignmentStatus{AssignmentCompleted, AssignmentCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []AssignmentStatus{
		AssignmentPending, AssignmentDriverAccepted, AssignmentEnRoutePickup,
		AssignmentAtPickup, AssignmentInTransit,
	}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
