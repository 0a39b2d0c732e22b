// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package backend

import "testing"

func TestTransition(t *testing.T) {
	cases := []struct {
		name    string
		current Health
		success bool
		want    Health
	}{
		{"healthy stays healthy on success", HealthyState{}, true, HealthyState{}},
		{"healthy to failing(1) on failure", HealthyState{}, false, FailingState{Count: 1}},
		{"failing(1) to failing(2) on failure", FailingState{Count: 1}, false, FailingState{Count: 2}},
		{"failing(2) to degraded(3) on failure", FailingState{Count: 2}, false, DegradedState{Count: 3}},
		{"degraded stays degraded on failure", DegradedState{Count: 3}, false, DegradedState{Count: 4}},
		{"degraded recovers to healthy on success (health ping)", DegradedState{Count: 5}, true, HealthyState{}},
		{"failing recovers to healthy on success", FailingState{Count: 2}, true, HealthyState{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Transition(tc.current, tc.success)
			if got != tc.want {
				t.Fatalf("Transition(%v, %v) = %v, want %v", tc.current, tc.success, got, tc.want)
			}
		})
	}
}

func TestRoutable(t *testing.T) {
	cases := []struct {
		h    Health
		want bool
	}{
		{HealthyState{}, true},
		{FailingState{Count: 1}, true},
		{FailingState{Count: 2}, true},
		{DegradedState{Count: 3}, false},
		{DegradedState{Count: 10}, false},
	}
	for _, tc := range cases {
		if got := Routable(tc.h); got != tc.want {
			t.Fatalf("Routable(%v) = %v, want %v", tc.h, got, tc.want)
		}
	}
}

func TestQueueDirName(t *testing.T) {
	got := QueueDirName("app.neptune.ai", 443)
	want := "app_neptune_ai_443"
	if got != want {
		t.Fatalf("QueueDirName = %q, want %q", got, want)
	}
}
