package needdata

import "testing"

func TestSetScheduled_DedupesDuplicateRequests(t *testing.T) {
	m := NewMapping()
	if !m.SetScheduled(1) {
		t.Fatal("expected first SetScheduled to succeed")
	}
	if m.SetScheduled(1) {
		t.Fatal("expected duplicate SetScheduled to report already-scheduled")
	}
	if !m.IsScheduled(1) {
		t.Fatal("expected IsScheduled true")
	}
}

func TestClearScheduled_AllowsReschedule(t *testing.T) {
	m := NewMapping()
	m.SetScheduled(5)
	m.ClearScheduled(5)
	if m.IsScheduled(5) {
		t.Fatal("expected IsScheduled false after clear")
	}
	if !m.SetScheduled(5) {
		t.Fatal("expected reschedule to succeed after clear")
	}
}

func TestRange_VisitsAllScheduled(t *testing.T) {
	m := NewMapping()
	m.SetScheduled(1)
	m.SetScheduled(2)
	m.SetScheduled(3)

	seen := map[AppsrcID]bool{}
	m.Range(func(id AppsrcID) bool {
		seen[id] = true
		return true
	})
	for _, id := range []AppsrcID{1, 2, 3} {
		if !seen[id] {
			t.Fatalf("expected Range to visit %d", id)
		}
	}
}

func TestRange_StopsEarly(t *testing.T) {
	m := NewMapping()
	m.SetScheduled(1)
	m.SetScheduled(2)
	m.SetScheduled(3)

	count := 0
	m.Range(func(AppsrcID) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("expected Range to stop after first visit, got %d", count)
	}
}
