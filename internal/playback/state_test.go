package playback

import "testing"

func TestSourceStateTransitions(t *testing.T) {
	tests := []struct {
		from, to SourceState
		want     bool
	}{
		{StateAttached, StateStreaming, true},
		{StateAttached, StateFlushing, true},
		{StateAttached, StateRemoved, true},
		{StateStreaming, StateFlushing, true},
		{StateStreaming, StateEnded, true},
		{StateFlushing, StateStreaming, true},
		{StateEnded, StateFlushing, true},
		{StateEnded, StateStreaming, false},
		{StateRemoved, StateAttached, false},
		{StateRemoved, StateStreaming, false},
		{StateStreaming, StateAttached, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSourceState_RemovedIsTerminal(t *testing.T) {
	if !StateRemoved.IsTerminal() {
		t.Error("Removed must be terminal")
	}
	for _, s := range []SourceState{StateAttached, StateStreaming, StateFlushing, StateEnded} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
		if !s.CanTransitionTo(StateRemoved) {
			t.Errorf("remove must be valid from %s", s)
		}
	}
}
