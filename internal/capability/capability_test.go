package capability

import (
	"sort"
	"testing"
)

type fakeRegistry struct {
	factories []Factory
}

func (r *fakeRegistry) ListFactories(kind FactoryKind, mediaType MediaSourceType) []Factory {
	return r.factories
}

func TestProbe_ClassPropertiesCheapPath(t *testing.T) {
	reg := &fakeRegistry{factories: []Factory{
		{Name: "audconvert", ClassProperties: func() []string { return []string{"rate", "channels"} }},
	}}
	got := Probe(reg, FactorySink|FactoryDecoder, MediaAudio, []string{"rate", "missing"})
	sort.Strings(got)
	if len(got) != 1 || got[0] != "rate" {
		t.Fatalf("expected [rate], got %v", got)
	}
}

func TestProbe_FallsBackToLoadThenInstantiate(t *testing.T) {
	loaded := false
	instantiated := false
	reg := &fakeRegistry{factories: []Factory{
		{
			Name:            "lazyelement",
			ClassProperties: func() []string { return nil },
			Load:            func() bool { loaded = true; return false },
			InstantiateProperties: func() []string {
				instantiated = true
				return []string{"volume"}
			},
		},
	}}
	got := Probe(reg, FactorySink, MediaAudio, []string{"volume"})
	if !loaded {
		t.Fatal("expected Load to be attempted")
	}
	if !instantiated {
		t.Fatal("expected InstantiateProperties as last resort")
	}
	if len(got) != 1 || got[0] != "volume" {
		t.Fatalf("expected [volume], got %v", got)
	}
}

func TestProbe_LoadSucceedsRetriesClassProperties(t *testing.T) {
	attempt := 0
	reg := &fakeRegistry{factories: []Factory{
		{
			Name: "reloadable",
			ClassProperties: func() []string {
				attempt++
				if attempt == 1 {
					return nil
				}
				return []string{"bitrate"}
			},
			Load:                  func() bool { return true },
			InstantiateProperties: func() []string { t.Fatal("should not reach instantiate"); return nil },
		},
	}}
	got := Probe(reg, FactoryDecoder, MediaVideo, []string{"bitrate"})
	if len(got) != 1 || got[0] != "bitrate" {
		t.Fatalf("expected [bitrate], got %v", got)
	}
}

func TestProbe_StopsOnceAllPropsFound(t *testing.T) {
	calls := 0
	reg := &fakeRegistry{factories: []Factory{
		{Name: "a", ClassProperties: func() []string { calls++; return []string{"x"} }},
		{Name: "b", ClassProperties: func() []string { calls++; return []string{"y"} }},
	}}
	got := Probe(reg, FactorySink, MediaAudio, []string{"x"})
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected [x], got %v", got)
	}
	if calls != 1 {
		t.Fatalf("expected probing to stop after first factory satisfied the request, got %d calls", calls)
	}
}
