package gstbackend

import (
	"sync"

	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// appsrcState tracks one fake appsrc's observable state for assertions in
// tests.
type appsrcState struct {
	caps       Caps
	removed    bool
	eosSignaled bool
	flushing   bool
	pushed     [][]byte
}

// Fake is an in-memory Pipeline used by internal/playback's tests and any
// other package that needs a pipeline double without real GStreamer.
type Fake struct {
	mu sync.Mutex

	nextHandle AppsrcHandle
	appsrcs    map[AppsrcHandle]*appsrcState

	state PipelineState
	rate  float64
	volume float64
	position int64
	props    map[string]any

	SeekCalls       []FakeSeek
	SeekSourceCalls []FakeSeekSource
	RateCalls       []FakeRateCall
	AmlhalasinkMode bool
	InstantRateSeek bool
}

type FakeSeek struct {
	PositionNs int64
	Rate       float64
}

type FakeSeekSource struct {
	Handle         AppsrcHandle
	PositionNs     int64
	ResetTime      bool
	AppliedRate    float64
	StopPositionNs int64
}

type FakeRateCall struct {
	Rate   float64
	Method RateChangeMethod
}

// NewFake returns a Fake with rate 1.0 and state Null.
func NewFake() *Fake {
	return &Fake{
		appsrcs: make(map[AppsrcHandle]*appsrcState),
		rate:    1.0,
		volume:  1.0,
		props:   make(map[string]any),
	}
}

func (f *Fake) CreateAppsrc(caps Caps) (AppsrcHandle, error) {
	if caps.MimeType == "" {
		return 0, rierr.Wrap(rierr.InvalidArgument, "empty mime-type")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHandle++
	h := f.nextHandle
	f.appsrcs[h] = &appsrcState{caps: caps}
	return h, nil
}

func (f *Fake) UpdateCaps(h AppsrcHandle, caps Caps) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	if !ok {
		return rierr.Wrap(rierr.InvalidArgument, "unknown appsrc handle")
	}
	st.caps = caps
	return nil
}

func (f *Fake) RemoveAppsrc(h AppsrcHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	if !ok {
		return rierr.Wrap(rierr.InvalidArgument, "unknown appsrc handle")
	}
	st.removed = true
	return nil
}

func (f *Fake) PushBuffer(h AppsrcHandle, data []byte, meta *ProtectionRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	if !ok || st.removed {
		return rierr.Wrap(rierr.InvalidArgument, "unknown or removed appsrc handle")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	st.pushed = append(st.pushed, cp)
	return nil
}

func (f *Fake) SignalEOS(h AppsrcHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	if !ok {
		return rierr.Wrap(rierr.InvalidArgument, "unknown appsrc handle")
	}
	st.eosSignaled = true
	return nil
}

func (f *Fake) FlushStart(h AppsrcHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	if !ok {
		return rierr.Wrap(rierr.InvalidArgument, "unknown appsrc handle")
	}
	st.flushing = true
	return nil
}

func (f *Fake) FlushStop(h AppsrcHandle, resetTime bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	if !ok {
		return rierr.Wrap(rierr.InvalidArgument, "unknown appsrc handle")
	}
	st.flushing = false
	return nil
}

func (f *Fake) Seek(positionNs int64, rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SeekCalls = append(f.SeekCalls, FakeSeek{PositionNs: positionNs, Rate: rate})
	return nil
}

func (f *Fake) SeekSource(h AppsrcHandle, positionNs int64, resetTime bool, appliedRate float64, stopPositionNs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SeekSourceCalls = append(f.SeekSourceCalls, FakeSeekSource{
		Handle: h, PositionNs: positionNs, ResetTime: resetTime, AppliedRate: appliedRate, StopPositionNs: stopPositionNs,
	})
	return nil
}

func (f *Fake) ApplyPlaybackRate(rate float64, method RateChangeMethod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
	f.RateCalls = append(f.RateCalls, FakeRateCall{Rate: rate, Method: method})
	return nil
}

func (f *Fake) SupportsInstantRateSeek() bool { return f.InstantRateSeek }
func (f *Fake) IsAmlhalasink() bool           { return f.AmlhalasinkMode }

func (f *Fake) SetVolume(level float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = level
	return nil
}

func (f *Fake) GetVolume() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume, nil
}

func (f *Fake) FadeVolume(target float64, durationMs int, ease VolumeEase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = target
	return nil
}

func (f *Fake) State() PipelineState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) SetState(s PipelineState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	return nil
}

func (f *Fake) Position() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, nil
}

// SetPosition adjusts the fake's reported position, for test setup.
func (f *Fake) SetPosition(ns int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = ns
}

func (f *Fake) SetProperty(name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[name] = value
	return nil
}

func (f *Fake) GetProperty(name string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.props[name]
	if !ok {
		return nil, rierr.Wrap(rierr.InvalidArgument, "no such property: "+name)
	}
	return v, nil
}

func (f *Fake) Stats(h AppsrcHandle) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	if !ok {
		return 0, 0, rierr.Wrap(rierr.InvalidArgument, "unknown appsrc handle")
	}
	return uint64(len(st.pushed)), 0, nil
}

// Rate returns the last applied playback rate, for test assertions.
func (f *Fake) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

// Volume returns the current volume, for test assertions.
func (f *Fake) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

// PushedBuffers returns the buffers pushed to h, for test assertions.
func (f *Fake) PushedBuffers(h AppsrcHandle) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	if !ok {
		return nil
	}
	return st.pushed
}

// IsRemoved reports whether h has been removed.
func (f *Fake) IsRemoved(h AppsrcHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	return ok && st.removed
}

// IsEOSSignaled reports whether SignalEOS was called for h.
func (f *Fake) IsEOSSignaled(h AppsrcHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.appsrcs[h]
	return ok && st.eosSignaled
}
