// Package gstbackend defines the injected GStreamer pipeline
// collaborator. Wrappers are injected at session creation and never
// replaced during a session's lifetime, so the core stays testable without
// real syscalls or GStreamer. internal/playback drives a Pipeline; this
// package ships only the interface plus an in-memory Fake used by tests —
// the real element graph lives outside this core, behind the same
// interface.
package gstbackend

// AppsrcHandle identifies one attached source's upstream appsrc element.
// Its zero value never refers to a real appsrc.
type AppsrcHandle uintptr

// MediaSourceType mirrors playback.MediaSourceType without creating an
// import cycle; internal/playback converts at the boundary.
type MediaSourceType uint8

const (
	MediaUnknown MediaSourceType = iota
	MediaAudio
	MediaVideo
	MediaSubtitle
)

// PipelineState mirrors the GStreamer state enum the session reasons
// about (Null/Ready/Paused/Playing). Synthetic conditions such as
// end-of-stream or an in-flight seek are tracked as pipeline-level flags
// elsewhere since they aren't real GST_STATE_* values.
type PipelineState int

const (
	StateNull PipelineState = iota
	StateReady
	StatePaused
	StatePlaying
)

// Caps describes the negotiated capabilities built from the mime type
// plus source configuration at attach time.
type Caps struct {
	MimeType    string
	SourceType  MediaSourceType
	AudioConfig *AudioConfig
	CodecData   []byte
	IsDRM       bool
}

// AudioConfig carries the optional audio parameters of an attach.
type AudioConfig struct {
	Channels            uint32
	SampleRate          uint32
	CodecSpecificConfig []byte
}

// RateChangeMethod distinguishes the three SetPlaybackRate application
// paths.
type RateChangeMethod int

const (
	// RateViaSegmentEvent: amlhalasink-specific "segment with new rate" event.
	RateViaSegmentEvent RateChangeMethod = iota
	// RateViaInstantSeek: GStreamer seek with FLAG_INSTANT_RATE_CHANGE.
	RateViaInstantSeek
	// RateViaProperty: plain rate-only property set, the universal fallback.
	RateViaProperty
)

// VolumeEase selects the SetVolume fade curve.
type VolumeEase int

const (
	EaseLinear VolumeEase = iota
	EaseCubicIn
	EaseCubicOut
)

// Pipeline is the full collaborator surface internal/playback drives. A
// real implementation wraps cgo calls into GStreamer; Fake below is the
// in-memory double used throughout this module's tests.
type Pipeline interface {
	// CreateAppsrc builds caps, creates the appsrc, and inserts it into the
	// pipeline, returning a handle for subsequent calls.
	CreateAppsrc(caps Caps) (AppsrcHandle, error)
	// UpdateCaps performs the in-place codec-channel switch used by
	// SwitchSource when the mime is compatible with the existing appsrc.
	UpdateCaps(h AppsrcHandle, caps Caps) error
	// RemoveAppsrc tears down and removes the appsrc from the pipeline.
	RemoveAppsrc(h AppsrcHandle) error

	// PushBuffer injects one segment's bytes into h's appsrc. meta is nil
	// for clear segments.
	PushBuffer(h AppsrcHandle, data []byte, meta *ProtectionRef) error
	// SignalEOS marks h's appsrc as having no further data.
	SignalEOS(h AppsrcHandle) error

	// FlushStart/FlushStop bracket a flush: flush-start then flush-stop
	// with reset-time=false for a remove, caller-chosen resetTime for an
	// explicit Flush task.
	FlushStart(h AppsrcHandle) error
	FlushStop(h AppsrcHandle, resetTime bool) error

	// Seek issues a session-wide GStreamer seek at the given position and
	// rate.
	Seek(positionNs int64, rate float64) error
	// SeekSource issues a per-source seek carrying the extra
	// SetSourcePosition parameters.
	SeekSource(h AppsrcHandle, positionNs int64, resetTime bool, appliedRate float64, stopPositionNs int64) error

	// ApplyPlaybackRate applies rate using the given method.
	ApplyPlaybackRate(rate float64, method RateChangeMethod) error
	// SupportsInstantRateSeek reports whether the runtime supports
	// FLAG_INSTANT_RATE_CHANGE, deciding between RateViaInstantSeek and
	// RateViaProperty for non-amlhalasink sinks.
	SupportsInstantRateSeek() bool
	// IsAmlhalasink reports whether the platform's audio sink is
	// amlhalasink, deciding whether RateViaSegmentEvent applies.
	IsAmlhalasink() bool

	// SetVolume sets the element volume property immediately.
	SetVolume(level float64) error
	// GetVolume reads the current element volume.
	GetVolume() (float64, error)
	// FadeVolume invokes the platform audio-fade helper.
	FadeVolume(target float64, durationMs int, ease VolumeEase) error

	// State returns the pipeline's current state.
	State() PipelineState
	// SetState requests a transition to s.
	SetState(s PipelineState) error

	// Position reports the current playback position in nanoseconds.
	Position() (int64, error)

	// SetProperty/GetProperty cover the long tail of sink/decoder knobs the
	// RPC surface exposes (immediate-output, low-latency, sync, sync-off,
	// stream-sync-mode, buffering limits, mute, text-track identifier,
	// render-frame, video-master). Property names are the GStreamer property
	// strings; values are whatever the property carries.
	SetProperty(name string, value any) error
	GetProperty(name string) (any, error)

	// Stats reports frames rendered and dropped for h's sink.
	Stats(h AppsrcHandle) (rendered, dropped uint64, err error)
}

// ProtectionRef is the minimal view of protection.Metadata the backend
// needs to wrap a buffer with a GstMeta-equivalent; internal/playback
// supplies it, keeping gstbackend free of a dependency on
// internal/protection's Store.
type ProtectionRef struct {
	KeySessionID   uint32
	KeyID          []byte
	IV             []byte
	InitWithLast15 bool
}
