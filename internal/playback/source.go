package playback

import (
	"github.com/rdkcentral/rialto-sub011/internal/gstbackend"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
)

// SourceConfig carries the AttachSource inputs.
type SourceConfig struct {
	Type        MediaSourceType
	MimeType    string
	AudioConfig *AudioConfig
	CodecData   []byte
	IsDRM       bool

	// DolbyVisionProfile is nil unless the caller negotiated DolbyVision.
	DolbyVisionProfile *uint32
	// TextTrackID is the subtitle text-track identifier, subtitle-only.
	TextTrackID string
}

// Source is the per-attached-source context.
type Source struct {
	sourceType MediaSourceType
	id         SourceID
	mimeType   string
	audio      *AudioConfig
	isDRM      bool
	handle     gstbackend.AppsrcHandle

	state              SourceState
	needDataPending    bool
	underflowOccurred  bool
	removed            bool
	initialPositionSet bool
	eosRequested       bool
	eosNotified        bool
	buffered           []Segment
}

// ID returns the source's session-unique id.
func (s *Source) ID() SourceID { return s.id }

// Type returns the source's media type.
func (s *Source) Type() MediaSourceType { return s.sourceType }

// State returns the source's current lifecycle state.
func (s *Source) State() SourceState { return s.state }

// transition moves the source to next if the state machine allows it,
// logging and refusing otherwise. Only ever called from the session's
// executor goroutine.
func (s *Source) transition(next SourceState) bool {
	if s.state == next {
		return true
	}
	if !s.state.CanTransitionTo(next) {
		logger.Warn("invalid source state transition",
			"source_type", s.sourceType.String(),
			"source_id", s.id,
			"from", s.state.String(),
			"to", next.String())
		return false
	}
	logger.Debug("source state transition",
		"source_type", s.sourceType.String(),
		"source_id", s.id,
		"from", s.state.String(),
		"to", next.String())
	s.state = next
	return true
}

// resetStreamFlags clears the per-cycle flags a flush or seek invalidates:
// buffered segments, need-data, eos and underflow.
func (s *Source) resetStreamFlags() {
	s.buffered = nil
	s.needDataPending = false
	s.eosRequested = false
	s.eosNotified = false
	s.underflowOccurred = false
}
