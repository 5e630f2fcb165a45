// Package playback implements the per-source playback context and task
// factory — the heart of the Session Server. Every mutation of a session
// runs as a task on that session's internal/executor queue; the GStreamer
// pipeline and the DRM decryptor are injected collaborators.
package playback

import (
	"fmt"

	"github.com/rdkcentral/rialto-sub011/internal/flush"
	"github.com/rdkcentral/rialto-sub011/internal/gstbackend"
	"github.com/rdkcentral/rialto-sub011/internal/shm"
)

// MediaSourceType identifies one attachable source within a session.
type MediaSourceType uint8

const (
	SourceUnknown MediaSourceType = iota
	SourceAudio
	SourceVideo
	SourceSubtitle
)

// String returns the string representation of the source type.
func (t MediaSourceType) String() string {
	switch t {
	case SourceAudio:
		return "Audio"
	case SourceVideo:
		return "Video"
	case SourceSubtitle:
		return "Subtitle"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// SourceID is unique within one session; a remove+re-attach of the same
// type always yields a fresh id.
type SourceID uint32

// PlaybackState is the client-observable playback state carried by
// PlaybackStateChanged events.
type PlaybackState int

const (
	PlaybackUnknown PlaybackState = iota
	PlaybackIdle
	PlaybackPlaying
	PlaybackPaused
	PlaybackStopped
	PlaybackEndOfStream
	PlaybackFailure
	PlaybackSeeking
	PlaybackFlushed
)

// String returns the string representation of the playback state.
func (s PlaybackState) String() string {
	switch s {
	case PlaybackIdle:
		return "Idle"
	case PlaybackPlaying:
		return "Playing"
	case PlaybackPaused:
		return "Paused"
	case PlaybackStopped:
		return "Stopped"
	case PlaybackEndOfStream:
		return "EndOfStream"
	case PlaybackFailure:
		return "Failure"
	case PlaybackSeeking:
		return "Seeking"
	case PlaybackFlushed:
		return "Flushed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// NetworkState is the client-observable network state carried by
// NetworkStateChanged events.
type NetworkState int

const (
	NetworkUnknown NetworkState = iota
	NetworkIdle
	NetworkBuffering
	NetworkBuffered
	NetworkStalled
	NetworkFormatError
	NetworkNetworkError
	NetworkDecodeError
)

// String returns the string representation of the network state.
func (s NetworkState) String() string {
	switch s {
	case NetworkIdle:
		return "Idle"
	case NetworkBuffering:
		return "Buffering"
	case NetworkBuffered:
		return "Buffered"
	case NetworkStalled:
		return "Stalled"
	case NetworkFormatError:
		return "FormatError"
	case NetworkNetworkError:
		return "NetworkError"
	case NetworkDecodeError:
		return "DecodeError"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// MediaType distinguishes the two load modes the Load operation accepts.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeMSE
)

// AudioConfig carries the optional audio parameters of an attach.
type AudioConfig struct {
	Channels            uint32
	SampleRate          uint32
	CodecSpecificConfig []byte
}

// VideoGeometry is the window rectangle carried by SetVideoWindow, stored
// as pending_geometry until the pipeline can apply it.
type VideoGeometry struct {
	X, Y, Width, Height int
}

// HaveDataStatus is the client's verdict on an outstanding NeedData cycle.
type HaveDataStatus int

const (
	HaveDataOk HaveDataStatus = iota
	HaveDataEndOfStream
	HaveDataNoAvailableSamples
	HaveDataError
)

// String returns the string representation of the status.
func (s HaveDataStatus) String() string {
	switch s {
	case HaveDataOk:
		return "Ok"
	case HaveDataEndOfStream:
		return "EndOfStream"
	case HaveDataNoAvailableSamples:
		return "NoAvailableSamples"
	case HaveDataError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// toBackend converts to gstbackend's mirror enum at the collaborator
// boundary.
func (t MediaSourceType) toBackend() gstbackend.MediaSourceType {
	switch t {
	case SourceAudio:
		return gstbackend.MediaAudio
	case SourceVideo:
		return gstbackend.MediaVideo
	case SourceSubtitle:
		return gstbackend.MediaSubtitle
	default:
		return gstbackend.MediaUnknown
	}
}

// toShm converts to shm's mirror enum.
func (t MediaSourceType) toShm() shm.SourceType {
	switch t {
	case SourceAudio:
		return shm.SourceAudio
	case SourceVideo:
		return shm.SourceVideo
	case SourceSubtitle:
		return shm.SourceSubtitle
	default:
		return shm.SourceUnknown
	}
}

// toFlush converts to the flush barrier's mirror enum.
func (t MediaSourceType) toFlush() flush.SourceType {
	switch t {
	case SourceAudio:
		return flush.SourceAudio
	case SourceVideo:
		return flush.SourceVideo
	case SourceSubtitle:
		return flush.SourceSubtitle
	default:
		return flush.SourceUnknown
	}
}

// toFlushState converts a backend pipeline state to the barrier's ordered
// enum.
func toFlushState(s gstbackend.PipelineState) flush.PipelineState {
	switch s {
	case gstbackend.StateReady:
		return flush.StateReady
	case gstbackend.StatePaused:
		return flush.StatePaused
	case gstbackend.StatePlaying:
		return flush.StatePlaying
	default:
		return flush.StateNull
	}
}
