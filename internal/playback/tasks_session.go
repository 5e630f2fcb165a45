package playback

import (
	"strings"

	"github.com/rdkcentral/rialto-sub011/internal/gstbackend"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/mediahelp"
	"github.com/rdkcentral/rialto-sub011/internal/needdata"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
	"github.com/rdkcentral/rialto-sub011/internal/shm"
)

// Load initialises the pipeline for the given media type/mime/url and
// applies any settings the client pushed before Load as pending values.
func (s *Session) Load(mediaType MediaType, mimeType, url string) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if mediaType == MediaTypeUnknown {
			err = rierr.Wrap(rierr.InvalidArgument, "unknown media type")
			return
		}
		s.loaded = true
		s.applyPendingLocked()
		s.events.NetworkStateChanged(NetworkIdle)
		s.events.PlaybackStateChanged(PlaybackIdle)
		logger.Info("session loaded", "session_id", s.id, "mime", mimeType, "url", url)
	})
	return err
}

func (s *Session) applyPendingLocked() {
	if g := s.pendingGeometry; g != nil {
		_ = s.pipeline.SetProperty("video-window", *g)
		s.pendingGeometry = nil
	}
	if v := s.pendingImmediateOutput; v != nil {
		_ = s.pipeline.SetProperty("immediate-output", *v)
		s.pendingImmediateOutput = nil
	}
	if v := s.pendingLowLatency; v != nil {
		_ = s.pipeline.SetProperty("low-latency", *v)
		s.pendingLowLatency = nil
	}
	if v := s.pendingSync; v != nil {
		_ = s.pipeline.SetProperty("sync", *v)
		s.pendingSync = nil
	}
	if v := s.pendingStreamSyncMode; v != nil {
		_ = s.pipeline.SetProperty("stream-sync-mode", *v)
		s.pendingStreamSyncMode = nil
	}
	if v := s.pendingBufferingLimit; v != nil {
		_ = s.pipeline.SetProperty("limit-buffering-ms", *v)
		s.pendingBufferingLimit = nil
	}
}

// Play requests the PLAYING transition; the observable PlaybackStateChanged
// arrives via the bus once the pipeline actually gets there.
func (s *Session) Play() error {
	return s.setTargetState(gstbackend.StatePlaying, "Play")
}

// Pause requests the PAUSED transition.
func (s *Session) Pause() error {
	return s.setTargetState(gstbackend.StatePaused, "Pause")
}

// Stop requests the NULL transition.
func (s *Session) Stop() error {
	return s.setTargetState(gstbackend.StateNull, "Stop")
}

func (s *Session) setTargetState(target gstbackend.PipelineState, op string) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized(op); err != nil {
			return
		}
		s.targetState = target
		s.barrier.SetTargetState(toFlushState(target))
		err = s.pipeline.SetState(target)
	})
	return err
}

// SetPosition is the session-wide seek: every buffered segment is
// discarded, every need-data and eos flag cleared, and a pipeline seek is
// issued at the configured playback rate.
func (s *Session) SetPosition(positionNs int64) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("SetPosition"); err != nil {
			return
		}
		if s.currentState != gstbackend.StatePlaying && s.currentState != gstbackend.StatePaused {
			err = rierr.Wrap(rierr.InvalidArgument, "pipeline state does not permit seek")
			return
		}
		s.events.PlaybackStateChanged(PlaybackSeeking)
		for _, src := range s.sources {
			src.buffered = nil
			src.needDataPending = false
			src.eosRequested = false
			src.eosNotified = false
			s.needData.ClearScheduled(needdata.AppsrcID(src.handle))
			s.region.ClearData(shm.PlaybackGeneric, s.id, src.sourceType.toShm())
		}
		s.requests = make(map[uint32]MediaSourceType)
		s.eosSet = make(map[MediaSourceType]struct{})
		err = s.pipeline.Seek(positionNs, s.playbackRate)
	})
	return err
}

// GetPosition reports the pipeline's current position.
func (s *Session) GetPosition() (int64, error) {
	var pos int64
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("GetPosition"); err != nil {
			return
		}
		pos, err = s.pipeline.Position()
	})
	return pos, err
}

// SetPlaybackRate applies the new rate, or stores it as pending when the
// pipeline is below PLAYING. Rate 0.0 is rejected.
func (s *Session) SetPlaybackRate(rate float64) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if rate == 0.0 {
			err = rierr.Wrap(rierr.InvalidArgument, "playback rate must be non-zero")
			return
		}
		if err = s.notInitialized("SetPlaybackRate"); err != nil {
			return
		}
		if s.currentState != gstbackend.StatePlaying {
			s.pendingPlaybackRate = rate
			logger.Debug("playback rate deferred until PLAYING",
				"session_id", s.id, "rate", rate)
			return
		}
		err = s.applyRateLocked(rate)
	})
	return err
}

func (s *Session) applyRateLocked(rate float64) error {
	method := gstbackend.RateViaProperty
	switch {
	case s.pipeline.IsAmlhalasink():
		method = gstbackend.RateViaSegmentEvent
	case s.pipeline.SupportsInstantRateSeek():
		method = gstbackend.RateViaInstantSeek
	}
	if err := s.pipeline.ApplyPlaybackRate(rate, method); err != nil {
		return err
	}
	s.playbackRate = rate
	return nil
}

// PlaybackRate reports the current effective rate, for tests and GetStats
// siblings.
func (s *Session) PlaybackRate() float64 {
	var rate float64
	s.exec.EnqueueAndWait(s.client, func() { rate = s.playbackRate })
	return rate
}

// SetVolume collapses the three calling conventions onto one operation:
// immediate Linear at duration 0 is a plain property set, everything else
// goes through the platform fade helper.
func (s *Session) SetVolume(target float64, durationMs int, ease gstbackend.VolumeEase) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if target < 0.0 || target > 1.0 {
			err = rierr.Wrap(rierr.InvalidArgument, "volume out of [0.0, 1.0]")
			return
		}
		if err = s.notInitialized("SetVolume"); err != nil {
			return
		}
		if durationMs == 0 && ease == gstbackend.EaseLinear {
			err = s.pipeline.SetVolume(target)
			return
		}
		err = s.pipeline.FadeVolume(target, durationMs, ease)
	})
	return err
}

// GetVolume reads the current volume.
func (s *Session) GetVolume() (float64, error) {
	var vol float64
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("GetVolume"); err != nil {
			return
		}
		vol, err = s.pipeline.GetVolume()
	})
	return vol, err
}

// SetVideoWindow stores the rectangle as pending until Load, then applies
// it as a pipeline property.
func (s *Session) SetVideoWindow(geom VideoGeometry) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if !s.loaded {
			g := geom
			s.pendingGeometry = &g
			return
		}
		err = s.pipeline.SetProperty("video-window", geom)
	})
	return err
}

// boolProp is the shared shape of the immediate-output / low-latency /
// sync setters: pending before Load, a property set after.
func (s *Session) boolProp(name string, value bool, pending **bool) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if !s.loaded {
			v := value
			*pending = &v
			return
		}
		err = s.pipeline.SetProperty(name, value)
	})
	return err
}

func (s *Session) getBoolProp(name string) (bool, error) {
	var out bool
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("get " + name); err != nil {
			return
		}
		var v any
		if v, err = s.pipeline.GetProperty(name); err == nil {
			out, _ = v.(bool)
		}
	})
	return out, err
}

// SetImmediateOutput / GetImmediateOutput.
func (s *Session) SetImmediateOutput(v bool) error {
	return s.boolProp("immediate-output", v, &s.pendingImmediateOutput)
}
func (s *Session) GetImmediateOutput() (bool, error) { return s.getBoolProp("immediate-output") }

// SetLowLatency.
func (s *Session) SetLowLatency(v bool) error {
	return s.boolProp("low-latency", v, &s.pendingLowLatency)
}

// SetSync / GetSync / SetSyncOff.
func (s *Session) SetSync(v bool) error       { return s.boolProp("sync", v, &s.pendingSync) }
func (s *Session) GetSync() (bool, error)     { return s.getBoolProp("sync") }
func (s *Session) SetSyncOff(v bool) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("SetSyncOff"); err != nil {
			return
		}
		err = s.pipeline.SetProperty("syncoff", v)
	})
	return err
}

// SetStreamSyncMode / GetStreamSyncMode.
func (s *Session) SetStreamSyncMode(mode int32) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if !s.loaded {
			m := mode
			s.pendingStreamSyncMode = &m
			return
		}
		err = s.pipeline.SetProperty("stream-sync-mode", mode)
	})
	return err
}
func (s *Session) GetStreamSyncMode() (int32, error) {
	var out int32
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("GetStreamSyncMode"); err != nil {
			return
		}
		var v any
		if v, err = s.pipeline.GetProperty("stream-sync-mode"); err == nil {
			out, _ = v.(int32)
		}
	})
	return out, err
}

// SetBufferingLimit / GetBufferingLimit.
func (s *Session) SetBufferingLimit(limitMs uint32) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if !s.loaded {
			l := limitMs
			s.pendingBufferingLimit = &l
			return
		}
		err = s.pipeline.SetProperty("limit-buffering-ms", limitMs)
	})
	return err
}
func (s *Session) GetBufferingLimit() (uint32, error) {
	var out uint32
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("GetBufferingLimit"); err != nil {
			return
		}
		var v any
		if v, err = s.pipeline.GetProperty("limit-buffering-ms"); err == nil {
			out, _ = v.(uint32)
		}
	})
	return out, err
}

// SetUseBuffering / GetUseBuffering.
func (s *Session) SetUseBuffering(v bool) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		err = s.pipeline.SetProperty("use-buffering", v)
	})
	return err
}
func (s *Session) GetUseBuffering() (bool, error) { return s.getBoolProp("use-buffering") }

// SetMute / GetMute.
func (s *Session) SetMute(muted bool) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("SetMute"); err != nil {
			return
		}
		err = s.pipeline.SetProperty("mute", muted)
	})
	return err
}
func (s *Session) GetMute() (bool, error) { return s.getBoolProp("mute") }

// SetTextTrackIdentifier / GetTextTrackIdentifier.
func (s *Session) SetTextTrackIdentifier(id string) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("SetTextTrackIdentifier"); err != nil {
			return
		}
		err = s.pipeline.SetProperty("text-track-identifier", id)
	})
	return err
}
func (s *Session) GetTextTrackIdentifier() (string, error) {
	var out string
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("GetTextTrackIdentifier"); err != nil {
			return
		}
		var v any
		if v, err = s.pipeline.GetProperty("text-track-identifier"); err == nil {
			out, _ = v.(string)
		}
	})
	return out, err
}

// IsVideoMaster reports whether the platform runs video as the master
// clock; platforms that don't expose the property default to true.
func (s *Session) IsVideoMaster() (bool, error) {
	var out bool
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("IsVideoMaster"); err != nil {
			return
		}
		v, perr := s.pipeline.GetProperty("video-master")
		if perr != nil {
			out = true
			return
		}
		out, _ = v.(bool)
	})
	return out, err
}

// RenderFrame steps a single video frame while paused.
func (s *Session) RenderFrame() error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("RenderFrame"); err != nil {
			return
		}
		err = s.pipeline.SetProperty("frame-step-on-preroll", true)
	})
	return err
}

// ProcessAudioGap delegates to the platform helper: silence matching the
// gap duration is synthesised and injected on the audio appsrc, preserving
// the audio timeline.
func (s *Session) ProcessAudioGap(positionNs, durationNs, discontinuityGapNs int64, isAudioAac bool) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("ProcessAudioGap"); err != nil {
			return
		}
		src, ok := s.sources[SourceAudio]
		if !ok || src.removed {
			err = rierr.Wrap(rierr.InvalidArgument, "no audio source attached")
			return
		}
		filler := mediahelp.GapFiller{SampleRate: 48000, Channels: 2}
		if src.audio != nil {
			filler.SampleRate = src.audio.SampleRate
			filler.Channels = uint16(src.audio.Channels)
		}
		codec := gapCodecFor(src.mimeType, isAudioAac)
		silence := filler.Fill(durationNs, codec)
		if len(silence) == 0 {
			return
		}
		err = s.pipeline.PushBuffer(src.handle, silence, nil)
		logger.Debug("audio gap filled",
			"session_id", s.id,
			"position_ns", positionNs,
			"duration_ns", durationNs,
			"discontinuity_gap_ns", discontinuityGapNs,
			"bytes", len(silence))
	})
	return err
}

func gapCodecFor(mime string, isAudioAac bool) mediahelp.AudioCodec {
	switch {
	case isAudioAac:
		return mediahelp.CodecAAC
	case strings.Contains(mime, "mulaw"):
		return mediahelp.CodecG711Ulaw
	case strings.Contains(mime, "alaw"):
		return mediahelp.CodecG711Alaw
	default:
		return mediahelp.CodecPCM
	}
}

// BusKind discriminates the pipeline bus messages the session handles.
type BusKind int

const (
	BusEOS BusKind = iota
	BusStateChanged
	BusQos
	BusError
	BusUnderflow
	BusStreamCollection
)

// BusMessage is the decoded bus message handed to HandleBusMessage by the
// pipeline collaborator. FromPipeline is false for messages whose src is
// some other element — those are freed and ignored.
type BusMessage struct {
	Kind         BusKind
	FromPipeline bool

	Old, New, Pending gstbackend.PipelineState // BusStateChanged

	SourceClass string  // BusQos: element class metadata, e.g. "Sink/Audio"
	Qos         QosInfo // BusQos

	ErrorMessage string // BusError

	UnderflowSource MediaSourceType // BusUnderflow
}

// HandleBusMessage translates pipeline bus messages into state updates
// and client notifications. Fire-and-forget: the bus thread never blocks
// on the session.
func (s *Session) HandleBusMessage(msg BusMessage) {
	s.exec.Enqueue(s.client, func() { s.handleBusLocked(msg) })
}

func (s *Session) handleBusLocked(msg BusMessage) {
	if !msg.FromPipeline {
		return
	}
	switch msg.Kind {
	case BusEOS:
		s.events.PlaybackStateChanged(PlaybackEndOfStream)
	case BusStateChanged:
		s.stateChangedLocked(msg.New)
	case BusQos:
		t := classToSourceType(msg.SourceClass)
		src, ok := s.sources[t]
		if t == SourceUnknown || !ok || src.removed {
			logger.Debug("qos for unknown element class, dropping",
				"session_id", s.id, "class", msg.SourceClass)
			return
		}
		s.events.QosReported(src.id, msg.Qos)
	case BusError:
		s.events.PlaybackError(0, ErrorGeneric, msg.ErrorMessage)
		s.events.PlaybackStateChanged(PlaybackFailure)
	case BusUnderflow:
		src, ok := s.sources[msg.UnderflowSource]
		if !ok || src.removed {
			return
		}
		src.underflowOccurred = true
		s.events.NetworkStateChanged(NetworkStalled)
		s.needDataLocked(src)
	case BusStreamCollection:
		// Informational only; stream selection is negotiated at attach time.
	}
}

func (s *Session) stateChangedLocked(next gstbackend.PipelineState) {
	s.currentState = next
	s.barrier.StateReached(toFlushState(next))

	switch next {
	case gstbackend.StateNull, gstbackend.StateReady:
		s.events.PlaybackStateChanged(PlaybackStopped)
	case gstbackend.StatePaused:
		s.events.PlaybackStateChanged(PlaybackPaused)
	case gstbackend.StatePlaying:
		if s.pendingPlaybackRate != 0 {
			if err := s.applyRateLocked(s.pendingPlaybackRate); err != nil {
				logger.Warn("deferred rate apply failed",
					"session_id", s.id, "rate", s.pendingPlaybackRate, "error", err)
			}
			s.pendingPlaybackRate = 0
		}
		s.events.PlaybackStateChanged(PlaybackPlaying)
	}

	// An async flush waiting on this state is now complete: release the
	// watcher entries and drain whatever buffered segments the barrier was
	// holding back.
	if next == s.targetState {
		for _, src := range s.sources {
			if src.removed {
				continue
			}
			if s.watcher.IsFlushing(src.sourceType.toFlush()) {
				s.watcher.ClearFlushing(src.sourceType.toFlush())
			}
			if len(src.buffered) > 0 || src.eosRequested && !src.eosNotified {
				s.drainBufferedLocked(src)
			}
		}
	}
}

// classToSourceType maps a Qos message's element-class metadata onto the
// source it belongs to.
func classToSourceType(class string) MediaSourceType {
	switch {
	case strings.Contains(class, "Audio"):
		return SourceAudio
	case strings.Contains(class, "Video"):
		return SourceVideo
	case strings.Contains(class, "Subtitle"), strings.Contains(class, "Text"):
		return SourceSubtitle
	default:
		return SourceUnknown
	}
}
