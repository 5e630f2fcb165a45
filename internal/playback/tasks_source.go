package playback

import (
	"strings"

	"github.com/rdkcentral/rialto-sub011/internal/gstbackend"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/needdata"
	"github.com/rdkcentral/rialto-sub011/internal/protection"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
	"github.com/rdkcentral/rialto-sub011/internal/shm"
)

// AttachSource builds caps from the config, creates the appsrc and records
// a fresh SourceContext. Re-attaching a type that already has a live
// context is a switch: compatible mime keeps the appsrc (and the id),
// incompatible mime removes the old source first and issues a new id.
func (s *Session) AttachSource(cfg SourceConfig) (SourceID, error) {
	var id SourceID
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		id, err = s.attachSourceLocked(cfg)
	})
	return id, err
}

// SwitchSource is the explicit codec-channel-switch operation; it shares
// the attach path, which already treats a live same-type context as a
// switch.
func (s *Session) SwitchSource(cfg SourceConfig) (SourceID, error) {
	return s.AttachSource(cfg)
}

func (s *Session) attachSourceLocked(cfg SourceConfig) (SourceID, error) {
	if cfg.MimeType == "" {
		return 0, rierr.Wrap(rierr.InvalidArgument, "empty mime-type on attach")
	}
	if err := s.notInitialized("AttachSource"); err != nil {
		return 0, err
	}
	if cfg.Type == SourceUnknown {
		return 0, rierr.Wrap(rierr.InvalidArgument, "unknown media source type")
	}

	if existing, ok := s.sources[cfg.Type]; ok && !existing.removed {
		if mimeCompatible(existing.mimeType, cfg.MimeType) {
			// In-place switch: caps updated, buffers keep flowing, id kept.
			if err := s.pipeline.UpdateCaps(existing.handle, s.capsFor(cfg)); err != nil {
				return 0, err
			}
			existing.mimeType = cfg.MimeType
			existing.audio = cfg.AudioConfig
			existing.isDRM = cfg.IsDRM
			logger.Info("source switched in place",
				"session_id", s.id, "source_id", existing.id, "mime", cfg.MimeType)
			return existing.id, nil
		}
		s.removeSourceLocked(existing)
	}

	handle, err := s.pipeline.CreateAppsrc(s.capsFor(cfg))
	if err != nil {
		s.events.PlaybackError(0, ErrorGeneric, "attach failed: "+err.Error())
		return 0, err
	}

	s.nextSourceID++
	src := &Source{
		sourceType: cfg.Type,
		id:         s.nextSourceID,
		mimeType:   cfg.MimeType,
		audio:      cfg.AudioConfig,
		isDRM:      cfg.IsDRM,
		handle:     handle,
		state:      StateAttached,
	}
	s.sources[cfg.Type] = src
	logger.Info("source attached",
		"session_id", s.id,
		"source_id", src.id,
		"source_type", cfg.Type.String(),
		"mime", cfg.MimeType,
		"drm", cfg.IsDRM)
	return src.id, nil
}

func (s *Session) capsFor(cfg SourceConfig) gstbackend.Caps {
	caps := gstbackend.Caps{
		MimeType:   cfg.MimeType,
		SourceType: cfg.Type.toBackend(),
		CodecData:  cfg.CodecData,
		IsDRM:      cfg.IsDRM,
	}
	if cfg.AudioConfig != nil {
		caps.AudioConfig = &gstbackend.AudioConfig{
			Channels:            cfg.AudioConfig.Channels,
			SampleRate:          cfg.AudioConfig.SampleRate,
			CodecSpecificConfig: cfg.AudioConfig.CodecSpecificConfig,
		}
	}
	return caps
}

// mimeCompatible reports whether a switch can reuse the existing appsrc:
// the media class (the part before '/') must match, the codec may differ —
// that is exactly the codec-channel-switch case.
func mimeCompatible(a, b string) bool {
	ca, _, okA := strings.Cut(a, "/")
	cb, _, okB := strings.Cut(b, "/")
	return okA && okB && ca == cb
}

// RemoveSource invalidates the source's in-flight HaveData requests,
// disables its underflow reporting, flushes its appsrc (reset-time=false)
// and marks it removed. A subsequent attach of the same type issues a new
// SourceID.
func (s *Session) RemoveSource(id SourceID) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		src := s.sourceByID(id)
		if src == nil {
			err = rierr.Wrap(rierr.InvalidArgument, "no such source")
			return
		}
		s.removeSourceLocked(src)
	})
	return err
}

func (s *Session) removeSourceLocked(src *Source) {
	for reqID, t := range s.requests {
		if t == src.sourceType {
			delete(s.requests, reqID)
		}
	}
	s.needData.ClearScheduled(needdata.AppsrcID(src.handle))
	src.resetStreamFlags()

	_ = s.pipeline.FlushStart(src.handle)
	_ = s.pipeline.FlushStop(src.handle, false)
	_ = s.pipeline.RemoveAppsrc(src.handle)

	src.removed = true
	src.transition(StateRemoved)
	delete(s.eosSet, src.sourceType)
	logger.Info("source removed", "session_id", s.id, "source_id", src.id,
		"source_type", src.sourceType.String())
}

// AllSourcesAttached closes the attach phase: the session transitions to
// network Buffering and every attached source gets its first NeedData
// cycle.
func (s *Session) AllSourcesAttached() error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("AllSourcesAttached"); err != nil {
			return
		}
		s.events.NetworkStateChanged(NetworkBuffering)
		for _, src := range s.sources {
			s.needDataLocked(src)
		}
	})
	return err
}

// OnNeedData is the bus-driven entry point: the appsrc for t wants more
// data. Fire-and-forget — duplicate bus events collapse via the dedupe
// mapping.
func (s *Session) OnNeedData(t MediaSourceType) {
	s.exec.Enqueue(s.client, func() {
		src, ok := s.sources[t]
		if !ok || src.removed {
			return
		}
		s.needDataLocked(src)
	})
}

// needDataLocked runs the NeedData rules: skip for EOS-marked sources,
// dedupe while one notification is outstanding, otherwise reserve the
// partition slot and notify the client.
func (s *Session) needDataLocked(src *Source) {
	if _, eos := s.eosSet[src.sourceType]; eos {
		logger.Debug("need-data suppressed, source at EOS",
			"session_id", s.id, "source_id", src.id)
		return
	}
	if !s.needData.SetScheduled(needdata.AppsrcID(src.handle)) {
		return
	}

	// Fresh cycle: the partition is logically emptied so stale producer
	// offsets from the previous cycle cannot leak through.
	s.region.ClearData(shm.PlaybackGeneric, s.id, src.sourceType.toShm())
	_, info := s.partitionOf(src.sourceType)
	if info.MaxLen == 0 {
		s.needData.ClearScheduled(needdata.AppsrcID(src.handle))
		logger.Error("no partition mapped for source",
			"session_id", s.id, "source_type", src.sourceType.String())
		return
	}

	src.needDataPending = true
	reqID := s.allocRequestID()
	s.requests[reqID] = src.sourceType
	s.events.NeedMediaData(src.id, defaultFrameCount, reqID, info)
}

// HaveData answers an outstanding NeedData cycle: segments are read out of
// the partition, wrapped in buffers (protection metadata attached for
// encrypted ones) and pushed; EndOfStream is signalled once the last
// buffered segment has been pushed. An unknown request id is silently
// dropped — it raced a flush or remove.
func (s *Session) HaveData(status HaveDataStatus, requestID uint32, numFrames uint32) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		err = s.haveDataLocked(status, requestID, numFrames)
	})
	return err
}

func (s *Session) haveDataLocked(status HaveDataStatus, requestID uint32, numFrames uint32) error {
	t, ok := s.requests[requestID]
	if !ok {
		logger.Debug("have-data for unknown request, dropping",
			"session_id", s.id, "request_id", requestID)
		return nil
	}
	delete(s.requests, requestID)

	src, ok := s.sources[t]
	if !ok || src.removed {
		return nil
	}
	src.needDataPending = false
	s.needData.ClearScheduled(needdata.AppsrcID(src.handle))

	if s.watcher.IsFlushing(t.toFlush()) {
		// Flushing a source cancels its in-flight HaveData replies.
		logger.Debug("have-data dropped, source flushing",
			"session_id", s.id, "source_id", src.id)
		return nil
	}

	switch status {
	case HaveDataOk:
		part, _ := s.partitionOf(t)
		segs, err := decodeSegments(part, numFrames)
		if err != nil {
			s.events.PlaybackError(src.id, ErrorGeneric, err.Error())
			return err
		}
		src.buffered = append(src.buffered, segs...)
		s.region.ClearData(shm.PlaybackGeneric, s.id, t.toShm())
	case HaveDataEndOfStream:
		src.eosRequested = true
		s.eosSet[t] = struct{}{}
	case HaveDataNoAvailableSamples:
		// Nothing queued this cycle; the next bus need-data restarts it.
	case HaveDataError:
		s.events.PlaybackError(src.id, ErrorGeneric, "client reported have-data error")
	}

	s.drainBufferedLocked(src)
	return nil
}

// drainBufferedLocked pushes src's buffered segments unless the
// flush-on-preroll barrier would stall injection; stalled segments stay
// buffered and are drained again when the pipeline reaches its target
// state. Signals EOS once the last buffered segment is out.
func (s *Session) drainBufferedLocked(src *Source) {
	if s.watcher.IsFlushing(src.sourceType.toFlush()) ||
		(s.barrier.Flushing(src.sourceType.toFlush()) && toFlushState(s.targetState) > toFlushState(s.currentState)) {
		return
	}

	for _, seg := range src.buffered {
		var ref *gstbackend.ProtectionRef
		var segID protection.SegmentID
		if seg.Encrypted {
			segID = s.allocSegmentID()
			s.protStore.Attach(segID, seg.Protection)
			ref = &gstbackend.ProtectionRef{
				KeySessionID:   seg.Protection.KeySessionID,
				KeyID:          seg.Protection.KeyID,
				IV:             seg.Protection.IV,
				InitWithLast15: seg.Protection.InitWithLast15,
			}
		}
		if err := s.pipeline.PushBuffer(src.handle, seg.Data, ref); err != nil {
			s.events.PlaybackError(src.id, ErrorGeneric, "buffer push failed: "+err.Error())
			if seg.Encrypted {
				s.protStore.Remove(segID)
			}
			break
		}
		if seg.Encrypted {
			// The metadata's lifetime ends with the buffer: the decryptor
			// consumes it here, or — with no decryptor wired — it is
			// detached so the buffer passes through as clear.
			if s.decryptor != nil {
				if err := s.protStore.DecryptAndDetach(s.decryptor, segID, seg.Data); err != nil {
					s.events.PlaybackError(src.id, ErrorDecryption, err.Error())
				}
			} else {
				s.protStore.Remove(segID)
			}
		}
	}
	pushed := len(src.buffered) > 0
	src.buffered = nil

	if pushed && src.state == StateAttached {
		src.transition(StateStreaming)
	}
	if src.eosRequested && !src.eosNotified {
		if err := s.pipeline.SignalEOS(src.handle); err == nil {
			src.eosNotified = true
			src.transition(StateEnded)
		}
	}
}

// Flush brackets the source's appsrc with flush-start/flush-stop, discards
// its buffered state and notifies the client once done. The barrier keeps
// fresh data out until the pipeline has re-reached its target state.
func (s *Session) Flush(id SourceID, resetTime bool, async bool) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("Flush"); err != nil {
			return
		}
		src := s.sourceByID(id)
		if src == nil {
			err = rierr.Wrap(rierr.InvalidArgument, "no such source")
			return
		}
		s.flushLocked(src, resetTime, async)
	})
	return err
}

func (s *Session) flushLocked(src *Source, resetTime bool, async bool) {
	t := src.sourceType
	s.watcher.SetFlushing(t.toFlush(), async)
	if toFlushState(s.targetState) > toFlushState(s.currentState) {
		s.barrier.SetFlushing(t.toFlush())
	}

	src.transition(StateFlushing)
	_ = s.pipeline.FlushStart(src.handle)
	_ = s.pipeline.FlushStop(src.handle, resetTime)

	for reqID, rt := range s.requests {
		if rt == t {
			delete(s.requests, reqID)
		}
	}
	s.needData.ClearScheduled(needdata.AppsrcID(src.handle))
	src.resetStreamFlags()
	delete(s.eosSet, t)
	src.transition(StateStreaming)

	if !async {
		s.watcher.ClearFlushing(t.toFlush())
	}
	s.events.SourceFlushed(src.id)
	logger.Info("source flushed", "session_id", s.id, "source_id", src.id,
		"reset_time", resetTime, "async", async)
}

// SetSourcePosition is the per-source seek; it carries resetTime,
// appliedRate and stopPosition through to the pipeline and invalidates
// the source's buffered cycle.
func (s *Session) SetSourcePosition(id SourceID, positionNs int64, resetTime bool, appliedRate float64, stopPositionNs int64) error {
	var err error
	s.exec.EnqueueAndWait(s.client, func() {
		if err = s.notInitialized("SetSourcePosition"); err != nil {
			return
		}
		src := s.sourceByID(id)
		if src == nil {
			err = rierr.Wrap(rierr.InvalidArgument, "no such source")
			return
		}
		if err = s.pipeline.SeekSource(src.handle, positionNs, resetTime, appliedRate, stopPositionNs); err != nil {
			return
		}
		for reqID, rt := range s.requests {
			if rt == src.sourceType {
				delete(s.requests, reqID)
			}
		}
		s.needData.ClearScheduled(needdata.AppsrcID(src.handle))
		src.resetStreamFlags()
		delete(s.eosSet, src.sourceType)
		src.initialPositionSet = true
	})
	return err
}

// GetStats reports frames rendered and dropped for the source's sink.
func (s *Session) GetStats(id SourceID) (rendered, dropped uint64, err error) {
	s.exec.EnqueueAndWait(s.client, func() {
		src := s.sourceByID(id)
		if src == nil {
			err = rierr.Wrap(rierr.InvalidArgument, "no such source")
			return
		}
		rendered, dropped, err = s.pipeline.Stats(src.handle)
	})
	return rendered, dropped, err
}
