package playback

import (
	"github.com/rdkcentral/rialto-sub011/internal/executor"
	"github.com/rdkcentral/rialto-sub011/internal/flush"
	"github.com/rdkcentral/rialto-sub011/internal/gstbackend"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/needdata"
	"github.com/rdkcentral/rialto-sub011/internal/protection"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
	"github.com/rdkcentral/rialto-sub011/internal/shm"
)

// defaultFrameCount is how many frames one NeedData cycle asks the client
// for.
const defaultFrameCount = 24

// attachableTypes is the fixed GENERIC-playback partition layout: one
// sub-partition per attachable media type.
var attachableTypes = []shm.SourceType{shm.SourceAudio, shm.SourceVideo, shm.SourceSubtitle}

// Session owns one playback pipeline and the per-source contexts attached
// to it. All mutable state below the exec field is touched only by tasks
// running on the session's executor goroutine; public methods enqueue those
// tasks and, where a result is needed, wait for them.
type Session struct {
	id       uint64
	exec     *executor.Executor
	client   executor.ClientID
	pipeline gstbackend.Pipeline
	region   *shm.Region
	events   EventSink

	barrier   *flush.Controller
	watcher   *flush.Watcher
	needData  *needdata.Mapping
	protStore *protection.Store
	decryptor protection.Decryptor

	// executor-goroutine-only state.
	loaded        bool
	sources       map[MediaSourceType]*Source
	nextSourceID  SourceID
	nextRequestID uint32
	nextSegmentID protection.SegmentID
	currentState  gstbackend.PipelineState
	targetState   gstbackend.PipelineState
	playbackRate  float64

	pendingPlaybackRate    float64 // 0 means none pending (0 is not a legal rate)
	pendingGeometry        *VideoGeometry
	pendingImmediateOutput *bool
	pendingLowLatency      *bool
	pendingSync            *bool
	pendingStreamSyncMode  *int32
	pendingBufferingLimit  *uint32

	eosSet   map[MediaSourceType]struct{}
	requests map[uint32]MediaSourceType // outstanding request_id -> source type
}

// NewSession creates a session, starts its executor goroutine and maps its
// shared-memory partition (one sub-partition per attachable type, each
// subPartitionLen bytes).
func NewSession(id uint64, pipeline gstbackend.Pipeline, region *shm.Region, events EventSink, subPartitionLen uint64) (*Session, error) {
	if events == nil {
		events = NopSink{}
	}
	if err := region.MapPartition(shm.PlaybackGeneric, id, attachableTypes, subPartitionLen); err != nil {
		return nil, err
	}
	s := &Session{
		id:           id,
		exec:         executor.New(),
		pipeline:     pipeline,
		region:       region,
		events:       events,
		barrier:      flush.NewController(),
		watcher:      flush.NewWatcher(),
		needData:     needdata.NewMapping(),
		protStore:    protection.NewStore(),
		sources:      make(map[MediaSourceType]*Source),
		playbackRate: 1.0,
		eosSet:       make(map[MediaSourceType]struct{}),
		requests:     make(map[uint32]MediaSourceType),
	}
	s.client = s.exec.RegisterClient()
	return s, nil
}

// ID returns the session's server-unique id.
func (s *Session) ID() uint64 { return s.id }

// SetDecryptor injects the DRM decryptor collaborator. Wrappers are
// injected at session creation and never replaced during a session's
// lifetime; the service layer calls this exactly once, before the first
// encrypted segment can arrive.
func (s *Session) SetDecryptor(d protection.Decryptor) {
	s.exec.EnqueueAndWait(s.client, func() { s.decryptor = d })
}

// SetEvents swaps the session's event sink; used by the service layer when a
// client reconnects or goes away. Runs as a task so the swap never races a
// notification in flight.
func (s *Session) SetEvents(events EventSink) {
	if events == nil {
		events = NopSink{}
	}
	s.exec.EnqueueAndWait(s.client, func() { s.events = events })
}

// Destroy tears the session down: sources removed, executor drained and
// joined, partition unmapped. Idempotent only at the registry level —
// callers must not Destroy twice.
func (s *Session) Destroy() {
	s.exec.EnqueueAndWait(s.client, func() {
		for _, src := range s.sources {
			if !src.removed {
				s.removeSourceLocked(src)
			}
		}
	})
	s.barrier.Reset()
	s.exec.UnregisterClient(s.client)
	s.exec.Shutdown()
	s.exec.Join()
	s.region.UnmapPartition(s.id)
	logger.Info("session destroyed", "session_id", s.id)
}

// WaitIfFlushing blocks the calling (non-executor) data-injection thread
// while a flush for source's type is waiting on the pipeline to re-reach
// its target state. Exposed for collaborators that push from GStreamer
// streaming threads; tasks on the executor use the non-blocking check
// instead.
func (s *Session) WaitIfFlushing(t MediaSourceType) {
	s.barrier.WaitIfRequired(t.toFlush())
}

// sourceByID resolves id against the attached, non-removed sources.
func (s *Session) sourceByID(id SourceID) *Source {
	for _, src := range s.sources {
		if src.id == id && !src.removed {
			return src
		}
	}
	return nil
}

// allocRequestID hands out the next HaveData request id.
func (s *Session) allocRequestID() uint32 {
	s.nextRequestID++
	return s.nextRequestID
}

// allocSegmentID hands out the next protection-store segment identity.
func (s *Session) allocSegmentID() protection.SegmentID {
	s.nextSegmentID++
	return s.nextSegmentID
}

// partitionOf returns the source type's sub-partition slice, or nil when
// none is mapped.
func (s *Session) partitionOf(t MediaSourceType) ([]byte, ShmInfo) {
	maxLen := s.region.GetMaxDataLen(shm.PlaybackGeneric, s.id, t.toShm())
	if maxLen == 0 {
		return nil, ShmInfo{}
	}
	off := s.region.GetDataOffset(shm.PlaybackGeneric, s.id, t.toShm())
	return s.region.GetBuffer()[off : off+maxLen], ShmInfo{Offset: off, MaxLen: maxLen}
}

// notInitialized is the shared gate most playback operations sit behind.
func (s *Session) notInitialized(op string) error {
	if s.loaded {
		return nil
	}
	logger.Warn("operation before Load", "session_id", s.id, "op", op)
	return rierr.Wrap(rierr.NotInitialized, op+" before Load")
}
