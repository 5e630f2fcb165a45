package service

import (
	"encoding/json"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rdkcentral/rialto-sub011/internal/config"
	"github.com/rdkcentral/rialto-sub011/internal/gstbackend"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/rpc"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/server"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/playback"
	"github.com/rdkcentral/rialto-sub011/internal/protection"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
	"github.com/rdkcentral/rialto-sub011/internal/shm"
)

// PipelineFactory builds the injected pipeline collaborator for one new
// session; it is called once per CreateSession and the result is never
// replaced for that session's lifetime.
type PipelineFactory func() gstbackend.Pipeline

// Service is the Session Server's media-pipeline RPC surface: it owns the
// session registry and the shared-memory region and translates every
// request into a call on the playback core.
type Service struct {
	disp        *rpc.Dispatcher
	reg         *playback.Registry
	region      *shm.Region
	cfg         *config.Config
	newPipeline PipelineFactory
	decryptor   protection.Decryptor
	partLen     uint64

	// conns maps a session to its owning connection. Event sinks resolve
	// through this map at emit time, so no Channel ever holds a strong
	// reference to a Session and vice versa.
	mu    sync.Mutex
	conns map[uint64]*server.Connection
}

// New builds a Service and registers every method handler on disp.
// decryptor may be nil on platforms without DRM.
func New(disp *rpc.Dispatcher, region *shm.Region, cfg *config.Config, factory PipelineFactory, decryptor protection.Decryptor) *Service {
	s := &Service{
		disp:        disp,
		reg:         playback.NewRegistry(cfg.MaxPlaybacks),
		region:      region,
		cfg:         cfg,
		newPipeline: factory,
		decryptor:   decryptor,
		partLen:     cfg.SharedMemoryBufferLen / uint64(cfg.MaxPlaybacks) / 3,
		conns:       make(map[uint64]*server.Connection),
	}
	s.registerHandlers()
	return s
}

// Session resolves a live session by id; exported for the Session Server
// entry point, which feeds pipeline bus messages into it.
func (s *Service) Session(id uint64) *playback.Session {
	return s.reg.Get(id)
}

// HandleDisconnect destroys every session owned by conn: the session's
// Control went away. The Session Server entry point wires this to the
// server's client-disconnected callback.
func (s *Service) HandleDisconnect(conn *server.Connection) {
	s.mu.Lock()
	var orphaned []uint64
	for id, c := range s.conns {
		if c == conn {
			orphaned = append(orphaned, id)
			delete(s.conns, id)
		}
	}
	s.mu.Unlock()

	for _, id := range orphaned {
		if sess := s.reg.Remove(id); sess != nil {
			sess.SetEvents(nil)
			sess.Destroy()
			logger.Info("session destroyed on client disconnect", "session_id", id)
		}
	}
}

// NotifyApplicationState broadcasts an ApplicationStateChanged event to
// every connected client; driven by the Server Manager's control channel.
func (s *Service) NotifyApplicationState(state string) {
	s.mu.Lock()
	seen := make(map[*server.Connection]bool)
	var targets []*server.Connection
	for _, c := range s.conns {
		if !seen[c] {
			seen[c] = true
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := s.disp.Emit(c, EventApplicationStateChanged, ApplicationStateEvent{State: state}, nil); err != nil {
			logger.Warn("failed to emit application state", "error", err)
		}
	}
}

// connSink adapts the dispatcher's Emit path to playback.EventSink for one
// session. It holds only the raw session identity; the owning connection
// is resolved through the service's conns map at emit time.
type connSink struct {
	svc       *Service
	sessionID uint64
}

func (c *connSink) emit(method rpc.MethodID, payload any) {
	c.svc.mu.Lock()
	conn := c.svc.conns[c.sessionID]
	c.svc.mu.Unlock()
	if conn == nil {
		return
	}
	if err := c.svc.disp.Emit(conn, method, payload, nil); err != nil {
		logger.Warn("event emit failed", "session_id", c.sessionID, "method", method, "error", err)
	}
}

func (c *connSink) PlaybackStateChanged(state playback.PlaybackState) {
	c.emit(EventPlaybackStateChanged, PlaybackStateEvent{SessionID: c.sessionID, State: int(state)})
}

func (c *connSink) NetworkStateChanged(state playback.NetworkState) {
	c.emit(EventNetworkStateChanged, NetworkStateEvent{SessionID: c.sessionID, State: int(state)})
}

func (c *connSink) PositionChanged(positionNs int64) {
	c.emit(EventPosition, PositionEvent{SessionID: c.sessionID, PositionNs: positionNs})
}

func (c *connSink) NeedMediaData(sourceID playback.SourceID, frameCount, requestID uint32, info playback.ShmInfo) {
	c.emit(EventNeedMediaData, NeedMediaDataEvent{
		SessionID:  c.sessionID,
		SourceID:   uint32(sourceID),
		FrameCount: frameCount,
		RequestID:  requestID,
		ShmOffset:  info.Offset,
		ShmMaxLen:  info.MaxLen,
	})
}

func (c *connSink) QosReported(sourceID playback.SourceID, info playback.QosInfo) {
	c.emit(EventQos, QosEvent{
		SessionID: c.sessionID,
		SourceID:  uint32(sourceID),
		Processed: info.Processed,
		Dropped:   info.Dropped,
	})
}

func (c *connSink) PlaybackError(sourceID playback.SourceID, kind playback.PlaybackErrorKind, message string) {
	c.emit(EventPlaybackError, PlaybackErrorEvent{
		SessionID: c.sessionID,
		SourceID:  uint32(sourceID),
		Kind:      int(kind),
		Message:   message,
	})
}

func (c *connSink) SourceFlushed(sourceID playback.SourceID) {
	c.emit(EventSourceFlushed, SourceFlushedEvent{SessionID: c.sessionID, SourceID: uint32(sourceID)})
}

func closeAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// session decodes a body that leads with session_id and resolves it.
func (s *Service) session(params json.RawMessage) (*playback.Session, error) {
	var req SessionRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, rierr.Wrap(rierr.InvalidArgument, "malformed session request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	return sess, nil
}

func (s *Service) registerHandlers() {
	s.disp.Register(MethodCreateSession, s.handleCreateSession)
	s.disp.Register(MethodDestroySession, s.handleDestroySession)
	s.disp.Register(MethodLoad, s.handleLoad)
	s.disp.Register(MethodAttachSource, s.handleAttachSource)
	s.disp.Register(MethodSwitchSource, s.handleAttachSource)
	s.disp.Register(MethodRemoveSource, s.handleRemoveSource)
	s.disp.Register(MethodAllSourcesAttached, s.sessionOp(func(sess *playback.Session, _ json.RawMessage) error {
		return sess.AllSourcesAttached()
	}))
	s.disp.Register(MethodPlay, s.sessionOp(func(sess *playback.Session, _ json.RawMessage) error { return sess.Play() }))
	s.disp.Register(MethodPause, s.sessionOp(func(sess *playback.Session, _ json.RawMessage) error { return sess.Pause() }))
	s.disp.Register(MethodStop, s.sessionOp(func(sess *playback.Session, _ json.RawMessage) error { return sess.Stop() }))
	s.disp.Register(MethodSetPosition, s.handleSetPosition)
	s.disp.Register(MethodGetPosition, s.handleGetPosition)
	s.disp.Register(MethodSetPlaybackRate, s.handleSetPlaybackRate)
	s.disp.Register(MethodSetVideoWindow, s.handleSetVideoWindow)
	s.disp.Register(MethodSetImmediateOutput, s.boolOp((*playback.Session).SetImmediateOutput))
	s.disp.Register(MethodGetImmediateOutput, s.boolGet((*playback.Session).GetImmediateOutput))
	s.disp.Register(MethodSetLowLatency, s.boolOp((*playback.Session).SetLowLatency))
	s.disp.Register(MethodSetSync, s.boolOp((*playback.Session).SetSync))
	s.disp.Register(MethodGetSync, s.boolGet((*playback.Session).GetSync))
	s.disp.Register(MethodSetSyncOff, s.boolOp((*playback.Session).SetSyncOff))
	s.disp.Register(MethodSetStreamSyncMode, s.handleSetStreamSyncMode)
	s.disp.Register(MethodGetStreamSyncMode, s.handleGetStreamSyncMode)
	s.disp.Register(MethodFlush, s.handleFlush)
	s.disp.Register(MethodSetSourcePosition, s.handleSetSourcePosition)
	s.disp.Register(MethodProcessAudioGap, s.handleProcessAudioGap)
	s.disp.Register(MethodSetVolume, s.handleSetVolume)
	s.disp.Register(MethodGetVolume, s.handleGetVolume)
	s.disp.Register(MethodSetMute, s.boolOp((*playback.Session).SetMute))
	s.disp.Register(MethodGetMute, s.boolGet((*playback.Session).GetMute))
	s.disp.Register(MethodSetTextTrackIdentifier, s.handleSetTextTrack)
	s.disp.Register(MethodGetTextTrackIdentifier, s.handleGetTextTrack)
	s.disp.Register(MethodSetBufferingLimit, s.handleSetBufferingLimit)
	s.disp.Register(MethodGetBufferingLimit, s.handleGetBufferingLimit)
	s.disp.Register(MethodSetUseBuffering, s.boolOp((*playback.Session).SetUseBuffering))
	s.disp.Register(MethodGetUseBuffering, s.boolGet((*playback.Session).GetUseBuffering))
	s.disp.Register(MethodGetStats, s.handleGetStats)
	s.disp.Register(MethodIsVideoMaster, s.boolGet((*playback.Session).IsVideoMaster))
	s.disp.Register(MethodHaveData, s.handleHaveData)
	s.disp.Register(MethodPing, s.handlePing)
	s.disp.Register(MethodRenderFrame, s.sessionOp(func(sess *playback.Session, _ json.RawMessage) error { return sess.RenderFrame() }))
	s.disp.Register(MethodGetSharedMemory, s.handleGetSharedMemory)
}

// sessionOp wraps a session-scoped operation with the shared decode /
// resolve / ok-reply plumbing.
func (s *Service) sessionOp(op func(*playback.Session, json.RawMessage) error) rpc.HandlerFunc {
	return func(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
		closeAll(fds)
		sess, err := s.session(params)
		if err != nil {
			return nil, nil, err
		}
		if err := op(sess, params); err != nil {
			return nil, nil, err
		}
		return OkResponse{Ok: true}, nil, nil
	}
}

func (s *Service) boolOp(op func(*playback.Session, bool) error) rpc.HandlerFunc {
	return func(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
		closeAll(fds)
		var req BoolRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed request")
		}
		sess := s.reg.Get(req.SessionID)
		if sess == nil {
			return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
		}
		if err := op(sess, req.Value); err != nil {
			return nil, nil, err
		}
		return OkResponse{Ok: true}, nil, nil
	}
}

func (s *Service) boolGet(op func(*playback.Session) (bool, error)) rpc.HandlerFunc {
	return func(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
		closeAll(fds)
		sess, err := s.session(params)
		if err != nil {
			return nil, nil, err
		}
		v, err := op(sess)
		if err != nil {
			return nil, nil, err
		}
		return BoolResponse{Value: v}, nil, nil
	}
}

func (s *Service) handleCreateSession(conn *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req CreateSessionRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed create-session request")
	}

	id := s.reg.NextID()
	sink := &connSink{svc: s, sessionID: id}
	sess, err := playback.NewSession(id, s.newPipeline(), s.region, sink, s.partLen)
	if err != nil {
		return nil, nil, err
	}
	if s.decryptor != nil {
		sess.SetDecryptor(s.decryptor)
	}
	if err := s.reg.Add(sess); err != nil {
		sess.Destroy()
		return nil, nil, err
	}
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()

	logger.Info("session created", "session_id", id,
		"max_width", req.MaxWidth, "max_height", req.MaxHeight,
		"peer_pid", conn.Peer.PID)
	return CreateSessionResponse{SessionID: id}, nil, nil
}

func (s *Service) handleDestroySession(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req SessionRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed destroy-session request")
	}
	sess := s.reg.Remove(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	s.mu.Lock()
	delete(s.conns, req.SessionID)
	s.mu.Unlock()
	sess.Destroy()
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleLoad(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req LoadRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed load request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.Load(playback.MediaType(req.MediaType), req.MimeType, req.URL); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleAttachSource(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req AttachSourceRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed attach-source request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	id, err := sess.AttachSource(req.toSourceConfig())
	if err != nil {
		return nil, nil, err
	}
	return AttachSourceResponse{SourceID: uint32(id)}, nil, nil
}

func (s *Service) handleRemoveSource(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req RemoveSourceRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed remove-source request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.RemoveSource(playback.SourceID(req.SourceID)); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleSetPosition(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req SetPositionRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed set-position request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.SetPosition(req.PositionNs); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleGetPosition(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	sess, err := s.session(params)
	if err != nil {
		return nil, nil, err
	}
	pos, err := sess.GetPosition()
	if err != nil {
		return nil, nil, err
	}
	return GetPositionResponse{PositionNs: pos}, nil, nil
}

func (s *Service) handleSetPlaybackRate(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req SetPlaybackRateRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed set-playback-rate request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.SetPlaybackRate(req.Rate); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleSetVideoWindow(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req SetVideoWindowRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed set-video-window request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.SetVideoWindow(playback.VideoGeometry{X: req.X, Y: req.Y, Width: req.Width, Height: req.Height}); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleSetStreamSyncMode(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req Int32Request
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.SetStreamSyncMode(req.Value); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleGetStreamSyncMode(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	sess, err := s.session(params)
	if err != nil {
		return nil, nil, err
	}
	v, err := sess.GetStreamSyncMode()
	if err != nil {
		return nil, nil, err
	}
	return Int32Response{Value: v}, nil, nil
}

func (s *Service) handleFlush(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req FlushRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed flush request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.Flush(playback.SourceID(req.SourceID), req.ResetTime, req.Async); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleSetSourcePosition(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req SetSourcePositionRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed set-source-position request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.SetSourcePosition(playback.SourceID(req.SourceID), req.PositionNs, req.ResetTime, req.AppliedRate, req.StopPositionNs); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleProcessAudioGap(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req ProcessAudioGapRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed process-audio-gap request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.ProcessAudioGap(req.PositionNs, req.DurationNs, req.DiscontinuityGapNs, req.IsAudioAAC); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleSetVolume(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req SetVolumeRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed set-volume request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.SetVolume(req.Volume, req.DurationMs, gstbackend.VolumeEase(req.EaseType)); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleGetVolume(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	sess, err := s.session(params)
	if err != nil {
		return nil, nil, err
	}
	vol, err := sess.GetVolume()
	if err != nil {
		return nil, nil, err
	}
	return GetVolumeResponse{Volume: vol}, nil, nil
}

func (s *Service) handleSetTextTrack(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req StringRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.SetTextTrackIdentifier(req.Value); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleGetTextTrack(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	sess, err := s.session(params)
	if err != nil {
		return nil, nil, err
	}
	v, err := sess.GetTextTrackIdentifier()
	if err != nil {
		return nil, nil, err
	}
	return StringResponse{Value: v}, nil, nil
}

func (s *Service) handleSetBufferingLimit(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req Uint32Request
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.SetBufferingLimit(req.Value); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handleGetBufferingLimit(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	sess, err := s.session(params)
	if err != nil {
		return nil, nil, err
	}
	v, err := sess.GetBufferingLimit()
	if err != nil {
		return nil, nil, err
	}
	return Uint32Response{Value: v}, nil, nil
}

func (s *Service) handleGetStats(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req GetStatsRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed get-stats request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	rendered, dropped, err := sess.GetStats(playback.SourceID(req.SourceID))
	if err != nil {
		return nil, nil, err
	}
	return GetStatsResponse{RenderedFrames: rendered, DroppedFrames: dropped}, nil, nil
}

func (s *Service) handleHaveData(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req HaveDataRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed have-data request")
	}
	sess := s.reg.Get(req.SessionID)
	if sess == nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "no such session")
	}
	if err := sess.HaveData(playback.HaveDataStatus(req.Status), req.RequestID, req.NumFrames); err != nil {
		return nil, nil, err
	}
	return OkResponse{Ok: true}, nil, nil
}

func (s *Service) handlePing(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	var req PingRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, nil, rierr.Wrap(rierr.InvalidArgument, "malformed ping request")
	}
	return PingResponse{ID: req.ID}, nil, nil
}

// handleGetSharedMemory passes the backing memfd to the client via
// SCM_RIGHTS — the only resource ever passed as an FD, once per mapping.
func (s *Service) handleGetSharedMemory(_ *server.Connection, params json.RawMessage, fds []int) (any, []int, error) {
	closeAll(fds)
	return GetSharedMemoryResponse{Size: s.cfg.SharedMemoryBufferLen}, []int{s.region.FD()}, nil
}
