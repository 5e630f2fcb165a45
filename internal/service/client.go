package service

import (
	"encoding/json"

	"golang.org/x/sys/unix"

	"github.com/rdkcentral/rialto-sub011/internal/ipc/channel"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/codec"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/rpc"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/playback"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// EventHandlers carries the client-side event callbacks; nil members are
// simply not subscribed. Callbacks run on whichever thread drives the
// channel's Process loop.
type EventHandlers struct {
	OnPlaybackStateChanged func(sessionID uint64, state playback.PlaybackState)
	OnNetworkStateChanged  func(sessionID uint64, state playback.NetworkState)
	OnPosition             func(sessionID uint64, positionNs int64)
	OnNeedMediaData        func(ev NeedMediaDataEvent)
	OnQos                  func(ev QosEvent)
	OnPlaybackError        func(ev PlaybackErrorEvent)
	OnSourceFlushed        func(sessionID uint64, sourceID uint32)
	OnApplicationState     func(state string)
}

// Client is the application-process side of the media-pipeline surface:
// typed wrappers over the RPC stub, one per method.
type Client struct {
	stub *rpc.Stub
	ch   *channel.Channel
}

// Dial connects to the Session Server's socket and subscribes the given
// event handlers.
func Dial(socketPath string, handlers EventHandlers) (*Client, error) {
	ch, err := channel.Connect(socketPath, codec.DefaultLimits())
	if err != nil {
		return nil, err
	}
	c := &Client{stub: rpc.NewStub(ch), ch: ch}
	c.subscribe(handlers)
	return c, nil
}

// Channel exposes the underlying channel so the caller can drive its
// Wait/Process loop — the caller owns the loop.
func (c *Client) Channel() *channel.Channel { return c.ch }

// Close tears the connection down; pending calls fail with
// ChannelDisconnected.
func (c *Client) Close() error { return c.ch.Close() }

func (c *Client) subscribe(h EventHandlers) {
	if h.OnPlaybackStateChanged != nil {
		c.stub.Subscribe(EventPlaybackStateChanged, func(payload json.RawMessage, _ []int) {
			var ev PlaybackStateEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				logger.Warn("malformed playback-state event", "error", err)
				return
			}
			h.OnPlaybackStateChanged(ev.SessionID, playback.PlaybackState(ev.State))
		})
	}
	if h.OnNetworkStateChanged != nil {
		c.stub.Subscribe(EventNetworkStateChanged, func(payload json.RawMessage, _ []int) {
			var ev NetworkStateEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				logger.Warn("malformed network-state event", "error", err)
				return
			}
			h.OnNetworkStateChanged(ev.SessionID, playback.NetworkState(ev.State))
		})
	}
	if h.OnPosition != nil {
		c.stub.Subscribe(EventPosition, func(payload json.RawMessage, _ []int) {
			var ev PositionEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return
			}
			h.OnPosition(ev.SessionID, ev.PositionNs)
		})
	}
	if h.OnNeedMediaData != nil {
		c.stub.Subscribe(EventNeedMediaData, func(payload json.RawMessage, _ []int) {
			var ev NeedMediaDataEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				logger.Warn("malformed need-media-data event", "error", err)
				return
			}
			h.OnNeedMediaData(ev)
		})
	}
	if h.OnQos != nil {
		c.stub.Subscribe(EventQos, func(payload json.RawMessage, _ []int) {
			var ev QosEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return
			}
			h.OnQos(ev)
		})
	}
	if h.OnPlaybackError != nil {
		c.stub.Subscribe(EventPlaybackError, func(payload json.RawMessage, _ []int) {
			var ev PlaybackErrorEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return
			}
			h.OnPlaybackError(ev)
		})
	}
	if h.OnSourceFlushed != nil {
		c.stub.Subscribe(EventSourceFlushed, func(payload json.RawMessage, _ []int) {
			var ev SourceFlushedEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return
			}
			h.OnSourceFlushed(ev.SessionID, ev.SourceID)
		})
	}
	if h.OnApplicationState != nil {
		c.stub.Subscribe(EventApplicationStateChanged, func(payload json.RawMessage, _ []int) {
			var ev ApplicationStateEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return
			}
			h.OnApplicationState(ev.State)
		})
	}
}

func (c *Client) CreateSession(maxWidth, maxHeight uint32) (uint64, error) {
	var resp CreateSessionResponse
	err := c.stub.CallWithReply(MethodCreateSession, CreateSessionRequest{MaxWidth: maxWidth, MaxHeight: maxHeight}, &resp)
	return resp.SessionID, err
}

func (c *Client) DestroySession(sessionID uint64) error {
	return c.stub.CallWithReply(MethodDestroySession, SessionRequest{SessionID: sessionID}, nil)
}

func (c *Client) Load(sessionID uint64, mediaType playback.MediaType, mimeType, url string) error {
	return c.stub.CallWithReply(MethodLoad, LoadRequest{
		SessionID: sessionID, MediaType: int(mediaType), MimeType: mimeType, URL: url,
	}, nil)
}

func (c *Client) AttachSource(sessionID uint64, req AttachSourceRequest) (uint32, error) {
	req.SessionID = sessionID
	var resp AttachSourceResponse
	err := c.stub.CallWithReply(MethodAttachSource, req, &resp)
	return resp.SourceID, err
}

func (c *Client) SwitchSource(sessionID uint64, req AttachSourceRequest) (uint32, error) {
	req.SessionID = sessionID
	var resp AttachSourceResponse
	err := c.stub.CallWithReply(MethodSwitchSource, req, &resp)
	return resp.SourceID, err
}

func (c *Client) RemoveSource(sessionID uint64, sourceID uint32) error {
	return c.stub.CallWithReply(MethodRemoveSource, RemoveSourceRequest{SessionID: sessionID, SourceID: sourceID}, nil)
}

func (c *Client) AllSourcesAttached(sessionID uint64) error {
	return c.stub.CallWithReply(MethodAllSourcesAttached, SessionRequest{SessionID: sessionID}, nil)
}

func (c *Client) Play(sessionID uint64) error {
	return c.stub.CallWithReply(MethodPlay, SessionRequest{SessionID: sessionID}, nil)
}

func (c *Client) Pause(sessionID uint64) error {
	return c.stub.CallWithReply(MethodPause, SessionRequest{SessionID: sessionID}, nil)
}

func (c *Client) Stop(sessionID uint64) error {
	return c.stub.CallWithReply(MethodStop, SessionRequest{SessionID: sessionID}, nil)
}

func (c *Client) SetPosition(sessionID uint64, positionNs int64) error {
	return c.stub.CallWithReply(MethodSetPosition, SetPositionRequest{SessionID: sessionID, PositionNs: positionNs}, nil)
}

func (c *Client) GetPosition(sessionID uint64) (int64, error) {
	var resp GetPositionResponse
	err := c.stub.CallWithReply(MethodGetPosition, SessionRequest{SessionID: sessionID}, &resp)
	return resp.PositionNs, err
}

func (c *Client) SetPlaybackRate(sessionID uint64, rate float64) error {
	return c.stub.CallWithReply(MethodSetPlaybackRate, SetPlaybackRateRequest{SessionID: sessionID, Rate: rate}, nil)
}

func (c *Client) SetVideoWindow(sessionID uint64, x, y, width, height int) error {
	return c.stub.CallWithReply(MethodSetVideoWindow, SetVideoWindowRequest{
		SessionID: sessionID, X: x, Y: y, Width: width, Height: height,
	}, nil)
}

func (c *Client) setBool(method rpc.MethodID, sessionID uint64, v bool) error {
	return c.stub.CallWithReply(method, BoolRequest{SessionID: sessionID, Value: v}, nil)
}

func (c *Client) getBool(method rpc.MethodID, sessionID uint64) (bool, error) {
	var resp BoolResponse
	err := c.stub.CallWithReply(method, SessionRequest{SessionID: sessionID}, &resp)
	return resp.Value, err
}

func (c *Client) SetImmediateOutput(sessionID uint64, v bool) error {
	return c.setBool(MethodSetImmediateOutput, sessionID, v)
}
func (c *Client) GetImmediateOutput(sessionID uint64) (bool, error) {
	return c.getBool(MethodGetImmediateOutput, sessionID)
}
func (c *Client) SetLowLatency(sessionID uint64, v bool) error {
	return c.setBool(MethodSetLowLatency, sessionID, v)
}
func (c *Client) SetSync(sessionID uint64, v bool) error    { return c.setBool(MethodSetSync, sessionID, v) }
func (c *Client) GetSync(sessionID uint64) (bool, error)    { return c.getBool(MethodGetSync, sessionID) }
func (c *Client) SetSyncOff(sessionID uint64, v bool) error { return c.setBool(MethodSetSyncOff, sessionID, v) }

func (c *Client) SetStreamSyncMode(sessionID uint64, mode int32) error {
	return c.stub.CallWithReply(MethodSetStreamSyncMode, Int32Request{SessionID: sessionID, Value: mode}, nil)
}

func (c *Client) GetStreamSyncMode(sessionID uint64) (int32, error) {
	var resp Int32Response
	err := c.stub.CallWithReply(MethodGetStreamSyncMode, SessionRequest{SessionID: sessionID}, &resp)
	return resp.Value, err
}

func (c *Client) Flush(sessionID uint64, sourceID uint32, resetTime, async bool) error {
	return c.stub.CallWithReply(MethodFlush, FlushRequest{
		SessionID: sessionID, SourceID: sourceID, ResetTime: resetTime, Async: async,
	}, nil)
}

func (c *Client) SetSourcePosition(sessionID uint64, sourceID uint32, positionNs int64, resetTime bool, appliedRate float64, stopPositionNs int64) error {
	return c.stub.CallWithReply(MethodSetSourcePosition, SetSourcePositionRequest{
		SessionID: sessionID, SourceID: sourceID, PositionNs: positionNs,
		ResetTime: resetTime, AppliedRate: appliedRate, StopPositionNs: stopPositionNs,
	}, nil)
}

func (c *Client) ProcessAudioGap(sessionID uint64, positionNs, durationNs, discontinuityGapNs int64, isAudioAAC bool) error {
	return c.stub.CallWithReply(MethodProcessAudioGap, ProcessAudioGapRequest{
		SessionID: sessionID, PositionNs: positionNs, DurationNs: durationNs,
		DiscontinuityGapNs: discontinuityGapNs, IsAudioAAC: isAudioAAC,
	}, nil)
}

func (c *Client) SetVolume(sessionID uint64, volume float64, durationMs int, easeType int) error {
	return c.stub.CallWithReply(MethodSetVolume, SetVolumeRequest{
		SessionID: sessionID, Volume: volume, DurationMs: durationMs, EaseType: easeType,
	}, nil)
}

func (c *Client) GetVolume(sessionID uint64) (float64, error) {
	var resp GetVolumeResponse
	err := c.stub.CallWithReply(MethodGetVolume, SessionRequest{SessionID: sessionID}, &resp)
	return resp.Volume, err
}

func (c *Client) SetMute(sessionID uint64, muted bool) error {
	return c.setBool(MethodSetMute, sessionID, muted)
}
func (c *Client) GetMute(sessionID uint64) (bool, error) { return c.getBool(MethodGetMute, sessionID) }

func (c *Client) SetTextTrackIdentifier(sessionID uint64, id string) error {
	return c.stub.CallWithReply(MethodSetTextTrackIdentifier, StringRequest{SessionID: sessionID, Value: id}, nil)
}

func (c *Client) GetTextTrackIdentifier(sessionID uint64) (string, error) {
	var resp StringResponse
	err := c.stub.CallWithReply(MethodGetTextTrackIdentifier, SessionRequest{SessionID: sessionID}, &resp)
	return resp.Value, err
}

func (c *Client) SetBufferingLimit(sessionID uint64, limitMs uint32) error {
	return c.stub.CallWithReply(MethodSetBufferingLimit, Uint32Request{SessionID: sessionID, Value: limitMs}, nil)
}

func (c *Client) GetBufferingLimit(sessionID uint64) (uint32, error) {
	var resp Uint32Response
	err := c.stub.CallWithReply(MethodGetBufferingLimit, SessionRequest{SessionID: sessionID}, &resp)
	return resp.Value, err
}

func (c *Client) SetUseBuffering(sessionID uint64, v bool) error {
	return c.setBool(MethodSetUseBuffering, sessionID, v)
}
func (c *Client) GetUseBuffering(sessionID uint64) (bool, error) {
	return c.getBool(MethodGetUseBuffering, sessionID)
}

func (c *Client) GetStats(sessionID uint64, sourceID uint32) (rendered, dropped uint64, err error) {
	var resp GetStatsResponse
	err = c.stub.CallWithReply(MethodGetStats, GetStatsRequest{SessionID: sessionID, SourceID: sourceID}, &resp)
	return resp.RenderedFrames, resp.DroppedFrames, err
}

func (c *Client) IsVideoMaster(sessionID uint64) (bool, error) {
	return c.getBool(MethodIsVideoMaster, sessionID)
}

// HaveData answers the most recent NeedMediaData for one source.
func (c *Client) HaveData(sessionID uint64, status playback.HaveDataStatus, requestID, numFrames uint32) error {
	return c.stub.CallWithReply(MethodHaveData, HaveDataRequest{
		SessionID: sessionID, Status: int(status), RequestID: requestID, NumFrames: numFrames,
	}, nil)
}

func (c *Client) Ping(id uint32) error {
	var resp PingResponse
	if err := c.stub.CallWithReply(MethodPing, PingRequest{ID: id}, &resp); err != nil {
		return err
	}
	return nil
}

func (c *Client) RenderFrame(sessionID uint64) error {
	return c.stub.CallWithReply(MethodRenderFrame, SessionRequest{SessionID: sessionID}, nil)
}

// GetSharedMemory fetches the backing memfd (via SCM_RIGHTS) and its size.
// Ownership of the fd transfers to the caller.
func (c *Client) GetSharedMemory() (fd int, size uint64, err error) {
	var resp GetSharedMemoryResponse
	fds, err := c.stub.CallWithReplyFDs(MethodGetSharedMemory, struct{}{}, &resp)
	if err != nil {
		return -1, 0, err
	}
	if len(fds) != 1 {
		for _, f := range fds {
			_ = unix.Close(f)
		}
		return -1, 0, rierr.Wrap(rierr.ChannelProtocolError, "shared-memory response carried no fd")
	}
	return fds[0], resp.Size, nil
}
