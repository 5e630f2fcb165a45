package service

import "github.com/rdkcentral/rialto-sub011/internal/playback"

// Request/response bodies. Field names are the wire contract; every struct
// here is serialised as the envelope's params or the response frame body.

type CreateSessionRequest struct {
	MaxWidth  uint32 `json:"max_width"`
	MaxHeight uint32 `json:"max_height"`
}

type CreateSessionResponse struct {
	SessionID uint64 `json:"session_id"`
}

type SessionRequest struct {
	SessionID uint64 `json:"session_id"`
}

type LoadRequest struct {
	SessionID uint64 `json:"session_id"`
	MediaType int    `json:"media_type"`
	MimeType  string `json:"mime_type"`
	URL       string `json:"url"`
}

type AudioConfig struct {
	Channels            uint32 `json:"channels"`
	SampleRate          uint32 `json:"sample_rate"`
	CodecSpecificConfig []byte `json:"codec_specific_config,omitempty"`
}

type AttachSourceRequest struct {
	SessionID          uint64       `json:"session_id"`
	SourceType         int          `json:"source_type"`
	MimeType           string       `json:"mime_type"`
	AudioConfig        *AudioConfig `json:"audio_config,omitempty"`
	CodecData          []byte       `json:"codec_data,omitempty"`
	IsDRM              bool         `json:"is_drm"`
	DolbyVisionProfile *uint32      `json:"dolby_vision_profile,omitempty"`
	TextTrackID        string       `json:"text_track_id,omitempty"`
}

type AttachSourceResponse struct {
	SourceID uint32 `json:"source_id"`
}

type RemoveSourceRequest struct {
	SessionID uint64 `json:"session_id"`
	SourceID  uint32 `json:"source_id"`
}

type SetPositionRequest struct {
	SessionID  uint64 `json:"session_id"`
	PositionNs int64  `json:"position_ns"`
}

type GetPositionResponse struct {
	PositionNs int64 `json:"position_ns"`
}

type SetPlaybackRateRequest struct {
	SessionID uint64  `json:"session_id"`
	Rate      float64 `json:"rate"`
}

type SetVideoWindowRequest struct {
	SessionID uint64 `json:"session_id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type BoolRequest struct {
	SessionID uint64 `json:"session_id"`
	Value     bool   `json:"value"`
}

type BoolResponse struct {
	Value bool `json:"value"`
}

type Int32Request struct {
	SessionID uint64 `json:"session_id"`
	Value     int32  `json:"value"`
}

type Int32Response struct {
	Value int32 `json:"value"`
}

type Uint32Request struct {
	SessionID uint64 `json:"session_id"`
	Value     uint32 `json:"value"`
}

type Uint32Response struct {
	Value uint32 `json:"value"`
}

type StringRequest struct {
	SessionID uint64 `json:"session_id"`
	Value     string `json:"value"`
}

type StringResponse struct {
	Value string `json:"value"`
}

type FlushRequest struct {
	SessionID uint64 `json:"session_id"`
	SourceID  uint32 `json:"source_id"`
	ResetTime bool   `json:"reset_time"`
	Async     bool   `json:"async"`
}

type SetSourcePositionRequest struct {
	SessionID      uint64  `json:"session_id"`
	SourceID       uint32  `json:"source_id"`
	PositionNs     int64   `json:"position_ns"`
	ResetTime      bool    `json:"reset_time"`
	AppliedRate    float64 `json:"applied_rate"`
	StopPositionNs int64   `json:"stop_position_ns"`
}

type ProcessAudioGapRequest struct {
	SessionID          uint64 `json:"session_id"`
	PositionNs         int64  `json:"position_ns"`
	DurationNs         int64  `json:"duration_ns"`
	DiscontinuityGapNs int64  `json:"discontinuity_gap_ns"`
	IsAudioAAC         bool   `json:"is_audio_aac"`
}

type SetVolumeRequest struct {
	SessionID  uint64  `json:"session_id"`
	Volume     float64 `json:"volume"`
	DurationMs int     `json:"duration_ms"`
	EaseType   int     `json:"ease_type"`
}

type GetVolumeResponse struct {
	Volume float64 `json:"volume"`
}

type GetStatsRequest struct {
	SessionID uint64 `json:"session_id"`
	SourceID  uint32 `json:"source_id"`
}

type GetStatsResponse struct {
	RenderedFrames uint64 `json:"rendered_frames"`
	DroppedFrames  uint64 `json:"dropped_frames"`
}

type HaveDataRequest struct {
	SessionID uint64 `json:"session_id"`
	Status    int    `json:"status"`
	RequestID uint32 `json:"request_id"`
	NumFrames uint32 `json:"num_frames"`
}

type PingRequest struct {
	ID uint32 `json:"id"`
}

type PingResponse struct {
	ID uint32 `json:"id"`
}

type GetSharedMemoryResponse struct {
	Size uint64 `json:"size"`
}

type OkResponse struct {
	Ok bool `json:"ok"`
}

// Event payloads.

type PlaybackStateEvent struct {
	SessionID uint64 `json:"session_id"`
	State     int    `json:"state"`
}

type NetworkStateEvent struct {
	SessionID uint64 `json:"session_id"`
	State     int    `json:"state"`
}

type PositionEvent struct {
	SessionID  uint64 `json:"session_id"`
	PositionNs int64  `json:"position_ns"`
}

type NeedMediaDataEvent struct {
	SessionID  uint64 `json:"session_id"`
	SourceID   uint32 `json:"source_id"`
	FrameCount uint32 `json:"frame_count"`
	RequestID  uint32 `json:"request_id"`
	ShmOffset  uint64 `json:"shm_offset"`
	ShmMaxLen  uint64 `json:"shm_max_len"`
}

type QosEvent struct {
	SessionID uint64 `json:"session_id"`
	SourceID  uint32 `json:"source_id"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
}

type PlaybackErrorEvent struct {
	SessionID uint64 `json:"session_id"`
	SourceID  uint32 `json:"source_id"`
	Kind      int    `json:"kind"`
	Message   string `json:"message"`
}

type SourceFlushedEvent struct {
	SessionID uint64 `json:"session_id"`
	SourceID  uint32 `json:"source_id"`
}

type ApplicationStateEvent struct {
	State string `json:"state"`
}

// toSourceConfig converts the wire attach request into the playback type.
func (r AttachSourceRequest) toSourceConfig() playback.SourceConfig {
	cfg := playback.SourceConfig{
		Type:               playback.MediaSourceType(r.SourceType),
		MimeType:           r.MimeType,
		CodecData:          r.CodecData,
		IsDRM:              r.IsDRM,
		DolbyVisionProfile: r.DolbyVisionProfile,
		TextTrackID:        r.TextTrackID,
	}
	if r.AudioConfig != nil {
		cfg.AudioConfig = &playback.AudioConfig{
			Channels:            r.AudioConfig.Channels,
			SampleRate:          r.AudioConfig.SampleRate,
			CodecSpecificConfig: r.AudioConfig.CodecSpecificConfig,
		}
	}
	return cfg
}
