// Package service wires the RPC surface onto the playback core:
// server-side handlers on internal/ipc/rpc's dispatcher, and the typed
// client the application process links against.
package service

import "github.com/rdkcentral/rialto-sub011/internal/ipc/rpc"

// Request method ids. The id space is part of the wire contract; ids are
// append-only.
const (
	MethodCreateSession rpc.MethodID = iota + 1
	MethodDestroySession
	MethodLoad
	MethodAttachSource
	MethodRemoveSource
	MethodAllSourcesAttached
	MethodSwitchSource
	MethodPlay
	MethodPause
	MethodStop
	MethodSetPosition
	MethodGetPosition
	MethodSetPlaybackRate
	MethodSetVideoWindow
	MethodSetImmediateOutput
	MethodGetImmediateOutput
	MethodSetLowLatency
	MethodSetSync
	MethodGetSync
	MethodSetSyncOff
	MethodSetStreamSyncMode
	MethodGetStreamSyncMode
	MethodFlush
	MethodSetSourcePosition
	MethodProcessAudioGap
	MethodSetVolume
	MethodGetVolume
	MethodSetMute
	MethodGetMute
	MethodSetTextTrackIdentifier
	MethodGetTextTrackIdentifier
	MethodSetBufferingLimit
	MethodGetBufferingLimit
	MethodSetUseBuffering
	MethodGetUseBuffering
	MethodGetStats
	MethodIsVideoMaster
	MethodHaveData
	MethodPing
	MethodRenderFrame
	MethodGetSharedMemory
)

// Event method ids, offset well clear of the request range.
const (
	EventPlaybackStateChanged rpc.MethodID = iota + 100
	EventNetworkStateChanged
	EventPosition
	EventNeedMediaData
	EventQos
	EventPlaybackError
	EventSourceFlushed
	EventApplicationStateChanged
)
