package playback

// ShmInfo is the producer-facing half of one NeedData cycle: the partition
// sub-range the client may write segments into. The client never learns
// the session base offset, only this pair.
type ShmInfo struct {
	Offset uint64
	MaxLen uint64
}

// QosInfo carries the processed/dropped counters from a Qos bus message.
type QosInfo struct {
	Processed uint64
	Dropped   uint64
}

// PlaybackErrorKind distinguishes the error classes surfaced via the
// PlaybackError event.
type PlaybackErrorKind int

const (
	ErrorGeneric PlaybackErrorKind = iota
	ErrorDecryption
)

// EventSink receives the session's client-facing notifications. The
// service layer implements it by emitting Event frames on the owning
// connection; tests implement it with a recording fake. All methods are
// invoked from the session's executor goroutine.
type EventSink interface {
	PlaybackStateChanged(state PlaybackState)
	NetworkStateChanged(state NetworkState)
	PositionChanged(positionNs int64)
	NeedMediaData(sourceID SourceID, frameCount uint32, requestID uint32, shm ShmInfo)
	QosReported(sourceID SourceID, info QosInfo)
	PlaybackError(sourceID SourceID, kind PlaybackErrorKind, message string)
	SourceFlushed(sourceID SourceID)
}

// NopSink discards every notification; used where a session outlives its
// client connection during teardown.
type NopSink struct{}

func (NopSink) PlaybackStateChanged(PlaybackState)                {}
func (NopSink) NetworkStateChanged(NetworkState)                  {}
func (NopSink) PositionChanged(int64)                             {}
func (NopSink) NeedMediaData(SourceID, uint32, uint32, ShmInfo)   {}
func (NopSink) QosReported(SourceID, QosInfo)                     {}
func (NopSink) PlaybackError(SourceID, PlaybackErrorKind, string) {}
func (NopSink) SourceFlushed(SourceID)                            {}
