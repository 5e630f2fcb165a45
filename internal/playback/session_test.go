package playback

import (
	"sync"
	"testing"

	"github.com/rdkcentral/rialto-sub011/internal/gstbackend"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
	"github.com/rdkcentral/rialto-sub011/internal/shm"
)

type needDataEvent struct {
	sourceID  SourceID
	frames    uint32
	requestID uint32
	shm       ShmInfo
}

// recordingSink captures every notification for assertions.
type recordingSink struct {
	mu             sync.Mutex
	playbackStates []PlaybackState
	networkStates  []NetworkState
	needData       []needDataEvent
	flushed        []SourceID
	errors         []string
	qos            []QosInfo
}

func (r *recordingSink) PlaybackStateChanged(s PlaybackState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playbackStates = append(r.playbackStates, s)
}

func (r *recordingSink) NetworkStateChanged(s NetworkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networkStates = append(r.networkStates, s)
}

func (r *recordingSink) PositionChanged(int64) {}

func (r *recordingSink) NeedMediaData(id SourceID, frames, requestID uint32, info ShmInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.needData = append(r.needData, needDataEvent{id, frames, requestID, info})
}

func (r *recordingSink) QosReported(_ SourceID, info QosInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qos = append(r.qos, info)
}

func (r *recordingSink) PlaybackError(_ SourceID, _ PlaybackErrorKind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recordingSink) SourceFlushed(id SourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed = append(r.flushed, id)
}

func (r *recordingSink) needDataCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.needData)
}

func (r *recordingSink) lastNeedData(t *testing.T) needDataEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.needData) == 0 {
		t.Fatal("expected at least one NeedMediaData event")
	}
	return r.needData[len(r.needData)-1]
}

func newTestSession(t *testing.T) (*Session, *gstbackend.Fake, *recordingSink) {
	t.Helper()
	region, err := shm.NewRegion(1 << 20)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	t.Cleanup(func() { region.Close() })

	fake := gstbackend.NewFake()
	sink := &recordingSink{}
	sess, err := NewSession(1, fake, region, sink, 64*1024)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(sess.Destroy)

	if err := sess.Load(MediaTypeMSE, "video/mp4", "mse://1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return sess, fake, sink
}

// drainQueue flushes the session's task queue: tasks run FIFO, so a waited
// no-op observing completion guarantees every earlier fire-and-forget task
// has finished.
func drainQueue(t *testing.T, sess *Session) {
	t.Helper()
	if _, err := sess.GetPosition(); err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
}

func attachAV(t *testing.T, sess *Session) (audio, video SourceID) {
	t.Helper()
	audio, err := sess.AttachSource(SourceConfig{
		Type:        SourceAudio,
		MimeType:    "audio/x-opus",
		AudioConfig: &AudioConfig{Channels: 2, SampleRate: 48000},
	})
	if err != nil {
		t.Fatalf("attach audio: %v", err)
	}
	video, err = sess.AttachSource(SourceConfig{Type: SourceVideo, MimeType: "video/h264"})
	if err != nil {
		t.Fatalf("attach video: %v", err)
	}
	return audio, video
}

func TestAttach_EmptyMimeRejected(t *testing.T) {
	sess, _, _ := newTestSession(t)
	if _, err := sess.AttachSource(SourceConfig{Type: SourceAudio}); !rierr.Is(err, rierr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestAttach_BeforeLoadRejected(t *testing.T) {
	region, err := shm.NewRegion(1 << 20)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	t.Cleanup(func() { region.Close() })
	sess, err := NewSession(7, gstbackend.NewFake(), region, nil, 64*1024)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(sess.Destroy)

	if _, err := sess.AttachSource(SourceConfig{Type: SourceAudio, MimeType: "audio/x-opus"}); !rierr.Is(err, rierr.NotInitialized) {
		t.Fatalf("expected NotInitialized, got %v", err)
	}
}

func TestRemoveReattach_IssuesFreshSourceID(t *testing.T) {
	sess, _, _ := newTestSession(t)
	_, v1 := attachAV(t, sess)

	if err := sess.RemoveSource(v1); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}
	v2, err := sess.AttachSource(SourceConfig{Type: SourceVideo, MimeType: "video/h264"})
	if err != nil {
		t.Fatalf("re-attach video: %v", err)
	}
	if v2 == v1 {
		t.Fatalf("expected a fresh source id after remove+re-attach, got %d twice", v1)
	}
}

func TestSwitch_CompatibleMimeKeepsID(t *testing.T) {
	sess, _, _ := newTestSession(t)
	a1, _ := attachAV(t, sess)

	a2, err := sess.SwitchSource(SourceConfig{Type: SourceAudio, MimeType: "audio/mp4"})
	if err != nil {
		t.Fatalf("SwitchSource: %v", err)
	}
	if a2 != a1 {
		t.Fatalf("compatible mime switch must keep the id: got %d, want %d", a2, a1)
	}
}

func TestSwitch_IncompatibleMimeIssuesNewID(t *testing.T) {
	sess, _, _ := newTestSession(t)
	a1, _ := attachAV(t, sess)

	a2, err := sess.SwitchSource(SourceConfig{Type: SourceAudio, MimeType: "application/x-private"})
	if err != nil {
		t.Fatalf("SwitchSource: %v", err)
	}
	if a2 == a1 {
		t.Fatal("incompatible mime switch must remove and re-attach with a new id")
	}
}

func TestNeedData_Dedupe(t *testing.T) {
	sess, _, sink := newTestSession(t)
	attachAV(t, sess)

	// The bus may request data any number of times while one notification
	// is outstanding; exactly one NeedMediaData reaches the client.
	for i := 0; i < 5; i++ {
		sess.OnNeedData(SourceAudio)
	}
	drainQueue(t, sess)

	if got := sink.needDataCount(); got != 1 {
		t.Fatalf("expected exactly 1 NeedMediaData event, got %d", got)
	}
	ev := sink.lastNeedData(t)
	if ev.frames != defaultFrameCount {
		t.Errorf("expected frame count %d, got %d", defaultFrameCount, ev.frames)
	}
	if ev.shm.MaxLen == 0 {
		t.Error("expected a non-empty partition window")
	}
}

func TestNeedData_SuppressedAfterEOS(t *testing.T) {
	sess, _, sink := newTestSession(t)
	attachAV(t, sess)

	sess.OnNeedData(SourceAudio)
	drainQueue(t, sess)
	ev := sink.lastNeedData(t)

	if err := sess.HaveData(HaveDataEndOfStream, ev.requestID, 0); err != nil {
		t.Fatalf("HaveData: %v", err)
	}
	sess.OnNeedData(SourceAudio)
	drainQueue(t, sess)

	if got := sink.needDataCount(); got != 1 {
		t.Fatalf("need-data after EOS must be suppressed: got %d events", got)
	}
}

func TestFlush_ResetsEOS(t *testing.T) {
	sess, _, sink := newTestSession(t)
	a1, _ := attachAV(t, sess)

	sess.OnNeedData(SourceAudio)
	drainQueue(t, sess)
	ev := sink.lastNeedData(t)
	if err := sess.HaveData(HaveDataEndOfStream, ev.requestID, 0); err != nil {
		t.Fatalf("HaveData: %v", err)
	}

	if err := sess.Flush(a1, true, false); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	sink.mu.Lock()
	flushed := append([]SourceID(nil), sink.flushed...)
	sink.mu.Unlock()
	if len(flushed) != 1 || flushed[0] != a1 {
		t.Fatalf("expected SourceFlushed(%d), got %v", a1, flushed)
	}

	// A subsequent bus need-data on AUDIO now produces exactly one event.
	before := sink.needDataCount()
	sess.OnNeedData(SourceAudio)
	drainQueue(t, sess)
	if got := sink.needDataCount(); got != before+1 {
		t.Fatalf("flush must clear the EOS flag: got %d new events", got-before)
	}
}

func TestHaveData_UnknownRequestSilentlyDropped(t *testing.T) {
	sess, _, sink := newTestSession(t)
	attachAV(t, sess)

	if err := sess.HaveData(HaveDataOk, 999, 4); err != nil {
		t.Fatalf("unknown request must be dropped silently, got %v", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.errors) != 0 {
		t.Fatalf("unexpected errors: %v", sink.errors)
	}
}

func TestHaveData_PushesSegmentsAndSignalsEOS(t *testing.T) {
	sess, fake, sink := newTestSession(t)
	attachAV(t, sess)

	sess.OnNeedData(SourceAudio)
	drainQueue(t, sess)
	ev := sink.lastNeedData(t)

	// Producer side: write two segments into the announced window.
	buf := sess.region.GetBuffer()
	off := ev.shm.Offset
	limit := ev.shm.Offset + ev.shm.MaxLen
	var err error
	for _, payload := range [][]byte{{1, 2, 3}, {4, 5, 6, 7}} {
		off, err = AppendSegment(buf, off, limit, Segment{TimestampNs: 10, DurationNs: 20, Data: payload})
		if err != nil {
			t.Fatalf("AppendSegment: %v", err)
		}
	}
	if err := sess.HaveData(HaveDataOk, ev.requestID, 2); err != nil {
		t.Fatalf("HaveData: %v", err)
	}

	audioHandle := gstbackend.AppsrcHandle(1)
	if got := len(fake.PushedBuffers(audioHandle)); got != 2 {
		t.Fatalf("expected 2 pushed buffers, got %d", got)
	}
	if fake.IsEOSSignaled(audioHandle) {
		t.Fatal("EOS must not be signalled before EndOfStream status")
	}

	// Second cycle ends the stream; no segments left, EOS goes straight out.
	sess.OnNeedData(SourceAudio)
	drainQueue(t, sess)
	ev = sink.lastNeedData(t)
	if err := sess.HaveData(HaveDataEndOfStream, ev.requestID, 0); err != nil {
		t.Fatalf("HaveData EOS: %v", err)
	}
	if !fake.IsEOSSignaled(audioHandle) {
		t.Fatal("expected EOS to be signalled on the appsrc")
	}
}

func TestSeek_DiscardsBufferedDataAndClearsFlags(t *testing.T) {
	sess, fake, sink := newTestSession(t)
	attachAV(t, sess)

	// Reach PAUSED so the seek precondition holds.
	sess.HandleBusMessage(BusMessage{Kind: BusStateChanged, FromPipeline: true, New: gstbackend.StatePaused})
	drainQueue(t, sess)

	sess.OnNeedData(SourceAudio)
	sess.OnNeedData(SourceVideo)
	drainQueue(t, sess)

	const seekPos = int64(4_028_596_027)
	if err := sess.SetPosition(seekPos); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if len(fake.SeekCalls) != 1 {
		t.Fatalf("expected 1 pipeline seek, got %d", len(fake.SeekCalls))
	}
	if fake.SeekCalls[0].PositionNs != seekPos || fake.SeekCalls[0].Rate != 1.0 {
		t.Errorf("seek issued with %+v, want pos=%d rate=1.0", fake.SeekCalls[0], seekPos)
	}

	// need_data_pending was cleared: both sources accept a fresh cycle.
	before := sink.needDataCount()
	sess.OnNeedData(SourceAudio)
	sess.OnNeedData(SourceVideo)
	drainQueue(t, sess)
	if got := sink.needDataCount() - before; got != 2 {
		t.Fatalf("expected 2 fresh NeedMediaData events after seek, got %d", got)
	}
}

func TestSeek_RejectedBelowPaused(t *testing.T) {
	sess, _, _ := newTestSession(t)
	attachAV(t, sess)

	if err := sess.SetPosition(100); !rierr.Is(err, rierr.InvalidArgument) {
		t.Fatalf("seek from NULL must be rejected, got %v", err)
	}
}

func TestSetPlaybackRate_ZeroRejected(t *testing.T) {
	sess, fake, _ := newTestSession(t)

	if err := sess.SetPlaybackRate(0.0); !rierr.Is(err, rierr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if got := fake.Rate(); got != 1.0 {
		t.Fatalf("context must be unchanged, rate is %v", got)
	}
}

func TestSetPlaybackRate_DeferredUntilPlaying(t *testing.T) {
	sess, fake, _ := newTestSession(t)
	attachAV(t, sess)

	sess.HandleBusMessage(BusMessage{Kind: BusStateChanged, FromPipeline: true, New: gstbackend.StatePaused})
	drainQueue(t, sess)

	if err := sess.SetPlaybackRate(1.5); err != nil {
		t.Fatalf("SetPlaybackRate: %v", err)
	}
	if len(fake.RateCalls) != 0 {
		t.Fatal("rate below PLAYING must be stored as pending, not applied")
	}

	sess.HandleBusMessage(BusMessage{Kind: BusStateChanged, FromPipeline: true, New: gstbackend.StatePlaying})
	drainQueue(t, sess)
	if got := fake.Rate(); got != 1.5 {
		t.Fatalf("pending rate must apply on transition to PLAYING, got %v", got)
	}
}

func TestSetPlaybackRate_MethodSelection(t *testing.T) {
	tests := []struct {
		name        string
		amlhalasink bool
		instantSeek bool
		want        gstbackend.RateChangeMethod
	}{
		{"amlhalasink uses segment event", true, true, gstbackend.RateViaSegmentEvent},
		{"instant rate seek when supported", false, true, gstbackend.RateViaInstantSeek},
		{"property fallback", false, false, gstbackend.RateViaProperty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, fake, _ := newTestSession(t)
			fake.AmlhalasinkMode = tt.amlhalasink
			fake.InstantRateSeek = tt.instantSeek

			sess.HandleBusMessage(BusMessage{Kind: BusStateChanged, FromPipeline: true, New: gstbackend.StatePlaying})
			drainQueue(t, sess)
			if err := sess.SetPlaybackRate(2.0); err != nil {
				t.Fatalf("SetPlaybackRate: %v", err)
			}
			if len(fake.RateCalls) != 1 || fake.RateCalls[0].Method != tt.want {
				t.Fatalf("rate calls %+v, want one call with method %v", fake.RateCalls, tt.want)
			}
		})
	}
}

func TestBusMessages_IgnoredUnlessFromPipeline(t *testing.T) {
	sess, _, sink := newTestSession(t)

	sess.HandleBusMessage(BusMessage{Kind: BusStateChanged, New: gstbackend.StatePlaying})
	drainQueue(t, sess)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, st := range sink.playbackStates {
		if st == PlaybackPlaying {
			t.Fatal("message not from the owned pipeline must be ignored")
		}
	}
}

func TestBusQos_RoutedByElementClass(t *testing.T) {
	sess, _, sink := newTestSession(t)
	attachAV(t, sess)

	sess.HandleBusMessage(BusMessage{
		Kind: BusQos, FromPipeline: true,
		SourceClass: "Sink/Video", Qos: QosInfo{Processed: 100, Dropped: 3},
	})
	sess.HandleBusMessage(BusMessage{
		Kind: BusQos, FromPipeline: true,
		SourceClass: "Filter/Converter", Qos: QosInfo{Processed: 7},
	})
	drainQueue(t, sess)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.qos) != 1 || sink.qos[0].Dropped != 3 {
		t.Fatalf("expected exactly the video Qos report, got %+v", sink.qos)
	}
}

func TestBusEOS_NotifiesEndOfStream(t *testing.T) {
	sess, _, sink := newTestSession(t)

	sess.HandleBusMessage(BusMessage{Kind: BusEOS, FromPipeline: true})
	drainQueue(t, sess)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, st := range sink.playbackStates {
		if st == PlaybackEndOfStream {
			found = true
		}
	}
	if !found {
		t.Fatal("expected PlaybackState EndOfStream")
	}
}

func TestUnderflow_TriggersNeedDataCycle(t *testing.T) {
	sess, _, sink := newTestSession(t)
	attachAV(t, sess)

	before := sink.needDataCount()
	sess.HandleBusMessage(BusMessage{Kind: BusUnderflow, FromPipeline: true, UnderflowSource: SourceAudio})
	drainQueue(t, sess)
	if got := sink.needDataCount() - before; got != 1 {
		t.Fatalf("underflow must trigger one need-data cycle, got %d", got)
	}
}

func TestAllSourcesAttached_IssuesNeedDataPerSource(t *testing.T) {
	sess, _, sink := newTestSession(t)
	attachAV(t, sess)

	if err := sess.AllSourcesAttached(); err != nil {
		t.Fatalf("AllSourcesAttached: %v", err)
	}
	if got := sink.needDataCount(); got != 2 {
		t.Fatalf("expected one NeedMediaData per attached source, got %d", got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.networkStates) == 0 || sink.networkStates[len(sink.networkStates)-1] != NetworkBuffering {
		t.Fatalf("expected NetworkState Buffering, got %v", sink.networkStates)
	}
}

func TestSetVolume_Conventions(t *testing.T) {
	sess, fake, _ := newTestSession(t)

	if err := sess.SetVolume(1.5, 0, gstbackend.EaseLinear); !rierr.Is(err, rierr.InvalidArgument) {
		t.Fatalf("volume above 1.0 must be rejected, got %v", err)
	}
	if err := sess.SetVolume(0.25, 0, gstbackend.EaseLinear); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if got := fake.Volume(); got != 0.25 {
		t.Fatalf("immediate linear volume set expected, got %v", got)
	}
	if err := sess.SetVolume(0.75, 200, gstbackend.EaseCubicIn); err != nil {
		t.Fatalf("fade SetVolume: %v", err)
	}
	if got := fake.Volume(); got != 0.75 {
		t.Fatalf("fade must reach target, got %v", got)
	}
}

func TestRegistry_CapacityAndFreshIDs(t *testing.T) {
	region, err := shm.NewRegion(1 << 20)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	t.Cleanup(func() { region.Close() })

	reg := NewRegistry(1)
	id1 := reg.NextID()
	s1, err := NewSession(id1, gstbackend.NewFake(), region, nil, 4096)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := reg.Add(s1); err != nil {
		t.Fatalf("Add: %v", err)
	}

	id2 := reg.NextID()
	if id2 == id1 {
		t.Fatal("session ids must be unique per server lifetime")
	}
	s2, err := NewSession(id2, gstbackend.NewFake(), region, nil, 4096)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := reg.Add(s2); !rierr.Is(err, rierr.ResourceExhausted) {
		t.Fatalf("expected ResourceExhausted at capacity, got %v", err)
	}
	s2.Destroy()

	if got := reg.Remove(id1); got != s1 {
		t.Fatal("Remove must return the live session")
	}
	s1.Destroy()
}
