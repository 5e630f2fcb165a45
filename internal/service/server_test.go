package service

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rdkcentral/rialto-sub011/internal/config"
	"github.com/rdkcentral/rialto-sub011/internal/gstbackend"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/codec"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/rpc"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/server"
	"github.com/rdkcentral/rialto-sub011/internal/playback"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
	"github.com/rdkcentral/rialto-sub011/internal/shm"
)

// eventLog records client-side events for deadline-polled assertions.
type eventLog struct {
	mu             sync.Mutex
	playbackStates []playback.PlaybackState
	networkStates  []playback.NetworkState
	needData       []NeedMediaDataEvent
	flushed        []uint32
}

func (l *eventLog) handlers() EventHandlers {
	return EventHandlers{
		OnPlaybackStateChanged: func(_ uint64, s playback.PlaybackState) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.playbackStates = append(l.playbackStates, s)
		},
		OnNetworkStateChanged: func(_ uint64, s playback.NetworkState) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.networkStates = append(l.networkStates, s)
		},
		OnNeedMediaData: func(ev NeedMediaDataEvent) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.needData = append(l.needData, ev)
		},
		OnSourceFlushed: func(_ uint64, sourceID uint32) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.flushed = append(l.flushed, sourceID)
		},
	}
}

// waitFor polls cond until it holds or the deadline passes.
func (l *eventLog) waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		ok := cond()
		l.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fixture struct {
	svc    *Service
	client *Client
	log    *eventLog
	fakes  []*gstbackend.Fake
	mu     sync.Mutex
}

func (f *fixture) lastFake(t *testing.T) *gstbackend.Fake {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fakes) == 0 {
		t.Fatal("no pipeline created yet")
	}
	return f.fakes[len(f.fakes)-1]
}

func startFixture(t *testing.T) *fixture {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "rialto-0")

	region, err := shm.NewRegion(1 << 20)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	t.Cleanup(func() { region.Close() })

	cfg := config.Default()
	cfg.SharedMemoryBufferLen = 1 << 20

	f := &fixture{log: &eventLog{}}

	var svc *Service
	srv, err := server.New(codec.DefaultLimits(), nil, func(c *server.Connection) {
		if svc != nil {
			svc.HandleDisconnect(c)
		}
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	disp := rpc.NewDispatcher(srv)
	svc = New(disp, region, &cfg, func() gstbackend.Pipeline {
		fake := gstbackend.NewFake()
		f.mu.Lock()
		f.fakes = append(f.fakes, fake)
		f.mu.Unlock()
		return fake
	}, nil)
	f.svc = svc

	if err := srv.Listen(sockPath, server.Permission{Owner: 6, Group: 6, Other: 6}); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			srv.Wait(20)
			if !srv.Process() {
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		srv.Close()
	})

	client, err := Dial(sockPath, f.log.handlers())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	go func() {
		for {
			client.Channel().Wait(20)
			if !client.Channel().Process() {
				return
			}
		}
	}()
	t.Cleanup(func() { client.Close() })
	f.client = client
	return f
}

// newLoadedSession runs the common prelude: create, load, attach audio +
// video.
func (f *fixture) newLoadedSession(t *testing.T) (sessionID uint64, audioID, videoID uint32) {
	t.Helper()
	sessionID, err := f.client.CreateSession(1920, 1080)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := f.client.Load(sessionID, playback.MediaTypeMSE, "video/mp4", "mse://1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	audioID, err = f.client.AttachSource(sessionID, AttachSourceRequest{
		SourceType: int(playback.SourceAudio),
		MimeType:   "audio/x-opus",
		AudioConfig: &AudioConfig{
			Channels:   2,
			SampleRate: 48000,
		},
	})
	if err != nil {
		t.Fatalf("AttachSource audio: %v", err)
	}
	videoID, err = f.client.AttachSource(sessionID, AttachSourceRequest{
		SourceType: int(playback.SourceVideo),
		MimeType:   "video/h264",
	})
	if err != nil {
		t.Fatalf("AttachSource video: %v", err)
	}
	return sessionID, audioID, videoID
}

func TestEndToEnd_HappyPathPlayback(t *testing.T) {
	f := startFixture(t)
	sessionID, audioID, videoID := f.newLoadedSession(t)

	if err := f.client.AllSourcesAttached(sessionID); err != nil {
		t.Fatalf("AllSourcesAttached: %v", err)
	}
	f.log.waitFor(t, "NetworkState Buffering", func() bool {
		for _, s := range f.log.networkStates {
			if s == playback.NetworkBuffering {
				return true
			}
		}
		return false
	})
	f.log.waitFor(t, "one NeedMediaData per source", func() bool {
		seen := map[uint32]bool{}
		for _, ev := range f.log.needData {
			seen[ev.SourceID] = true
		}
		return seen[audioID] && seen[videoID]
	})

	f.log.mu.Lock()
	for _, ev := range f.log.needData {
		if ev.FrameCount != 24 {
			t.Errorf("expected frame count 24, got %d", ev.FrameCount)
		}
		if ev.ShmMaxLen == 0 {
			t.Error("expected a non-empty shm window")
		}
	}
	f.log.mu.Unlock()

	if err := f.client.Play(sessionID); err != nil {
		t.Fatalf("Play: %v", err)
	}
	// The observable Playing transition arrives via the pipeline bus.
	f.svc.Session(sessionID).HandleBusMessage(playback.BusMessage{
		Kind: playback.BusStateChanged, FromPipeline: true, New: gstbackend.StatePlaying,
	})
	f.log.waitFor(t, "PlaybackState Playing", func() bool {
		for _, s := range f.log.playbackStates {
			if s == playback.PlaybackPlaying {
				return true
			}
		}
		return false
	})
}

func TestEndToEnd_RemoveReattachIssuesNewID(t *testing.T) {
	f := startFixture(t)
	sessionID, _, videoID := f.newLoadedSession(t)

	if err := f.client.RemoveSource(sessionID, videoID); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}
	v2, err := f.client.AttachSource(sessionID, AttachSourceRequest{
		SourceType: int(playback.SourceVideo),
		MimeType:   "video/h264",
	})
	if err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	if v2 == videoID {
		t.Fatalf("expected a fresh source id, got %d twice", videoID)
	}
}

func TestEndToEnd_FlushClearsEOS(t *testing.T) {
	f := startFixture(t)
	sessionID, audioID, _ := f.newLoadedSession(t)

	if err := f.client.AllSourcesAttached(sessionID); err != nil {
		t.Fatalf("AllSourcesAttached: %v", err)
	}
	f.log.waitFor(t, "initial NeedMediaData pair", func() bool {
		if len(f.log.needData) < 2 {
			return false
		}
		for _, ev := range f.log.needData {
			if ev.SourceID == audioID {
				return true
			}
		}
		return false
	})
	f.log.mu.Lock()
	var reqID uint32
	for _, ev := range f.log.needData {
		if ev.SourceID == audioID {
			reqID = ev.RequestID
		}
	}
	audioEvents := len(f.log.needData)
	f.log.mu.Unlock()

	if err := f.client.HaveData(sessionID, playback.HaveDataEndOfStream, reqID, 0); err != nil {
		t.Fatalf("HaveData: %v", err)
	}
	if err := f.client.Flush(sessionID, audioID, true, false); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	f.log.waitFor(t, "SourceFlushed", func() bool {
		for _, id := range f.log.flushed {
			if id == audioID {
				return true
			}
		}
		return false
	})

	// A bus need-data on AUDIO now produces exactly one more event.
	f.svc.Session(sessionID).OnNeedData(playback.SourceAudio)
	f.log.waitFor(t, "post-flush NeedMediaData", func() bool {
		return len(f.log.needData) == audioEvents+1
	})
}

func TestEndToEnd_DeferredRateAppliesOnPlaying(t *testing.T) {
	f := startFixture(t)
	sessionID, _, _ := f.newLoadedSession(t)

	f.svc.Session(sessionID).HandleBusMessage(playback.BusMessage{
		Kind: playback.BusStateChanged, FromPipeline: true, New: gstbackend.StatePaused,
	})
	f.log.waitFor(t, "PlaybackState Paused", func() bool {
		for _, s := range f.log.playbackStates {
			if s == playback.PlaybackPaused {
				return true
			}
		}
		return false
	})

	if err := f.client.SetPlaybackRate(sessionID, 1.5); err != nil {
		t.Fatalf("SetPlaybackRate: %v", err)
	}
	fake := f.lastFake(t)
	if got := fake.Rate(); got != 1.0 {
		t.Fatalf("rate must stay pending while paused, got %v", got)
	}

	if err := f.client.Play(sessionID); err != nil {
		t.Fatalf("Play: %v", err)
	}
	f.svc.Session(sessionID).HandleBusMessage(playback.BusMessage{
		Kind: playback.BusStateChanged, FromPipeline: true, New: gstbackend.StatePlaying,
	})
	f.log.waitFor(t, "PlaybackState Playing", func() bool {
		for _, s := range f.log.playbackStates {
			if s == playback.PlaybackPlaying {
				return true
			}
		}
		return false
	})
	if got := fake.Rate(); got != 1.5 {
		t.Fatalf("expected observable rate 1.5 after Playing, got %v", got)
	}
}

func TestEndToEnd_ZeroRateRejected(t *testing.T) {
	f := startFixture(t)
	sessionID, _, _ := f.newLoadedSession(t)

	err := f.client.SetPlaybackRate(sessionID, 0.0)
	if !rierr.Is(err, rierr.RpcCallFailed) {
		t.Fatalf("expected the controller set failed, got %v", err)
	}
}

func TestEndToEnd_UnknownSessionRejected(t *testing.T) {
	f := startFixture(t)
	if err := f.client.Play(12345); !rierr.Is(err, rierr.RpcCallFailed) {
		t.Fatalf("expected RpcCallFailed for unknown session, got %v", err)
	}
}

func TestEndToEnd_PingAndSharedMemory(t *testing.T) {
	f := startFixture(t)

	if err := f.client.Ping(7); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	fd, size, err := f.client.GetSharedMemory()
	if err != nil {
		t.Fatalf("GetSharedMemory: %v", err)
	}
	defer unix.Close(fd)
	if size != 1<<20 {
		t.Errorf("expected size %d, got %d", 1<<20, size)
	}
	// The passed fd maps the same region the server carves partitions from.
	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		t.Fatalf("client-side mmap of passed fd: %v", err)
	}
	defer unix.Munmap(buf)
}

func TestEndToEnd_DestroySessionReleasesCapacity(t *testing.T) {
	f := startFixture(t)
	sessionID, _, _ := f.newLoadedSession(t)

	if err := f.client.DestroySession(sessionID); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	if err := f.client.Play(sessionID); !rierr.Is(err, rierr.RpcCallFailed) {
		t.Fatalf("destroyed session must be unknown, got %v", err)
	}
	if f.svc.Session(sessionID) != nil {
		t.Fatal("registry must not hold a destroyed session")
	}
}
