package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/internal/core/particle/snapshot"
)

func testFrame(system string, seq uint64, locations ...mgl32.Vec3) *snapshot.Frame {
	e := snapshot.Emitter{Name: "sparks", ActiveParticleCount: len(locations), MaxDrawCount: -1, Material: "glow"}
	for i, loc := range locations {
		e.Headers = append(e.Headers, particle.Base{Location: loc, Color: mgl32.Vec4{1, 1, 1, 1}})
		e.Indices = append(e.Indices, int32(i))
	}
	return &snapshot.Frame{
		System:   system,
		Sequence: seq,
		Time:     float32(seq) * 0.1,
		Bounds:   bounds.AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}, Valid: true},
		Emitters: []snapshot.Emitter{e},
	}
}

func startTap(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	srv := NewServer(cfg, nil)
	s := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.clients.Range(func(_, value any) bool {
			value.(*clientSession).close()
			return true
		})
		s.Close()
	})
	return srv, s.URL
}

func dial(t *testing.T, base, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(base, "http") + "/frames" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var hello Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, MessageHello, hello.Type)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *FrameSummary {
	t.Helper()
	var msg Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MessageFrame, msg.Type)
	require.NotNil(t, msg.Frame)
	return msg.Frame
}

func TestTapRequiresToken(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Token = "supersecrettoken"
	_, base := startTap(t, cfg)
	u := "ws" + strings.TrimPrefix(base, "http") + "/frames"

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, _, err = websocket.DefaultDialer.Dial(u+"?token=invalid", nil)
	assert.Error(t, err)

	dial(t, base, "?token=supersecrettoken")

	header := http.Header{"Authorization": []string{"Bearer supersecrettoken"}}
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestTapStreamsSummaries(t *testing.T) {
	srv, base := startTap(t, DefaultServerConfig())
	conn := dial(t, base, "")

	require.NoError(t, srv.Record(testFrame("fx", 1, mgl32.Vec3{1, 2, 3}, mgl32.Vec3{4, 5, 6})))
	frame := readFrame(t, conn)
	assert.Equal(t, "fx", frame.System)
	assert.Equal(t, uint64(1), frame.Sequence)
	assert.Equal(t, 2, frame.Particles)
	require.Len(t, frame.Emitters, 1)
	assert.Equal(t, "glow", frame.Emitters[0].Material)
	assert.Equal(t, []mgl32.Vec3{{1, 2, 3}, {4, 5, 6}}, frame.Emitters[0].Positions)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, frame.BoundsMax)

	stats := srv.GetStats()
	assert.Equal(t, int64(1), stats.Clients)
	assert.Equal(t, uint64(1), stats.Sent)
}

func TestTapStreamsEncodedFrames(t *testing.T) {
	srv, base := startTap(t, DefaultServerConfig())
	conn := dial(t, base, "?format=gob")

	require.NoError(t, srv.Record(testFrame("fx", 7, mgl32.Vec3{1, 0, 0})))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)

	var frame snapshot.Frame
	require.NoError(t, frame.Deserialize(data))
	assert.Equal(t, uint64(7), frame.Sequence)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, frame.Emitters[0].Particle(0).Location)
}

func TestTapFiltersBySystem(t *testing.T) {
	srv, base := startTap(t, DefaultServerConfig())
	conn := dial(t, base, "?system=smoke")

	require.NoError(t, srv.Record(testFrame("fx", 1)))
	require.NoError(t, srv.Record(testFrame("smoke", 2)))
	frame := readFrame(t, conn)
	assert.Equal(t, "smoke", frame.System)
	assert.Equal(t, uint64(2), frame.Sequence)
}

func TestTapControlMessages(t *testing.T) {
	srv, base := startTap(t, DefaultServerConfig())
	conn := dial(t, base, "")

	var session *clientSession
	srv.clients.Range(func(_, value any) bool {
		session = value.(*clientSession)
		return false
	})
	require.NotNil(t, session)

	require.NoError(t, conn.WriteJSON(ControlMessage{Action: ActionPause}))
	require.Eventually(t, func() bool { return !session.wants("fx") }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ControlMessage{Action: ActionSubscribe, System: "smoke"}))
	require.NoError(t, conn.WriteJSON(ControlMessage{Action: ActionResume}))
	require.Eventually(t, func() bool { return session.wants("smoke") }, time.Second, 5*time.Millisecond)
	assert.False(t, session.wants("fx"))
}

func TestTapForwardsEveryNthFrame(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Every = 2
	srv, base := startTap(t, cfg)
	conn := dial(t, base, "")

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, srv.Record(testFrame("fx", seq)))
	}
	assert.Equal(t, uint64(1), readFrame(t, conn).Sequence)
	assert.Equal(t, uint64(3), readFrame(t, conn).Sequence)
	assert.Equal(t, uint64(3), srv.GetStats().Received)
}

func TestLatestEndpoint(t *testing.T) {
	srv, base := startTap(t, DefaultServerConfig())

	resp, err := http.Get(base + "/latest")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, srv.Record(testFrame("fx", 4, mgl32.Vec3{})))
	resp, err = http.Get(base + "/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var latest FrameSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	assert.Equal(t, uint64(4), latest.Sequence)
	assert.Equal(t, 1, latest.Particles)
}

func TestSummaryRespectsDrawLimit(t *testing.T) {
	f := testFrame("fx", 1, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{2, 0, 0}, mgl32.Vec3{3, 0, 0})
	f.Emitters[0].MaxDrawCount = 2
	summary := Summarize(f)
	assert.Equal(t, 3, summary.Emitters[0].Active)
	assert.Len(t, summary.Emitters[0].Positions, 2)
}

func TestServerLifecycle(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	srv := NewServer(cfg, nil)

	assert.ErrorIs(t, srv.Stop(context.Background()), ErrServerNotRunning)
	require.NoError(t, srv.Start(context.Background()))
	require.NotNil(t, srv.Addr())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerAlreadyRunning)

	resp, err := http.Get("http://" + srv.Addr().String() + "/healthz")
	require.NoError(t, err)
	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	_ = resp.Body.Close()
	assert.True(t, stats.Running)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)
	assert.ErrorIs(t, srv.Record(testFrame("fx", 1)), ErrServerClosed)
}
