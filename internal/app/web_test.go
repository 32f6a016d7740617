package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/bus"
	"github.com/relabs-tech/vio_frontend/internal/frontend"
	"github.com/relabs-tech/vio_frontend/internal/pose"
)

type webFixture struct {
	poses *bus.Topic[pose.Sample]
	seeds *bus.Topic[pose.IntegratorSeed]
	web   *Web
	srv   *httptest.Server
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	f := &webFixture{
		poses: bus.NewTopic[pose.Sample]("slow_pose"),
		seeds: bus.NewTopic[pose.IntegratorSeed]("imu_integrator_input"),
	}
	latency := func() frontend.LatencyStats { return frontend.LatencyStats{Slow: 2, Fast: 98} }

	var err error
	f.web, err = NewWeb(f.poses, f.seeds, latency, zap.NewNop().Sugar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = f.web.Track(ctx) }()

	f.srv = httptest.NewServer(f.web.Handler())
	t.Cleanup(func() {
		f.srv.Close()
		cancel()
	})
	return f
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestWebAPI(t *testing.T) {
	f := newWebFixture(t)

	var p pose.Sample
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, f.srv.URL+"/api/pose", &p))
	var s pose.IntegratorSeed
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, f.srv.URL+"/api/seed", &s))

	want := pose.Sample{TimestampNs: 42, Position: [3]float32{1, 2, 3}, Orientation: pose.Quat32{W: 1}}
	f.poses.Publish(want)
	f.seeds.Publish(pose.IntegratorSeed{TimestampS: 0.5, Noise: pose.DefaultNoise()})

	require.Eventually(t, func() bool {
		return getJSON(t, f.srv.URL+"/api/pose", &p) == http.StatusOK
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, p)

	require.Eventually(t, func() bool {
		return getJSON(t, f.srv.URL+"/api/seed", &s) == http.StatusOK
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.5, s.TimestampS)

	var lat frontend.LatencyStats
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/latency", &lat))
	assert.Equal(t, uint64(2), lat.Slow)
	assert.Equal(t, uint64(98), lat.Fast)
}

func TestWebServesOnlyAPIRoutes(t *testing.T) {
	f := newWebFixture(t)
	for _, path := range []string{"/", "/index.html", "/api"} {
		resp, err := http.Get(f.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestWebTrackEndsWhenTopicsClose(t *testing.T) {
	poses := bus.NewTopic[pose.Sample]("p")
	seeds := bus.NewTopic[pose.IntegratorSeed]("s")
	w, err := NewWeb(poses, seeds, func() frontend.LatencyStats { return frontend.LatencyStats{} }, zap.NewNop().Sugar())
	require.NoError(t, err)

	poses.Close()
	seeds.Close()
	assert.NoError(t, w.Track(context.Background()))
}

func TestWebPoseStream(t *testing.T) {
	f := newWebFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/pose"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, err := f.poses.Stats("ws-1")
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)

	f.poses.Publish(identityPose(7))
	f.poses.Publish(identityPose(8))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got pose.Sample
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(7), got.TimestampNs)
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(8), got.TimestampNs)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool {
		_, err := f.poses.Stats("ws-1")
		return err != nil
	}, 5*time.Second, 5*time.Millisecond, "client unsubscribed after close")
}

func identityPose(ts int64) pose.Sample {
	return pose.Sample{TimestampNs: ts, Orientation: pose.Quat32{W: 1}}
}
