package core

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoboFlock/internal/device"
	"RoboFlock/internal/flock"
	"RoboFlock/internal/model"
	"RoboFlock/internal/monitor"
	"RoboFlock/internal/parser"
	"RoboFlock/pkg/lorapkg"
)

func session() lorapkg.LoRaWANContext {
	return lorapkg.LoRaWANContext{
		DevAddr: lorawan.DevAddr{0x26, 0x01, 0x1b, 0xda},
		AppSKey: lorawan.AES128Key{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c},
		NwkSKey: lorawan.AES128Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		FPort:   10,
	}
}

type fixedSource struct{ queued []model.WeightPayload }

func (f *fixedSource) DrainWeights() []model.WeightPayload {
	out := f.queued
	f.queued = nil
	return out
}

func TestParamMuxOrder(t *testing.T) {
	src := &fixedSource{queued: []model.WeightPayload{{1, 1, 1, 1}}}
	m := &paramMux{src: src}
	local := model.WeightPayload{2, 2, 2, 2}
	m.Push(local)
	local[0] = 9

	got := m.DrainWeights()
	require.Len(t, got, 2)
	assert.Equal(t, model.WeightPayload{1, 1, 1, 1}, got[0])
	assert.Equal(t, model.WeightPayload{2, 2, 2, 2}, got[1])
	assert.Empty(t, m.DrainWeights())
}

type received struct {
	contentType string
	body        string
}

func TestForwarder(t *testing.T) {
	got := make(chan received, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "/api/telemetry", r.URL.Path)
		got <- received{r.Header.Get("Content-Type"), string(b)}
	}))
	defer ts.Close()

	tm := model.Telemetry{Robot: "epuck1", RobotID: 1, Tick: 3, State: "running", X: -2.9, Y: 0.1}

	jf := NewForwarder(ts.URL+"/", parser.NewJSONParser(), 4)
	jf.Start()
	jf.Publish(tm)
	r := <-got
	jf.Stop()
	assert.Equal(t, "application/json", r.contentType)
	decoded, err := parser.NewJSONParser().DecodeTelemetry(r.body)
	require.NoError(t, err)
	assert.Equal(t, tm, decoded)

	cf := NewForwarder(ts.URL, parser.NewCSVParser(), 4)
	cf.Start()
	cf.Publish(tm)
	r = <-got
	cf.Stop()
	assert.Equal(t, "text/plain", r.contentType)
	assert.True(t, strings.HasPrefix(r.body, "epuck1,1,3,"), r.body)
}

func TestForwarderDropsWhenFull(t *testing.T) {
	f := NewForwarder("http://127.0.0.1:1", parser.NewJSONParser(), 1)
	f.Publish(model.Telemetry{Robot: "epuck0"})
	f.Publish(model.Telemetry{Robot: "epuck0"})
	assert.Equal(t, int64(1), f.Dropped())
	f.Stop()
}

func readLine(t *testing.T, conn net.Conn) <-chan string {
	t.Helper()
	out := make(chan string, 1)
	go func() {
		s, _ := bufio.NewReader(conn).ReadString('\n')
		out <- strings.TrimSpace(s)
	}()
	return out
}

func TestRadioCoordinatorFramed(t *testing.T) {
	local, peer := net.Pipe()
	defer peer.Close()
	s := session()
	c := NewRadioCoordinator(device.NewStreamDevice(local), &s)
	defer c.Close()

	line := readLine(t, peer)
	require.NoError(t, c.PushWeights(model.WeightPayload{0.6, 0.02, 0.15, 1000}))
	frame, ok := strings.CutPrefix(<-line, "LW,")
	require.True(t, ok)
	assert.Equal(t, uint32(1), s.FCnt)

	b, err := lorapkg.Decode(session(), frame)
	require.NoError(t, err)
	p, err := parser.DecodeWeightPayload(b)
	require.NoError(t, err)
	assert.Equal(t, model.WeightPayload{0.6, 0.02, 0.15, 1000}, p)

	assert.Error(t, c.PushWeights(model.WeightPayload{0.6}))
}

func TestRadioCoordinatorPlain(t *testing.T) {
	local, peer := net.Pipe()
	defer peer.Close()
	c := NewRadioCoordinator(device.NewStreamDevice(local), nil)
	defer c.Close()

	line := readLine(t, peer)
	require.NoError(t, c.PushWeights(model.WeightPayload{0.5, 0.01, 0.2, 300}))
	msg, err := parser.ParseRadioLine(<-line)
	require.NoError(t, err)
	assert.Equal(t, parser.RadioWeights, msg.Kind)
	assert.Equal(t, model.WeightPayload{0.5, 0.01, 0.2, 300}, msg.Weights)
}

func TestHTTPCoordinator(t *testing.T) {
	got := make(chan model.WeightPayload, 1)
	srv := monitor.NewServer(":0", nil, monitor.PushFunc(func(p model.WeightPayload) error {
		got <- p
		return nil
	}))
	srv.Token = "secret"
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	u := model.WeightUpdate{Cohesion: 0.6, Separation: 0.02, SeparationThreshold: 0.15, Iterations: 1000}
	require.NoError(t, NewHTTPCoordinator(ts.URL, "secret").Push(u))
	assert.Equal(t, u.Payload(), <-got)

	assert.Error(t, NewHTTPCoordinator(ts.URL, "wrong").Push(u))
}

type recordingSink struct {
	mu  sync.Mutex
	got []model.Telemetry
}

func (s *recordingSink) Publish(t model.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, t)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestRobotBoundedRun(t *testing.T) {
	fc := model.FlockConfig{Size: 2, TickMs: 2}
	fc.ApplyDefaults()
	settings, err := flock.SettingsFromConfig(fc)
	require.NoError(t, err)

	baseLocal, basePeer := net.Pipe()
	radioLocal, radioPeer := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, basePeer) }()
	go func() { _, _ = io.Copy(io.Discard, radioPeer) }()
	defer basePeer.Close()
	defer radioPeer.Close()

	sink := &recordingSink{}
	r, err := newRobot(settings, model.RobotConfig{Name: "epuck1", Odometry: "localizer"},
		device.NewStreamDevice(baseLocal), device.NewStreamDevice(radioLocal), nil, sink)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	assert.Error(t, r.Start())

	_, err = radioPeer.Write([]byte("W,0.06,0.002,0.15,5\r\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.count() == 5 }, 2*time.Second, 5*time.Millisecond)

	r.PushWeights(model.WeightPayload{0.06, 0.002, 0.15, 3})
	require.Eventually(t, func() bool { return sink.count() == 8 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()
	r.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, tm := range sink.got {
		assert.Equal(t, "epuck1", tm.Robot)
		assert.Equal(t, 1, tm.RobotID)
		assert.Equal(t, "running", tm.State)
	}
	assert.Equal(t, 0.1, sink.got[0].Y)
}

func TestSystemAbortClosesLinks(t *testing.T) {
	fc := model.FlockConfig{Size: 2}
	fc.ApplyDefaults()
	settings, err := flock.SettingsFromConfig(fc)
	require.NoError(t, err)

	s := &System{Monitor: monitor.NewServer(":0", nil, nil)}
	var released []chan struct{}
	drain := func(c net.Conn) {
		done := make(chan struct{})
		released = append(released, done)
		go func() {
			_, _ = io.Copy(io.Discard, c)
			close(done)
		}()
	}
	for _, name := range []string{"epuck0", "epuck1"} {
		baseLocal, basePeer := net.Pipe()
		radioLocal, radioPeer := net.Pipe()
		drain(basePeer)
		drain(radioPeer)
		r, err := newRobot(settings, model.RobotConfig{Name: name, Odometry: "localizer"},
			device.NewStreamDevice(baseLocal), device.NewStreamDevice(radioLocal), nil, nil)
		require.NoError(t, err)
		s.Robots = append(s.Robots, r)
	}

	s.abort()
	assert.Empty(t, s.Robots)
	for i, done := range released {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("link %d still open", i)
		}
	}
}

func TestNewRobotRejectsBadName(t *testing.T) {
	fc := model.FlockConfig{Size: 2}
	fc.ApplyDefaults()
	settings, err := flock.SettingsFromConfig(fc)
	require.NoError(t, err)

	a, b := net.Pipe()
	defer b.Close()
	c, d := net.Pipe()
	defer d.Close()
	_, err = newRobot(settings, model.RobotConfig{Name: "epuck"}, device.NewStreamDevice(a), device.NewStreamDevice(c), nil, nil)
	assert.Error(t, err)
}
