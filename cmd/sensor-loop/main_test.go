package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sensor-loop/internal/actuator"
	"github.com/sweeney/sensor-loop/internal/config"
	"github.com/sweeney/sensor-loop/internal/logic"
	"github.com/sweeney/sensor-loop/internal/mqtt"
	"github.com/sweeney/sensor-loop/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, &status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "connected", info.Status)
	assert.Empty(t, info.Type)
	assert.Empty(t, info.IP)
	assert.Empty(t, info.SSID)
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	applyOverrides(cfg, options{
		broker:    "",
		httpAddr:  ":9999",
		heartbeat: time.Minute,
		simulate:  true,
		set:       map[string]bool{"broker": true, "heartbeat": true},
	})

	assert.Empty(t, cfg.Broker, "explicit empty broker disables MQTT")
	assert.Equal(t, ":8080", cfg.HTTP, "unset flag must not override")
	assert.Equal(t, time.Minute, cfg.Heartbeat)
	assert.True(t, cfg.Simulate)
}

func TestRunInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor-loop.yaml")
	require.NoError(t, run(options{configPath: path, initConfig: true}))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestPrintState(t *testing.T) {
	cfg := &config.Config{
		Loops: []config.LoopConfig{
			{
				Name:       "tank",
				Sensor:     config.SensorConfig{Type: config.SensorFake, Unit: "cm", Values: []float64{9.5}},
				Thresholds: logic.ThresholdConfig{Low: 10, High: 20, Hysteresis: 1},
			},
			{
				Name:       "soil",
				Sensor:     config.SensorConfig{Type: config.SensorFake, Values: []float64{15}},
				Thresholds: logic.ThresholdConfig{Low: 10, High: 20},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printState(context.Background(), cfg, &buf))
	assert.Equal(t, "tank: 9.5 cm (BELOW)\nsoil: 15 raw (NORMAL)\n", buf.String())
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type runLoopHarness struct {
	ctx       context.Context
	cancel    context.CancelFunc
	pub       *mqtt.FakePublisher
	tracker   *status.Tracker
	refresh   chan time.Time
	heartbeat chan time.Time
	sig       chan os.Signal
	errCh     chan error
}

func startRunLoop(t *testing.T) *runLoopHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := &runLoopHarness{
		ctx:       ctx,
		cancel:    cancel,
		pub:       mqtt.NewFakePublisher(),
		tracker:   status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{Broker: "tcp://test:1883"}),
		refresh:   make(chan time.Time),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		errCh:     make(chan error, 1),
	}
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)
	go func() {
		h.errCh <- runLoop(ctx, h.pub, h.pub, h.tracker, clock, h.refresh, h.heartbeat, h.sig)
	}()
	return h
}

func (h *runLoopHarness) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-h.errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runLoop did not return")
	}
}

func TestRunLoopShutdownSignals(t *testing.T) {
	for _, tt := range []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	} {
		t.Run(tt.want, func(t *testing.T) {
			h := startRunLoop(t)
			h.sig <- tt.sig
			h.wait(t)

			events := h.pub.PublishedSystemEvents()
			require.Len(t, events, 1)
			se := events[0]
			assert.Equal(t, "SHUTDOWN", se.Event)
			assert.Equal(t, tt.want, se.Reason)
			assert.True(t, se.Retained)
			assert.Contains(t, string(se.RawPayload), `"reason":"`+tt.want+`"`)
		})
	}
}

func TestRunLoopContextEndPublishesErrorShutdown(t *testing.T) {
	h := startRunLoop(t)
	h.cancel()
	h.wait(t)

	events := h.pub.PublishedSystemEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "SHUTDOWN", events[0].Event)
	assert.Equal(t, "ERROR", events[0].Reason)
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "associated")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	h := startRunLoop(t)
	h.heartbeat <- time.Time{}
	h.sig <- syscall.SIGTERM
	h.wait(t)

	events := h.pub.PublishedSystemEvents()
	require.Len(t, events, 2)
	hb := events[0]
	assert.Equal(t, "HEARTBEAT", hb.Event)
	assert.False(t, hb.Retained)
	payload := string(hb.RawPayload)
	assert.Contains(t, payload, `"event":"HEARTBEAT"`)
	assert.Contains(t, payload, "192.168.1.42")
	assert.Contains(t, payload, "HomeNet")
	assert.Equal(t, "SHUTDOWN", events[1].Event)
}

func TestRunLoopRefreshTracksConnection(t *testing.T) {
	h := startRunLoop(t)
	assert.False(t, h.tracker.Snapshot().MQTTConnected)

	h.pub.Connected = true
	h.refresh <- time.Time{}
	// A second send only completes once the first refresh was handled.
	h.refresh <- time.Time{}
	assert.True(t, h.tracker.Snapshot().MQTTConnected)

	h.sig <- syscall.SIGTERM
	h.wait(t)
}

func TestRunLoopPublishErrorsDoNotStop(t *testing.T) {
	h := startRunLoop(t)
	h.pub.PublishSystemError = errors.New("broker unavailable")

	h.heartbeat <- time.Time{}
	h.sig <- syscall.SIGINT
	h.wait(t)

	assert.Empty(t, h.pub.PublishedSystemEvents())
}

// --- daemon tests ---

func simConfig() *config.Config {
	return &config.Config{
		ClientID: config.DefaultClientID,
		GPIOChip: "gpiochip0",
		Simulate: true,
		Loops: []config.LoopConfig{{
			Name:   "tank",
			Period: 5 * time.Millisecond,
			Sensor: config.SensorConfig{
				Type:   config.SensorFake,
				Unit:   "cm",
				Values: []float64{9, 15, 21},
			},
			Thresholds: logic.ThresholdConfig{Low: 10, High: 20, Hysteresis: 1},
			Actuator:   config.OutputConfig{Pin: 17},
			Policy:     &actuator.Policy{Below: true},
			Bargraph: &config.BargraphConfig{
				Pins:  []int{5, 6, 13},
				Steps: []float64{10, 20, 30},
			},
			Inputs: config.InputsConfig{
				Hold: &config.InputConfig{Pin: 22, Window: 2, Interval: time.Millisecond},
			},
			Commands: config.CommandsConfig{MQTT: true},
		}},
	}
}

func TestDaemonRunsSimulatedLoop(t *testing.T) {
	cfg := simConfig()
	require.NoError(t, cfg.Validate())

	gl := newSimLines()
	tracker := status.NewTracker(time.Now(), status.Config{})
	pub := mqtt.NewFakePublisher()

	d, err := newDaemon(cfg, gl, tracker)
	require.NoError(t, err)
	defer d.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	require.NoError(t, d.start(gctx, g, pub))

	require.Eventually(t, func() bool {
		return len(pub.PublishedEvents()) == 3
	}, 2*time.Second, time.Millisecond)

	events := pub.PublishedEvents()
	assert.Equal(t, logic.VerdictUnknown, events[0].From)
	assert.Equal(t, logic.VerdictBelow, events[0].To)
	assert.Equal(t, logic.VerdictNormal, events[1].To)
	assert.Equal(t, logic.VerdictAbove, events[2].To)
	assert.Equal(t, "tank", events[2].Loop)

	require.Eventually(t, func() bool {
		ls, ok := tracker.Snapshot().Loop("tank")
		return ok && ls.HasReading && ls.Value == 21
	}, 2*time.Second, time.Millisecond)

	// 21 cm lights two of three bargraph steps.
	level, ok := gl.output(6).Level()
	assert.True(t, ok)
	assert.True(t, level)
	level, _ = gl.output(13).Level()
	assert.False(t, level)

	ls, _ := tracker.Snapshot().Loop("tank")
	assert.Equal(t, "GPIO17", ls.ActuatorPin)
	assert.False(t, ls.Actuator)
	assert.Equal(t, int64(5), ls.PeriodMs)

	// Commands arrive over MQTT.
	require.True(t, pub.Deliver(mqtt.CommandTopic("tank"), []byte("H")))
	require.Eventually(t, func() bool {
		ls, _ := tracker.Snapshot().Loop("tank")
		return !ls.Enabled
	}, 2*time.Second, time.Millisecond)

	_, hasTarget := d.targets()["tank"]
	assert.True(t, hasTarget)

	cancel()
	d.stop()
	assert.NoError(t, ignoreCancel(g.Wait()))

	ls, _ = tracker.Snapshot().Loop("tank")
	assert.Equal(t, "STOPPED", ls.WorkerState)

	// The valve opens below the band and closes again once back inside it.
	assert.Equal(t, []bool{false, true, false}, gl.output(17).Writes)
}

// fakePort is a serial port whose reads come from a pipe and whose writes
// are recorded. Reads fail once it is closed.
type fakePort struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu         sync.Mutex
	written    bytes.Buffer
	closes     int
	lateWrites int
}

func newFakePort() *fakePort {
	pr, pw := io.Pipe()
	return &fakePort{pr: pr, pw: pw}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closes > 0 {
		p.lateWrites++
		return 0, errors.New("port closed")
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return p.pr.Close()
}

func (p *fakePort) stats() (closes, lateWrites int, written string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes, p.lateWrites, p.written.String()
}

func TestDaemonSharedSerialPortClosedOnce(t *testing.T) {
	cfg := simConfig()
	tty := &config.SerialPortConfig{Port: "/dev/ttyUSB0", Baud: 115200}
	cfg.Loops[0].Display.Serial = tty
	cfg.Loops[0].Display.Channel = "tank"
	cfg.Loops[0].Commands.Serial = tty
	require.NoError(t, cfg.Validate())

	port := newFakePort()
	opens := 0
	sp := newPorts(func(*config.SerialPortConfig) (io.ReadWriteCloser, error) {
		opens++
		return port, nil
	})

	tracker := status.NewTracker(time.Now(), status.Config{})
	pub := mqtt.NewFakePublisher()
	d, err := buildDaemon(cfg, newSimLines(), sp, tracker)
	require.NoError(t, err)
	defer d.close()
	assert.Equal(t, 1, opens, "display and commands share one port")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	require.NoError(t, d.start(gctx, g, pub))

	require.Eventually(t, func() bool {
		return len(pub.PublishedEvents()) == 3
	}, 2*time.Second, time.Millisecond)

	_, err = io.WriteString(port.pw, "H\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ls, _ := tracker.Snapshot().Loop("tank")
		return !ls.Enabled
	}, 2*time.Second, time.Millisecond)

	cancel()
	d.stop()
	assert.NoError(t, ignoreCancel(g.Wait()))

	closes, _, _ := port.stats()
	assert.Equal(t, 0, closes, "port stays open until the daemon is closed")

	d.close()
	d.close()

	closes, lateWrites, written := port.stats()
	assert.Equal(t, 1, closes)
	assert.Equal(t, 0, lateWrites)
	assert.Contains(t, written, ">tank:9\r\n")
}

func TestNewDaemonRejectsBadSensor(t *testing.T) {
	cfg := simConfig()
	cfg.Loops[0].Sensor = config.SensorConfig{Type: config.SensorSerial, Port: filepath.Join(t.TempDir(), "no-such-tty")}

	_, err := newDaemon(cfg, newSimLines(), status.NewTracker(time.Now(), status.Config{}))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "loop tank: sensor:"), err.Error())
}

func TestNewSensorSimulatesUltrasonic(t *testing.T) {
	lc := config.DefaultLoop()
	s, closer, err := newSensor(lc, "gpiochip0", true)
	require.NoError(t, err)
	assert.Nil(t, closer)

	var got []float64
	for i := 0; i < 4; i++ {
		r, err := s.Read(context.Background())
		require.NoError(t, err)
		got = append(got, r.Value)
	}
	assert.Equal(t, []float64{9, 20, 31, 9}, got)
}
