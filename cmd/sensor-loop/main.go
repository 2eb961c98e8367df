// Command sensor-loop runs periodic sensor loops that classify samples
// against thresholds, drive GPIO outputs and publish transitions to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sensor-loop/internal/config"
	"github.com/sweeney/sensor-loop/internal/logic"
	"github.com/sweeney/sensor-loop/internal/mqtt"
	"github.com/sweeney/sensor-loop/internal/sensor"
	"github.com/sweeney/sensor-loop/internal/status"
	"github.com/sweeney/sensor-loop/internal/web"
)

// statusRefresh is how often the MQTT connection state is copied into the tracker.
const statusRefresh = time.Second

type options struct {
	configPath string
	broker     string
	httpAddr   string
	heartbeat  time.Duration
	simulate   bool
	printState bool
	initConfig bool

	// set holds the names of flags given on the command line.
	set map[string]bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "/etc/sensor-loop.yaml", "Path to the YAML configuration")
	flag.StringVar(&o.broker, "broker", "", "MQTT broker address, overrides the config (empty disables)")
	flag.StringVar(&o.httpAddr, "http", "", "HTTP status address, overrides the config (empty disables)")
	flag.DurationVar(&o.heartbeat, "heartbeat", 0, "Heartbeat interval, overrides the config (0 disables)")
	flag.BoolVar(&o.simulate, "simulate", false, "Replace GPIO lines and ultrasonic sensors with simulated ones")
	flag.BoolVar(&o.printState, "print-state", false, "Read every sensor once, print the verdicts and exit")
	flag.BoolVar(&o.initConfig, "init-config", false, "Write the effective configuration to -config and exit")

	flag.Parse()

	o.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides copies explicitly set flags over the loaded configuration.
func applyOverrides(cfg *config.Config, o options) {
	if o.set["broker"] {
		cfg.Broker = o.broker
	}
	if o.set["http"] {
		cfg.HTTP = o.httpAddr
	}
	if o.set["heartbeat"] {
		cfg.Heartbeat = o.heartbeat
	}
	if o.simulate {
		cfg.Simulate = true
	}
}

func run(o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, o)

	if o.initConfig {
		if err := cfg.Save(o.configPath); err != nil {
			return err
		}
		log.Printf("wrote config to %s", o.configPath)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", o.configPath, err)
	}

	if o.printState {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return printState(ctx, cfg, os.Stdout)
	}

	gl, closeLines, err := openLines(cfg)
	if err != nil {
		return err
	}
	defer closeLines()

	// Initialize MQTT
	var publisher broker = mqtt.NopPublisher{}
	if cfg.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		ConfigPath:  o.configPath,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPPort:    cfg.HTTP,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	d, err := newDaemon(cfg, gl, tracker)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if err := d.start(gctx, g, publisher); err != nil {
		cancel()
		d.stop()
		return errors.Join(err, ignoreCancel(g.Wait()))
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, d.targets())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	log.Printf("started: loops=%d broker=%s heartbeat=%v simulate=%v", len(cfg.Loops), cfg.Broker, cfg.Heartbeat, cfg.Simulate)

	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(gctx, publisher, publisher, tracker, time.Now, refresh.C, heartbeat, sigCh)

	cancel()
	d.stop()
	return errors.Join(err, ignoreCancel(g.Wait()))
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runLoop supervises the running loops: it publishes heartbeats, keeps the
// tracker's MQTT state fresh and publishes SHUTDOWN on a signal or when ctx
// ends because a loop failed.
func runLoop(ctx context.Context, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, refresh, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	shutdown := func(reason string) {
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		}
		if tracker != nil {
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			snap := tracker.Snapshot()
			event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", reason)
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("failed to publish shutdown event: %v", err)
		} else {
			log.Printf("published shutdown event")
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case <-ctx.Done():
			log.Printf("loop failed, shutting down")
			shutdown("ERROR")
			return nil

		case <-refresh:
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

		case <-heartbeat:
			hbEvent := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v loops=%d", snap.Uptime().Truncate(time.Second), len(snap.Loops))
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// printState reads every sensor once and prints its verdict against the
// configured thresholds.
func printState(ctx context.Context, cfg *config.Config, w io.Writer) error {
	for _, lc := range cfg.Loops {
		s, closer, err := newSensor(lc, cfg.GPIOChip, cfg.Simulate)
		if err != nil {
			return fmt.Errorf("loop %s: sensor: %w", lc.Name, err)
		}
		r, err := readFirst(ctx, s)
		if closer != nil {
			closer.Close()
		}
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", lc.Name, err)
			continue
		}
		v := logic.Evaluate(r.Value, lc.Thresholds, logic.VerdictUnknown)
		fmt.Fprintf(w, "%s: %v %s (%s)\n", lc.Name, r.Value, r.Unit, status.VerdictLabel(v))
	}
	return nil
}

// readFirst retries while a streaming sensor has not produced a sample yet.
func readFirst(ctx context.Context, s sensor.Sensor) (logic.Reading, error) {
	for {
		r, err := s.Read(ctx)
		if !errors.Is(err, sensor.ErrNoData) {
			return r, err
		}
		select {
		case <-ctx.Done():
			return logic.Reading{}, err
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
