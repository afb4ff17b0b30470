// Command cardio reads framed ECG samples from a serial acquisition board,
// runs the streaming R-peak/BPM pipeline, and serves the results over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/orangewave/cardio/internal/api"
	"github.com/orangewave/cardio/internal/config"
	"github.com/orangewave/cardio/internal/ecg"
	"github.com/orangewave/cardio/internal/monitoring"
	"github.com/orangewave/cardio/internal/serialmux"
	"github.com/orangewave/cardio/internal/timeutil"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	device        = flag.String("device", "/dev/ttyUSB0", "Serial device path")
	baud          = flag.Int("baud", 0, "Serial baud rate (0 uses the tuning config value)")
	configPath    = flag.String("config", "", "Path to a tuning JSON file")
	disableSerial = flag.Bool("disable-serial", false, "Run without a serial device (HTTP API only)")
	dev           = flag.Bool("dev", false, "Replay a synthetic heartbeat through a mock serial port")
)

// devPayload synthesizes one heartbeat of framed samples for -dev mode. The
// mock port replays it on a loop, producing a steady 75 BPM trace without
// hardware attached.
func devPayload(cfg ecg.AcquisitionConfig) ([]byte, time.Duration) {
	const beatSeconds = 0.8
	full := float64(int64(1)<<cfg.ADCBits - 1)
	base := 0.3 * full
	amp := 0.55 * full
	n := int(beatSeconds * float64(cfg.SampleRate))
	var payload []byte
	var frame []ecg.RawFrameSample
	for i := 0; i < n; i++ {
		t := float64(i) / float64(cfg.SampleRate)
		d := (t - 0.32) / 0.02
		v := base + amp*math.Exp(-d*d/2)
		if v > full {
			v = full
		}
		frame = append(frame, ecg.RawFrameSample{SampleID: uint16(i), Raw: uint16(v)})
		if len(frame) == 10 || i == n-1 {
			b, err := ecg.EncodeFrame(frame)
			if err != nil {
				log.Fatalf("failed to encode dev frame: %v", err)
			}
			payload = append(payload, b...)
			frame = frame[:0]
		}
	}
	return payload, time.Duration(beatSeconds * float64(time.Second))
}

// frameConverter turns decoded ADC frames into timestamped raw points. The
// board does not timestamp samples, so arrival time anchors each frame and
// samples are back-dated at the nominal rate. Clamping keeps timestamps
// monotonic when arrival jitter would otherwise step backwards.
type frameConverter struct {
	clock      timeutil.Clock
	start      time.Time
	sampleRate int
	lastTS     float64
	hasLast    bool
}

func newFrameConverter(clock timeutil.Clock, sampleRate int) *frameConverter {
	return &frameConverter{
		clock:      clock,
		start:      clock.Now(),
		sampleRate: sampleRate,
	}
}

func (fc *frameConverter) convert(raw []ecg.RawFrameSample) []ecg.RawPoint {
	if len(raw) == 0 {
		return nil
	}
	dt := 1.0 / float64(fc.sampleRate)
	arrival := fc.clock.Since(fc.start).Seconds()
	first := arrival - float64(len(raw)-1)*dt
	if fc.hasLast && first < fc.lastTS+dt {
		first = fc.lastTS + dt
	}
	points := make([]ecg.RawPoint, len(raw))
	for i, s := range raw {
		points[i] = ecg.RawPoint{
			Timestamp: first + float64(i)*dt,
			Raw:       int64(s.Raw),
		}
	}
	fc.lastTS = points[len(points)-1].Timestamp
	fc.hasLast = true
	return points
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	pipeCfg := tuning.PipelineConfig()
	pipe, err := ecg.NewPipeline(pipeCfg, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to create pipeline: %v", err)
	}

	var m serialmux.SerialMuxInterface
	switch {
	case *dev:
		payload, interval := devPayload(pipeCfg.Acquisition)
		m = serialmux.NewMockSerialMux(payload, interval, ecg.SplitFrames)
	case *disableSerial:
		m = serialmux.NewDisabledSerialMux()
	default:
		opts := tuning.PortOptions()
		if *baud > 0 {
			opts.BaudRate = *baud
		}
		m, err = serialmux.NewRealSerialMux(*device, opts, ecg.SplitFrames)
		if err != nil {
			log.Fatalf("failed to open serial device %s: %v", *device, err)
		}
	}
	defer m.Close()

	// Wait group for the serial monitor, frame handler, and HTTP server.
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("failed to monitor serial port: %v", err)
		}
		monitoring.Logf("monitor routine terminated")
	}()

	// subscribe to framed payloads, decode them, and feed the pipeline
	wg.Add(1)
	go func() {
		defer wg.Done()
		fc := newFrameConverter(timeutil.RealClock{}, pipeCfg.Acquisition.SampleRate)
		id, c := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case frame, ok := <-c:
				if !ok {
					monitoring.Logf("subscribe routine terminated")
					return
				}
				raw, err := ecg.DecodeFrame(frame)
				if err != nil {
					monitoring.Logf("dropping bad frame: %v", err)
					continue
				}
				if len(raw) == 0 {
					continue
				}
				if err := pipe.Ingest(fc.convert(raw)); err != nil {
					monitoring.Logf("ingest error: %v", err)
				}
			case <-ctx.Done():
				monitoring.Logf("subscribe routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only over
		// localhost/Tailscale)
		m.AttachAdminRoutes(mux)

		srv := api.NewServer(m, pipe, tuning.GetWindowSeconds())
		apiMux := srv.ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/command", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
