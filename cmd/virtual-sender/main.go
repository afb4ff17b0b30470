// Command virtual-sender emits synthetic ECG frames in the acquisition board's
// wire format, either to a serial port (for end-to-end testing against a real
// tty pair) or to a file. The waveform is a simple gaussian P-QRS-T composite,
// not clinically meaningful.
package main

import (
	"flag"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/orangewave/cardio/internal/ecg"
	"github.com/orangewave/cardio/internal/serialmux"
)

var (
	device          = flag.String("device", "", "Serial device to write to (e.g. /dev/ttyUSB1)")
	outPath         = flag.String("out", "", "File to write frames to instead of a serial device (- for stdout)")
	baud            = flag.Int("baud", 115200, "Serial baud rate")
	sampleRate      = flag.Int("rate", 250, "Sample rate in Hz")
	bpm             = flag.Float64("bpm", 75, "Simulated heart rate in BPM")
	noise           = flag.Float64("noise", 0.02, "Noise amplitude relative to full scale")
	samplesPerFrame = flag.Int("samples-per-frame", 10, "Samples packed into each frame")
	duration        = flag.Duration("duration", 0, "How long to run (0 = forever; ignored with -out)")
	adcBits         = flag.Int("bits", 12, "ADC resolution in bits")
)

// ecgSim generates an ECG-like waveform: baseline wander plus gaussian P, QRS,
// and T bumps, normalized to roughly [-0.3, 1.0].
type ecgSim struct {
	fs    float64
	bpm   float64
	noise float64
	phase float64
	tick  float64
}

func (s *ecgSim) next() float64 {
	s.phase += s.bpm / 60.0 / s.fs
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}
	s.tick++
	t := s.phase

	baseline := 0.05 * math.Sin(2*math.Pi*0.33*t)
	p := 0.08 * gauss(t, 0.18, 0.03)
	q := -0.12 * gauss(t, 0.30, 0.01)
	r := 1.00 * gauss(t, 0.32, 0.008)
	sWave := -0.25 * gauss(t, 0.35, 0.012)
	tWave := 0.25 * gauss(t, 0.60, 0.06)

	// cheap deterministic noise
	n := s.noise * math.Sin(s.tick*12.9898)

	return baseline + p + q + r + sWave + tWave + n
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

// toADC maps the simulator's [-0.5, 1.1] output into ADC codes with the
// baseline at 30% of full scale.
func toADC(v float64, bits int) uint16 {
	full := float64(int64(1)<<bits - 1)
	code := (0.3 + 0.55*v) * full
	if code < 0 {
		code = 0
	}
	if code > full {
		code = full
	}
	return uint16(code)
}

func main() {
	flag.Parse()

	if *device == "" && *outPath == "" {
		log.Fatal("one of -device or -out is required")
	}
	if *samplesPerFrame < 1 || *samplesPerFrame > 63 {
		log.Fatalf("samples-per-frame must be in [1,63], got %d", *samplesPerFrame)
	}

	var w io.Writer
	switch {
	case *device != "":
		opts := serialmux.PortOptions{BaudRate: *baud}
		mode, err := opts.PortMode()
		if err != nil {
			log.Fatalf("bad serial options: %v", err)
		}
		port, err := serialmux.RealSerialPortFactory{}.Open(*device, mode)
		if err != nil {
			log.Fatalf("failed to open %s: %v", *device, err)
		}
		defer port.Close()
		w = port
	case *outPath == "-":
		w = os.Stdout
	default:
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *outPath, err)
		}
		defer f.Close()
		w = f
	}

	sim := &ecgSim{fs: float64(*sampleRate), bpm: *bpm, noise: *noise}
	frameInterval := time.Duration(float64(*samplesPerFrame) / float64(*sampleRate) * float64(time.Second))

	var deadline time.Time
	if *duration > 0 {
		deadline = time.Now().Add(*duration)
	}

	// When writing to a file there is no pacing: emit duration's worth of
	// frames (default one minute) and exit.
	if *device == "" {
		total := *sampleRate * 60
		if *duration > 0 {
			total = int(duration.Seconds() * float64(*sampleRate))
		}
		var sampleID uint16
		for written := 0; written < total; written += *samplesPerFrame {
			if err := emitFrame(w, sim, *samplesPerFrame, *adcBits, &sampleID); err != nil {
				log.Fatalf("write failed: %v", err)
			}
		}
		return
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	var sampleID uint16
	for range ticker.C {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		if err := emitFrame(w, sim, *samplesPerFrame, *adcBits, &sampleID); err != nil {
			log.Fatalf("write failed: %v", err)
		}
	}
}

func emitFrame(w io.Writer, sim *ecgSim, n, bits int, sampleID *uint16) error {
	samples := make([]ecg.RawFrameSample, n)
	for i := range samples {
		samples[i] = ecg.RawFrameSample{
			SampleID: *sampleID,
			Raw:      toADC(sim.next(), bits),
		}
		*sampleID++
	}
	frame, err := ecg.EncodeFrame(samples)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
