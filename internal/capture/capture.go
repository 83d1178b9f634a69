// Package capture reads frames from a local camera and hands them to the
// frame pipeline at a capped rate.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"obstaclecam/internal/logger"

	"github.com/benbjohnson/clock"
)

// ErrClosed is returned by a source after Close.
var ErrClosed = errors.New("capture source closed")

// Source produces JPEG-encoded frames.
type Source interface {
	Read() ([]byte, error)
	Close() error
}

// Sink receives captured frames; the manager's HandleCameraFrame fits.
type Sink func(camera string, jpeg []byte)

// Device drives one source at a fixed frame rate.
type Device struct {
	name   string
	source Source
	fps    int
	clock  clock.Clock
	logger *logger.Logger

	frames int
	errors int
}

type Option func(*Device)

func WithClock(c clock.Clock) Option {
	return func(d *Device) { d.clock = c }
}

// NewDevice wraps a source. fps values below 1 are raised to 1.
func NewDevice(name string, source Source, fps int, logger *logger.Logger, opts ...Option) *Device {
	if fps < 1 {
		fps = 1
	}
	d := &Device{
		name:   name,
		source: source,
		fps:    fps,
		clock:  clock.New(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Name() string { return d.name }

// Interval is the time between two reads.
func (d *Device) Interval() time.Duration {
	return time.Second / time.Duration(d.fps)
}

// Run reads one frame per interval and passes it to sink until ctx is done
// or the source is closed. The source is closed on return.
func (d *Device) Run(ctx context.Context, sink Sink) error {
	defer func() {
		if err := d.source.Close(); err != nil {
			d.logger.Warning("Closing capture source failed", "camera", d.name, "error", err)
		}
	}()

	ticker := d.clock.Ticker(d.Interval())
	defer ticker.Stop()

	d.logger.Info("Capture started", "camera", d.name, "fps", d.fps)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Capture stopped", "camera", d.name, "frames", d.frames, "errors", d.errors)
			return nil
		case <-ticker.C:
			data, err := d.source.Read()
			if errors.Is(err, ErrClosed) {
				return fmt.Errorf("capture %s: %w", d.name, err)
			}
			if err != nil {
				d.errors++
				d.logger.Warning("Capture read failed", "camera", d.name, "error", err)
				continue
			}
			d.frames++
			sink(d.name, data)
		}
	}
}
