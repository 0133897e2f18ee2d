package stream

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/andremotz/katzenschreck/internal/backoff"
	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/metrics"
	"github.com/andremotz/katzenschreck/internal/model"
)

// Supervisor owns the video source connection. It reopens the source after
// failures according to two breakers, one for opening and one for reading.
type Supervisor struct {
	source  Source
	url     string
	handler FrameHandler
	maxSkip int
	logger  *logger.Logger
	metrics *metrics.Metrics

	openBreaker *backoff.Breaker
	readBreaker *backoff.Breaker
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithBreakers replaces the default open and read breakers.
func WithBreakers(open, read *backoff.Breaker) Option {
	return func(s *Supervisor) {
		s.openBreaker = open
		s.readBreaker = read
	}
}

// WithSleep replaces the interruptible sleep used between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) {
		s.sleep = sleep
	}
}

// WithMaxSkip bounds how many buffered frames are drained per read.
func WithMaxSkip(n int) Option {
	return func(s *Supervisor) {
		s.maxSkip = n
	}
}

// WithMetrics records reads and reconnects.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// NewSupervisor creates a Supervisor reading url from source.
func NewSupervisor(source Source, url string, handler FrameHandler, logger *logger.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		source:      source,
		url:         url,
		handler:     handler,
		maxSkip:     DefaultMaxSkip,
		logger:      logger,
		openBreaker: backoff.NewBreaker(),
		readBreaker: backoff.NewBreaker(),
		sleep:       backoff.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes frames until ctx is cancelled. Source outages are retried
// forever; Run returns nil once ctx is done and the capture is closed.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for ctx.Err() == nil {
		if attempt > 0 {
			s.metrics.StreamReconnect()
		}
		attempt++

		capture, err := s.source.Open(ctx, s.url)
		if err != nil {
			delay, tripped := s.openBreaker.Failure()
			if tripped {
				s.logger.Error("Video source unreachable after %d attempts, cooling down for %v: %v",
					s.openBreaker.TripThreshold, delay, err)
			} else {
				s.logger.Warning("Cannot open video source, retrying in %v (%d/%d): %v",
					delay, s.openBreaker.Failures(), s.openBreaker.TripThreshold, err)
			}
			if s.sleep(ctx, delay) != nil {
				break
			}
			continue
		}

		s.openBreaker.Success()
		s.logger.Info("📹 Video source opened")

		s.consume(ctx, capture)
		if err := capture.Close(); err != nil {
			s.logger.Warning("Failed to close video source: %v", err)
		}
	}

	s.logger.Info("Stream supervisor stopped")
	return nil
}

// consume reads from capture until it has to be reopened or ctx is done.
func (s *Supervisor) consume(ctx context.Context, capture Capture) {
	for ctx.Err() == nil {
		frame, err := NextFreshFrame(capture, s.maxSkip)
		if err != nil {
			s.metrics.ReadError()
			delay, tripped := s.readBreaker.Failure()
			s.logger.Warning("Failed to read frame, retrying in %v (%d/%d): %v",
				delay, s.readBreaker.Failures(), s.readBreaker.TripThreshold, err)
			if s.sleep(ctx, delay) != nil {
				return
			}
			if tripped {
				s.logger.Error("Too many read failures, reconnecting to video source")
				return
			}
			if !capture.IsOpened() {
				s.logger.Warning("Video source closed, reconnecting")
				return
			}
			continue
		}

		s.readBreaker.Success()
		s.metrics.FrameProcessed()
		if err := s.handle(ctx, frame); err != nil {
			s.logger.Error("Error processing frame: %v", err)
		}
	}
}

// handle runs the handler for one frame, turning a panic into an error.
func (s *Supervisor) handle(ctx context.Context, frame *model.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	err = s.handler.HandleFrame(ctx, frame)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
