package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/phyxlog/cmd/phylogger/metrics"
	"github.com/HatiCode/phyxlog/pkg/poller"
	"github.com/HatiCode/phyxlog/pkg/query"
)

// Recorder drives the poll loop: poll → instrument → acknowledge.
type Recorder struct {
	poller   *poller.Poller
	metrics  *metrics.Metrics
	mode     query.Mode
	maxPolls int
	logger   *slog.Logger

	polls int
}

// NewRecorder creates a Recorder. maxPolls <= 0 polls until the context ends.
func NewRecorder(p *poller.Poller, m *metrics.Metrics, mode query.Mode, maxPolls int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		poller:   p,
		metrics:  m,
		mode:     mode,
		maxPolls: maxPolls,
		logger:   logger,
	}
}

// Run polls at regular intervals. It returns nil once maxPolls polls were
// made, or the context error when ctx ends first.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info("starting poll loop", "interval", interval, "mode", r.mode.String(), "max_polls", r.maxPolls)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.Tick(ctx); err != nil {
			r.logger.Error("poll failed", "error", err)
		}
		if r.done() {
			r.logger.Info("poll loop finished", "polls", r.polls)
			return nil
		}

		select {
		case <-ctx.Done():
			r.logger.Info("poll loop stopped", "polls", r.polls)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one poll cycle.
// Exported for testing purposes.
func (r *Recorder) Tick(ctx context.Context) error {
	mode := r.nextMode()
	r.polls++

	start := time.Now()
	snap, ok, err := r.poller.PollOnce(ctx, mode)
	r.metrics.ObservePollDuration(mode.String(), time.Since(start).Seconds())

	if err != nil {
		r.metrics.RecordPoll(mode.String(), metrics.OutcomeError)
		r.metrics.RecordError("poller", err)
		return fmt.Errorf("poll %d: %w", r.polls, err)
	}
	if !ok {
		r.metrics.RecordPoll(mode.String(), metrics.OutcomeEmpty)
		r.logger.Debug("no new data", "poll", r.polls, "mode", mode.String())
		return nil
	}

	r.metrics.RecordPoll(mode.String(), metrics.OutcomeData)
	r.metrics.SetSamples(r.poller.SampleCount())

	if r.poller.Overflowed() {
		r.metrics.RecordOverflow()
		r.logger.Warn("buffer overflow, data lost", "sequence", snap.Sequence)
	}

	lengths := make([]int, len(snap.Groups))
	for i, batch := range snap.Groups {
		if len(batch) > 0 {
			lengths[i] = len(batch[0])
		}
	}
	r.logger.Info("poll complete",
		"poll", r.polls,
		"sequence", snap.Sequence,
		"mode", mode.String(),
		"new_samples", lengths,
		"total_samples", r.poller.SampleCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	r.poller.ClearNewData()
	return nil
}

// nextMode returns the mode of the upcoming poll. A full fetch is only
// useful once; after it the recorder follows incrementally.
func (r *Recorder) nextMode() query.Mode {
	if r.mode == query.ModeFull && r.polls > 0 {
		return query.ModeIncremental
	}
	return r.mode
}

func (r *Recorder) done() bool {
	return r.maxPolls > 0 && r.polls >= r.maxPolls
}

// Polls returns the number of polls made so far.
func (r *Recorder) Polls() int {
	return r.polls
}
