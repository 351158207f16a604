// Package poller keeps the client side state of one phyphox remote interface
// and runs poll cycles against it.
//
// A Poller owns the experiment Configuration, the current buffer Selection,
// one cursor per selected group, the running sample count and a
// storage.Store of snapshots. Each PollOnce is one synchronous round trip:
//
//	build query -> transport fetch -> decode -> assemble -> record
//
// A poll either commits all of its effects (cursors, sample count, snapshot)
// or none of them, so a failed poll can be retried as is. There is no
// background scheduling; the caller decides when to poll.
//
// Mutating operations (LoadConfiguration, Select, PollOnce) are serialized.
// Readers such as SampleCount or Status may be called from other goroutines
// while a poll is in flight.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HatiCode/phyxlog/pkg/assembler"
	"github.com/HatiCode/phyxlog/pkg/experiment"
	"github.com/HatiCode/phyxlog/pkg/query"
	"github.com/HatiCode/phyxlog/pkg/selector"
	"github.com/HatiCode/phyxlog/pkg/storage"
	"github.com/HatiCode/phyxlog/pkg/transport"
)

// Options configures a Poller.
type Options struct {
	// Stacking keeps every snapshot instead of only the latest one.
	Stacking bool
	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Poller is the synchronization state for one remote source.
type Poller struct {
	transport transport.Transport
	store     storage.Store
	logger    *slog.Logger
	now       func() time.Time

	// writeMu serializes operations that replace state.
	writeMu sync.Mutex

	mu        sync.RWMutex
	config    *experiment.Configuration
	meta      *experiment.Meta
	selection selector.Selection
	cursors   []query.Cursor
	samples   int
	sequence  uint64
	stacking  bool
	lastPoll  time.Time
}

// New creates a Poller reading from t and recording into store. A nil store
// is replaced by a storage.MemoryStore.
func New(t transport.Transport, store storage.Store, opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Poller{
		transport: t,
		store:     store,
		logger:    logger.With("component", "poller"),
		now:       now,
		stacking:  opts.Stacking,
	}
}

// LoadConfiguration parses raw as a /config document and makes it the
// current configuration. The previous selection, cursors, sample count and
// snapshots are discarded: the caller must select buffers again.
func (p *Poller) LoadConfiguration(raw []byte) (*experiment.Configuration, error) {
	cfg, err := experiment.LoadConfiguration(raw)
	if err != nil {
		return nil, err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	p.config = cfg
	p.selection = selector.Selection{}
	p.resetLocked()
	p.mu.Unlock()

	p.logger.Info("configuration loaded",
		"title", cfg.Title(),
		"groups", len(cfg.Groups),
		"sources", len(cfg.Sources),
		"buffers", cfg.BufferCount(),
	)
	return cfg, nil
}

// RefreshConfig returns the current configuration, fetching it from the
// remote interface when none is loaded yet or force is set.
func (p *Poller) RefreshConfig(ctx context.Context, force bool) (*experiment.Configuration, error) {
	if cfg := p.Configuration(); cfg != nil && !force {
		return cfg, nil
	}
	raw, err := p.transport.Fetch(ctx, transport.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	return p.LoadConfiguration(raw)
}

// RefreshMeta returns the device description, fetching it when none is
// cached yet or force is set. Unknown keys are logged as warnings.
func (p *Poller) RefreshMeta(ctx context.Context, force bool) (*experiment.Meta, error) {
	if m := p.Meta(); m != nil && !force {
		return m, nil
	}
	raw, err := p.transport.Fetch(ctx, transport.MetaPath)
	if err != nil {
		return nil, fmt.Errorf("fetch meta: %w", err)
	}
	m, err := experiment.ParseMeta(raw)
	if err != nil {
		return nil, err
	}
	for _, key := range m.Unknown {
		p.logger.Warn("unknown meta key", "key", key)
	}

	p.mu.Lock()
	p.meta = m
	p.mu.Unlock()
	return m, nil
}

// Select replaces the selection. With no specs every buffer is selected.
// It returns false when the resulting selection is empty, which means there
// is nothing to poll. An invalid spec returns an error wrapping
// errors.ErrSelection and leaves the previous selection in place.
//
// A successful Select resets the cursors and sample count and clears the
// stored snapshots, so the next poll fetches the full history.
func (p *Poller) Select(specs ...selector.GroupSpec) (bool, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	sel, err := selector.Select(p.Configuration(), specs)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	p.selection = sel
	p.resetLocked()
	p.mu.Unlock()

	if sel.Empty() {
		p.logger.Warn("no buffer selected")
		return false, nil
	}
	p.logger.Info("buffers selected", "groups", sel.Len(), "buffers", sel.Names())
	return true, nil
}

// PollOnce runs one poll cycle in the given mode.
//
// It returns the new snapshot and true when data arrived, or false when the
// first selected group had no new sample (or nothing is selected). On error
// no state changes.
//
// A successful ModeLatest poll clears the cursors, so the following
// incremental poll starts over with the full history. ModeFull and ModeLatest
// restart the sample count.
func (p *Poller) PollOnce(ctx context.Context, mode query.Mode) (storage.Snapshot, bool, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.RLock()
	sel := p.selection
	cursors := append([]query.Cursor(nil), p.cursors...)
	p.mu.RUnlock()

	q := query.Build(sel, cursors, mode)
	if q.Empty() {
		p.logger.Warn("no buffer selected, nothing to fetch", "mode", mode.String())
		return storage.Snapshot{}, false, nil
	}
	if q.Realigned {
		p.logger.Warn("cursor count does not match selection, first cursor duplicated",
			"cursors", len(cursors),
			"groups", sel.Len(),
		)
		aligned := make([]query.Cursor, sel.Len())
		for i := range aligned {
			aligned[i] = cursors[0]
		}
		cursors = aligned
	}
	p.logger.Debug("polling", "mode", mode.String(), "path", q.Path)

	body, err := p.transport.Fetch(ctx, q.Path)
	if err != nil {
		return storage.Snapshot{}, false, fmt.Errorf("poll: %w", err)
	}
	payload, err := assembler.Decode(body)
	if err != nil {
		return storage.Snapshot{}, false, fmt.Errorf("poll: %w", err)
	}
	prev := cursors
	if mode != query.ModeIncremental {
		prev = nil
	}
	res, err := assembler.Assemble(payload, sel, prev)
	if err != nil {
		return storage.Snapshot{}, false, fmt.Errorf("poll: %w", err)
	}
	if !res.Updated {
		p.logger.Debug("no new data", "mode", mode.String())
		return storage.Snapshot{}, false, nil
	}

	restart := mode != query.ModeIncremental || len(cursors) == 0 || !cursors[0].Set

	p.mu.Lock()
	defer p.mu.Unlock()

	if restart {
		p.samples = 0
	}
	p.samples += res.Samples
	if mode == query.ModeLatest {
		p.cursors = nil
	} else {
		p.cursors = res.Cursors
	}
	p.sequence++
	p.lastPoll = p.now()

	snap := storage.Snapshot{
		Sequence: p.sequence,
		PolledAt: p.lastPoll,
		Mode:     mode.String(),
		Groups:   res.Groups,
	}
	p.store.Record(snap, p.stacking)
	if !p.stacking && p.store.Overflowed() {
		p.logger.Warn("unread snapshot overwritten", "sequence", snap.Sequence)
	}

	return snap.Clone(), true, nil
}

// resetLocked clears everything derived from a selection. p.mu must be held.
func (p *Poller) resetLocked() {
	p.cursors = nil
	p.samples = 0
	p.store.Reset()
}

// Latest returns the most recent snapshot, if any.
func (p *Poller) Latest() (storage.Snapshot, bool) {
	return p.store.Latest()
}

// All returns every retained snapshot, oldest first. Only stacking pollers
// retain more than one.
func (p *Poller) All() []storage.Snapshot {
	return p.store.All()
}

// NewData reports whether a snapshot was recorded since the last ClearNewData.
func (p *Poller) NewData() bool {
	return p.store.NewData()
}

// ClearNewData acknowledges the latest snapshot.
func (p *Poller) ClearNewData() {
	p.store.ClearNewData()
}

// Overflowed reports whether the last overwrite dropped an unread snapshot.
func (p *Poller) Overflowed() bool {
	return p.store.Overflowed()
}

// SampleCount returns the number of samples received for the first selected
// group's primary buffer since the last full fetch.
func (p *Poller) SampleCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.samples
}

// SetStacking switches between keeping every snapshot and keeping the latest.
func (p *Poller) SetStacking(stacking bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stacking = stacking
}

func (p *Poller) Stacking() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stacking
}

// Configuration returns the current configuration or nil.
func (p *Poller) Configuration() *experiment.Configuration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// Meta returns the cached device description or nil.
func (p *Poller) Meta() *experiment.Meta {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta
}

// Selection returns a copy of the current selection.
func (p *Poller) Selection() selector.Selection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selection.Clone()
}

// Cursors returns a copy of the current cursors. An empty result means the
// next incremental poll fetches the full history.
func (p *Poller) Cursors() []query.Cursor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]query.Cursor(nil), p.cursors...)
}

// Status is a point in time summary of the poller, for operators.
type Status struct {
	Title       string     `json:"title"`
	Groups      int        `json:"groups"`
	Selected    [][]string `json:"selected"`
	Cursors     []*float64 `json:"cursors"`
	SampleCount int        `json:"sampleCount"`
	Snapshots   int        `json:"snapshots"`
	Stacking    bool       `json:"stacking"`
	NewData     bool       `json:"newData"`
	Overflowed  bool       `json:"overflowed"`
	LastPoll    *time.Time `json:"lastPoll,omitempty"`
}

// Status returns the current Status.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{
		Title:       p.config.Title(),
		Selected:    p.selection.Names(),
		Cursors:     make([]*float64, len(p.cursors)),
		SampleCount: p.samples,
		Snapshots:   len(p.store.All()),
		Stacking:    p.stacking,
		NewData:     p.store.NewData(),
		Overflowed:  p.store.Overflowed(),
	}
	if p.config != nil {
		st.Groups = len(p.config.Groups)
	}
	for i, c := range p.cursors {
		if c.Set {
			v := c.Value
			st.Cursors[i] = &v
		}
	}
	if !p.lastPoll.IsZero() {
		t := p.lastPoll
		st.LastPoll = &t
	}
	return st
}
