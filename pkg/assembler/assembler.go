// Package assembler turns a /get response into one Snapshot and the cursors
// to use for the next incremental poll.
package assembler

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/HatiCode/phyxlog/pkg/errors"
	"github.com/HatiCode/phyxlog/pkg/query"
	"github.com/HatiCode/phyxlog/pkg/selector"
	"github.com/HatiCode/phyxlog/pkg/storage"
)

// Payload is the decoded /get response.
type Payload struct {
	Buffers map[string]BufferData `json:"buffer"`
	Status  *Status               `json:"status"`
}

// BufferData is one buffer's entry in the response.
type BufferData struct {
	Size       int       `json:"size"`
	UpdateMode string    `json:"updateMode"`
	Values     []float64 `json:"-"`
}

// Status reports the measurement state of the remote experiment.
type Status struct {
	Session   string  `json:"session"`
	Measuring bool    `json:"measuring"`
	TimedRun  bool    `json:"timedRun"`
	CountDown float64 `json:"countDown"`
}

func (b *BufferData) UnmarshalJSON(data []byte) error {
	var raw struct {
		Size       int        `json:"size"`
		UpdateMode string     `json:"updateMode"`
		Buffer     []*float64 `json:"buffer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Size = raw.Size
	b.UpdateMode = raw.UpdateMode
	b.Values = make([]float64, len(raw.Buffer))
	for i, v := range raw.Buffer {
		if v == nil {
			b.Values[i] = math.NaN()
			continue
		}
		b.Values[i] = *v
	}
	return nil
}

// Decode parses a /get response body. Null samples become NaN.
func Decode(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	return &p, nil
}

// Result is the outcome of assembling one payload.
type Result struct {
	// Updated is false when the first group's primary buffer returned no
	// samples; Groups, Cursors and Samples are then zero.
	Updated bool
	Groups  []storage.Batch
	// Cursors holds the next cursor of every selected group.
	Cursors []query.Cursor
	// Samples is the number of samples returned for the first group's
	// primary buffer.
	Samples int
}

// Assemble reads the selected buffers out of p in selection order. prev holds
// the cursors in force before the poll; a group whose primary array carries
// no finite sample keeps its previous cursor. A selected buffer missing from
// p fails with errors.ErrMalformedResponse.
func Assemble(p *Payload, sel selector.Selection, prev []query.Cursor) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("%w: empty payload", errors.ErrMalformedResponse)
	}
	if sel.Empty() {
		return Result{}, nil
	}

	for _, g := range sel.Groups {
		for _, name := range g.Buffers {
			if _, ok := p.Buffers[name]; !ok {
				return Result{}, fmt.Errorf("%w: buffer %q missing", errors.ErrMalformedResponse, name)
			}
		}
	}

	first := p.Buffers[sel.Groups[0].Primary()].Values
	if len(first) == 0 {
		return Result{}, nil
	}

	res := Result{
		Updated: true,
		Groups:  make([]storage.Batch, len(sel.Groups)),
		Cursors: make([]query.Cursor, len(sel.Groups)),
		Samples: len(first),
	}
	for gi, g := range sel.Groups {
		batch := make(storage.Batch, len(g.Buffers))
		for bi, name := range g.Buffers {
			batch[bi] = append([]float64(nil), p.Buffers[name].Values...)
		}
		res.Groups[gi] = batch

		if gi < len(prev) {
			res.Cursors[gi] = prev[gi]
		}
		if t, ok := lastFinite(batch[0]); ok {
			res.Cursors[gi] = query.At(t)
		}
	}

	return res, nil
}

func lastFinite(values []float64) (float64, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) && !math.IsInf(values[i], 0) {
			return values[i], true
		}
	}
	return 0, false
}
