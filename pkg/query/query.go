// Package query builds the /get request that fetches buffer data from the
// phyphox remote interface.
//
// The remote side understands three forms of key per buffer:
//
//	name=full        entire history of the buffer
//	name=<t>         samples of the buffer newer than t
//	name=<t>|anchor  samples whose index matches anchor's samples newer than t
//	name             newest sample only
//
// All buffers of a selected group share the group's cursor and are anchored
// to the group's primary buffer, so their arrays stay index aligned.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/HatiCode/phyxlog/pkg/selector"
)

// Path is the remote endpoint serving buffer data.
const Path = "/get"

// fullSentinel marks a key without lower bound.
const fullSentinel = "full"

// Mode selects how much data a poll requests.
type Mode int

const (
	// ModeFull requests the whole history of every selected buffer.
	ModeFull Mode = iota
	// ModeIncremental requests samples newer than each group's cursor.
	ModeIncremental
	// ModeLatest requests only the newest sample of every selected buffer.
	ModeLatest
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeIncremental:
		return "update"
	case ModeLatest:
		return "last"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as accepted on the command line.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return ModeFull, nil
	case "update", "incremental":
		return ModeIncremental, nil
	case "last", "latest":
		return ModeLatest, nil
	default:
		return 0, fmt.Errorf("unknown buffer mode %q (want full, update or last)", s)
	}
}

// Cursor is the last consumed sample time of a group's primary buffer.
// The zero value is unset.
type Cursor struct {
	Value float64
	Set   bool
}

// At returns a set cursor at v.
func At(v float64) Cursor {
	return Cursor{Value: v, Set: true}
}

func (c Cursor) String() string {
	if !c.Set {
		return "unset"
	}
	return formatTime(c.Value)
}

// Query is a rendered /get request.
type Query struct {
	Mode Mode
	// Path is the request path including the query string, or "" when there
	// is nothing to fetch.
	Path string
	// Incremental is true when at least one key carries a lower bound.
	Incremental bool
	// Realigned is true when the cursor count did not match the group count
	// and the first cursor was reused for every group.
	Realigned bool
}

// Empty reports whether there is nothing to fetch.
func (q Query) Empty() bool {
	return q.Path == ""
}

// Build renders the query for sel. An empty cursors slice means no poll has
// succeeded yet and always yields a full query. Build never mutates cursors.
func Build(sel selector.Selection, cursors []Cursor, mode Mode) Query {
	q := Query{Mode: mode}
	if sel.Empty() {
		return q
	}

	if mode == ModeIncremental && len(cursors) > 0 && len(cursors) != len(sel.Groups) {
		aligned := make([]Cursor, len(sel.Groups))
		for i := range aligned {
			aligned[i] = cursors[0]
		}
		cursors = aligned
		q.Realigned = true
	}

	var b strings.Builder
	seen := make(map[string]bool)
	add := func(name, value string, hasValue bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		if hasValue {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}

	for gi, g := range sel.Groups {
		var cursor Cursor
		if mode == ModeIncremental && len(cursors) > 0 {
			cursor = cursors[gi]
		}
		for bi, name := range g.Buffers {
			switch {
			case mode == ModeLatest:
				add(name, "", false)
			case !cursor.Set:
				add(name, fullSentinel, true)
			case bi == 0:
				add(name, formatTime(cursor.Value), true)
				q.Incremental = true
			default:
				add(name, formatTime(cursor.Value)+"|"+g.Primary(), true)
				q.Incremental = true
			}
		}
	}

	q.Path = Path + "?" + b.String()
	return q
}

func formatTime(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
