// Package experiment models the experiment description served by the phyphox
// remote interface.
//
// The /config document lists the buffers of the running experiment and the
// export sets that group them by logical source (for example all axes of the
// accelerometer plus its time base). LoadConfiguration turns that document
// into an ordered catalog of BufferGroups that the selector and query
// builder index into.
package experiment

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/HatiCode/phyxlog/pkg/errors"
)

// BufferGroup is one export set with at least one buffer. It is immutable once
// derived from a Configuration and is identified by Index.
type BufferGroup struct {
	// Index is the position of the group in Configuration.Groups.
	Index int
	// Source is the export set name, used as the display label.
	Source string
	// Buffers holds the buffer names in export order.
	Buffers []string
	// Legends holds the human label of each buffer, parallel to Buffers.
	Legends []string
}

// BufferDecl is a buffer declared by the experiment, exported or not.
type BufferDecl struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Metadata carries the descriptive fields of the /config document.
// A nil field was absent from the document.
type Metadata struct {
	CRC32         *string
	Title         *string
	LocalTitle    *string
	Category      *string
	LocalCategory *string
}

// Configuration is the parsed experiment description. Replacing it invalidates
// any selection or cursor derived from the previous one.
type Configuration struct {
	Metadata Metadata
	// Groups lists the non-empty export sets in document order.
	Groups []BufferGroup
	// Sources lists every export set name, including empty ones.
	Sources []string
	// Buffers lists the declared buffers.
	Buffers []BufferDecl
	// Inputs keeps the raw input declarations for diagnostics.
	Inputs []json.RawMessage
}

type rawConfig struct {
	CRC32         *flexString       `json:"crc32"`
	Title         *flexString       `json:"title"`
	LocalTitle    *flexString       `json:"localTitle"`
	Category      *flexString       `json:"category"`
	LocalCategory *flexString       `json:"localCategory"`
	Buffers       []BufferDecl      `json:"buffers"`
	Inputs        []json.RawMessage `json:"inputs"`
	Export        []rawExportSet    `json:"export"`
}

type rawExportSet struct {
	Set     string      `json:"set"`
	Sources []rawSource `json:"sources"`
}

type rawSource struct {
	Label  string `json:"label"`
	Buffer string `json:"buffer"`
}

// LoadConfiguration parses a /config document. Documents that are not a JSON
// object, or whose known fields have the wrong shape, fail with
// errors.ErrMalformedConfig.
func LoadConfiguration(raw []byte) (*Configuration, error) {
	if err := requireObject(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedConfig, err)
	}

	var rc rawConfig
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedConfig, err)
	}

	cfg := &Configuration{
		Metadata: Metadata{
			CRC32:         rc.CRC32.ptr(),
			Title:         rc.Title.ptr(),
			LocalTitle:    rc.LocalTitle.ptr(),
			Category:      rc.Category.ptr(),
			LocalCategory: rc.LocalCategory.ptr(),
		},
		Sources: make([]string, 0, len(rc.Export)),
		Buffers: rc.Buffers,
		Inputs:  rc.Inputs,
	}

	for _, set := range rc.Export {
		cfg.Sources = append(cfg.Sources, set.Set)
		if len(set.Sources) == 0 {
			continue
		}
		group := BufferGroup{
			Index:   len(cfg.Groups),
			Source:  set.Set,
			Buffers: make([]string, 0, len(set.Sources)),
			Legends: make([]string, 0, len(set.Sources)),
		}
		for _, src := range set.Sources {
			group.Buffers = append(group.Buffers, src.Buffer)
			group.Legends = append(group.Legends, src.Label)
		}
		cfg.Groups = append(cfg.Groups, group)
	}

	return cfg, nil
}

// Group returns the group at index i.
func (c *Configuration) Group(i int) (BufferGroup, bool) {
	if c == nil || i < 0 || i >= len(c.Groups) {
		return BufferGroup{}, false
	}
	return c.Groups[i], true
}

// BufferCount returns the number of exported buffers over all groups.
func (c *Configuration) BufferCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, g := range c.Groups {
		n += len(g.Buffers)
	}
	return n
}

// Title returns the experiment title or "" when unset.
func (c *Configuration) Title() string {
	if c == nil || c.Metadata.Title == nil {
		return ""
	}
	return *c.Metadata.Title
}

func requireObject(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty document")
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("document is not a JSON object")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return err
	}
	return nil
}
