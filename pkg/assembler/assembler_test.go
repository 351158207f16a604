package assembler

import (
	"math"
	"reflect"
	"testing"

	"github.com/HatiCode/phyxlog/pkg/errors"
	"github.com/HatiCode/phyxlog/pkg/query"
	"github.com/HatiCode/phyxlog/pkg/selector"
	"github.com/HatiCode/phyxlog/pkg/storage"
)

func exampleSelection() selector.Selection {
	return selector.Selection{Groups: []selector.Group{
		{Index: 0, Buffers: []string{"B"}},
		{Index: 1, Buffers: []string{"C"}},
	}}
}

func mustDecode(t *testing.T, body string) *Payload {
	t.Helper()
	p, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return p
}

func TestAssemble_FirstPoll(t *testing.T) {
	p := mustDecode(t, `{
		"buffer": {
			"A": {"size": 0, "updateMode": "full", "buffer": [5, 6]},
			"B": {"size": 0, "updateMode": "full", "buffer": [1, 2, 3]},
			"C": {"size": 0, "updateMode": "full", "buffer": [9, 9]}
		},
		"status": {"session": "2a1f", "measuring": true, "timedRun": false, "countDown": 0}
	}`)

	res, err := Assemble(p, exampleSelection(), nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if !res.Updated {
		t.Fatal("Updated = false, want true")
	}

	wantGroups := []storage.Batch{{{1, 2, 3}}, {{9, 9}}}
	if !reflect.DeepEqual(res.Groups, wantGroups) {
		t.Errorf("Groups = %v, want %v", res.Groups, wantGroups)
	}
	wantCursors := []query.Cursor{query.At(3), query.At(9)}
	if !reflect.DeepEqual(res.Cursors, wantCursors) {
		t.Errorf("Cursors = %v, want %v", res.Cursors, wantCursors)
	}
	if res.Samples != 3 {
		t.Errorf("Samples = %d, want 3", res.Samples)
	}
	if p.Status == nil || !p.Status.Measuring || p.Status.Session != "2a1f" {
		t.Errorf("Status = %+v", p.Status)
	}
}

func TestAssemble_NoUpdate(t *testing.T) {
	p := mustDecode(t, `{"buffer": {"B": {"buffer": []}, "C": {"buffer": []}}}`)

	res, err := Assemble(p, exampleSelection(), []query.Cursor{query.At(3), query.At(9)})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if res.Updated {
		t.Error("Updated = true, want false")
	}
	if res.Groups != nil || res.Cursors != nil || res.Samples != 0 {
		t.Errorf("no-update result should be zero, got %+v", res)
	}
}

func TestAssemble_MissingBuffer(t *testing.T) {
	p := mustDecode(t, `{"buffer": {"B": {"buffer": [1]}}}`)

	_, err := Assemble(p, exampleSelection(), nil)
	if !errors.Is(err, errors.ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestAssemble_MissingBufferBeatsEmpty(t *testing.T) {
	p := mustDecode(t, `{"buffer": {"B": {"buffer": []}}}`)

	_, err := Assemble(p, exampleSelection(), nil)
	if !errors.Is(err, errors.ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestAssemble_NilPayload(t *testing.T) {
	_, err := Assemble(nil, exampleSelection(), nil)
	if !errors.Is(err, errors.ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestAssemble_LaterGroupEmptyKeepsCursor(t *testing.T) {
	p := mustDecode(t, `{"buffer": {"B": {"buffer": [4, 5]}, "C": {"buffer": []}}}`)

	res, err := Assemble(p, exampleSelection(), []query.Cursor{query.At(3), query.At(9)})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	wantCursors := []query.Cursor{query.At(5), query.At(9)}
	if !reflect.DeepEqual(res.Cursors, wantCursors) {
		t.Errorf("Cursors = %v, want %v", res.Cursors, wantCursors)
	}
	if len(res.Groups[1][0]) != 0 {
		t.Errorf("group 1 batch = %v, want empty", res.Groups[1])
	}
}

func TestAssemble_MultiBufferGroup(t *testing.T) {
	sel := selector.Selection{Groups: []selector.Group{
		{Buffers: []string{"acc_time", "accX", "accY"}},
	}}
	p := mustDecode(t, `{"buffer": {
		"acc_time": {"buffer": [0.01, 0.02]},
		"accX": {"buffer": [0.1, 0.2]},
		"accY": {"buffer": [-9.8, -9.7]}
	}}`)

	res, err := Assemble(p, sel, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	want := storage.Batch{{0.01, 0.02}, {0.1, 0.2}, {-9.8, -9.7}}
	if !reflect.DeepEqual(res.Groups[0], want) {
		t.Errorf("batch = %v, want %v", res.Groups[0], want)
	}
	if res.Cursors[0] != query.At(0.02) {
		t.Errorf("cursor = %v, want 0.02", res.Cursors[0])
	}
}

func TestAssemble_NullSamples(t *testing.T) {
	sel := selector.Selection{Groups: []selector.Group{{Buffers: []string{"t", "x"}}}}
	p := mustDecode(t, `{"buffer": {"t": {"buffer": [1, 2, null]}, "x": {"buffer": [null, 4, 5]}}}`)

	res, err := Assemble(p, sel, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if !math.IsNaN(res.Groups[0][0][2]) || !math.IsNaN(res.Groups[0][1][0]) {
		t.Errorf("null samples should decode to NaN: %v", res.Groups[0])
	}
	if res.Cursors[0] != query.At(2) {
		t.Errorf("cursor = %v, want last finite sample 2", res.Cursors[0])
	}
	if res.Samples != 3 {
		t.Errorf("Samples = %d, want 3", res.Samples)
	}
}

func TestAssemble_EmptySelection(t *testing.T) {
	p := mustDecode(t, `{"buffer": {}}`)

	res, err := Assemble(p, selector.Selection{}, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if res.Updated {
		t.Error("Updated = true, want false")
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []string{
		`{"buffer": `,
		`not json`,
		`{"buffer": {"B": {"buffer": ["x"]}}}`,
		`{"buffer": [1, 2]}`,
	}
	for _, body := range tests {
		if _, err := Decode([]byte(body)); !errors.Is(err, errors.ErrDecode) {
			t.Errorf("Decode(%q) error = %v, want ErrDecode", body, err)
		}
	}
}
