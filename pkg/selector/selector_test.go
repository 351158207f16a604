package selector

import (
	"reflect"
	"testing"

	"github.com/HatiCode/phyxlog/pkg/errors"
	"github.com/HatiCode/phyxlog/pkg/experiment"
)

func testConfiguration(t *testing.T) *experiment.Configuration {
	t.Helper()
	cfg, err := experiment.LoadConfiguration([]byte(`{
		"export": [
			{"set": "first", "sources": [{"label": "a", "buffer": "A"}, {"label": "b", "buffer": "B"}]},
			{"set": "second", "sources": [{"label": "c", "buffer": "C"}]}
		]
	}`))
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	return cfg
}

func TestSelect_Everything(t *testing.T) {
	cfg := testConfiguration(t)

	sel, err := Select(cfg, nil)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	want := [][]string{{"A", "B"}, {"C"}}
	if got := sel.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if sel.Empty() {
		t.Error("Empty() = true, want false")
	}
}

func TestSelect_Everything_IsACopy(t *testing.T) {
	cfg := testConfiguration(t)

	sel, err := Select(cfg, []GroupSpec{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	sel.Groups[0].Buffers[0] = "mutated"

	if cfg.Groups[0].Buffers[0] != "A" {
		t.Errorf("configuration mutated through selection: %v", cfg.Groups[0].Buffers)
	}
}

func TestSelect_Explicit(t *testing.T) {
	cfg := testConfiguration(t)

	sel, err := Select(cfg, []GroupSpec{{Group: 0, Buffers: []int{1}}, {Group: 1, Buffers: []int{0}}})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	want := [][]string{{"B"}, {"C"}}
	if got := sel.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if sel.Groups[0].Primary() != "B" {
		t.Errorf("Primary() = %q, want %q", sel.Groups[0].Primary(), "B")
	}
	if sel.Groups[1].Index != 1 || sel.Groups[1].Source != "second" {
		t.Errorf("group 1 = %+v", sel.Groups[1])
	}
}

func TestSelect_KeepsGroupOrder(t *testing.T) {
	cfg := testConfiguration(t)

	sel, err := Select(cfg, []GroupSpec{{Group: 0, Buffers: []int{1, 0, 1}}})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	want := [][]string{{"A", "B"}}
	if got := sel.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestSelect_EmptyBufferList(t *testing.T) {
	cfg := testConfiguration(t)

	sel, err := Select(cfg, []GroupSpec{{Group: 0}})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !sel.Empty() {
		t.Errorf("Empty() = false, want true: %v", sel.Names())
	}
	if sel.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sel.Len())
	}
}

func TestSelect_OutOfRange(t *testing.T) {
	cfg := testConfiguration(t)

	tests := []struct {
		name  string
		specs []GroupSpec
	}{
		{"group too large", []GroupSpec{{Group: 2, Buffers: []int{0}}}},
		{"negative group", []GroupSpec{{Group: -1, Buffers: []int{0}}}},
		{"buffer too large", []GroupSpec{{Group: 1, Buffers: []int{1}}}},
		{"negative buffer", []GroupSpec{{Group: 0, Buffers: []int{-1, 0}}}},
		{"valid then invalid group", []GroupSpec{{Group: 0, Buffers: []int{0}}, {Group: 5, Buffers: []int{0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Select(cfg, tt.specs)
			if !errors.Is(err, errors.ErrSelection) {
				t.Fatalf("error = %v, want ErrSelection", err)
			}
			if sel.Len() != 0 {
				t.Errorf("rejected selection should be empty, got %v", sel.Names())
			}
		})
	}
}

func TestSelect_NoConfiguration(t *testing.T) {
	_, err := Select(nil, nil)
	if !errors.Is(err, errors.ErrNoConfiguration) {
		t.Errorf("error = %v, want ErrNoConfiguration", err)
	}
}

func TestSelection_Buffer(t *testing.T) {
	cfg := testConfiguration(t)
	sel := All(cfg)

	tests := []struct {
		g, b int
		want string
	}{
		{0, 0, "A"},
		{0, 1, "B"},
		{1, 0, "C"},
		{1, 1, ""},
		{2, 0, ""},
		{-1, 0, ""},
	}
	for _, tt := range tests {
		if got := sel.Buffer(tt.g, tt.b); got != tt.want {
			t.Errorf("Buffer(%d, %d) = %q, want %q", tt.g, tt.b, got, tt.want)
		}
	}
}

func TestSelection_Clone(t *testing.T) {
	cfg := testConfiguration(t)
	sel := All(cfg)

	clone := sel.Clone()
	clone.Groups[1].Buffers[0] = "Z"

	if sel.Buffer(1, 0) != "C" {
		t.Errorf("Clone shares buffers with original")
	}
}
