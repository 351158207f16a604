package experiment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/HatiCode/phyxlog/pkg/errors"
)

// Device holds the device fields of the /meta document. A nil field was
// absent or null.
type Device struct {
	Version              *string `json:"version"`
	Build                *string `json:"build"`
	FileFormat           *string `json:"fileFormat"`
	DeviceModel          *string `json:"deviceModel"`
	DeviceBrand          *string `json:"deviceBrand"`
	DeviceBoard          *string `json:"deviceBoard"`
	DeviceManufacturer   *string `json:"deviceManufacturer"`
	DeviceBaseOS         *string `json:"deviceBaseOS"`
	DeviceCodename       *string `json:"deviceCodename"`
	DeviceRelease        *string `json:"deviceRelease"`
	DepthFrontSensor     *string `json:"depthFrontSensor"`
	DepthBackSensor      *string `json:"depthBackSensor"`
	DepthFrontRate       *string `json:"depthFrontRate"`
	DepthBackRate        *string `json:"depthBackRate"`
	DepthFrontResolution *string `json:"depthFrontResolution"`
	DepthBackResolution  *string `json:"depthBackResolution"`
	Camera2API           *string `json:"camera2api"`
	Camera2APIFull       *string `json:"camera2apiFull"`
}

// Sensor describes one hardware sensor reported in /meta.
type Sensor struct {
	Name       *string
	Vendor     *string
	Version    *string
	Range      *float64
	Resolution *float64
	MinDelay   *float64
	MaxDelay   *float64
	Power      *float64
}

// Meta is the parsed /meta document.
type Meta struct {
	Device  Device
	Sensors map[string]Sensor
	// Unknown lists top level keys that are not part of the known record,
	// sorted.
	Unknown []string
}

var deviceKeys = map[string]func(*Device) **string{
	"version":              func(d *Device) **string { return &d.Version },
	"build":                func(d *Device) **string { return &d.Build },
	"fileFormat":           func(d *Device) **string { return &d.FileFormat },
	"deviceModel":          func(d *Device) **string { return &d.DeviceModel },
	"deviceBrand":          func(d *Device) **string { return &d.DeviceBrand },
	"deviceBoard":          func(d *Device) **string { return &d.DeviceBoard },
	"deviceManufacturer":   func(d *Device) **string { return &d.DeviceManufacturer },
	"deviceBaseOS":         func(d *Device) **string { return &d.DeviceBaseOS },
	"deviceCodename":       func(d *Device) **string { return &d.DeviceCodename },
	"deviceRelease":        func(d *Device) **string { return &d.DeviceRelease },
	"depthFrontSensor":     func(d *Device) **string { return &d.DepthFrontSensor },
	"depthBackSensor":      func(d *Device) **string { return &d.DepthBackSensor },
	"depthFrontRate":       func(d *Device) **string { return &d.DepthFrontRate },
	"depthBackRate":        func(d *Device) **string { return &d.DepthBackRate },
	"depthFrontResolution": func(d *Device) **string { return &d.DepthFrontResolution },
	"depthBackResolution":  func(d *Device) **string { return &d.DepthBackResolution },
	"camera2api":           func(d *Device) **string { return &d.Camera2API },
	"camera2apiFull":       func(d *Device) **string { return &d.Camera2APIFull },
}

type rawSensor struct {
	Name       *flexString `json:"Name"`
	Vendor     *flexString `json:"Vendor"`
	Version    *flexString `json:"Version"`
	Range      *flexFloat  `json:"Range"`
	Resolution *flexFloat  `json:"Resolution"`
	MinDelay   *flexFloat  `json:"MinDelay"`
	MaxDelay   *flexFloat  `json:"MaxDelay"`
	Power      *flexFloat  `json:"Power"`
}

// ParseMeta parses a /meta document. Non-object documents fail with
// errors.ErrMalformedMeta.
func ParseMeta(raw []byte) (*Meta, error) {
	if err := requireObject(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedMeta, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedMeta, err)
	}

	m := &Meta{Sensors: make(map[string]Sensor)}
	for key, value := range fields {
		if key == "sensors" {
			if err := m.parseSensors(value); err != nil {
				return nil, fmt.Errorf("%w: sensors: %v", errors.ErrMalformedMeta, err)
			}
			continue
		}
		field, ok := deviceKeys[key]
		if !ok {
			m.Unknown = append(m.Unknown, key)
			continue
		}
		var fs *flexString
		if err := json.Unmarshal(value, &fs); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errors.ErrMalformedMeta, key, err)
		}
		*field(&m.Device) = fs.ptr()
	}
	sort.Strings(m.Unknown)

	return m, nil
}

func (m *Meta) parseSensors(raw json.RawMessage) error {
	var sensors map[string]*rawSensor
	if err := json.Unmarshal(raw, &sensors); err != nil {
		return err
	}
	for name, rs := range sensors {
		if rs == nil || rs.empty() {
			continue
		}
		m.Sensors[name] = Sensor{
			Name:       rs.Name.ptr(),
			Vendor:     rs.Vendor.ptr(),
			Version:    rs.Version.ptr(),
			Range:      rs.Range.ptr(),
			Resolution: rs.Resolution.ptr(),
			MinDelay:   rs.MinDelay.ptr(),
			MaxDelay:   rs.MaxDelay.ptr(),
			Power:      rs.Power.ptr(),
		}
	}
	return nil
}

// SensorNames returns the names of the reported sensors, sorted.
func (m *Meta) SensorNames() []string {
	names := make([]string, 0, len(m.Sensors))
	for name := range m.Sensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (rs *rawSensor) empty() bool {
	return rs.Name == nil && rs.Vendor == nil && rs.Version == nil &&
		rs.Range == nil && rs.Resolution == nil && rs.MinDelay == nil &&
		rs.MaxDelay == nil && rs.Power == nil
}

// flexString accepts a JSON string, number or boolean and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*f = flexString(b)
		return nil
	default:
		return fmt.Errorf("expected scalar, got %s", b)
	}
}

func (f *flexString) ptr() *string {
	if f == nil {
		return nil
	}
	s := string(*f)
	return &s
}

// flexFloat accepts a JSON number or a numeric string. An empty string
// decodes to NaN.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = flexFloat(math.NaN())
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func (f *flexFloat) ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
