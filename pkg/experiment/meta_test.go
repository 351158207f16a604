package experiment

import (
	"math"
	"testing"

	"github.com/HatiCode/phyxlog/pkg/errors"
)

const iphoneMeta = `{
	"version": "1.1.16",
	"build": "11601",
	"fileFormat": "1.18",
	"deviceModel": "iPhone14,5",
	"deviceBrand": "Apple",
	"deviceBoard": "",
	"deviceManufacturer": "",
	"deviceBaseOS": "",
	"deviceCodename": "",
	"deviceRelease": "17.5.1",
	"depthFrontSensor": 1,
	"depthBackSensor": false,
	"camera2api": null,
	"batteryLevel": 0.8,
	"sensors": {
		"accelerometer": {"Name": "LSM6DSO", "Vendor": "ST", "Range": "78.45", "Resolution": 0.0023, "MinDelay": 2500, "MaxDelay": "", "Power": 0.17, "Version": 1},
		"light": {},
		"pressure": null
	}
}`

func TestParseMeta(t *testing.T) {
	m, err := ParseMeta([]byte(iphoneMeta))
	if err != nil {
		t.Fatalf("ParseMeta() error = %v", err)
	}

	if m.Device.DeviceModel == nil || *m.Device.DeviceModel != "iPhone14,5" {
		t.Errorf("DeviceModel = %v, want iPhone14,5", m.Device.DeviceModel)
	}
	if m.Device.DepthFrontSensor == nil || *m.Device.DepthFrontSensor != "1" {
		t.Errorf("DepthFrontSensor = %v, want \"1\"", m.Device.DepthFrontSensor)
	}
	if m.Device.DepthBackSensor == nil || *m.Device.DepthBackSensor != "false" {
		t.Errorf("DepthBackSensor = %v, want \"false\"", m.Device.DepthBackSensor)
	}
	if m.Device.Camera2API != nil {
		t.Errorf("Camera2API = %q, want unset", *m.Device.Camera2API)
	}
	if m.Device.DepthBackRate != nil {
		t.Errorf("DepthBackRate = %q, want unset", *m.Device.DepthBackRate)
	}

	if len(m.Unknown) != 1 || m.Unknown[0] != "batteryLevel" {
		t.Errorf("Unknown = %v, want [batteryLevel]", m.Unknown)
	}

	names := m.SensorNames()
	if len(names) != 1 || names[0] != "accelerometer" {
		t.Fatalf("SensorNames() = %v, want [accelerometer]", names)
	}
	acc := m.Sensors["accelerometer"]
	if acc.Name == nil || *acc.Name != "LSM6DSO" {
		t.Errorf("Name = %v, want LSM6DSO", acc.Name)
	}
	if acc.Range == nil || *acc.Range != 78.45 {
		t.Errorf("Range = %v, want 78.45", acc.Range)
	}
	if acc.MinDelay == nil || *acc.MinDelay != 2500 {
		t.Errorf("MinDelay = %v, want 2500", acc.MinDelay)
	}
	if acc.MaxDelay == nil || !math.IsNaN(*acc.MaxDelay) {
		t.Errorf("MaxDelay = %v, want NaN", acc.MaxDelay)
	}
	if acc.Version == nil || *acc.Version != "1" {
		t.Errorf("Version = %v, want \"1\"", acc.Version)
	}
}

func TestParseMeta_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"array", `[]`},
		{"null", `null`},
		{"field is object", `{"deviceModel": {"a": 1}}`},
		{"sensors not an object", `{"sensors": [1, 2]}`},
		{"sensor range not numeric", `{"sensors": {"acc": {"Range": "wide"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMeta([]byte(tt.doc))
			if !errors.Is(err, errors.ErrMalformedMeta) {
				t.Errorf("error = %v, want ErrMalformedMeta", err)
			}
		})
	}
}
