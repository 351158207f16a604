// Package config implements the phylogger configuration.
//
// Every flag has an environment variable fallback. Flags take precedence over
// environment variables, which take precedence over defaults.
//
// The buffer selection comes either from -select, written as
// "group:buffer,buffer;group:buffer" (for example "0:0,1,2;1:0"), or from a
// YAML file given with -selection-file:
//
//	groups:
//	  - group: 0
//	    buffers: [0, 1, 2]
//	  - group: 1
//	    buffers: [0]
//
// No selection at all means every buffer of every group.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/phyxlog/pkg/selector"
)

// Config holds all phylogger configuration.
type Config struct {
	Address       string
	Port          int
	Protocol      string
	NoProxy       bool
	Timeout       time.Duration
	Interval      time.Duration
	Polls         int
	Mode          string
	Stack         bool
	Select        string
	SelectionFile string
	Start         bool
	Clear         bool
	Listen        string
	Probe         bool
	LogFormat     string
	LogLevel      string
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Exits with status 1 if -address is missing, unless -probe is set.
func ParseFlags() *Config {
	cfg := &Config{}

	// Phone
	flag.StringVar(&cfg.Address, "address", getEnv("PHYPHOX_ADDRESS", ""), "IP address of the phone (required)")
	flag.IntVar(&cfg.Port, "port", getEnvInt("PHYPHOX_PORT", 8080), "Port of the phyphox remote interface")
	flag.StringVar(&cfg.Protocol, "protocol", getEnv("PHYPHOX_PROTOCOL", "http"), "Protocol: http or https")
	flag.BoolVar(&cfg.NoProxy, "no-proxy", getEnvBool("PHYPHOX_NO_PROXY", false), "Bypass proxies from the environment")
	flag.DurationVar(&cfg.Timeout, "timeout", getEnvDuration("PHYPHOX_TIMEOUT", 10*time.Second), "Request timeout")

	// Polling
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", time.Second), "Poll interval")
	flag.IntVar(&cfg.Polls, "polls", getEnvInt("POLLS", 0), "Number of polls before exiting (0 = until signal)")
	flag.StringVar(&cfg.Mode, "mode", getEnv("MODE", "update"), "Buffer mode: full, update or last")
	flag.BoolVar(&cfg.Stack, "stack", getEnvBool("STACK", false), "Keep every snapshot instead of the latest one")
	flag.StringVar(&cfg.Select, "select", getEnv("SELECT", ""), `Buffer selection, e.g. "0:0,1,2;1:0" (empty = all)`)
	flag.StringVar(&cfg.SelectionFile, "selection-file", getEnv("SELECTION_FILE", ""), "YAML file holding the buffer selection")

	// Measurement control
	flag.BoolVar(&cfg.Start, "start", getEnvBool("START", false), "Start the measurement, and stop it on exit")
	flag.BoolVar(&cfg.Clear, "clear", getEnvBool("CLEAR", false), "Clear the phone's buffers before polling")

	// Server
	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8090"), "HTTP listen address for status and metrics (empty = disabled)")
	flag.BoolVar(&cfg.Probe, "probe", false, "Query the status of a phylogger running on -listen and exit")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.Parse()

	if cfg.Address == "" && !cfg.Probe {
		fmt.Fprintln(os.Stderr, "Error: -address is required")
		flag.Usage()
		os.Exit(1)
	}

	return cfg
}

// Selection returns the buffer selection from -selection-file or -select.
// Giving both is an error.
func (c *Config) Selection() ([]selector.GroupSpec, error) {
	switch {
	case c.SelectionFile != "" && c.Select != "":
		return nil, fmt.Errorf("-select and -selection-file are mutually exclusive")
	case c.SelectionFile != "":
		return LoadSelectionFile(c.SelectionFile)
	default:
		return ParseSelection(c.Select)
	}
}

// ParseSelection parses "group:buffer,buffer;group:buffer". An empty string
// yields no spec. Indices are not bounds checked here.
func ParseSelection(s string) ([]selector.GroupSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var specs []selector.GroupSpec
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		groupStr, buffersStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid selection %q: want group:buffer[,buffer...]", part)
		}
		group, err := strconv.Atoi(strings.TrimSpace(groupStr))
		if err != nil {
			return nil, fmt.Errorf("invalid group index %q: %w", groupStr, err)
		}

		spec := selector.GroupSpec{Group: group}
		for _, b := range strings.Split(buffersStr, ",") {
			b = strings.TrimSpace(b)
			if b == "" {
				continue
			}
			idx, err := strconv.Atoi(b)
			if err != nil {
				return nil, fmt.Errorf("invalid buffer index %q in group %d: %w", b, group, err)
			}
			spec.Buffers = append(spec.Buffers, idx)
		}
		if len(spec.Buffers) == 0 {
			return nil, fmt.Errorf("invalid selection %q: no buffer index", part)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

type selectionFile struct {
	Groups []selector.GroupSpec `yaml:"groups"`
}

// LoadSelectionFile reads a YAML selection file.
func LoadSelectionFile(path string) ([]selector.GroupSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selection file: %w", err)
	}

	var f selectionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse selection file %s: %w", path, err)
	}
	for _, g := range f.Groups {
		if len(g.Buffers) == 0 {
			return nil, fmt.Errorf("selection file %s: group %d has no buffer index", path, g.Group)
		}
	}
	return f.Groups, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// StatusURL returns the base URL of the status server on Listen, for probes.
func (c *Config) StatusURL() string {
	host, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return "http://" + c.Listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
