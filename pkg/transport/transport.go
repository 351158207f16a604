// Package transport talks HTTP to the phyphox remote interface.
//
// The remote interface is a small HTTP server embedded in the phyphox app.
// Every endpoint answers a GET with a JSON document:
//
//   - /meta                 device and sensor description
//   - /config               experiment description (buffers and export sets)
//   - /get?...              buffer data, see package query
//   - /time                 time reference of the measurement
//   - /control?cmd=start    start, stop or clear the measurement
//
// Transport is the only blocking collaborator of the poller. A failure to
// reach the phone or a non-200 status is reported as errors.ErrTransport.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/HatiCode/phyxlog/pkg/errors"
)

// Transport fetches a path (including its query string) from the remote
// interface and returns the response body.
type Transport interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Command is a measurement control command.
type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
	CommandClear Command = "clear"
)

// Remote interface paths.
const (
	MetaPath    = "/meta"
	ConfigPath  = "/config"
	TimePath    = "/time"
	ControlPath = "/control?cmd="
)

// maxBodyBytes bounds a single response. A full fetch of a long measurement
// can be several megabytes.
const maxBodyBytes = 256 << 20

// Options configures a Client.
type Options struct {
	// Protocol is "http" (default) or "https".
	Protocol string
	// Timeout applies to every request; defaults to 10s if <= 0.
	Timeout time.Duration
	// NoProxy bypasses any proxy configured in the environment.
	NoProxy bool
	// HTTPClient overrides the client built from the options above.
	HTTPClient *http.Client
}

// Client is the HTTP Transport. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for the phone at address:port. address must be
// a literal IP address, as displayed by the app.
func NewClient(address string, port int, opts Options) (*Client, error) {
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return nil, fmt.Errorf("invalid IP address %q: %w", address, err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	protocol := opts.Protocol
	if protocol == "" {
		protocol = "http"
	}
	if protocol != "http" && protocol != "https" {
		return nil, fmt.Errorf("unsupported protocol %q", protocol)
	}

	cli := opts.HTTPClient
	if cli == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if opts.NoProxy {
			tr.Proxy = nil
		}
		cli = &http.Client{Timeout: timeout, Transport: tr}
	}

	return &Client{
		baseURL:    protocol + "://" + net.JoinHostPort(ip.String(), strconv.Itoa(port)),
		httpClient: cli,
	}, nil
}

// NewClientWithURL returns a Client for an already formed base URL such as
// "http://192.168.0.4:8080". Used when the phone sits behind a forwarder.
func NewClientWithURL(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the phone's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch implements Transport.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", errors.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: status %d", errors.ErrTransport, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errors.ErrTransport, err)
	}
	return body, nil
}

// Meta fetches the raw /meta document.
func (c *Client) Meta(ctx context.Context) ([]byte, error) {
	return c.Fetch(ctx, MetaPath)
}

// Config fetches the raw /config document.
func (c *Client) Config(ctx context.Context) ([]byte, error) {
	return c.Fetch(ctx, ConfigPath)
}

// TimeReference is one entry of the /time answer: the moment a measurement
// was started or paused, in experiment time and in system time.
type TimeReference struct {
	Event          string  `json:"event"`
	ExperimentTime float64 `json:"experimentTime"`
	SystemTime     float64 `json:"systemTime"`
}

// Time fetches the measurement time references.
func (c *Client) Time(ctx context.Context) ([]TimeReference, error) {
	body, err := c.Fetch(ctx, TimePath)
	if err != nil {
		return nil, err
	}
	var refs []TimeReference
	if err := json.Unmarshal(body, &refs); err != nil {
		return nil, fmt.Errorf("%w: time: %v", errors.ErrDecode, err)
	}
	return refs, nil
}

// Control sends a control command and returns the phone's result flag.
func (c *Client) Control(ctx context.Context, cmd Command) (bool, error) {
	switch cmd {
	case CommandStart, CommandStop, CommandClear:
	default:
		return false, fmt.Errorf("%w: %q", errors.ErrUnknownCommand, cmd)
	}

	body, err := c.Fetch(ctx, ControlPath+string(cmd))
	if err != nil {
		return false, err
	}
	var res struct {
		Result bool `json:"result"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return false, fmt.Errorf("%w: control %s: %v", errors.ErrDecode, cmd, err)
	}
	return res.Result, nil
}

// Start starts the measurement.
func (c *Client) Start(ctx context.Context) (bool, error) {
	return c.Control(ctx, CommandStart)
}

// Stop pauses the measurement.
func (c *Client) Stop(ctx context.Context) (bool, error) {
	return c.Control(ctx, CommandStop)
}

// Clear stops the measurement and empties every buffer on the phone.
func (c *Client) Clear(ctx context.Context) (bool, error) {
	return c.Control(ctx, CommandClear)
}
