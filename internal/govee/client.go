// Package govee is the REST collaborator for a single Govee smart light.
// Commands are fire-and-forget: failures are logged and reported to the
// caller, and the next resolution cycle retries naturally.
package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"statuslight/internal/status"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://developer-api.govee.com"
	controlPath    = "/v1/devices/control"
	requestTimeout = 10 * time.Second
)

// Controller is the command surface the actuator needs. All three commands
// are idempotent on the device side.
type Controller interface {
	SetPower(ctx context.Context, on bool) error
	SetColor(ctx context.Context, c status.RGB) error
	SetBrightness(ctx context.Context, level int) error
}

// Client talks to the Govee developer API for one device.
type Client struct {
	baseURL string
	apiKey  string
	device  string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a Govee client for the given device.
func NewClient(apiKey, device, model string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		device:  device,
		model:   model,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger.Named("govee"),
	}
}

// SetBaseURL overrides the API endpoint. Tests point it at a local server.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

type controlRequest struct {
	Device string     `json:"device"`
	Model  string     `json:"model"`
	Cmd    controlCmd `json:"cmd"`
}

type controlCmd struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// SetPower turns the light on or off.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	value := "off"
	if on {
		value = "on"
	}
	return c.control(ctx, "turn", value)
}

// SetColor sets the light color. The device must be on for this to have a
// visible effect.
func (c *Client) SetColor(ctx context.Context, col status.RGB) error {
	return c.control(ctx, "color", map[string]int{
		"r": int(col.R),
		"g": int(col.G),
		"b": int(col.B),
	})
}

// SetBrightness sets the brightness, 0-100.
func (c *Client) SetBrightness(ctx context.Context, level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return c.control(ctx, "brightness", level)
}

// control issues one command against the device.
func (c *Client) control(ctx context.Context, name string, value any) error {
	body, err := json.Marshal(controlRequest{
		Device: c.device,
		Model:  c.model,
		Cmd:    controlCmd{Name: name, Value: value},
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s command: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+controlPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Govee-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Light command failed",
			zap.String("command", name),
			zap.Error(err))
		return fmt.Errorf("%s command failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The API wraps errors in a {code, message} envelope; surface the
		// message when it is there.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Light command rejected",
			zap.String("command", name),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", snippet))
		return fmt.Errorf("%s command rejected: HTTP %d", name, resp.StatusCode)
	}

	c.logger.Debug("Light command accepted",
		zap.String("command", name),
		zap.Any("value", value))
	return nil
}
