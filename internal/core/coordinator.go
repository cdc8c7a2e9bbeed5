package core

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"RoboFlock/internal/device"
	"RoboFlock/internal/model"
	"RoboFlock/internal/parser"
	"RoboFlock/pkg/lorapkg"
)

// RadioCoordinator pushes weight payloads to the flock over a LoRa serial
// radio. With a session every push is a LoRaWAN downlink carrying the binary
// payload; without one the plain W line is sent.
type RadioCoordinator struct {
	dev     device.Device
	session *lorapkg.LoRaWANContext
	mu      sync.Mutex
}

// NewRadioCoordinator wraps dev. session may be nil.
func NewRadioCoordinator(dev device.Device, session *lorapkg.LoRaWANContext) *RadioCoordinator {
	return &RadioCoordinator{dev: dev, session: session}
}

// PushWeights broadcasts p. The frame counter advances on every framed push.
func (c *RadioCoordinator) PushWeights(p model.WeightPayload) error {
	if len(p) < parser.WeightPayloadLen {
		return fmt.Errorf("payload needs %d values, got %d", parser.WeightPayloadLen, len(p))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var line string
	if c.session != nil {
		c.session.FCnt++
		frame, err := lorapkg.Encode(*c.session, parser.EncodeWeightPayload(p))
		if err != nil {
			return err
		}
		line = "LW," + frame
	} else {
		var err error
		line, err = parser.NewCSVParser().EncodeWeights(model.WeightUpdate{
			Cohesion:            p[0],
			Separation:          p[1],
			SeparationThreshold: p[2],
			Iterations:          int(p[3]),
		})
		if err != nil {
			return err
		}
	}
	if err := c.dev.WriteLine(line); err != nil {
		return fmt.Errorf("radio write: %w", err)
	}
	zap.S().Infof("[coordinator] pushed %v", p)
	return nil
}

// Close closes the radio.
func (c *RadioCoordinator) Close() error { return c.dev.Close() }

// HTTPCoordinator pushes weight updates through a monitor's /api/weights.
type HTTPCoordinator struct {
	URL    string
	Token  string
	client *http.Client
}

// NewHTTPCoordinator targets the monitor at url.
func NewHTTPCoordinator(url, token string) *HTTPCoordinator {
	return &HTTPCoordinator{
		URL:    strings.TrimSuffix(url, "/"),
		Token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Push sends u as JSON.
func (c *HTTPCoordinator) Push(u model.WeightUpdate) error {
	body, err := parser.NewJSONParser().EncodeWeights(u)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.URL+"/api/weights", strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			zap.S().Debugf("[coordinator] close response: %v", cerr)
		}
	}()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.New("monitor rejected weights: " + resp.Status + " " + strings.TrimSpace(string(msg)))
	}
	return nil
}
