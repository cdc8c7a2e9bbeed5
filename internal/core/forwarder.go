package core

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"RoboFlock/internal/model"
	"RoboFlock/internal/parser"
)

// Forwarder posts robot telemetry to a monitor's /api/telemetry endpoint.
// Publish never blocks the control loop: records are queued and dropped when
// the queue is full.
type Forwarder struct {
	URL         string
	parser      parser.Parser
	contentType string
	client      *http.Client

	queue   chan model.Telemetry
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewForwarder builds a forwarder encoding with p and buffering depth records.
func NewForwarder(url string, p parser.Parser, depth int) *Forwarder {
	if depth <= 0 {
		depth = 256
	}
	ct := "application/json"
	if _, ok := p.(*parser.CSVParser); ok {
		ct = "text/plain"
	}
	return &Forwarder{
		URL:         strings.TrimSuffix(url, "/"),
		parser:      p,
		contentType: ct,
		client:      &http.Client{Timeout: 5 * time.Second},
		queue:       make(chan model.Telemetry, depth),
		stop:        make(chan struct{}),
	}
}

// Start launches the sender goroutine.
func (f *Forwarder) Start() {
	f.wg.Add(1)
	go f.loop()
}

// Publish queues t for delivery.
func (f *Forwarder) Publish(t model.Telemetry) {
	select {
	case f.queue <- t:
	default:
		if n := f.dropped.Add(1); n%100 == 1 {
			zap.S().Warnf("[forwarder] queue full, %d records dropped", n)
		}
	}
}

// Dropped reports how many records were discarded.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }

func (f *Forwarder) loop() {
	defer f.wg.Done()
	for {
		select {
		case <-f.stop:
			return
		case t := <-f.queue:
			f.send(t)
		}
	}
}

func (f *Forwarder) send(t model.Telemetry) {
	body, err := f.parser.EncodeTelemetry(t)
	if err != nil {
		zap.S().Warnf("[forwarder] encode %s/%d: %v", t.Robot, t.Tick, err)
		return
	}
	resp, err := f.client.Post(f.URL+"/api/telemetry", f.contentType, strings.NewReader(body))
	if err != nil {
		zap.S().Debugf("[forwarder] post: %v", err)
		return
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		zap.S().Debugf("[forwarder] discard response body: %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		zap.S().Debugf("[forwarder] close response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		zap.S().Warnf("[forwarder] monitor answered %s", resp.Status)
	}
}

// Stop ends the sender goroutine. Records still queued are dropped.
func (f *Forwarder) Stop() {
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
	f.wg.Wait()
}
