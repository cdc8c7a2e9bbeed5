package device

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"RoboFlock/internal/model"
	"RoboFlock/internal/parser"
	"RoboFlock/pkg/lorapkg"
)

// maxQueued caps each inbound queue; the oldest entries are dropped first.
const maxQueued = 1024

// Radio is the robot's radio board. Ranging pings, localizer records and
// coordinator pushes all arrive as lines and are queued until the controller
// drains them on its next tick.
type Radio struct {
	Name string
	dev  Device
	lora *lorapkg.LoRaWANContext

	mu      sync.Mutex
	pings   []model.PingFrame
	poses   []model.PoseReport
	weights []model.WeightPayload
	dropped int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRadio wraps dev. LoRaWAN framed pushes are accepted only when lora is set.
func NewRadio(name string, dev Device, lora *lorapkg.LoRaWANContext) *Radio {
	return &Radio{Name: name, dev: dev, lora: lora, stop: make(chan struct{})}
}

// Start launches the reader loop.
func (r *Radio) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		lineLoop("radio "+r.Name, r.dev, r.stop, r.handle)
	}()
}

// Stop ends the reader loop and closes the device.
func (r *Radio) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	_ = r.dev.Close()
	r.wg.Wait()
}

func (r *Radio) handle(line string) {
	msg, err := parser.ParseRadioLine(line)
	if err != nil {
		zap.S().Debugf("[radio %s] %v (%s)", r.Name, err, line)
		return
	}
	if msg.Kind == parser.RadioLoRaWAN {
		p, err := r.unwrap(msg.Frame)
		if err != nil {
			if !errors.Is(err, lorapkg.ErrForeignDevice) {
				zap.S().Warnf("[radio %s] lorawan push: %v", r.Name, err)
			}
			return
		}
		msg = parser.RadioMessage{Kind: parser.RadioWeights, Weights: p}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch msg.Kind {
	case parser.RadioPing:
		r.pings = push(r.pings, msg.Ping, &r.dropped)
	case parser.RadioLocalization:
		r.poses = push(r.poses, msg.Pose, &r.dropped)
	case parser.RadioWeights:
		r.weights = push(r.weights, msg.Weights, &r.dropped)
		zap.S().Infof("[radio %s] weight payload queued", r.Name)
	}
}

func (r *Radio) unwrap(frame string) (model.WeightPayload, error) {
	if r.lora == nil {
		return nil, errors.New("no lorawan session configured")
	}
	b, err := lorapkg.Decode(*r.lora, frame)
	if err != nil {
		return nil, err
	}
	return parser.DecodeWeightPayload(b)
}

func push[T any](q []T, v T, dropped *int) []T {
	if len(q) >= maxQueued {
		q = q[1:]
		*dropped++
	}
	return append(q, v)
}

// SendPing broadcasts this robot's identity payload.
func (r *Radio) SendPing(payload []byte) error {
	return r.dev.WriteLine(parser.FormatPingLine(payload))
}

// DrainPings returns and clears every queued ping.
func (r *Radio) DrainPings() []model.PingFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pings
	r.pings = nil
	return out
}

// DrainPoses returns up to max queued localizer records; the rest stay
// queued. max <= 0 drains all.
func (r *Radio) DrainPoses(max int) []model.PoseReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.poses)
	if max > 0 && n > max {
		n = max
	}
	out := append([]model.PoseReport(nil), r.poses[:n]...)
	r.poses = r.poses[n:]
	return out
}

// DrainWeights returns and clears every queued coordinator payload.
func (r *Radio) DrainWeights() []model.WeightPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.weights
	r.weights = nil
	return out
}

// Dropped reports how many queued messages were discarded on overflow.
func (r *Radio) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
