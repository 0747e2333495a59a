package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// fillerPump emits synthetic μ-law frames to the telephony leg until real
// agent audio arrives, so the carrier's no-media timeout never fires during
// the gap between call start and the agent's first spoken frame.
type fillerPump struct {
	interval time.Duration
	frame    []byte
	send     func([]byte)

	mu       sync.Mutex
	stopped  bool
	stopOnce sync.Once
	done     chan struct{}
}

func newFillerPump(interval time.Duration, frame []byte, send func([]byte)) *fillerPump {
	p := &fillerPump{
		interval: interval,
		frame:    frame,
		send:     send,
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *fillerPump) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First filler frame goes out immediately; the caller should never hear
	// a full interval of dead air after pickup.
	p.tick()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *fillerPump) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.send(p.frame)
}

// stop halts the pump permanently. It blocks until any in-flight tick has
// finished, so once stop returns no filler frame can follow real audio.
func (p *fillerPump) stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.done)
	})
}

// heartbeat sends a low-frequency application-level marker for the life of
// the call, independent of the filler pump.
type heartbeat struct {
	stopOnce sync.Once
	done     chan struct{}
}

func newHeartbeat(interval time.Duration, send func(name string)) *heartbeat {
	h := &heartbeat{done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				send("hb-" + uuid.NewString())
			}
		}
	}()
	return h
}

func (h *heartbeat) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
