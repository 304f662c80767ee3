package stream

import (
	"sync"
	"time"

	"github.com/star/wwtengine/internal/control"
	"github.com/star/wwtengine/internal/metrics"
	"github.com/star/wwtengine/internal/script"
)

// Event kinds published by the engine.
const (
	KindInit    = "init"
	KindReady   = "ready"
	KindArrived = "arrived"
)

// Event is one engine notification as delivered to stream clients.
type Event struct {
	Type       string    `json:"type"`
	SurfaceID  string    `json:"surface_id"`
	RA         float64   `json:"ra"`
	Dec        float64   `json:"dec"`
	Zoom       float64   `json:"zoom"`
	SimTime    string    `json:"sim_time"`
	JulianDate float64   `json:"jd"`
	At         time.Time `json:"at"`
}

// Broker fans engine events out to subscribers. Each subscriber has a
// bounded buffer; events for a full subscriber are dropped.
type Broker struct {
	buffer int

	mu   sync.RWMutex
	next uint64
	subs map[uint64]chan Event
}

// NewBroker creates a broker giving each subscriber buffer pending events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{buffer: buffer, subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and may be called more than once.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.IncEventsDropped(ev.Type)
		}
	}
}

// Hook returns an init hook that publishes every control's events.
func (b *Broker) Hook() control.InitHook {
	return func(c *control.Control) {
		publish := func(kind string, ra, dec, zoom float64) {
			sim := c.SpaceTime().Now()
			b.Publish(Event{
				Type:       kind,
				SurfaceID:  c.SurfaceID(),
				RA:         ra,
				Dec:        dec,
				Zoom:       zoom,
				SimTime:    sim.Format(time.RFC3339Nano),
				JulianDate: c.SpaceTime().JNow(),
			})
		}

		v := c.View()
		publish(KindInit, v.RA, v.Dec, v.Zoom)

		si := c.ScriptInterface()
		si.AddReady(func(*script.Interface) {
			v := c.View()
			publish(KindReady, v.RA, v.Dec, v.Zoom)
		})
		si.AddArrived(func(_ *script.Interface, a script.ArrivedEventArgs) {
			publish(KindArrived, a.RA(), a.Dec(), a.Zoom())
		})
	}
}
