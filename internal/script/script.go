// Package script implements the engine's scripting handle: view orientation
// accessors and the "arrived" and "ready" event subscriptions.
//
// Subscriptions are tokens. Go functions are not comparable, so removal is
// done with the Subscription returned on registration rather than with the
// callback itself.
package script

import (
	"sync"
	"sync/atomic"

	"github.com/star/wwtengine/internal/metrics"
)

// Viewer reports the current view orientation.
type Viewer interface {
	ViewRA() float64
	ViewDec() float64
}

// ArrivedEventArgs is the view position at the moment a navigation completed.
type ArrivedEventArgs struct {
	ra, dec, zoom float64
}

// NewArrivedEventArgs builds an event snapshot.
func NewArrivedEventArgs(raHours, decDeg, zoom float64) ArrivedEventArgs {
	return ArrivedEventArgs{ra: raHours, dec: decDeg, zoom: zoom}
}

// RA returns the right ascension in hours.
func (a ArrivedEventArgs) RA() float64 { return a.ra }

// Dec returns the declination in degrees.
func (a ArrivedEventArgs) Dec() float64 { return a.dec }

// Zoom returns the viewport height in degrees, times six.
func (a ArrivedEventArgs) Zoom() float64 { return a.zoom }

// ArrivedFunc is called when the view arrives at a commanded position.
type ArrivedFunc func(si *Interface, args ArrivedEventArgs)

// ReadyFunc is called when the engine finishes initialization.
type ReadyFunc func(si *Interface)

type eventKind uint8

const (
	kindArrived eventKind = iota + 1
	kindReady
)

// Subscription identifies one registered callback.
// The zero value is not registered anywhere and is safe to remove.
type Subscription struct {
	si   *Interface
	id   uint64
	kind eventKind
}

// Cancel removes the callback. Cancelling twice is a no-op.
func (s Subscription) Cancel() {
	if s.si == nil {
		return
	}
	switch s.kind {
	case kindArrived:
		s.si.RemoveArrived(s)
	case kindReady:
		s.si.RemoveReady(s)
	}
}

// Interface is the scripting handle of one engine instance.
type Interface struct {
	viewer Viewer

	nextID  atomic.Uint64
	arrived listenerSet[ArrivedFunc]
	ready   listenerSet[ReadyFunc]

	// readyMu orders readiness against late AddReady calls so a listener is
	// never skipped and never called twice for the same ready event.
	readyMu sync.Mutex
	isReady bool
	retired atomic.Bool
}

// New creates a scripting handle reading orientation from viewer.
func New(viewer Viewer) *Interface {
	return &Interface{viewer: viewer}
}

// RA returns the current right ascension of the view, in hours.
func (si *Interface) RA() float64 { return si.viewer.ViewRA() }

// Dec returns the current declination of the view, in degrees.
func (si *Interface) Dec() float64 { return si.viewer.ViewDec() }

// AddArrived registers fn for every completed navigation.
func (si *Interface) AddArrived(fn ArrivedFunc) Subscription {
	id := si.nextID.Add(1)
	si.arrived.add(id, fn)
	return Subscription{si: si, id: id, kind: kindArrived}
}

// RemoveArrived deregisters an "arrived" callback. Unknown subscriptions
// are ignored.
func (si *Interface) RemoveArrived(sub Subscription) {
	if sub.si != si || sub.kind != kindArrived {
		return
	}
	si.arrived.remove(sub.id)
}

// AddReady registers fn for engine readiness. If the engine is already
// ready, fn is called once right away on the caller's goroutine.
func (si *Interface) AddReady(fn ReadyFunc) Subscription {
	id := si.nextID.Add(1)

	si.readyMu.Lock()
	si.ready.add(id, fn)
	already := si.isReady
	si.readyMu.Unlock()

	if already {
		metrics.IncEventsDelivered("ready")
		fn(si)
	}
	return Subscription{si: si, id: id, kind: kindReady}
}

// RemoveReady deregisters a "ready" callback. Unknown subscriptions are ignored.
func (si *Interface) RemoveReady(sub Subscription) {
	if sub.si != si || sub.kind != kindReady {
		return
	}
	si.ready.remove(sub.id)
}

// ArrivedListeners returns the number of registered "arrived" callbacks.
func (si *Interface) ArrivedListeners() int { return si.arrived.len() }

// ReadyListeners returns the number of registered "ready" callbacks.
func (si *Interface) ReadyListeners() int { return si.ready.len() }

// Retire stops event delivery on a handle whose engine has been replaced or
// shut down. Later Fire calls are no-ops; callbacks already dispatched still
// run to completion.
func (si *Interface) Retire() {
	si.readyMu.Lock()
	si.retired.Store(true)
	si.readyMu.Unlock()
}

// Retired reports whether Retire has been called.
func (si *Interface) Retired() bool { return si.retired.Load() }

// IsReady reports whether FireReady has been called.
func (si *Interface) IsReady() bool {
	si.readyMu.Lock()
	defer si.readyMu.Unlock()
	return si.isReady
}

// FireArrived invokes every "arrived" callback in registration order on the
// calling goroutine.
func (si *Interface) FireArrived(args ArrivedEventArgs) {
	if si.retired.Load() {
		return
	}
	for _, fn := range si.arrived.snapshot() {
		metrics.IncEventsDelivered("arrived")
		fn(si, args)
	}
}

// FireReady marks the engine ready and invokes every "ready" callback in
// registration order. It may be called again after re-initialization.
func (si *Interface) FireReady() {
	si.readyMu.Lock()
	if si.retired.Load() {
		si.readyMu.Unlock()
		return
	}
	si.isReady = true
	fns := si.ready.snapshot()
	si.readyMu.Unlock()

	for _, fn := range fns {
		metrics.IncEventsDelivered("ready")
		fn(si)
	}
}
