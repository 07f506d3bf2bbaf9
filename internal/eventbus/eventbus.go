// Package eventbus is a small in-process dispatcher for runtime lifecycle
// events. Components publish typed events; subscribers such as the telemetry
// layer pick the event types they care about. Dispatch is synchronous on the
// publishing goroutine.
package eventbus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

// Bus routes events to subscribers keyed by the event's concrete type.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[reflect.Type]map[uint64]func(context.Context, any)
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[reflect.Type]map[uint64]func(context.Context, any))}
}

func (b *Bus) subscribe(t reflect.Type, h func(context.Context, any)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[t] == nil {
		b.subs[t] = make(map[uint64]func(context.Context, any))
	}
	b.subs[t][id] = h
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
	}
}

func (b *Bus) emit(ctx context.Context, e any) {
	if b == nil {
		return
	}
	t := reflect.TypeOf(e)
	b.mu.RLock()
	hs := make([]func(context.Context, any), 0, len(b.subs[t]))
	for _, h := range b.subs[t] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	for _, h := range hs {
		h(ctx, e)
	}
}

var global atomic.Pointer[Bus]

// Use installs b as the process-wide bus. Passing nil disables publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers h with the process-wide bus for events of type T.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	b := global.Load()
	if b == nil {
		return func() {}
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	return b.subscribe(t, func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Publish sends e through the process-wide bus.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, e)
	}
}
