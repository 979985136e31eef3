package main

import "sync"

// changeEvent is published whenever a user's activity, meals or reminders change.
type changeEvent struct {
	UserID  int    `json:"user_id"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

const (
	eventActivityUpdated  = "activity.updated"
	eventMealsUpdated     = "meals.updated"
	eventRemindersUpdated = "reminders.updated"
)

// observable is an explicit subscriber list. Consumers only need a
// "value changed" signal, so delivery is synchronous and unordered between
// subscribers.
type observable[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
}

func newObservable[T any]() *observable[T] {
	return &observable[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns a function that removes it.
func (o *observable[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Publish calls every subscriber with v. A nil observable is a no-op.
func (o *observable[T]) Publish(v T) {
	if o == nil {
		return
	}
	o.mu.RLock()
	fns := make([]func(T), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}
