package resolver

import (
	"sync"

	"github.com/SysdataSpA/Docker/pkg/model"
)

// registry merges concurrent requests for the same resource. The first
// subscriber for a key owns the resolution; later subscribers attach to it
// and every one receives the same terminal outcome exactly once.
type registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[model.ResourceKey]*keyEntry
}

type keyEntry struct {
	subs []subscriber
}

type subscriber struct {
	id uint64
	h  Handlers
}

func newRegistry() *registry {
	return &registry{entries: make(map[model.ResourceKey]*keyEntry)}
}

// subscribe registers h for key and reports whether a resolution was already
// in flight. The returned token identifies the subscription for unsubscribe.
func (g *registry) subscribe(key model.ResourceKey, h Handlers) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	token := g.nextID
	entry, inFlight := g.entries[key]
	if !inFlight {
		entry = &keyEntry{}
		g.entries[key] = entry
	}
	entry.subs = append(entry.subs, subscriber{id: token, h: h})
	return token, inFlight
}

// unsubscribe removes a single subscription. The in-flight operation is not
// affected; only the notification is suppressed.
func (g *registry) unsubscribe(key model.ResourceKey, token uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.entries[key]
	if !ok {
		return
	}
	for i, sub := range entry.subs {
		if sub.id == token {
			entry.subs = append(entry.subs[:i], entry.subs[i+1:]...)
			return
		}
	}
}

// unsubscribeAll suppresses every pending notification for key. The entry
// itself stays registered so a concurrent Resolve still attaches to the
// in-flight operation instead of starting a duplicate.
func (g *registry) unsubscribeAll(key model.ResourceKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.entries[key]; ok {
		entry.subs = nil
	}
}

// collect atomically removes the registration for key and returns its
// subscribers. A subscribe issued after collect returns starts a fresh
// resolution cycle; it can never observe the outcome being delivered.
func (g *registry) collect(key model.ResourceKey) []Handlers {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.entries[key]
	if !ok {
		return nil
	}
	delete(g.entries, key)
	handlers := make([]Handlers, 0, len(entry.subs))
	for _, sub := range entry.subs {
		handlers = append(handlers, sub.h)
	}
	return handlers
}

// snapshot returns the current subscribers without clearing the
// registration; used for advisory and progress notifications.
func (g *registry) snapshot(key model.ResourceKey) []Handlers {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.entries[key]
	if !ok {
		return nil
	}
	handlers := make([]Handlers, 0, len(entry.subs))
	for _, sub := range entry.subs {
		handlers = append(handlers, sub.h)
	}
	return handlers
}

// fanOutSuccess delivers res to every subscriber and clears the key.
func (g *registry) fanOutSuccess(key model.ResourceKey, res model.Resolution) {
	for _, h := range g.collect(key) {
		if h.OnSuccess != nil {
			h.OnSuccess(res)
		}
	}
}

// fanOutFailure delivers err to every subscriber and clears the key.
func (g *registry) fanOutFailure(key model.ResourceKey, urlString string, err error) {
	for _, h := range g.collect(key) {
		if h.OnFailure != nil {
			h.OnFailure(urlString, err)
		}
	}
}

// notifyAdvisory delivers a non-terminal resolution (the stale local copy
// while a HEAD revalidation runs) without consuming the subscriptions.
func (g *registry) notifyAdvisory(key model.ResourceKey, res model.Resolution) {
	for _, h := range g.snapshot(key) {
		if h.OnSuccess != nil {
			h.OnSuccess(res)
		}
	}
}

// notifyProgress fans transfer progress out to the current subscribers.
func (g *registry) notifyProgress(key model.ResourceKey, p model.Progress) {
	for _, h := range g.snapshot(key) {
		if h.OnProgress != nil {
			h.OnProgress(p)
		}
	}
}
