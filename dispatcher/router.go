package dispatcher

import (
	"fmt"
	"sync"
)

// Router maps message ids to their single publisher and their set of
// subscribers, built from the loaded ServiceConfigs (SPEC_FULL.md
// §4.D). A frame arriving from a service that isn't that message id's
// registered publisher is dropped.
type Router struct {
	mu          sync.RWMutex
	publishers  map[uint32]string
	subscribers map[uint32][]string
}

// NewRouter creates an empty routing table.
func NewRouter() *Router {
	return &Router{
		publishers:  make(map[uint32]string),
		subscribers: make(map[uint32][]string),
	}
}

// RegisterService adds cfg's published and subscribed message ids to
// the table. It returns ErrDuplicatePublisher if a message id cfg
// publishes is already published by a different service. Registering
// the same subscription twice for the same service is a no-op.
func (r *Router) RegisterService(cfg *ServiceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range cfg.Published {
		if existing, ok := r.publishers[m.ID]; ok && existing != cfg.Name {
			return fmt.Errorf("%w: id %#x already published by %q, rejected for %q",
				ErrDuplicatePublisher, m.ID, existing, cfg.Name)
		}
	}
	for _, m := range cfg.Published {
		r.publishers[m.ID] = cfg.Name
	}
	for _, m := range cfg.Subscribed {
		subs := r.subscribers[m.ID]
		if !containsString(subs, cfg.Name) {
			r.subscribers[m.ID] = append(subs, cfg.Name)
		}
	}
	return nil
}

// Route returns the subscriber service names for f, or nil if source
// is not f.MessageID's registered publisher.
func (r *Router) Route(source string, f *Frame) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.publishers[f.MessageID] != source {
		return nil
	}
	return append([]string{}, r.subscribers[f.MessageID]...)
}

// Publisher reports the registered publisher of a message id, if any.
func (r *Router) Publisher(id uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.publishers[id]
	return name, ok
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
