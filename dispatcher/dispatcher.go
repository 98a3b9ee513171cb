package dispatcher

import (
	"fmt"
	"sync"

	"github.com/jiufeng/jiutai/chain"
	"github.com/jiufeng/jiutai/internal/logging"
)

// Dispatcher owns the full set of configured services, the routing
// table built from their configs, and the chain that drives every
// socket involved (SPEC_FULL.md §4.D).
type Dispatcher struct {
	logger *logging.Logger
	chain  *chain.Chain
	router *Router
	timer  *chain.Utimer

	mu       sync.Mutex
	services map[string]*Service
}

// New creates a dispatcher bound to an already-constructed chain; the
// caller starts the chain's Run loop separately (matching Chain's own
// lifecycle in SPEC_FULL.md §4.C).
func New(c *chain.Chain, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	timer := chain.NewUtimer()
	c.AppendObject(timer)
	return &Dispatcher{
		logger:   logger,
		chain:    c,
		router:   NewRouter(),
		timer:    timer,
		services: make(map[string]*Service),
	}
}

// LoadConfigDir scans dir for service configs, registers each with
// the router (failing the whole load on a duplicate publisher), and
// starts listening on every service's inbound endpoint.
func (d *Dispatcher) LoadConfigDir(dir string) error {
	configs, err := ScanConfigDir(dir, d.logger)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if err := d.AddService(cfg); err != nil {
			return err
		}
	}
	return nil
}

// AddService registers one service config: wires it into the router
// and starts its inbound listening endpoint.
func (d *Dispatcher) AddService(cfg *ServiceConfig) error {
	if err := d.router.RegisterService(cfg); err != nil {
		return newErr("AddService", CodeInvalidConfig, err)
	}

	svc := newService(cfg, d.logger)

	assoc, err := chain.NewUnixAssocket(d.chain, cfg.MessagingOut, func() chain.AsocketHandler {
		return newInboundHandler(d, svc)
	})
	if err != nil {
		return newErr("AddService", CodeUnavailable, err)
	}
	svc.inbound = assoc
	d.chain.AppendObject(assoc)

	d.mu.Lock()
	d.services[cfg.Name] = svc
	d.mu.Unlock()

	d.logger.Info("service registered", "name", cfg.Name, "in", cfg.MessagingIn, "out", cfg.MessagingOut)
	return nil
}

// Service looks up a registered service by name, for tests and
// diagnostics.
func (d *Dispatcher) Service(name string) (*Service, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	svc, ok := d.services[name]
	return svc, ok
}

// handleFrame routes a frame received from source and enqueues it on
// every current subscriber, attempting delivery immediately.
func (d *Dispatcher) handleFrame(source string, f *Frame) {
	targets := d.router.Route(source, f)
	if targets == nil {
		d.logger.Warn("dropping frame not published by its source", "source", source, "msgid", f.MessageID)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range targets {
		svc, ok := d.services[name]
		if !ok {
			continue
		}
		if !svc.queue.Enqueue(f) {
			d.logger.Warn("subscriber queue overflow, frame dropped", "service", name, "msgid", f.MessageID)
		}
		d.flushServiceLocked(svc)
	}
}

// flushService drains svc's outbound queue onto its delivery
// connection, connecting first if necessary.
func (d *Dispatcher) flushService(svc *Service) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushServiceLocked(svc)
}

func (d *Dispatcher) flushServiceLocked(svc *Service) {
	if svc.paused {
		return
	}
	if svc.conn == nil {
		if !svc.connecting {
			d.startConnectLocked(svc)
		}
		return
	}
	for {
		f, ok := svc.queue.Dequeue()
		if !ok {
			break
		}
		if err := svc.conn.Send(f.Encode()); err != nil {
			d.logger.Warn("delivery send failed", "service", svc.cfg.Name, "error", err)
			break
		}
	}
}

func (d *Dispatcher) startConnectLocked(svc *Service) {
	svc.connecting = true
	conn, err := chain.NewConnectingAsocket(svc.cfg.MessagingIn, &deliveryHandler{d: d, svc: svc})
	if err != nil {
		svc.connecting = false
		d.scheduleReconnectLocked(svc)
		return
	}
	d.chain.AppendObject(conn)
}

func (d *Dispatcher) scheduleReconnect(svc *Service) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scheduleReconnectLocked(svc)
}

func (d *Dispatcher) scheduleReconnectLocked(svc *Service) {
	d.timer.Schedule(reconnectBackoff, svc.cfg.Name, svc, func(data any) error {
		s := data.(*Service)
		d.mu.Lock()
		defer d.mu.Unlock()
		if !s.connecting && s.conn == nil {
			d.startConnectLocked(s)
		}
		return nil
	}, nil)
}

// Pause stops a service from receiving further deliveries until
// Resume is called; frames published by it are still routed and
// queued for other subscribers. Services are identified by name
// rather than by OS pid: unlike the original per-process daemon
// model, every service in this dispatcher runs inside one process.
func (d *Dispatcher) Pause(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	svc, ok := d.services[name]
	if !ok {
		return newErr("Pause", CodeInvalidRequest, fmt.Errorf("unknown service %q", name))
	}
	svc.paused = true
	return nil
}

// Resume re-enables delivery to a paused service and immediately
// attempts to flush anything queued for it.
func (d *Dispatcher) Resume(name string) error {
	d.mu.Lock()
	svc, ok := d.services[name]
	if !ok {
		d.mu.Unlock()
		return newErr("Resume", CodeInvalidRequest, fmt.Errorf("unknown service %q", name))
	}
	svc.paused = false
	d.mu.Unlock()
	d.flushService(svc)
	return nil
}

// Destroy closes every service's inbound listener and delivery
// connection. The owning chain.Chain must be stopped separately.
func (d *Dispatcher) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, svc := range d.services {
		if svc.inbound != nil {
			svc.inbound.Close()
		}
		if svc.conn != nil {
			svc.conn.Close()
		}
	}
}
