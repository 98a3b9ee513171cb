package dispatcher

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/jiufeng/jiutai/chain"
	"github.com/jiufeng/jiutai/internal/logging"
)

const reconnectBackoff = 500 * time.Millisecond

// Service is one configured service's runtime state: the listening
// endpoint its publishers connect to, and the outbound delivery
// connection the dispatcher uses when this service is a subscriber.
//
// Naming follows the service's own point of view: MessagingOut is
// where messages go OUT of the service, so the dispatcher listens
// there for the service to publish on; MessagingIn is where messages
// come IN to the service, so the dispatcher connects there to deliver
// routed frames (SPEC_FULL.md §4.D).
type Service struct {
	cfg    *ServiceConfig
	queue  *PriorityQueue
	logger *logging.Logger

	inbound *chain.Assocket

	conn       *chain.Asocket
	connecting bool
	paused     bool
}

func newService(cfg *ServiceConfig, logger *logging.Logger) *Service {
	return &Service{
		cfg:    cfg,
		queue:  NewPriorityQueue(int(cfg.MaxNumMsg)),
		logger: logger,
	}
}

// inboundHandler decodes frames arriving on a connection accepted by
// a service's inbound Assocket and hands each complete frame to the
// dispatcher for routing. Each accepted connection is minted its own
// source tag from a fresh UUID rather than trusting whatever tag the
// client put on the wire, so a frame's origin can't be spoofed by one
// publisher claiming to be another (SPEC_FULL.md's source-tag design
// note).
type inboundHandler struct {
	d         *Dispatcher
	svc       *Service
	sourceTag uint32
}

func newInboundHandler(d *Dispatcher, svc *Service) *inboundHandler {
	id := uuid.New()
	return &inboundHandler{d: d, svc: svc, sourceTag: binary.LittleEndian.Uint32(id[:4])}
}

func (h *inboundHandler) OnConnect(a *chain.Asocket) error { return nil }

func (h *inboundHandler) OnDisconnect(a *chain.Asocket, err error) {}

func (h *inboundHandler) OnData(a *chain.Asocket, data []byte) (int, error) {
	consumed := 0
	for {
		f, n, err := DecodeFrame(data[consumed:], h.svc.cfg.MaxMsgSize)
		if err != nil {
			return consumed, newErr("OnData", CodeInvalidRequest, err)
		}
		if f == nil {
			break
		}
		consumed += n
		f.SourceTag = h.sourceTag
		h.d.handleFrame(h.svc.cfg.Name, f)
	}
	return consumed, nil
}

func (h *inboundHandler) OnSendData(a *chain.Asocket, n int) {}

// deliveryHandler tracks the dispatcher's outbound connection used to
// push routed frames to a subscriber service.
type deliveryHandler struct {
	d   *Dispatcher
	svc *Service
}

func (h *deliveryHandler) OnConnect(a *chain.Asocket) error {
	h.svc.conn = a
	h.svc.connecting = false
	h.d.flushService(h.svc)
	return nil
}

func (h *deliveryHandler) OnDisconnect(a *chain.Asocket, err error) {
	h.svc.conn = nil
	h.svc.connecting = false
	h.d.scheduleReconnect(h.svc)
}

func (h *deliveryHandler) OnData(a *chain.Asocket, data []byte) (int, error) {
	// Subscribers aren't expected to send data back on the delivery
	// connection; discard anything received rather than stalling it.
	return len(data), nil
}

func (h *deliveryHandler) OnSendData(a *chain.Asocket, n int) {}
