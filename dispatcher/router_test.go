package dispatcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func cfgWith(name string, published, subscribed []uint32) *ServiceConfig {
	cfg := &ServiceConfig{Name: name, MaxNumMsg: 10, MaxMsgSize: 1024}
	for _, id := range published {
		cfg.Published = append(cfg.Published, MessageDecl{ID: id})
	}
	for _, id := range subscribed {
		cfg.Subscribed = append(cfg.Subscribed, MessageDecl{ID: id})
	}
	return cfg
}

// TestRouteDropsUnpublishedFrame is the literal S5 scenario: a frame
// is routed to subscribers only when it comes from the message id's
// registered publisher.
func TestRouteDropsUnpublishedFrame(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.RegisterService(cfgWith("pub", []uint32{0x100}, nil)))
	require.NoError(t, r.RegisterService(cfgWith("sub", nil, []uint32{0x100})))

	targets := r.Route("pub", &Frame{MessageID: 0x100})
	require.Equal(t, []string{"sub"}, targets)

	targets = r.Route("impostor", &Frame{MessageID: 0x100})
	require.Nil(t, targets)
}

func TestRegisterServiceRejectsDuplicatePublisher(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.RegisterService(cfgWith("a", []uint32{0x1}, nil)))
	err := r.RegisterService(cfgWith("b", []uint32{0x1}, nil))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDuplicatePublisher))
}

func TestRegisterServiceIdempotentSubscription(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.RegisterService(cfgWith("pub", []uint32{0x1}, nil)))
	require.NoError(t, r.RegisterService(cfgWith("sub", nil, []uint32{0x1})))
	require.NoError(t, r.RegisterService(cfgWith("sub", nil, []uint32{0x1})))

	targets := r.Route("pub", &Frame{MessageID: 0x1})
	require.Equal(t, []string{"sub"}, targets)
}
