package natsx

import (
	"time"

	"SuperChat/tools/errs"

	"github.com/nats-io/nats.go"
)

const deliverSubjectPrefix = "im.deliver."

// Relay carries DELIVER frames between gateway nodes. Each gateway
// subscribes to its own subject; the router publishes to the subject of
// whichever gateway the presence map names for a recipient.
type Relay struct {
	nc        *nats.Conn
	gatewayID string
	sub       *nats.Subscription
}

type RelayConfig struct {
	URL           string
	GatewayID     string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	if cfg.URL == "" {
		return nil, errs.New("nats url missing")
	}
	if cfg.GatewayID == "" {
		return nil, errs.New("gateway id missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "superchat-" + cfg.GatewayID
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "connect nats", "url", cfg.URL)
	}
	return &Relay{nc: nc, gatewayID: cfg.GatewayID}, nil
}

func deliverSubject(gatewayID string) string { return deliverSubjectPrefix + gatewayID }

// PublishDeliver sends an encoded frame to the gateway holding the
// recipient's sessions.
func (r *Relay) PublishDeliver(targetGateway string, raw []byte) error {
	msg := nats.NewMsg(deliverSubject(targetGateway))
	msg.Data = raw
	msg.Header.Add("origin", r.gatewayID)
	if err := r.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "publish deliver", "target", targetGateway)
	}
	return nil
}

// SubscribeLocal registers the handler for frames addressed to this
// gateway. Frames published by this node are delivered locally by the
// router and never loop through here.
func (r *Relay) SubscribeLocal(handler func(raw []byte)) error {
	sub, err := r.nc.Subscribe(deliverSubject(r.gatewayID), func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return errs.WrapMsg(err, "subscribe deliver", "gateway", r.gatewayID)
	}
	r.sub = sub
	return nil
}

func (r *Relay) Close() error {
	if r.sub != nil {
		_ = r.sub.Drain()
	}
	if r.nc != nil {
		return r.nc.Drain()
	}
	return nil
}
