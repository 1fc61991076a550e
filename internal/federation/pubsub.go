package federation

import (
	"context"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PubSub manages GossipSub propagation of TipAnnounce and BlockEvent
// messages between cooperating pool instances.
type PubSub struct {
	ps     *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	self   peer.ID
	logger *zap.Logger

	peerLimiters   map[peer.ID]*rate.Limiter
	peerLimitersMu sync.Mutex
}

// NewPubSub creates a new GossipSub instance and starts dispatching
// decoded events onto incoming.
func NewPubSub(ctx context.Context, h host.Host, incoming chan *Event, logger *zap.Logger) (*PubSub, error) {
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	topic, err := ps.Join(EventTopicName)
	if err != nil {
		return nil, err
	}

	sub, err := topic.Subscribe()
	if err != nil {
		return nil, err
	}

	p := &PubSub{
		ps:           ps,
		topic:        topic,
		sub:          sub,
		self:         h.ID(),
		logger:       logger,
		peerLimiters: make(map[peer.ID]*rate.Limiter),
	}

	go p.readLoop(ctx, incoming)

	return p, nil
}

// PublishTipAnnounce publishes a TipAnnounce to the federation topic.
func (p *PubSub) PublishTipAnnounce(msg *TipAnnounce) error {
	msg.Type = MsgTypeTipAnnounce
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return p.topic.Publish(context.Background(), data)
}

// PublishBlockEvent publishes a BlockEvent to the federation topic.
func (p *PubSub) PublishBlockEvent(msg *BlockEvent) error {
	msg.Type = MsgTypeBlockEvent
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return p.topic.Publish(context.Background(), data)
}

func (p *PubSub) readLoop(ctx context.Context, incoming chan *Event) {
	for {
		msg, err := p.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("pubsub read error", zap.Error(err))
			continue
		}

		if msg.GetFrom() == p.self {
			continue
		}

		if !p.getPeerLimiter(msg.GetFrom()).Allow() {
			p.logger.Warn("peer rate limited", zap.String("peer", msg.GetFrom().String()))
			continue
		}

		event, err := decodeEvent(msg.Data)
		if err != nil {
			p.logger.Debug("invalid federation message", zap.Error(err))
			continue
		}

		select {
		case incoming <- event:
		default:
			p.logger.Warn("incoming federation events channel full, dropping event")
		}
	}
}

func (p *PubSub) getPeerLimiter(peerID peer.ID) *rate.Limiter {
	p.peerLimitersMu.Lock()
	defer p.peerLimitersMu.Unlock()

	if lim, ok := p.peerLimiters[peerID]; ok {
		return lim
	}

	if len(p.peerLimiters) >= 500 {
		for id := range p.peerLimiters {
			delete(p.peerLimiters, id)
			break
		}
	}

	lim := rate.NewLimiter(10, 20)
	p.peerLimiters[peerID] = lim
	return lim
}
