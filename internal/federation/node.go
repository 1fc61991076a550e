package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

// Event is a decoded federation message, received from a peer over
// GossipSub. Exactly one of Tip or Block is set.
type Event struct {
	Tip   *TipAnnounce
	Block *BlockEvent
}

func decodeEvent(data []byte) (*Event, error) {
	typ, err := decodeType(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case MsgTypeTipAnnounce:
		msg, err := DecodeTipAnnounce(data)
		if err != nil {
			return nil, err
		}
		return &Event{Tip: msg}, nil
	case MsgTypeBlockEvent:
		msg, err := DecodeBlockEvent(data)
		if err != nil {
			return nil, err
		}
		return &Event{Block: msg}, nil
	default:
		return nil, fmt.Errorf("unknown federation message type %d", typ)
	}
}

// Node manages the libp2p host and GossipSub topic that cooperating
// instances of the same pool operator use to exchange TipAnnounce and
// BlockEvent messages. It is entirely optional: nothing in PoolServer or
// Unlocker depends on a Node existing or being reachable.
type Node struct {
	Host   host.Host
	Logger *zap.Logger

	dataDir   string
	pubsub    *PubSub
	discovery *Discovery

	incoming chan *Event
}

// NewNode creates a new libp2p node with GossipSub but does not start
// discovery. Call StartDiscovery once the caller is ready to begin
// receiving connections.
func NewNode(ctx context.Context, listenPort int, dataDir string, logger *zap.Logger) (*Node, error) {
	listenAddr := fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort)
	if _, err := ma.NewMultiaddr(listenAddr); err != nil {
		return nil, fmt.Errorf("build listen multiaddr: %w", err)
	}

	privKey, err := LoadOrCreateIdentity(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	cm, err := connmgr.NewConnManager(50, 100, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("create connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.ConnectionManager(cm),
	)
	if err != nil {
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}

	node := &Node{
		Host:     h,
		Logger:   logger,
		dataDir:  dataDir,
		incoming: make(chan *Event, 256),
	}

	node.pubsub, err = NewPubSub(ctx, h, node.incoming, logger)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("setup pubsub: %w", err)
	}

	logger.Info("federation node started",
		zap.String("peer_id", h.ID().String()),
		zap.Int("port", listenPort),
	)

	for _, addr := range h.Addrs() {
		logger.Info("listening on", zap.String("addr", fmt.Sprintf("%s/p2p/%s", addr, h.ID())))
	}

	return node, nil
}

// StartDiscovery begins mDNS and DHT peer discovery.
func (n *Node) StartDiscovery(ctx context.Context, enableMDNS bool, bootnodes []string) error {
	var err error
	n.discovery, err = NewDiscovery(ctx, n.Host, enableMDNS, bootnodes, n.dataDir, n.Logger)
	if err != nil {
		return fmt.Errorf("setup discovery: %w", err)
	}
	return nil
}

// Events returns the channel of decoded TipAnnounce/BlockEvent messages
// received from peers.
func (n *Node) Events() <-chan *Event {
	return n.incoming
}

// AnnounceTip publishes a TipAnnounce for the given template height and
// previous-block hash.
func (n *Node) AnnounceTip(height int64, prevHash string) error {
	return n.pubsub.PublishTipAnnounce(&TipAnnounce{Height: height, PrevHash: prevHash})
}

// AnnounceBlock publishes a BlockEvent for a FoundBlock status transition.
// templateBlob is the hex block-template blob (pre-compression); pass nil
// for maturation/orphan transitions that have no blob to carry.
func (n *Node) AnnounceBlock(blockID, status string, depth int64, templateBlob []byte) error {
	var compressed []byte
	if len(templateBlob) > 0 {
		compressed = CompressTemplateBlob(templateBlob)
	}
	return n.pubsub.PublishBlockEvent(&BlockEvent{
		BlockID:      blockID,
		Status:       status,
		Depth:        depth,
		TemplateBlob: compressed,
	})
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	return len(n.Host.Network().Peers())
}

// ConnectedPeers returns the IDs of connected peers.
func (n *Node) ConnectedPeers() []peer.ID {
	return n.Host.Network().Peers()
}

// Close shuts down the node.
func (n *Node) Close() error {
	return n.Host.Close()
}
