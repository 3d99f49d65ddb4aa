package tcp

import (
	"context"
	"net"
	"sync"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/config"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/logger"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/time/monotonic"
)

// MaxPendingHandshakes caps accepted connections that have not yet completed
// the initial key exchange. Beyond it further accepts are dropped on the
// floor until a slot frees up.
const MaxPendingHandshakes = 128

// Communicator owns the TCP transport: the listener (if configured), the
// registry of established queues, and the pending-handshake set. All
// encrypted traffic for all peers flows through it.
type Communicator struct {
	key    *eddsa.PrivateKey
	cfg    *config.TCPConfig
	clock  *monotonic.Clock
	bridge Delivery

	mu       sync.Mutex
	queues   map[eddsa.PeerIdentity]*Queue
	pending  map[net.Conn]struct{}
	listener net.Listener
	address  string
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logger.Entry
}

// NewCommunicator wires a communicator together. Nothing runs until Start.
func NewCommunicator(key *eddsa.PrivateKey, cfg *config.TCPConfig, clock *monotonic.Clock, bridge Delivery) *Communicator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Communicator{
		key:     key,
		cfg:     cfg,
		clock:   clock,
		bridge:  bridge,
		queues:  make(map[eddsa.PeerIdentity]*Queue),
		pending: make(map[net.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger: logger.GetLogger().WithFields(map[string]interface{}{
			"component": "tcp-communicator",
			"identity":  key.PeerIdentity(),
		}),
	}
}

// Start binds the configured listen address, if any, and begins accepting.
// A connect-only communicator (empty bind address) starts successfully and
// never listens.
func (c *Communicator) Start() error {
	if c.cfg.BindAddress == "" {
		c.logger.Info("Started connect-only, no listen address configured")
		return nil
	}
	return c.listen()
}

// Stop tears everything down: the listener, pending handshakes, and every
// established queue (gracefully, via Finish). It returns once all goroutines
// have exited.
func (c *Communicator) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ln := c.listener
	addr := c.address
	pending := make([]net.Conn, 0, len(c.pending))
	for conn := range c.pending {
		pending = append(pending, conn)
	}
	queues := make([]*Queue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.mu.Unlock()

	c.announce(addr, false)
	if ln != nil {
		_ = ln.Close()
	}
	for _, conn := range pending {
		_ = conn.Close()
	}
	for _, q := range queues {
		q.Finish()
	}
	c.cancel()
	c.wg.Wait()
	c.logger.Info("Stopped")
}

// AdvertisedAddress is the textual address peers can connect to, known once
// Start has bound the listener (the OS may have assigned the port). Empty
// for a connect-only communicator.
func (c *Communicator) AdvertisedAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Identity returns the communicator's own peer identity.
func (c *Communicator) Identity() eddsa.PeerIdentity {
	return c.key.PeerIdentity()
}

// QueueFor looks up the established queue for a peer.
func (c *Communicator) QueueFor(target eddsa.PeerIdentity) (*Queue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[target]
	return q, ok
}

// SendTo queues one payload for a peer over its established queue. There is
// no implicit connect; callers without a queue get ErrNoQueue and decide
// themselves whether to Connect.
func (c *Communicator) SendTo(target eddsa.PeerIdentity, payload []byte) error {
	q, ok := c.QueueFor(target)
	if !ok {
		return ErrNoQueue
	}
	return q.SendMessage(payload)
}

// register installs a queue in the registry. A fresh connection to a peer
// that already has a queue supersedes it; the old queue is finished so the
// peer learns the handover.
func (c *Communicator) register(q *Queue) {
	c.mu.Lock()
	old := c.queues[q.target]
	c.queues[q.target] = q
	c.mu.Unlock()
	if old != nil {
		c.logger.WithField("peer", q.target).Debug("Superseding existing queue")
		old.Finish()
	}
}

// deregister removes a queue, unless it was already superseded.
func (c *Communicator) deregister(q *Queue) {
	c.mu.Lock()
	if c.queues[q.target] == q {
		delete(c.queues, q.target)
	}
	c.mu.Unlock()
}

// announce notifies the bridge of address liveness, if it cares.
func (c *Communicator) announce(address string, online bool) {
	if address == "" {
		return
	}
	if a, ok := c.bridge.(AddressAnnouncer); ok {
		a.AnnounceAddress(address, online)
	}
}

func (c *Communicator) addPending(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.pending) >= MaxPendingHandshakes {
		return false
	}
	c.pending[conn] = struct{}{}
	return true
}

func (c *Communicator) removePending(conn net.Conn) {
	c.mu.Lock()
	delete(c.pending, conn)
	c.mu.Unlock()
}
