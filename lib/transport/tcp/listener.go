package tcp

import (
	"net"
	"time"

	"github.com/samber/oops"
	"golang.org/x/time/rate"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
)

// listen binds the configured address and starts the accept loop. Called at
// most once, from Start.
func (c *Communicator) listen() error {
	hostport, err := ParseAddress(c.cfg.BindAddress)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", hostport)
	if err != nil {
		return wrapErr(err, "listen")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ln.Close()
		return ErrCommunicatorClosed
	}
	addr := FormatAddress(ln.Addr())
	c.listener = ln
	c.address = addr
	c.mu.Unlock()

	c.logger.WithField("address", addr).Info("Listening")
	c.announce(addr, true)
	c.wg.Add(1)
	go c.acceptLoop(ln)
	return nil
}

func (c *Communicator) acceptLoop(ln net.Listener) {
	defer c.wg.Done()

	var limiter *rate.Limiter
	if c.cfg.AcceptRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.AcceptRate), c.cfg.AcceptRate)
	}

	for {
		if limiter != nil {
			if err := limiter.Wait(c.ctx); err != nil {
				return
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			c.logger.WithError(err).Error("Accept failed, listener shutting down")
			return
		}
		metricConnsAccepted.Inc()
		if !c.addPending(conn) {
			// Handshake slots exhausted; shed load at the door.
			c.logger.WithField("remote", conn.RemoteAddr()).Debug("Dropping connection, pending handshakes full")
			_ = conn.Close()
			continue
		}
		c.wg.Add(1)
		go c.handleProto(conn)
	}
}

// Connect dials a peer at the given textual address and opens an encrypted
// queue to it. Our initial key exchange goes out immediately; the peer's
// reciprocal KX is awaited by the queue's reader, so the returned Queue
// accepts SendMessage right away and transmits while the handshake
// completes.
func (c *Communicator) Connect(address string, target eddsa.PeerIdentity) (*Queue, error) {
	if target.Equal(c.key.PeerIdentity()) {
		return nil, oops.Wrapf(ErrInvalidAddress, "refusing to connect to own identity")
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrCommunicatorClosed
	}

	hostport, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout("tcp", hostport, c.cfg.HandshakeTimeout)
	if err != nil {
		return nil, wrapErr(err, "dial")
	}
	metricConnsDialed.Inc()

	blob, out, err := buildInitialKX(c.key, target, c.clock.Timestamp())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
		out.close()
		_ = conn.Close()
		return nil, wrapErr(err, "handshake deadline")
	}
	if _, err := conn.Write(blob); err != nil {
		out.close()
		_ = conn.Close()
		return nil, oops.Wrapf(ErrHandshakeFailed, "writing key exchange: %s", err.Error())
	}

	q := newQueue(c, conn, address, target, directionKeys{}, out)
	c.register(q)
	q.start()
	c.logger.WithField("peer", target).WithField("address", address).Debug("Outbound queue established")
	return q, nil
}
