package tcp

import (
	"io"
	"net"
	"time"

	"github.com/samber/oops"
)

// handleProto takes an accepted socket through the inbound side of the
// initial key exchange: read exactly one KX blob, verify it, reciprocate
// with our own, then promote the socket to an established Queue. Until that
// point the socket only occupies a pending-handshake slot; any failure
// closes it without a trace to the remote side.
func (c *Communicator) handleProto(conn net.Conn) {
	defer c.wg.Done()
	defer c.removePending(conn)

	fail := func(err error) {
		metricHandshakeFailures.Inc()
		c.logger.WithError(err).WithField("remote", conn.RemoteAddr()).Debug("Inbound key exchange failed")
		_ = conn.Close()
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
		fail(wrapErr(err, "handshake deadline"))
		return
	}
	blob := make([]byte, InitialKXSize)
	if _, err := io.ReadFull(conn, blob); err != nil {
		fail(oops.Wrapf(ErrHandshakeFailed, "reading key exchange: %s", err.Error()))
		return
	}

	peer, in, ts, err := parseInitialKX(c.key, blob)
	if err != nil {
		fail(err)
		return
	}
	if peer.Equal(c.key.PeerIdentity()) {
		in.close()
		fail(oops.Wrapf(ErrHandshakeFailed, "connection from own identity"))
		return
	}
	if err := c.clock.ValidateTimestamp(ts); err != nil {
		in.close()
		fail(oops.Wrapf(ErrHandshakeFailed, "peer clock skew"))
		return
	}

	reply, out, err := buildInitialKX(c.key, peer, c.clock.Timestamp())
	if err != nil {
		in.close()
		fail(err)
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
		in.close()
		out.close()
		fail(wrapErr(err, "handshake deadline"))
		return
	}
	if _, err := conn.Write(reply); err != nil {
		in.close()
		out.close()
		fail(oops.Wrapf(ErrHandshakeFailed, "writing key exchange: %s", err.Error()))
		return
	}

	q := newQueue(c, conn, FormatAddress(conn.RemoteAddr()), peer, in, out)
	q.lastPeerTimestamp = ts
	c.register(q)
	q.start()
	c.logger.WithField("peer", peer).Debug("Inbound queue established")
}
