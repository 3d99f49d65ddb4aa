package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/symmetric"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/logger"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/time/monotonic"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
)

// errFinishReceived is an internal signal: the peer closed gracefully.
var errFinishReceived = oops.New("peer sent finish frame")

// Queue is one established, encrypted connection to a peer. A reader
// goroutine turns socket bytes into authenticated frames and delivers Box
// payloads upward; a writer goroutine turns queued payloads into enciphered
// frames and flushes them. The two goroutines own disjoint halves of the
// crypto and buffer state; the few shared flags live under mu.
type Queue struct {
	target  eddsa.PeerIdentity
	address string
	conn    net.Conn
	comm    *Communicator

	// Reader-owned: inbound cipher/ratchet, ciphertext-read and
	// plaintext-read buffers, and the peer's latest KX timestamp.
	in                directionKeys
	cread             *buffer
	pread             *buffer
	lastPeerTimestamp uint64

	// Writer-owned: outbound cipher/ratchet, plaintext-write and
	// ciphertext-write buffers, and the rekey epoch state. nextOut holds
	// the successor cipher between framing a rekey and finishing its
	// encipherment under the old key.
	out           directionKeys
	pwrite        *buffer
	cwrite        *buffer
	rekeyBudget   uint64
	rekeyDeadline *monotonic.Deadline
	nextOut       *symmetric.Cipher

	idle *monotonic.Deadline

	sendCh   chan []byte
	finishCh chan struct{}

	mu           sync.Mutex
	bpCond       *sync.Cond
	backpressure int
	finishing    bool
	destroyed    bool
	released     bool

	ctx       context.Context
	cancel    context.CancelFunc
	lastError error
	errorOnce sync.Once
	closeOnce sync.Once

	logger *logger.Entry
}

// newQueue assembles a Queue. in may be zero-valued (nil cipher) on the
// connect path, where the peer's reciprocal KX is still in flight; the
// reader resolves it before any frame is accepted.
func newQueue(comm *Communicator, conn net.Conn, address string, target eddsa.PeerIdentity, in directionKeys, out directionKeys) *Queue {
	ctx, cancel := context.WithCancel(comm.ctx)
	q := &Queue{
		target:   target,
		address:  address,
		conn:     conn,
		comm:     comm,
		in:       in,
		out:      out,
		cread:    newBuffer(bufSize),
		pread:    newBuffer(bufSize),
		pwrite:   newBuffer(bufSize),
		cwrite:   newBuffer(bufSize),
		idle:     monotonic.NewDeadline(comm.cfg.IdleTimeout),
		sendCh:   make(chan []byte),
		finishCh: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger: logger.GetLogger().WithFields(map[string]interface{}{
			"component": "tcp-queue",
			"peer":      target,
			"address":   address,
		}),
	}
	q.bpCond = sync.NewCond(&q.mu)
	q.resetRekeyEpoch()
	return q
}

func (q *Queue) start() {
	q.comm.wg.Add(2)
	go q.readLoop()
	go q.writeLoop()
}

// Target returns the peer this queue talks to.
func (q *Queue) Target() eddsa.PeerIdentity { return q.target }

// Address returns the textual transport address of the peer.
func (q *Queue) Address() string { return q.address }

// SendMessage queues one application payload for encrypted transmission.
// It blocks while the writer is busy, which is the upstream flow-control
// signal; it fails once the queue is finishing or destroyed.
func (q *Queue) SendMessage(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyMessage
	}
	if len(payload) > MaxBoxPayload {
		return ErrMessageTooLarge
	}
	q.mu.Lock()
	bad := q.finishing || q.destroyed
	q.mu.Unlock()
	if bad {
		return ErrQueueFinishing
	}
	select {
	case q.sendCh <- payload:
		return nil
	case <-q.ctx.Done():
		return ErrQueueDestroyed
	}
}

// Finish initiates a graceful close: a Finish frame is framed, everything
// queued before it is flushed, then the connection is torn down. No
// application frames are accepted after the first call.
func (q *Queue) Finish() {
	q.mu.Lock()
	if q.finishing || q.destroyed {
		q.mu.Unlock()
		return
	}
	q.finishing = true
	q.mu.Unlock()
	close(q.finishCh)
}

// Backpressure returns the number of payloads delivered upward and not yet
// acknowledged.
func (q *Queue) Backpressure() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backpressure
}

// --- read path ---

func (q *Queue) readLoop() {
	defer q.comm.wg.Done()
	// The inbound cipher is reader-owned for its whole life; it is wiped
	// here and nowhere else, so no other goroutine can race a close against
	// an in-flight XORStream.
	defer func() { q.in.close() }()

	if q.in.cipher == nil {
		if err := q.awaitKX(); err != nil {
			metricHandshakeFailures.Inc()
			q.logger.WithError(err).Debug("Awaiting peer key exchange failed")
			q.destroy(err)
			return
		}
	}

	for {
		q.mu.Lock()
		for q.backpressure >= q.comm.cfg.MaxQueueLength && !q.destroyed {
			q.bpCond.Wait()
		}
		dead := q.destroyed
		q.mu.Unlock()
		if dead || q.ctx.Err() != nil {
			q.destroy(nil)
			return
		}

		if q.cread.full() {
			// Cannot happen while frames fit the buffer; a full buffer
			// with no extractable frame is a malformed stream.
			q.violation(oops.Wrapf(ErrProtocolViolation, "ciphertext buffer full without extractable frame"))
			return
		}

		if err := q.conn.SetReadDeadline(time.Now().Add(q.idle.Remaining())); err != nil {
			q.destroy(wrapErr(err, "read deadline"))
			return
		}
		n, err := q.conn.Read(q.cread.writable())
		if n > 0 {
			q.cread.advance(n)
			q.idle.Reset(q.comm.cfg.IdleTimeout)
			metricBytesReceived.Add(float64(n))
			if ferr := q.processFrames(); ferr != nil {
				if errors.Is(ferr, errFinishReceived) {
					q.logger.Debug("Peer closed gracefully")
					q.destroy(nil)
				} else {
					q.violation(ferr)
				}
				return
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if q.idle.IsExpired() {
					// Expected lifecycle event, not an error.
					q.logger.Debug("Idle timeout, closing connection")
					q.destroy(nil)
					return
				}
				continue
			}
			if err == io.EOF {
				q.destroy(nil)
				return
			}
			q.destroy(wrapErr(err, "socket read"))
			return
		}
	}
}

// awaitKX reads the peer's reciprocal initial KX on the connect path. The
// blob is exactly InitialKXSize bytes; anything else never reaches the
// decrypt stage.
func (q *Queue) awaitKX() error {
	if err := q.conn.SetReadDeadline(time.Now().Add(q.comm.cfg.HandshakeTimeout)); err != nil {
		return wrapErr(err, "handshake deadline")
	}
	blob := make([]byte, InitialKXSize)
	if _, err := io.ReadFull(q.conn, blob); err != nil {
		return oops.Wrapf(ErrHandshakeFailed, "reading peer key exchange: %s", err.Error())
	}
	peer, in, ts, err := parseInitialKX(q.comm.key, blob)
	if err != nil {
		return err
	}
	if !peer.Equal(q.target) {
		in.close()
		return ErrHandshakeFailed
	}
	if err := q.comm.clock.ValidateTimestamp(ts); err != nil {
		in.close()
		return oops.Wrapf(ErrHandshakeFailed, "peer clock skew")
	}
	q.in = in
	q.lastPeerTimestamp = ts
	q.idle.Reset(q.comm.cfg.IdleTimeout)
	return nil
}

// processFrames advances the read pipeline: decipher pending ciphertext,
// extract complete frames, and — when a rekey boundary is crossed — restart
// decryption from that exact byte under the new key.
//
// Invariant: cread's first pread.len() bytes are the ciphertext that
// produced the current pread contents; consuming a frame removes the same
// count from both buffers, so the undecrypted tail always starts at
// cread[pread.len():].
func (q *Queue) processFrames() error {
	for {
		undecrypted := q.cread.len() - q.pread.len()
		if n := min(undecrypted, q.pread.space()); n > 0 {
			src := q.cread.readable()[q.pread.len() : q.pread.len()+n]
			q.in.cipher.XORStream(q.pread.writable()[:n], src)
			q.pread.advance(n)
		}
		rekeyed, err := q.extractFrames()
		if err != nil {
			return err
		}
		if !rekeyed {
			return nil
		}
		// Everything deciphered past the rekey frame used the old key and
		// is garbage. The consumed prefix has already been dropped from
		// cread (stream cipher: one ciphertext byte per plaintext byte),
		// so discarding pread and looping re-deciphers the tail with the
		// fresh cipher from exactly the boundary.
		q.pread.reset()
	}
}

// extractFrames pulls complete frames off the front of the plaintext-read
// buffer. Returns rekeyed=true immediately after a verified Rekey frame so
// the caller can restart decryption at the boundary.
func (q *Queue) extractFrames() (rekeyed bool, err error) {
	for {
		head := q.pread.readable()
		if len(head) < FrameHeaderSize {
			return false, nil
		}
		ftype := binary.BigEndian.Uint16(head[0:2])
		flen := int(binary.BigEndian.Uint16(head[2:4]))

		switch ftype {
		case FrameTypeBox:
			total := FrameOverhead + flen
			if len(head) < total {
				return false, nil
			}
			var mac symmetric.MACTag
			copy(mac[:], head[FrameHeaderSize:FrameOverhead])
			payload := head[FrameOverhead:total]
			tag, next := symmetric.Auth(q.in.mac, payload)
			if !symmetric.TagEqual(tag, mac) {
				return false, oops.Wrapf(ErrProtocolViolation, "box frame MAC mismatch")
			}
			q.in.mac = next
			q.deliver(payload)
			q.consumeFrame(total)

		case FrameTypeRekey:
			if flen != RekeyFrameSize {
				return false, oops.Wrapf(ErrProtocolViolation, "rekey frame with length %d", flen)
			}
			if len(head) < RekeyFrameSize {
				return false, nil
			}
			if err := q.handleRekeyFrame(head[:RekeyFrameSize]); err != nil {
				return false, err
			}
			q.consumeFrame(RekeyFrameSize)
			return true, nil

		case FrameTypeFinish:
			if flen != FinishFrameSize {
				return false, oops.Wrapf(ErrProtocolViolation, "finish frame with length %d", flen)
			}
			if len(head) < FinishFrameSize {
				return false, nil
			}
			// The MAC covers the actual finish frame bytes with the MAC
			// field zeroed, same discipline as Rekey.
			var frame [FinishFrameSize]byte
			copy(frame[:], head[:FinishFrameSize])
			var mac symmetric.MACTag
			copy(mac[:], frame[FrameHeaderSize:FrameOverhead])
			zeroRange(frame[FrameHeaderSize:FrameOverhead])
			tag, _ := symmetric.Auth(q.in.mac, frame[:])
			if !symmetric.TagEqual(tag, mac) {
				return false, oops.Wrapf(ErrProtocolViolation, "finish frame MAC mismatch")
			}
			return false, errFinishReceived

		default:
			return false, oops.Wrapf(ErrProtocolViolation, "unknown frame type %#04x", ftype)
		}
	}
}

// consumeFrame drops one extracted frame from the plaintext view and its
// ciphertext image in lockstep.
func (q *Queue) consumeFrame(n int) {
	q.pread.consume(n)
	q.cread.consume(n)
}

func (q *Queue) handleRekeyFrame(frame []byte) error {
	var zeroed [RekeyFrameSize]byte
	copy(zeroed[:], frame)
	var mac symmetric.MACTag
	copy(mac[:], zeroed[FrameHeaderSize:FrameOverhead])
	zeroRange(zeroed[FrameHeaderSize:FrameOverhead])
	tag, _ := symmetric.Auth(q.in.mac, zeroed[:])
	if !symmetric.TagEqual(tag, mac) {
		return oops.Wrapf(ErrProtocolViolation, "rekey frame MAC mismatch")
	}

	next, ts, err := applyRekeyBody(q.comm.key, q.target, frame[FrameOverhead:])
	if err != nil {
		return err
	}
	if ts <= q.lastPeerTimestamp {
		next.close()
		return oops.Wrapf(ErrProtocolViolation, "rekey timestamp not monotonic")
	}
	if err := q.comm.clock.ValidateTimestamp(ts); err != nil {
		next.close()
		return oops.Wrapf(ErrProtocolViolation, "rekey clock skew")
	}
	q.lastPeerTimestamp = ts
	q.in.close()
	q.in = next
	metricRekeysAccepted.Inc()
	q.logger.Debug("Inbound rekey applied")
	return nil
}

// deliver hands one authenticated payload upward and accounts for it until
// the consumer acknowledges.
func (q *Queue) deliver(payload []byte) {
	cp := append([]byte(nil), payload...)
	q.mu.Lock()
	q.backpressure++
	q.mu.Unlock()
	metricBoxesDelivered.Inc()

	var once sync.Once
	q.comm.bridge.Deliver(q.target, cp, func(err error) {
		once.Do(func() { q.ack(err) })
	})
}

func (q *Queue) ack(err error) {
	if err != nil {
		metricMessagesLost.Inc()
		q.logger.WithError(err).Debug("Upper layer rejected delivery")
	}
	q.mu.Lock()
	q.backpressure--
	release := q.destroyed && q.backpressure == 0 && !q.released
	if release {
		q.released = true
	}
	q.bpCond.Broadcast()
	q.mu.Unlock()
	if release {
		q.release()
	}
}

// --- write path ---

func (q *Queue) writeLoop() {
	defer q.comm.wg.Done()
	// The outbound cipher (and a pending successor) is writer-owned for its
	// whole life, mirroring the reader's ownership of the inbound one.
	defer func() {
		q.out.close()
		if q.nextOut != nil {
			q.nextOut.Close()
			q.nextOut = nil
		}
	}()

	for {
		if q.rekeyDue() && !q.isFinishing() {
			if err := q.injectRekey(); err != nil {
				q.destroy(err)
				return
			}
			if err := q.flushOut(); err != nil {
				q.destroy(err)
				return
			}
		}

		timer := time.NewTimer(q.rekeyDeadline.Remaining())
		select {
		case payload := <-q.sendCh:
			timer.Stop()
			if q.isFinishing() {
				// SendMessage accepted this payload before Finish won the
				// race. There is no redelivery at this layer; it is counted
				// lost, not sent after the close frame.
				metricMessagesLost.Inc()
				q.logger.Debug("Discarding payload queued across finish")
				continue
			}
			q.frameBox(payload)
			if err := q.flushOut(); err != nil {
				q.destroy(err)
				return
			}

		case <-q.finishCh:
			timer.Stop()
			q.frameFinish()
			if err := q.flushOut(); err != nil {
				q.destroy(err)
				return
			}
			// Close frame fully flushed; tear down now, never before.
			q.destroy(nil)
			return

		case <-timer.C:
			// Rekey deadline elapsed; handled at the top of the loop.

		case <-q.ctx.Done():
			timer.Stop()
			q.destroy(nil)
			return
		}
	}
}

func (q *Queue) rekeyDue() bool {
	return q.rekeyBudget == 0 || q.rekeyDeadline.IsExpired()
}

// injectRekey frames a Rekey announcement ahead of any further application
// data. The frame is authenticated with the current ratchet key and will be
// enciphered under the current cipher; only once those bytes are fully
// enciphered does the successor cipher take over (see flushOut). The MAC
// ratchet switches to the new epoch immediately, because the receiver
// installs its new MAC key upon verifying this very frame.
func (q *Queue) injectRekey() error {
	body, next, err := buildRekeyBody(q.comm.key, q.target, q.comm.clock.Timestamp())
	if err != nil {
		return err
	}

	frame := make([]byte, RekeyFrameSize)
	binary.BigEndian.PutUint16(frame[0:2], FrameTypeRekey)
	binary.BigEndian.PutUint16(frame[2:4], RekeyFrameSize)
	copy(frame[FrameOverhead:], body)
	tag, _ := symmetric.Auth(q.out.mac, frame)
	copy(frame[FrameHeaderSize:FrameOverhead], tag[:])

	q.out.mac = next.mac
	q.nextOut = next.cipher
	if !q.pwrite.append(frame) {
		next.cipher.Close()
		return oops.Wrapf(ErrProtocolViolation, "plaintext buffer full at rekey")
	}
	metricRekeysInitiated.Inc()
	q.logger.Debug("Outbound rekey injected")
	return nil
}

func (q *Queue) frameBox(payload []byte) {
	header := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint16(header[0:2], FrameTypeBox)
	// Box length counts the payload only, excluding header and MAC.
	binary.BigEndian.PutUint16(header[2:4], uint16(len(payload)))
	tag, next := symmetric.Auth(q.out.mac, payload)
	q.out.mac = next
	q.pwrite.append(header)
	q.pwrite.append(tag[:])
	q.pwrite.append(payload)
}

func (q *Queue) frameFinish() {
	frame := make([]byte, FinishFrameSize)
	binary.BigEndian.PutUint16(frame[0:2], FrameTypeFinish)
	binary.BigEndian.PutUint16(frame[2:4], FinishFrameSize)
	tag, next := symmetric.Auth(q.out.mac, frame)
	q.out.mac = next
	copy(frame[FrameHeaderSize:FrameOverhead], tag[:])
	q.pwrite.append(frame)
}

// flushOut enciphers the pending plaintext once it fits the ciphertext
// buffer whole, then drains the ciphertext buffer to the socket, honoring
// partial writes. A pending cipher switch happens strictly after the bytes
// framed before it have been enciphered under the old key.
func (q *Queue) flushOut() error {
	for !q.pwrite.empty() || !q.cwrite.empty() {
		if !q.pwrite.empty() && q.cwrite.space() >= q.pwrite.len() {
			n := q.pwrite.len()
			q.out.cipher.XORStream(q.cwrite.writable()[:n], q.pwrite.readable())
			q.cwrite.advance(n)
			q.pwrite.reset()
			if q.rekeyBudget < uint64(n) {
				q.rekeyBudget = 0
			} else {
				q.rekeyBudget -= uint64(n)
			}
			if q.nextOut != nil {
				q.out.cipher.Close()
				q.out.cipher = q.nextOut
				q.nextOut = nil
				q.resetRekeyEpoch()
			}
		}
		if q.cwrite.empty() {
			return nil
		}
		if err := q.conn.SetWriteDeadline(time.Now().Add(q.comm.cfg.IdleTimeout)); err != nil {
			return wrapErr(err, "write deadline")
		}
		n, err := q.conn.Write(q.cwrite.readable())
		if n > 0 {
			q.cwrite.consume(n)
			q.idle.Reset(q.comm.cfg.IdleTimeout)
			metricBytesSent.Add(float64(n))
		}
		if err != nil {
			return wrapErr(err, "socket write")
		}
	}
	return nil
}

// resetRekeyEpoch randomizes the byte budget within [max/2, max) so peers
// sharing a config do not rekey in lockstep, and restarts the epoch clock.
func (q *Queue) resetRekeyEpoch() {
	ceiling := q.comm.cfg.RekeyMaxBytes
	if ceiling < 2 {
		ceiling = 2
	}
	half := ceiling / 2
	q.rekeyBudget = half + rand.Uint64N(ceiling-half)
	if q.rekeyDeadline == nil {
		q.rekeyDeadline = monotonic.NewDeadline(q.comm.cfg.RekeyInterval)
	} else {
		q.rekeyDeadline.Reset(q.comm.cfg.RekeyInterval)
	}
}

// --- teardown ---

func (q *Queue) isFinishing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finishing
}

// violation terminates the connection after a protocol-level failure. These
// are security-relevant and never skipped-and-continued; the graceful Finish
// path is preferred so the peer learns the connection is over.
func (q *Queue) violation(err error) {
	metricProtocolViolations.Inc()
	q.logger.WithError(err).Warn("Protocol violation, terminating connection")
	q.setError(err)
	q.Finish()
}

func (q *Queue) setError(err error) {
	q.errorOnce.Do(func() {
		q.mu.Lock()
		q.lastError = err
		q.mu.Unlock()
	})
}

// destroy tears the connection down. The Queue stays registered until all
// outstanding upward deliveries are acknowledged; only the last ack releases
// it.
func (q *Queue) destroy(err error) {
	q.closeOnce.Do(func() {
		if err != nil {
			q.setError(err)
			q.logger.WithError(err).Debug("Destroying queue")
		}
		q.mu.Lock()
		q.destroyed = true
		release := q.backpressure == 0 && !q.released
		if release {
			q.released = true
		}
		q.bpCond.Broadcast()
		q.mu.Unlock()

		q.cancel()
		_ = q.conn.Close()
		if release {
			q.release()
		}
	})
}

// release removes the queue from the registry. Runs exactly once, and never
// while the backpressure counter is nonzero. It deliberately does not touch
// cipher state: release can run on a bridge goroutine (the last ack) while
// the reader or writer is still draining, so each loop wipes its own
// direction on exit instead.
func (q *Queue) release() {
	q.comm.deregister(q)
}

// LastError reports why the queue died, if it died with a cause.
func (q *Queue) LastError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastError
}

func zeroRange(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
