package tcp

import (
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
)

// Delivery is the upward-facing side of the communicator. Every
// authenticated Box payload is handed to Deliver together with an ack
// callback; the consumer MUST eventually invoke ack (nil for success) or the
// originating connection stalls once its backpressure window fills. Calling
// ack more than once is harmless.
type Delivery interface {
	Deliver(sender eddsa.PeerIdentity, payload []byte, ack func(error))
}

// DeliveryFunc adapts a plain function to the Delivery interface.
type DeliveryFunc func(sender eddsa.PeerIdentity, payload []byte, ack func(error))

func (f DeliveryFunc) Deliver(sender eddsa.PeerIdentity, payload []byte, ack func(error)) {
	f(sender, payload, ack)
}

// AddressAnnouncer is an optional extension of Delivery. A bridge that
// implements it is told when the communicator's listen address becomes
// usable and when it is withdrawn at shutdown.
type AddressAnnouncer interface {
	AnnounceAddress(address string, online bool)
}

// Envelope is one delivered payload awaiting consumption.
type Envelope struct {
	Sender  eddsa.PeerIdentity
	Payload []byte
	Ack     func(error)
}

// ChannelDelivery bridges deliveries onto a channel. The reader goroutine of
// the originating connection blocks on the channel send, so an unconsumed
// channel is itself backpressure.
type ChannelDelivery struct {
	ch chan Envelope
}

func NewChannelDelivery(buffer int) *ChannelDelivery {
	return &ChannelDelivery{ch: make(chan Envelope, buffer)}
}

func (d *ChannelDelivery) Deliver(sender eddsa.PeerIdentity, payload []byte, ack func(error)) {
	d.ch <- Envelope{Sender: sender, Payload: payload, Ack: ack}
}

// Receive exposes the delivery stream for consumption.
func (d *ChannelDelivery) Receive() <-chan Envelope {
	return d.ch
}
