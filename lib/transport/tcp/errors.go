package tcp

import (
	"github.com/samber/oops"
)

var (
	ErrHandshakeFailed    = oops.New("key exchange failed")
	ErrProtocolViolation  = oops.New("protocol violation")
	ErrQueueFinishing     = oops.New("queue is finishing, no further messages accepted")
	ErrQueueDestroyed     = oops.New("queue is destroyed")
	ErrMessageTooLarge    = oops.New("message exceeds maximum box payload")
	ErrEmptyMessage       = oops.New("empty message")
	ErrNoQueue            = oops.New("no queue for peer")
	ErrCommunicatorClosed = oops.New("communicator is closed")
	ErrInvalidAddress     = oops.New("invalid transport address")
)

// wrapErr adds operation context to an underlying error.
func wrapErr(err error, operation string) error {
	return oops.Wrapf(err, "tcp communicator %s failed: %s", operation, err.Error())
}
