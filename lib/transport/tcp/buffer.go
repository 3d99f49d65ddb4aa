package tcp

// buffer is a fixed-capacity byte cursor: a valid prefix of data plus
// explicit readable/writable views. Frame extraction and the rekey-boundary
// arithmetic work through these operations and never touch raw indices.
type buffer struct {
	data []byte
	used int
}

func newBuffer(capacity int) *buffer {
	return &buffer{data: make([]byte, capacity)}
}

func (b *buffer) len() int   { return b.used }
func (b *buffer) space() int { return len(b.data) - b.used }
func (b *buffer) empty() bool { return b.used == 0 }
func (b *buffer) full() bool  { return b.used == len(b.data) }

// readable is the valid prefix.
func (b *buffer) readable() []byte { return b.data[:b.used] }

// writable is the free tail; pair with advance after filling.
func (b *buffer) writable() []byte { return b.data[b.used:] }

// advance marks n freshly written bytes as valid.
func (b *buffer) advance(n int) {
	if n < 0 || b.used+n > len(b.data) {
		panic("tcp: buffer advance out of range")
	}
	b.used += n
}

// consume discards the first n valid bytes, shifting the remainder left.
func (b *buffer) consume(n int) {
	if n < 0 || n > b.used {
		panic("tcp: buffer consume out of range")
	}
	copy(b.data, b.data[n:b.used])
	b.used -= n
}

// append copies p into the buffer; reports false if it does not fit.
func (b *buffer) append(p []byte) bool {
	if len(p) > b.space() {
		return false
	}
	copy(b.data[b.used:], p)
	b.used += len(p)
	return true
}

func (b *buffer) reset() { b.used = 0 }
