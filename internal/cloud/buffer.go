package cloud

// outbound is a serialized MQTT message held for replay after reconnection.
type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while offline.
// When full the oldest message is overwritten. Not safe for concurrent use;
// the channel holds its mutex around every call.
type ringBuffer struct {
	buf     []outbound
	head    int // next write position
	count   int
	dropped int // overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]outbound, capacity)}
}

// push stores msg and reports whether an older message was overwritten.
func (r *ringBuffer) push(msg outbound) bool {
	full := r.count == len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if full {
		r.dropped++
		return true
	}
	r.count++
	return false
}

// drain returns the buffered messages oldest first, the number dropped, and
// empties the buffer.
func (r *ringBuffer) drain() ([]outbound, int) {
	if r.count == 0 {
		d := r.dropped
		r.dropped = 0
		return nil, d
	}

	out := make([]outbound, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}

	dropped := r.dropped
	r.count = 0
	r.head = 0
	r.dropped = 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	return r.count
}
