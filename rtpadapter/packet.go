// Package rtpadapter adapts pion/rtp packets onto the rcvbuf.Packet
// capability interface, extending RTP's 16-bit wire sequence number into
// the buffer's 31-bit sequence space and deriving SRT-style message
// framing from the RTP marker bit.
package rtpadapter

import (
	"github.com/pion/rtp"

	"github.com/go-srt/rcvbuf/pool"
)

// wrapThreshold mirrors the reorderer grounding this package borrows its
// extension technique from: a relative sequence distance at or beyond half
// the 16-bit space is treated as having wrapped rather than jumped forward.
const wrapThreshold = 0x8000

// Extender turns RTP's 16-bit wire sequence numbers into the monotonically
// increasing 31-bit numbers rcvbuf.Packet.SeqNo expects. It must see every
// packet of a stream, in arrival order, to track wraps correctly; out of
// order arrivals within one wrap period are handled, multi-wrap gaps are
// not (matching the 31-bit Discrepancy protection already in rcvbuf).
type Extender struct {
	initialized bool
	highSeq     uint16
	cycles      int32
}

// NewExtender creates an Extender with no prior sequence state.
func NewExtender() *Extender {
	return &Extender{}
}

// Extend maps one packet's 16-bit sequence number into the 31-bit space.
func (x *Extender) Extend(seq16 uint16) int32 {
	if !x.initialized {
		x.initialized = true
		x.highSeq = seq16
		return int32(seq16)
	}

	delta := int32(seq16) - int32(x.highSeq)
	cycles := x.cycles
	switch {
	case delta > wrapThreshold:
		// This packet is actually behind the last-seen one by less than a
		// full cycle; it arrived from before our last wrap.
		delta -= 1 << 16
		cycles--
	case delta < -wrapThreshold:
		// Forward wrap: the 16-bit counter rolled over since highSeq.
		delta += 1 << 16
		x.cycles++
		cycles = x.cycles
	}
	if seq16 == x.highSeq+uint16(delta) && delta > 0 {
		x.highSeq = seq16
	}

	extended := cycles<<16 | int32(seq16)
	return extended & 0x7FFFFFFF
}

// StreamAdapter wraps Extender with PB_FIRST/PB_LAST bookkeeping: the
// packet right after an observed marker starts a new message.
type StreamAdapter struct {
	ext       *Extender
	afterMark bool
	msgSeq    int32
}

// NewStreamAdapter creates a StreamAdapter for one incoming RTP stream.
func NewStreamAdapter() *StreamAdapter {
	return &StreamAdapter{ext: NewExtender(), afterMark: true}
}

// Fill extends pkt's sequence number and fills u with the resulting
// SRT-style framing: PB_FIRST immediately after a marker (or at stream
// start), PB_LAST on a marker, PB_SOLO when both apply, PB_MIDDLE
// otherwise. The message number increments once per PB_FIRST, since RTP has
// no message-number field of its own.
func (s *StreamAdapter) Fill(u *pool.Unit, pkt *rtp.Packet, inOrder bool) int32 {
	seq31 := s.ext.Extend(pkt.SequenceNumber)

	boundary := pool.PBMiddle
	if s.afterMark {
		boundary |= pool.PBFirst
		s.msgSeq++
	}
	if pkt.Marker {
		boundary |= pool.PBLast
		s.afterMark = true
	} else {
		s.afterMark = false
	}

	u.Fill(seq31, s.msgSeq, boundary, inOrder, uint32(pkt.Timestamp), pkt.Payload)
	return seq31
}
