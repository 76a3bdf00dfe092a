// Package pool provides the unit-memory pool the receive buffer borrows
// packet storage from. Cells never own a unit outright: the caller Acquires
// one and hands it to the buffer's Insert, and the buffer Releases it on
// every exit path (read, drop, head-sweep).
package pool

import (
	"sync"
)

// MsgBoundary is the two-bit packet-boundary tag carried by every packet.
// Defined here (rather than in package rcvbuf) so that this package, which
// sits below rcvbuf in the import graph, has no dependency back on it;
// rcvbuf re-exports this type as rcvbuf.MsgBoundary.
type MsgBoundary uint8

const (
	// PBMiddle: neither first nor last packet of its message.
	PBMiddle MsgBoundary = 0
	// PBLast: last packet of its message.
	PBLast MsgBoundary = 1 << 0
	// PBFirst: first packet of its message.
	PBFirst MsgBoundary = 1 << 1
	// PBSolo: the message's only packet (PBFirst|PBLast).
	PBSolo = PBFirst | PBLast
)

func (b MsgBoundary) String() string {
	switch b {
	case PBMiddle:
		return "Middle"
	case PBFirst:
		return "First"
	case PBLast:
		return "Last"
	case PBSolo:
		return "Solo"
	default:
		return "Unknown"
	}
}

// Unit is one pooled packet buffer: header metadata plus a payload slice
// reused across Acquire/Release round trips to keep steady-state packet
// processing allocation-free.
type Unit struct {
	seqNo     int32
	msgSeq    int32
	boundary  MsgBoundary
	inOrder   bool
	timestamp uint32
	payload   []byte
}

// Reset clears a Unit's fields prior to reuse. The payload slice's
// underlying array is kept to avoid reallocating on every checkout; only
// its length is reset.
func (u *Unit) Reset() {
	u.seqNo = 0
	u.msgSeq = 0
	u.boundary = PBMiddle
	u.inOrder = false
	u.timestamp = 0
	u.payload = u.payload[:0]
}

// SeqNo implements rcvbuf.Packet.
func (u *Unit) SeqNo() int32 { return u.seqNo }

// MsgSeq implements rcvbuf.Packet.
func (u *Unit) MsgSeq(peerRexmitFlag bool) int32 {
	if peerRexmitFlag {
		return u.msgSeq &^ (1 << 26) // top bit of the 27-bit field is the rexmit flag
	}
	return u.msgSeq
}

// Boundary implements rcvbuf.Packet.
func (u *Unit) Boundary() MsgBoundary { return u.boundary }

// InOrder implements rcvbuf.Packet.
func (u *Unit) InOrder() bool { return u.inOrder }

// Timestamp implements rcvbuf.Packet.
func (u *Unit) Timestamp() uint32 { return u.timestamp }

// Payload implements rcvbuf.Packet.
func (u *Unit) Payload() []byte { return u.payload }

// Fill populates a freshly-acquired Unit from parsed wire fields, copying
// payload into the Unit's reused backing array.
func (u *Unit) Fill(seqNo, msgSeq int32, boundary MsgBoundary, inOrder bool, timestamp uint32, payload []byte) {
	u.seqNo = seqNo
	u.msgSeq = msgSeq
	u.boundary = boundary
	u.inOrder = inOrder
	u.timestamp = timestamp
	u.payload = append(u.payload[:0], payload...)
}

// UnitPool is the collaborator units are acquired from and released to.
// The packet-ingest caller Acquires a unit before filling and inserting it;
// the buffer Releases it once the cell no longer needs it.
type UnitPool interface {
	Acquire() *Unit
	Release(*Unit)
}

// SyncPool is a sync.Pool-backed UnitPool, reducing GC pressure under high
// packet rates the same way the teacher interceptor's packetInfoPool does
// for its PacketInfo objects.
type SyncPool struct {
	pool sync.Pool
}

// NewSyncPool creates a ready-to-use SyncPool.
func NewSyncPool() *SyncPool {
	return &SyncPool{
		pool: sync.Pool{
			New: func() any { return &Unit{} },
		},
	}
}

// Acquire returns a zeroed Unit from the pool.
func (p *SyncPool) Acquire() *Unit {
	return p.pool.Get().(*Unit)
}

// Release resets u and returns it to the pool.
func (p *SyncPool) Release(u *Unit) {
	u.Reset()
	p.pool.Put(u)
}
