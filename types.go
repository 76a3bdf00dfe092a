// Package rcvbuf implements the receive-side reorder/gap-track/time-gate
// buffer of a reliable, sequence-numbered datagram transport. It sits
// between a network-facing packet ingestion path and an application-facing
// read API, and supports selective drops driven by retransmission logic.
package rcvbuf

import (
	"time"

	"github.com/go-srt/rcvbuf/pool"
)

// status is the lifecycle state of a single cell.
type status int8

const (
	// StatusEmpty: no unit occupies the cell.
	StatusEmpty status = iota
	// StatusAvail: a unit is present and deliverable.
	StatusAvail
	// StatusRead: the unit was consumed by an out-of-order read but not yet
	// reclaimed; the slot is released once the start cursor sweeps past it.
	StatusRead
	// StatusDropped: retransmission logic abandoned this packet; the slot
	// is reserved until the start cursor sweeps past it.
	StatusDropped
)

func (s status) String() string {
	switch s {
	case StatusEmpty:
		return "Empty"
	case StatusAvail:
		return "Avail"
	case StatusRead:
		return "Read"
	case StatusDropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// MsgBoundary is the two-bit packet-boundary tag carried by every packet.
// Aliased from package pool, which owns the pooled Unit type that produces
// it, so the two packages don't form an import cycle.
type MsgBoundary = pool.MsgBoundary

const (
	// PBMiddle: neither first nor last packet of its message.
	PBMiddle = pool.PBMiddle
	// PBLast: last packet of its message.
	PBLast = pool.PBLast
	// PBFirst: first packet of its message.
	PBFirst = pool.PBFirst
	// PBSolo: the message's only packet (PBFirst|PBLast).
	PBSolo = pool.PBSolo
)

// Packet is the minimal read-only capability the buffer needs from a
// parsed wire packet. Keeping it this narrow lets the core be driven by a
// fake in tests without pulling in any wire codec.
type Packet interface {
	// SeqNo is the packet's 31-bit transport sequence number.
	SeqNo() int32
	// MsgSeq returns the message number. When peerRexmitFlag is true, the
	// top bit of the on-wire field is reserved for the retransmission bit
	// and must already be masked off by the implementation.
	MsgSeq(peerRexmitFlag bool) int32
	// Boundary returns the packet's message-boundary tag.
	Boundary() MsgBoundary
	// InOrder reports the packet's in-order delivery flag. Ignored when
	// TSBPD is enabled (all traffic is then treated as strictly ordered).
	InOrder() bool
	// Timestamp is the 32-bit microsecond sender timestamp.
	Timestamp() uint32
	// Payload returns the packet's payload bytes. The buffer never
	// retains a reference beyond the unit pool's Acquire/Release cycle.
	Payload() []byte
}

// entry is one cell of the circular store.
type entry struct {
	unit   Packet
	status status
}

func (e *entry) clear() {
	e.unit = nil
	e.status = StatusEmpty
}

// InsertResult classifies the outcome of Insert.
type InsertResult int8

const (
	// Inserted: the packet was accepted and placed in the buffer.
	Inserted InsertResult = iota
	// Redundant: a packet already occupies this sequence number.
	Redundant
	// Belated: the packet's sequence precedes the current start and was
	// already released; discarded without side effects.
	Belated
	// Discrepancy: the packet's sequence is too far ahead of the head
	// (wrap protection); discarded, caller must decide whether to reset.
	Discrepancy
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "Inserted"
	case Redundant:
		return "Redundant"
	case Belated:
		return "Belated"
	case Discrepancy:
		return "Discrepancy"
	default:
		return "Unknown"
	}
}

// InsertReport is the full outcome of an Insert call.
type InsertReport struct {
	Result InsertResult

	// FirstSeq and Span describe the current availability snapshot: when
	// the head cell is Avail, its sequence number and the length of the
	// contiguous head; otherwise, when a packet sits past the first gap, the
	// drop position's sequence number and the distance from it to the end of
	// the used range; otherwise start_seq and 0. Out-of-order messages are
	// not considered. Populated for Inserted and Discrepancy.
	FirstSeq int32
	Span     int32

	// FirstTime is set only when this insertion moved the earliest
	// deliverable packet earlier than it was before the call; it is that
	// packet's TSBPD play time. Zero value otherwise.
	FirstTime time.Time
}

// DropPolicy controls how DropMessage treats packets that are still
// eligible for normal, in-order delivery.
type DropPolicy int8

const (
	// DropExisting drops every packet in range unconditionally.
	DropExisting DropPolicy = iota
	// KeepExisting skips SOLO packets that are already fully buffered.
	KeepExisting
)

// MsgCtrl carries the per-message metadata ReadMessage reports back to the
// caller alongside the copied bytes.
type MsgCtrl struct {
	MsgNo   int32
	PktSeq  int32
	SrcTime time.Time
}

// PacketInfo describes one buffered (or about to be dropped) packet,
// returned by the query surface.
type PacketInfo struct {
	SeqNo      int32
	Boundary   MsgBoundary
	TSBPDTime  time.Time
	HasGap     bool // true when this info was served from the drop position, past a gap
	NonOrder   bool // true when served from the out-of-order message head
}
