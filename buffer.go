package rcvbuf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/go-srt/rcvbuf/internal"
	"github.com/go-srt/rcvbuf/pool"
	"github.com/go-srt/rcvbuf/tsbpd"
)

// BufferConfig configures a RecvBuffer. Mirrors the teacher's two-layer
// configuration idiom: a plain struct with a Default...Config constructor
// for the pure algorithmic core.
type BufferConfig struct {
	// Capacity is the fixed cell-array size. Must satisfy 0 < Capacity < 2^31.
	Capacity int32

	// InitSeq is the sequence number of the first cell (start_pos) at
	// construction time.
	InitSeq int32

	// MessageAPI, when true, makes message-boundary framing significant for
	// reads and enables out-of-order message discovery. When false, every
	// packet is read as an independent unit and only ReadBytes applies.
	MessageAPI bool

	// PeerRexmitFlag controls which bit of the wire message-number field is
	// the retransmission flag versus part of the number itself.
	PeerRexmitFlag bool
}

// DefaultBufferConfig returns a reasonable default configuration: an 8192
// packet window with message-API framing and rexmit-flag decoding enabled.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		Capacity:       8192,
		InitSeq:        0,
		MessageAPI:     true,
		PeerRexmitFlag: true,
	}
}

// UnitPool is the collaborator RecvBuffer returns units to once they leave
// the cell array (read, drop, head sweep). Acquiring a unit to insert is the
// caller's responsibility, not the buffer's: the caller fills a unit from the
// wire and hands ownership to Insert, matching the Get/Put pairing of Go's
// sync.Pool rather than the C++ original's explicit acquire-marks-taken step.
type UnitPool interface {
	Release(Packet)
}

// syncPoolAdapter bridges a pool.UnitPool, which releases concrete
// *pool.Unit values, to the Release(Packet) shape RecvBuffer depends on.
// Packets that did not originate from the pool (e.g. test fakes) are
// silently ignored on release, matching the behavior of a caller-owned unit
// that has no pool to return to.
type syncPoolAdapter struct {
	underlying pool.UnitPool
}

// NewUnitPool adapts a pool.UnitPool (typically a *pool.SyncPool) into the
// UnitPool collaborator RecvBuffer expects.
func NewUnitPool(underlying pool.UnitPool) UnitPool {
	return syncPoolAdapter{underlying: underlying}
}

func (a syncPoolAdapter) Release(p Packet) {
	if u, ok := p.(*pool.Unit); ok {
		a.underlying.Release(u)
	}
}

// RecvBuffer is the receive-side reorder/gap-track/time-gate buffer. All
// exported methods acquire the internal mutex; the enclosing session is
// expected to additionally hold its own receive-lock/ack-lock per the
// concurrency model this buffer is embedded in, but RecvBuffer is safe to
// call concurrently on its own.
type RecvBuffer struct {
	mu sync.Mutex

	capacity       int32
	messageAPI     bool
	peerRexmitFlag bool

	cells []entry

	startSeq seqNo
	startPos pos
	endPos   pos
	dropPos  pos

	firstNonreadPos     pos
	firstNonorderMsgPos pos

	maxOff      int32
	numNonorder int32

	// notch tracks how many bytes of the packet at startPos ReadBytes has
	// already copied out, so a subsequent call resumes mid-packet.
	notch int32

	pool   UnitPool
	tsbpd  tsbpd.TSBPD
	clock  internal.Clock
	logger logging.LeveledLogger

	bufferID uuid.UUID

	stats stats
}

// NewRecvBuffer constructs a RecvBuffer. tsbpdClock and unitPool are
// required collaborators; logger defaults to a pion/logging default logger
// tagged "rcvbuf" when nil, mirroring the nil-clock default the teacher's
// NewBandwidthEstimator uses. clock gates ReadBytes's TSBPD time-gate
// polling and defaults to internal.MonotonicClock{} when nil; it is
// distinct from the TSBPD collaborator's own notion of time (§6 lists
// Clock and TSBPD as separate consumed collaborators).
func NewRecvBuffer(config BufferConfig, unitPool UnitPool, tsbpdClock tsbpd.TSBPD, clock internal.Clock, logger logging.LeveledLogger) (*RecvBuffer, error) {
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("rcvbuf: capacity must be positive, got %d", config.Capacity)
	}
	if int64(config.Capacity) >= 1<<31 {
		return nil, fmt.Errorf("rcvbuf: capacity must be below 2^31, got %d", config.Capacity)
	}
	if unitPool == nil {
		return nil, errors.New("rcvbuf: unit pool is required")
	}
	if tsbpdClock == nil {
		return nil, errors.New("rcvbuf: tsbpd collaborator is required")
	}
	if logger == nil {
		logger = logging.NewDefaultLoggerFactory().NewLogger("rcvbuf")
	}
	if clock == nil {
		clock = internal.MonotonicClock{}
	}

	b := &RecvBuffer{
		capacity:            config.Capacity,
		messageAPI:          config.MessageAPI,
		peerRexmitFlag:      config.PeerRexmitFlag,
		cells:               make([]entry, config.Capacity),
		startSeq:            newSeqNo(config.InitSeq),
		startPos:            0,
		endPos:              0,
		dropPos:             0,
		firstNonreadPos:     0,
		firstNonorderMsgPos: trapPos,
		pool:                unitPool,
		tsbpd:               tsbpdClock,
		clock:               clock,
		logger:              logger,
		bufferID:            uuid.New(),
	}
	return b, nil
}

// SetPeerRexmitFlag updates how the message-number field is decoded for
// packets inserted from now on. Supplements the distilled operation set
// with the mutator the original exposes alongside set_tsbpd_mode.
func (b *RecvBuffer) SetPeerRexmitFlag(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peerRexmitFlag = v
}

// seqAt returns the sequence number currently assigned to position p,
// derived from its offset from startPos (invariant 8 of §3).
func (b *RecvBuffer) seqAt(p pos) seqNo {
	return b.startSeq.add(off(b.startPos, p, b.capacity))
}

// usedEnd is the position one past the used range, i.e. inc(start_pos, max_off).
func (b *RecvBuffer) usedEnd() pos {
	return inc(b.startPos, b.maxOff, b.capacity)
}

// release returns a cell's unit to the pool, clears it, and records the
// removal against the byte/packet counters so they track every unit that
// has left the cell array regardless of which exit path did it.
func (b *RecvBuffer) release(e *entry) {
	if e.unit != nil {
		b.stats.onRemove(len(e.unit.Payload()))
		b.pool.Release(e.unit)
	}
	e.clear()
}

// updateGap implements §4.3 update_gap(end_probe): extends end_pos forward
// over the contiguous Avail run starting at the current end_pos, stopping at
// the first non-Avail cell or at endProbe, then locates the next Avail cell
// (if any) before endProbe to set drop_pos.
func (b *RecvBuffer) updateGap(endProbe pos) {
	origin := b.startPos
	capacity := b.capacity
	probeOff := off(origin, endProbe, capacity)

	p := b.endPos
	pOff := off(origin, p, capacity)
	for pOff < probeOff && b.cells[p].status == StatusAvail {
		p = incOne(p, capacity)
		pOff++
	}
	if pOff >= probeOff {
		b.endPos = endProbe
		b.dropPos = endProbe
		return
	}
	b.endPos = p

	q := incOne(p, capacity)
	qOff := pOff + 1
	for qOff < probeOff {
		if b.cells[q].status == StatusAvail {
			b.dropPos = q
			return
		}
		q = incOne(q, capacity)
		qOff++
	}
	b.dropPos = b.endPos
}

// releaseNextFillers implements §4.3 release_next_fillers(): sweeps Read or
// Dropped cells from the head, reclaiming their units and advancing
// start_pos/start_seq/max_off.
func (b *RecvBuffer) releaseNextFillers() {
	capacity := b.capacity
	for b.maxOff > 0 {
		e := &b.cells[b.startPos]
		if e.status != StatusRead && e.status != StatusDropped {
			break
		}
		b.release(e)
		b.startPos = incOne(b.startPos, capacity)
		b.startSeq = b.startSeq.add(1)
		b.maxOff--
	}
}

// updateNonread implements §4.3 update_nonread(). In message-API mode it
// walks complete PB_FIRST..PB_LAST runs forward from first_nonread_pos; in
// byte-stream mode first_nonread_pos simply tracks the contiguous
// available run.
func (b *RecvBuffer) updateNonread() {
	capacity := b.capacity
	origin := b.startPos
	usedEndOff := b.maxOff

	if !b.messageAPI {
		p := b.firstNonreadPos
		pOff := off(origin, p, capacity)
		for pOff < usedEndOff && b.cells[p].status == StatusAvail {
			p = incOne(p, capacity)
			pOff++
		}
		b.firstNonreadPos = p
		return
	}

	for {
		p := b.firstNonreadPos
		pOff := off(origin, p, capacity)
		if pOff >= usedEndOff || b.cells[p].status != StatusAvail {
			return
		}
		if b.cells[p].unit.Boundary()&PBFirst == 0 {
			return
		}
		// walk forward to PB_LAST within an unbroken Avail run
		q := p
		qOff := pOff
		for {
			if qOff >= usedEndOff || b.cells[q].status != StatusAvail {
				return // broken chain before PB_LAST found
			}
			if b.cells[q].unit.Boundary()&PBLast != 0 {
				break
			}
			q = incOne(q, capacity)
			qOff++
		}
		b.firstNonreadPos = incOne(q, capacity)
	}
}

// strFullness renders a one-line human-readable occupancy summary for log
// and metrics call sites, in the spirit of the teacher's
// RateControlState/BandwidthUsage String() methods.
func (b *RecvBuffer) strFullness() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	late := b.dropPos != b.endPos
	return fmt.Sprintf("%d/%d pkts, late=%v", b.maxOff, b.capacity, late)
}
