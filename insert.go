package rcvbuf

import "time"

// Insert places one newly-arrived packet into the buffer. It validates the
// packet's sequence number against the current head, places it if room
// permits, and updates the derived cursors per the case analysis in §4.4.
func (b *RecvBuffer) Insert(unit Packet) InsertReport {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := newSeqNo(unit.SeqNo())
	gapOff := seq.sub(b.startSeq)

	if gapOff < 0 {
		return InsertReport{Result: Belated}
	}
	if gapOff >= b.capacity {
		report := InsertReport{Result: Discrepancy}
		report.FirstSeq, report.Span = b.availabilitySnapshot()
		b.logger.Warnf("rcvbuf[%s]: discrepancy inserting seq %d, start_seq %d, capacity %d",
			b.bufferID, int32(seq), int32(b.startSeq), b.capacity)
		return report
	}

	p := inc(b.startPos, gapOff, b.capacity)
	e := &b.cells[p]
	if e.status != StatusEmpty {
		return InsertReport{Result: Redundant}
	}

	e.unit = unit
	e.status = StatusAvail
	b.stats.onInsert(len(unit.Payload()))

	prevMax := b.maxOff
	extended := false
	if gapOff >= b.maxOff {
		b.maxOff = gapOff + 1
		extended = true
	}

	var firstTime time.Time
	var haveFirstTime bool
	b.updateCursorsOnInsert(p, gapOff, prevMax, extended, &firstTime, &haveFirstTime)

	if !b.tsbpd.Enabled() && b.messageAPI && !unit.InOrder() {
		b.numNonorder++
		b.onInsertNonorder(p)
	}

	b.updateNonread()

	report := InsertReport{Result: Inserted}
	if haveFirstTime {
		report.FirstTime = firstTime
	}
	report.FirstSeq, report.Span = b.availabilitySnapshot()
	return report
}

// updateCursorsOnInsert implements the case analysis of §4.4: [A]-[E].
func (b *RecvBuffer) updateCursorsOnInsert(p pos, gapOff, prevMax int32, extended bool, firstTime *time.Time, haveFirstTime *bool) {
	prevMaxPos := inc(b.startPos, prevMax, b.capacity)

	switch {
	case extended && b.endPos == prevMaxPos:
		// [A] Extended end, buffer was previously contiguous.
		if b.maxOff == prevMax+1 {
			b.endPos = incOne(b.endPos, b.capacity)
			b.dropPos = b.endPos
		} else {
			b.dropPos = inc(b.startPos, b.maxOff-1, b.capacity)
		}

	case extended:
		// [B] Extended end, buffer had a gap: no cursor change here.

	case p == b.endPos:
		// [C] Not extended, filled the first gap after the head.
		wasEmptyHead := b.endPos == b.startPos
		b.updateGap(prevMaxPos)
		if wasEmptyHead {
			*firstTime = b.tsbpd.PktPlayTime(b.cells[p].unit.Timestamp())
			*haveFirstTime = true
		}

	case gapOff < off(b.startPos, b.dropPos, b.capacity):
		// [D] Not extended, precedes drop_pos strictly.
		noContiguousHead := b.startPos == b.endPos
		b.dropPos = p
		if noContiguousHead {
			*firstTime = b.tsbpd.PktPlayTime(b.cells[p].unit.Timestamp())
			*haveFirstTime = true
		}

	default:
		// [E] Between drop_pos and prev_max_pos: no cursor change.
	}
}

// onInsertNonorder implements §4.4's out-of-order message discovery. If a
// non-order message is already pending, it does nothing; otherwise it scans
// right from the inserted cell for a PB_LAST of the same message number,
// then left for the matching PB_FIRST.
func (b *RecvBuffer) onInsertNonorder(p pos) {
	if b.firstNonorderMsgPos.valid() {
		return
	}

	msgSeq := b.cells[p].unit.MsgSeq(b.peerRexmitFlag)
	capacity := b.capacity
	origin := b.startPos
	usedEndOff := b.maxOff

	// Scan right for PB_LAST.
	q := p
	qOff := off(origin, q, capacity)
	foundLast := false
	for qOff < usedEndOff {
		e := &b.cells[q]
		if e.status != StatusAvail || e.unit.MsgSeq(b.peerRexmitFlag) != msgSeq {
			break
		}
		if e.unit.Boundary()&PBLast != 0 {
			foundLast = true
			break
		}
		q = incOne(q, capacity)
		qOff++
	}
	if !foundLast {
		return
	}

	// Scan left for PB_FIRST.
	r := p
	rOff := off(origin, r, capacity)
	foundFirst := false
	for {
		e := &b.cells[r]
		if e.status != StatusAvail || e.unit.MsgSeq(b.peerRexmitFlag) != msgSeq {
			break
		}
		if e.unit.Boundary()&PBFirst != 0 {
			foundFirst = true
			break
		}
		if rOff == 0 {
			break
		}
		r = dec(r, capacity)
		rOff--
	}
	if !foundFirst {
		return
	}

	b.firstNonorderMsgPos = r
}

// availabilitySnapshot reports the current earliest-deliverable run, the
// same candidate get_first_valid_packet_info (§4.7) would return: the
// in-order head if Avail, else the drop-position run if one exists, else a
// zero-span snapshot at start_seq.
func (b *RecvBuffer) availabilitySnapshot() (firstSeq int32, span int32) {
	if b.cells[b.startPos].status == StatusAvail {
		return int32(b.seqAt(b.startPos)), off(b.startPos, b.endPos, b.capacity)
	}
	if b.dropPos != b.endPos {
		return int32(b.seqAt(b.dropPos)), off(b.dropPos, b.usedEnd(), b.capacity)
	}
	return int32(b.startSeq), 0
}
