package rcvbuf

import "time"

// DropUpTo implements §4.5 drop_up_to(seqno): releases every cell up to
// (but not including) seqno, advancing start_pos/start_seq past them. A
// seqno at or before the current head is a no-op returning 0.
func (b *RecvBuffer) DropUpTo(seqno int32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropUpToLocked(newSeqNo(seqno))
}

func (b *RecvBuffer) dropUpToLocked(seqno seqNo) int {
	length := seqno.sub(b.startSeq)
	if length <= 0 {
		return 0
	}

	capacity := b.capacity
	releaseCount := length
	if releaseCount > capacity {
		releaseCount = capacity
	}

	p := b.startPos
	for i := int32(0); i < releaseCount; i++ {
		b.release(&b.cells[p])
		p = incOne(p, capacity)
	}

	b.startPos = inc(b.startPos, length, capacity)
	b.startSeq = b.startSeq.add(length)
	b.maxOff -= length
	if b.maxOff < 0 {
		b.maxOff = 0
	}

	b.releaseNextFillers()

	b.endPos = b.startPos
	b.dropPos = b.startPos
	b.updateGap(b.usedEnd())

	if off(b.startPos, b.firstNonreadPos, capacity) > b.maxOff {
		b.firstNonreadPos = b.startPos
		b.updateNonread()
	}

	if !b.tsbpd.Enabled() && b.messageAPI {
		b.firstNonorderMsgPos = trapPos
		b.rediscoverNonorder()
	}

	return int(length)
}

// DropAll drops every currently buffered packet, equivalent to
// DropUpTo(start_seq + max_off).
func (b *RecvBuffer) DropAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropUpToLocked(b.startSeq.add(b.maxOff))
}

// DropMessage implements §4.5 drop_message: drops every packet in
// [seqLo, seqHi] (inclusive), optionally keeping already-buffered SOLO
// packets when policy is KeepExisting, and matching msgNo when msgNo > 0.
func (b *RecvBuffer) DropMessage(seqLo, seqHi, msgNo int32, policy DropPolicy) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	offA := newSeqNo(seqLo).sub(b.startSeq)
	offB := newSeqNo(seqHi).sub(b.startSeq)
	if offB < 0 {
		return 0
	}

	capacity := b.capacity
	startOff := offA
	if startOff < 0 {
		startOff = 0
	}
	endOff := offB + 1
	if endOff > capacity-1 {
		endOff = capacity - 1
	}
	if startOff >= endOff {
		return 0
	}

	count := 0
	minDroppedOff := int32(-1)
	foundFirst := false
	suppressLeftward := false

	p := inc(b.startPos, startOff, capacity)
	for o := startOff; o < endOff; o++ {
		e := &b.cells[p]
		switch {
		case e.status == StatusDropped:
			// skip
		case e.status == StatusEmpty:
			// No unit ever arrived at this offset. Seal it anyway so a
			// retransmission landing on the same seq later is rejected as
			// Redundant instead of accepted as new data.
			e.status = StatusDropped
			count++
			if minDroppedOff == -1 || o < minDroppedOff {
				minDroppedOff = o
			}
		case e.status == StatusRead:
			// Already consumed out-of-order; no unit left to release, but
			// the range sweep still claims the cell and counts it.
			e.status = StatusDropped
			count++
			if minDroppedOff == -1 || o < minDroppedOff {
				minDroppedOff = o
			}
		case policy == KeepExisting && e.unit.Boundary() == PBSolo:
			// A kept SOLO packet vetoes the leftward msgno search entirely,
			// even if no PB_FIRST was seen in range.
			suppressLeftward = true
		default:
			if msgNo > 0 {
				cellMsgNo := e.unit.MsgSeq(b.peerRexmitFlag)
				if cellMsgNo != msgNo {
					b.logger.Warnf("rcvbuf[%s]: drop_message seq %d has msgno %d, expected %d; dropping by range regardless",
						b.bufferID, int32(b.seqAt(p)), cellMsgNo, msgNo)
				}
				if e.unit.Boundary()&PBFirst != 0 {
					foundFirst = true
				}
			}
			b.release(e)
			e.status = StatusDropped
			count++
			if minDroppedOff == -1 || o < minDroppedOff {
				minDroppedOff = o
			}
		}
		p = incOne(p, capacity)
	}

	if msgNo > 0 && !foundFirst && !suppressLeftward {
		count += b.dropMessageLeftward(startOff, msgNo, policy, &minDroppedOff)
	}

	b.releaseNextFillers()
	b.endPos = b.startPos
	b.dropPos = b.startPos
	b.updateGap(inc(b.startPos, endOff, capacity))

	if minDroppedOff != -1 && minDroppedOff <= off(b.startPos, b.firstNonreadPos, capacity) {
		b.firstNonreadPos = b.startPos
		b.updateNonread()
	}

	if !b.tsbpd.Enabled() && b.messageAPI {
		b.firstNonorderMsgPos = trapPos
		b.rediscoverNonorder()
	}

	return count
}

// dropMessageLeftward implements the leftward continuation search of
// §4.5, walking backward from just before startOff looking for the
// message's PB_FIRST when it wasn't found within the originally requested
// range.
func (b *RecvBuffer) dropMessageLeftward(startOff int32, msgNo int32, policy DropPolicy, minDroppedOff *int32) int {
	if startOff == 0 {
		return 0
	}
	capacity := b.capacity
	count := 0
	o := startOff - 1
	p := inc(b.startPos, o, capacity)
	for o >= 0 {
		e := &b.cells[p]
		if e.status == StatusEmpty {
			break
		}
		if e.status != StatusDropped {
			if e.unit.MsgSeq(b.peerRexmitFlag) != msgNo {
				break
			}
			if policy == KeepExisting && e.unit.Boundary() == PBSolo {
				break
			}
			isFirst := e.unit.Boundary()&PBFirst != 0
			b.release(e)
			e.status = StatusDropped
			count++
			if *minDroppedOff == -1 || o < *minDroppedOff {
				*minDroppedOff = o
			}
			if isFirst {
				break
			}
		}
		if o == 0 {
			break
		}
		o--
		p = dec(p, capacity)
	}
	return count
}

// rediscoverNonorder re-runs the out-of-order message scan over the whole
// used range after a drop may have invalidated first_nonorder_msg_pos.
// Grounded on the same onInsertNonorder search, applied to every currently
// not-in-order cell in offset order until one completes a message.
func (b *RecvBuffer) rediscoverNonorder() {
	capacity := b.capacity
	p := b.startPos
	for o := int32(0); o < b.maxOff; o++ {
		e := &b.cells[p]
		if e.status == StatusAvail && !e.unit.InOrder() {
			b.onInsertNonorder(p)
			if b.firstNonorderMsgPos.valid() {
				return
			}
		}
		p = incOne(p, capacity)
	}
}

// AddDriftSample is a pass-through to the TSBPD collaborator's drift
// sampling, exposed here because the ACK layer that owns RTT samples
// addresses this buffer, not the TSBPD clock, directly (mirrors the
// original's CRcvBuffer::addRcvTsbPdDriftSample public entry point; it is
// not invoked internally by any drop path).
func (b *RecvBuffer) AddDriftSample(usTimestamp uint32, tsPktArrival time.Time, rtt time.Duration) {
	b.tsbpd.AddDriftSample(usTimestamp, tsPktArrival, rtt)
}
