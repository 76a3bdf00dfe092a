package rcvbuf

// ReadMessage copies one complete message into out, preferring the in-order
// head if it is deliverable, else the first complete out-of-order message.
// Returns the number of bytes copied and the message control block. Returns
// 0 if nothing is currently readable; callers should consult
// HasAvailablePackets first.
func (b *RecvBuffer) ReadMessage(out []byte) (int, MsgCtrl) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fromHead := b.cells[b.startPos].status == StatusAvail
	if !fromHead && !b.firstNonorderMsgPos.valid() {
		return 0, MsgCtrl{}
	}

	startP := b.startPos
	if !fromHead {
		startP = b.firstNonorderMsgPos
	}

	capacity := b.capacity
	var ctrl MsgCtrl
	bytesRead := 0
	first := true
	p := startP

	for {
		e := &b.cells[p]
		payload := e.unit.Payload()

		remaining := len(out) - bytesRead
		n := len(payload)
		if n > remaining {
			n = remaining
			b.logger.Errorf("rcvbuf[%s]: read_message output buffer too small for message at seq %d, dropping %d bytes",
				b.bufferID, int32(b.seqAt(p)), len(payload)-remaining)
		}
		if n > 0 {
			copy(out[bytesRead:bytesRead+n], payload[:n])
			bytesRead += n
		}

		if first {
			ctrl.PktSeq = int32(b.seqAt(p))
			first = false
		}
		if e.unit.Boundary()&PBFirst != 0 {
			ctrl.MsgNo = e.unit.MsgSeq(b.peerRexmitFlag)
		}
		isLast := e.unit.Boundary()&PBLast != 0
		if isLast {
			ctrl.SrcTime = b.tsbpd.PktPlayTime(e.unit.Timestamp())
		}

		if fromHead {
			b.release(e)
			b.startPos = incOne(b.startPos, capacity)
			b.startSeq = b.startSeq.add(1)
			b.maxOff--
		} else {
			b.stats.onRemove(len(e.unit.Payload()))
			b.pool.Release(e.unit)
			e.unit = nil
			e.status = StatusRead
		}

		if isLast {
			if !fromHead {
				b.firstNonorderMsgPos = trapPos
			}
			break
		}
		p = incOne(p, capacity)
	}

	b.releaseNextFillers()
	b.rederiveEndAndDrop()
	b.updateNonread()
	if !b.tsbpd.Enabled() {
		b.firstNonorderMsgPos = trapPos
		b.rediscoverNonorder()
	}

	return bytesRead, ctrl
}

// ReadBytes copies up to len bytes from the contiguous readable head into
// sink, honoring the TSBPD time-gate when enabled. It is the streaming,
// non-message counterpart of ReadMessage, resuming mid-packet across calls
// via the notch cursor.
func (b *RecvBuffer) ReadBytes(length int, sink func([]byte) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := b.capacity
	bytesRead := 0
	tsbpdGated := b.tsbpd.Enabled()

	for bytesRead < length && off(b.startPos, b.firstNonreadPos, capacity) > 0 {
		e := &b.cells[b.startPos]
		if e.status != StatusAvail {
			break
		}
		if tsbpdGated {
			playTime := b.tsbpd.PktPlayTime(e.unit.Timestamp())
			if playTime.After(b.clock.Now()) {
				break
			}
		}

		payload := e.unit.Payload()
		avail := len(payload) - int(b.notch)
		want := length - bytesRead
		n := avail
		if n > want {
			n = want
		}
		if n > 0 {
			if !sink(payload[b.notch : int(b.notch)+n]) {
				return bytesRead
			}
			bytesRead += n
			b.notch += int32(n)
		}

		if int(b.notch) >= len(payload) {
			b.release(e)
			b.startPos = incOne(b.startPos, capacity)
			b.startSeq = b.startSeq.add(1)
			b.maxOff--
			b.notch = 0
		} else {
			break
		}
	}

	b.releaseNextFillers()
	b.rederiveEndAndDrop()
	b.updateNonread()

	return bytesRead
}

// rederiveEndAndDrop implements the post-read-loop re-derivation described
// at the end of §4.6: when the new head is already Avail, extend end_pos
// over the contiguous run and set drop_pos equal to it directly (there is
// no gap left to look past); otherwise scan forward for the next Avail
// cell to seed drop_pos.
func (b *RecvBuffer) rederiveEndAndDrop() {
	if b.cells[b.startPos].status == StatusAvail {
		capacity := b.capacity
		p := b.startPos
		for o := int32(0); o < b.maxOff && b.cells[p].status == StatusAvail; o++ {
			p = incOne(p, capacity)
		}
		b.endPos = p
		b.dropPos = b.endPos
		return
	}
	b.endPos = b.startPos
	capacity := b.capacity
	usedEndOff := b.maxOff
	p := b.startPos
	for o := int32(0); o < usedEndOff; o++ {
		if b.cells[p].status == StatusAvail {
			b.dropPos = p
			return
		}
		p = incOne(p, capacity)
	}
	b.dropPos = b.endPos
}
