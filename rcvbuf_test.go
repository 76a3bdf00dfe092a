package rcvbuf

import (
	"time"

	"github.com/pion/logging"

	"github.com/go-srt/rcvbuf/internal"
)

// fakePacket is a test double satisfying the Packet capability interface
// without any dependency on pion/rtp.
type fakePacket struct {
	seqNo     int32
	msgSeq    int32
	boundary  MsgBoundary
	inOrder   bool
	timestamp uint32
	payload   []byte
}

func (p *fakePacket) SeqNo() int32                       { return p.seqNo }
func (p *fakePacket) MsgSeq(peerRexmitFlag bool) int32    { return p.msgSeq }
func (p *fakePacket) Boundary() MsgBoundary               { return p.boundary }
func (p *fakePacket) InOrder() bool                       { return p.inOrder }
func (p *fakePacket) Timestamp() uint32                   { return p.timestamp }
func (p *fakePacket) Payload() []byte                     { return p.payload }

func solo(seq int32, payload []byte) *fakePacket {
	return &fakePacket{seqNo: seq, msgSeq: seq, boundary: PBSolo, inOrder: true, payload: payload}
}

func soloOutOfOrder(seq int32, payload []byte) *fakePacket {
	return &fakePacket{seqNo: seq, msgSeq: seq, boundary: PBSolo, inOrder: false, payload: payload}
}

// msgPart builds one packet of a multi-packet message sharing msgSeq.
func msgPart(seq, msgSeq int32, boundary MsgBoundary, inOrder bool, payload []byte) *fakePacket {
	return &fakePacket{seqNo: seq, msgSeq: msgSeq, boundary: boundary, inOrder: inOrder, payload: payload}
}

// noopUnitPool discards released packets; tests don't care about reuse.
type noopUnitPool struct{}

func (noopUnitPool) Release(Packet) {}

// disabledTSBPD is a TSBPD test double with delivery permanently off, so
// the buffer falls back to in-order-flag gating. PktPlayTime is never
// consulted in that mode but is implemented for interface completeness.
type disabledTSBPD struct{}

func (disabledTSBPD) Enabled() bool                                                 { return false }
func (disabledTSBPD) SetMode(time.Time, bool, time.Duration)                        {}
func (disabledTSBPD) ApplyGroupTime(time.Time, bool, time.Duration)                  {}
func (disabledTSBPD) ApplyGroupDrift(time.Duration)                                  {}
func (disabledTSBPD) AddDriftSample(uint32, time.Time, time.Duration)                {}
func (disabledTSBPD) UpdateTimeBase(uint32)                                          {}
func (disabledTSBPD) PktPlayTime(uint32) time.Time                                   { return time.Time{} }
func (disabledTSBPD) TimeBase(uint32) time.Time                                      { return time.Time{} }
func (disabledTSBPD) Drift() time.Duration                                          { return 0 }

// enabledTSBPD is a TSBPD test double with delivery always on and a
// controllable play time, letting tests exercise the time-gate without a
// real Timebase.
type enabledTSBPD struct {
	playTime func(uint32) time.Time
}

func (t *enabledTSBPD) Enabled() bool                                { return true }
func (t *enabledTSBPD) SetMode(time.Time, bool, time.Duration)       {}
func (t *enabledTSBPD) ApplyGroupTime(time.Time, bool, time.Duration) {}
func (t *enabledTSBPD) ApplyGroupDrift(time.Duration)                {}
func (t *enabledTSBPD) AddDriftSample(uint32, time.Time, time.Duration) {}
func (t *enabledTSBPD) UpdateTimeBase(uint32)                        {}
func (t *enabledTSBPD) PktPlayTime(ts uint32) time.Time              { return t.playTime(ts) }
func (t *enabledTSBPD) TimeBase(uint32) time.Time                    { return time.Time{} }
func (t *enabledTSBPD) Drift() time.Duration                         { return 0 }

func newTestBuffer(capacity int32, messageAPI bool) *RecvBuffer {
	config := DefaultBufferConfig()
	config.Capacity = capacity
	config.MessageAPI = messageAPI
	logger := logging.NewDefaultLoggerFactory().NewLogger("rcvbuf_test")
	b, err := NewRecvBuffer(config, noopUnitPool{}, disabledTSBPD{}, nil, logger)
	if err != nil {
		panic(err)
	}
	return b
}

func newTSBPDTestBuffer(capacity int32, tsbpdClock *enabledTSBPD, clock *internal.MockClock) *RecvBuffer {
	config := DefaultBufferConfig()
	config.Capacity = capacity
	b, err := NewRecvBuffer(config, noopUnitPool{}, tsbpdClock, clock, nil)
	if err != nil {
		panic(err)
	}
	return b
}
