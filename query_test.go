package rcvbuf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-srt/rcvbuf/internal"
)

func TestGetFirstLossSeq_FindsGapAfterContiguousRun(t *testing.T) {
	b := newTestBuffer(16, true)

	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)
	require.Equal(t, Inserted, b.Insert(solo(1, []byte("b"))).Result)
	// seq 2,3 missing
	require.Equal(t, Inserted, b.Insert(solo(4, []byte("e"))).Result)

	seq, endSeq, ok := b.GetFirstLossSeq(0)
	require.True(t, ok)
	assert.Equal(t, int32(2), seq)
	assert.Equal(t, int32(3), endSeq)
}

func TestGetFirstLossSeq_NoneWhenFullyContiguous(t *testing.T) {
	b := newTestBuffer(16, true)
	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)
	require.Equal(t, Inserted, b.Insert(solo(1, []byte("b"))).Result)

	_, _, ok := b.GetFirstLossSeq(0)
	assert.False(t, ok)
}

func TestGetFirstLossSeq_OutOfUsedRangeReturnsNotFound(t *testing.T) {
	b := newTestBuffer(16, true)
	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)

	_, _, ok := b.GetFirstLossSeq(50)
	assert.False(t, ok)
}

func TestGetContiguousEnd_ReportsOnePastContiguousRun(t *testing.T) {
	b := newTestBuffer(16, true)
	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)
	require.Equal(t, Inserted, b.Insert(solo(2, []byte("c"))).Result)

	seq, hasMore := b.GetContiguousEnd()
	assert.Equal(t, int32(1), seq)
	assert.True(t, hasMore)
}

func TestIsRcvReady_NonTSBPDFollowsAvailability(t *testing.T) {
	b := newTestBuffer(16, true)
	assert.False(t, b.IsRcvReady(time.Now()))

	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)
	assert.True(t, b.IsRcvReady(time.Now()))
}

func TestIsRcvReady_TSBPDGatesOnPlayTime(t *testing.T) {
	base := time.Unix(1700000000, 0)
	clock := internal.NewMockClock(base)
	tsbpd := &enabledTSBPD{playTime: func(uint32) time.Time { return base.Add(50 * time.Millisecond) }}
	b := newTSBPDTestBuffer(16, tsbpd, clock)

	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)
	assert.False(t, b.IsRcvReady(clock.Now()))

	clock.Advance(60 * time.Millisecond)
	assert.True(t, b.IsRcvReady(clock.Now()))
}

func TestGetFirstReadablePacketInfo_NonTSBPDReportsNonOrderHead(t *testing.T) {
	b := newTestBuffer(16, true)
	require.Equal(t, Inserted, b.Insert(msgPart(5, 9, PBSolo, false, []byte("x"))).Result)

	info, ok := b.GetFirstReadablePacketInfo(time.Now())
	require.True(t, ok)
	assert.True(t, info.NonOrder)
	assert.Equal(t, int32(5), info.SeqNo)
}

func TestGetFirstReadablePacketInfo_NothingReadableWhenEmpty(t *testing.T) {
	b := newTestBuffer(16, true)
	_, ok := b.GetFirstReadablePacketInfo(time.Now())
	assert.False(t, ok)
}

func TestTimespanMS_ZeroWithoutTSBPD(t *testing.T) {
	b := newTestBuffer(16, true)
	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)
	assert.Equal(t, int64(0), b.TimespanMS())
}

func TestTimespanMS_SpansFirstToLastOccupiedCell(t *testing.T) {
	base := time.Unix(1700000000, 0)
	clock := internal.NewMockClock(base)
	tsbpd := &enabledTSBPD{playTime: func(ts uint32) time.Time { return base.Add(time.Duration(ts) * time.Millisecond) }}
	b := newTSBPDTestBuffer(16, tsbpd, clock)

	require.Equal(t, Inserted, b.Insert(&fakePacket{seqNo: 0, msgSeq: 0, boundary: PBSolo, inOrder: true, timestamp: 0, payload: []byte("a")}).Result)
	require.Equal(t, Inserted, b.Insert(&fakePacket{seqNo: 1, msgSeq: 1, boundary: PBSolo, inOrder: true, timestamp: 40, payload: []byte("b")}).Result)

	assert.Equal(t, int64(41), b.TimespanMS())
}

func TestCapacityPackets_ReportsFixedCellCount(t *testing.T) {
	b := newTestBuffer(256, true)
	assert.Equal(t, int32(256), b.CapacityPackets())
}

func TestCapacityBytes_ZeroBeforeAnyInsert(t *testing.T) {
	b := newTestBuffer(16, true)
	assert.Equal(t, int64(0), b.CapacityBytes())
}

func TestCapacityBytes_ScalesWithAveragePayload(t *testing.T) {
	b := newTestBuffer(16, true)
	require.Equal(t, Inserted, b.Insert(solo(0, make([]byte, 100))).Result)
	assert.Equal(t, int64(1600), b.CapacityBytes())
}

func TestAvailableReceiveBufferSizeBytes_ShrinksAsPacketsFill(t *testing.T) {
	b := newTestBuffer(4, true)
	require.Equal(t, Inserted, b.Insert(solo(0, make([]byte, 100))).Result)

	free := b.AvailableReceiveBufferSizeBytes()
	assert.Equal(t, int64(300), free)
}

func TestStrFullness_ReportsOccupancyAndLateFlag(t *testing.T) {
	b := newTestBuffer(16, true)
	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)
	require.Equal(t, Inserted, b.Insert(solo(2, []byte("c"))).Result)

	s := b.StrFullness()
	assert.Equal(t, "3/16 pkts, late=true", s)
}
