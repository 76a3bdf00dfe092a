package rcvbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_GaplessRunAdvancesEndPos(t *testing.T) {
	b := newTestBuffer(16, true)

	for seq := int32(0); seq < 5; seq++ {
		report := b.Insert(solo(seq, []byte("payload")))
		require.Equal(t, Inserted, report.Result)
	}

	seq, hasMore := b.GetContiguousEnd()
	assert.Equal(t, int32(5), seq)
	assert.False(t, hasMore)
	assert.Equal(t, int32(5), b.DataSize())
}

func TestInsert_SingleHoleThenFillCatchesUpEndPos(t *testing.T) {
	b := newTestBuffer(16, true)

	require.Equal(t, Inserted, b.Insert(solo(0, []byte("a"))).Result)
	require.Equal(t, Inserted, b.Insert(solo(2, []byte("c"))).Result)

	seq, hasMore := b.GetContiguousEnd()
	assert.Equal(t, int32(1), seq, "end_pos should stop right after the gap")
	assert.True(t, hasMore)

	require.Equal(t, Inserted, b.Insert(solo(1, []byte("b"))).Result)

	seq, hasMore = b.GetContiguousEnd()
	assert.Equal(t, int32(3), seq, "filling the hole should extend end_pos past the run it completes")
	assert.False(t, hasMore)
}

func TestInsert_RedundantOnDuplicateSeq(t *testing.T) {
	b := newTestBuffer(16, true)

	require.Equal(t, Inserted, b.Insert(solo(5, []byte("x"))).Result)
	report := b.Insert(solo(5, []byte("x-again")))
	assert.Equal(t, Redundant, report.Result)
}

func TestInsert_BelatedBeforeStartSeq(t *testing.T) {
	b := newTestBuffer(16, true)

	require.Equal(t, Inserted, b.Insert(solo(0, []byte("x"))).Result)
	require.Equal(t, 1, b.DropUpTo(1), "drop_up_to(1) should release the single seq-0 cell and advance start_seq to 1")

	report := b.Insert(solo(0, []byte("too-late")))
	assert.Equal(t, Belated, report.Result)
}

func TestInsert_DiscrepancyBeyondCapacity(t *testing.T) {
	b := newTestBuffer(16, true)

	report := b.Insert(solo(100, []byte("far-ahead")))
	assert.Equal(t, Discrepancy, report.Result)
}

func TestInsert_OutOfOrderThreePacketMessageDiscovered(t *testing.T) {
	b := newTestBuffer(16, true)

	// A 3-packet message (msgSeq 7) arrives scattered and out of order; the
	// buffer should discover the complete run once all three land, without
	// needing them inserted in seq order.
	require.Equal(t, Inserted, b.Insert(msgPart(1, 7, PBFirst, false, []byte("a"))).Result)
	require.Equal(t, Inserted, b.Insert(msgPart(3, 7, PBLast, false, []byte("c"))).Result)

	assert.False(t, b.HasAvailablePackets(), "message incomplete until the middle packet lands")

	require.Equal(t, Inserted, b.Insert(msgPart(2, 7, PBMiddle, false, []byte("b"))).Result)

	assert.True(t, b.HasAvailablePackets())

	out := make([]byte, 64)
	n, ctrl := b.ReadMessage(out)
	assert.Equal(t, "abc", string(out[:n]))
	assert.Equal(t, int32(7), ctrl.MsgNo)
	assert.Equal(t, int32(1), ctrl.PktSeq)
}

func TestInsert_InitSeqOffsetsStartingSequence(t *testing.T) {
	config := DefaultBufferConfig()
	config.Capacity = 16
	config.InitSeq = 1000
	b, err := NewRecvBuffer(config, noopUnitPool{}, disabledTSBPD{}, nil, nil)
	require.NoError(t, err)

	report := b.Insert(solo(1000, []byte("x")))
	assert.Equal(t, Inserted, report.Result)

	report = b.Insert(solo(999, []byte("before-start")))
	assert.Equal(t, Belated, report.Result)
}
