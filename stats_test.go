package rcvbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_OnInsertSeedsThenSmoothsAverage(t *testing.T) {
	var s stats

	s.onInsert(100)
	bytesCount, pktsCount, avg := s.Snapshot()
	assert.Equal(t, int64(100), bytesCount)
	assert.Equal(t, int64(1), pktsCount)
	assert.Equal(t, 100.0, avg)

	s.onInsert(200)
	bytesCount, pktsCount, avg = s.Snapshot()
	assert.Equal(t, int64(300), bytesCount)
	assert.Equal(t, int64(2), pktsCount)
	assert.InDelta(t, 101.0, avg, 0.0001)
}

func TestStats_OnRemoveDecrementsCounters(t *testing.T) {
	var s stats
	s.onInsert(50)
	s.onRemove(50)

	bytesCount, pktsCount, _ := s.Snapshot()
	assert.Equal(t, int64(0), bytesCount)
	assert.Equal(t, int64(0), pktsCount)
}

func TestStats_ZeroLengthPayloadDoesNotSeedAverage(t *testing.T) {
	var s stats
	s.onInsert(0)

	_, pktsCount, avg := s.Snapshot()
	assert.Equal(t, int64(1), pktsCount)
	assert.Equal(t, 0.0, avg)

	s.onInsert(10)
	_, _, avg = s.Snapshot()
	assert.Equal(t, 10.0, avg, "the first non-zero payload seeds the average")
}

func TestRecvBuffer_AvgPayloadSizeTracksInsertedPayloads(t *testing.T) {
	b := newTestBuffer(16, true)

	b.Insert(solo(0, make([]byte, 100)))
	b.Insert(solo(1, make([]byte, 200)))

	assert.InDelta(t, 101.0, b.AvgPayloadSize(), 0.0001)
	assert.Equal(t, int64(300), b.BytesCount())
	assert.Equal(t, int64(2), b.PktsCount())
}
