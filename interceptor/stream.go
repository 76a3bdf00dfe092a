package interceptor

import (
	"sync/atomic"
	"time"

	"github.com/go-srt/rcvbuf"
	"github.com/go-srt/rcvbuf/pool"
	"github.com/go-srt/rcvbuf/rtpadapter"
)

// streamState tracks per-SSRC state for the receive-buffer interceptor: the
// stream's own RecvBuffer, its RTP sequence-extension bookkeeping, and the
// liveness timestamp the cleanup loop uses to evict idle streams.
type streamState struct {
	ssrc   uint32
	buffer *rcvbuf.RecvBuffer
	adapt  *rtpadapter.StreamAdapter
	pool   pool.UnitPool

	lastPacketTime atomic.Value // stores time.Time
}

func newStreamState(ssrc uint32, buffer *rcvbuf.RecvBuffer, unitPool pool.UnitPool) *streamState {
	s := &streamState{
		ssrc:   ssrc,
		buffer: buffer,
		adapt:  rtpadapter.NewStreamAdapter(),
		pool:   unitPool,
	}
	s.lastPacketTime.Store(time.Now())
	return s
}

func (s *streamState) UpdateLastPacket(t time.Time) {
	s.lastPacketTime.Store(t)
}

func (s *streamState) LastPacket() time.Time {
	return s.lastPacketTime.Load().(time.Time)
}
