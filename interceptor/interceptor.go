// Package interceptor provides a Pion WebRTC interceptor that feeds
// incoming RTP packets into a per-stream rcvbuf.RecvBuffer, and issues
// RTCP NACKs for losses the buffer's cursor maintenance exposes for free.
package interceptor

import (
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/go-srt/rcvbuf"
	"github.com/go-srt/rcvbuf/pool"
)

// streamTimeout is how long to keep tracking an inactive stream before its
// RecvBuffer is dropped.
const streamTimeout = 2 * time.Second

// RecvBufferInterceptor is a Pion interceptor that maintains one
// rcvbuf.RecvBuffer per remote SSRC, inserting every arriving RTP packet
// and periodically reporting losses back to the sender as
// TransportLayerNack RTCP packets.
type RecvBufferInterceptor struct {
	interceptor.NoOp

	newBuffer func() (*rcvbuf.RecvBuffer, error)
	unitPool  pool.UnitPool

	streams sync.Map // SSRC (uint32) -> *streamState

	mu           sync.Mutex
	rtcpWriter   interceptor.RTCPWriter
	nackInterval time.Duration
	senderSSRC   uint32
	onStats      func(ssrc uint32, stats BufferStats)

	closed    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
}

// BufferStats is a point-in-time occupancy snapshot for one stream's
// RecvBuffer, reported to an optional WithOnStats callback.
type BufferStats struct {
	PktsCount  int64
	BytesCount int64
	DataSize   int32
	Fullness   string
}

// InterceptorOption configures a RecvBufferInterceptor.
type InterceptorOption func(*RecvBufferInterceptor)

// WithNackInterval sets how often loss ranges are polled and NACKed.
// Default is 100ms.
func WithNackInterval(d time.Duration) InterceptorOption {
	return func(i *RecvBufferInterceptor) {
		i.nackInterval = d
	}
}

// WithSenderSSRC sets the sender SSRC used in outgoing NACK packets.
func WithSenderSSRC(ssrc uint32) InterceptorOption {
	return func(i *RecvBufferInterceptor) {
		i.senderSSRC = ssrc
	}
}

// WithOnStats sets a callback invoked once per NACK-poll tick for every
// tracked stream, reporting its RecvBuffer's current occupancy.
func WithOnStats(fn func(ssrc uint32, stats BufferStats)) InterceptorOption {
	return func(i *RecvBufferInterceptor) {
		i.onStats = fn
	}
}

// NewRecvBufferInterceptor creates an interceptor that constructs a fresh
// RecvBuffer (via newBuffer) for each remote stream it binds to, acquiring
// units from unitPool.
func NewRecvBufferInterceptor(newBuffer func() (*rcvbuf.RecvBuffer, error), unitPool pool.UnitPool, opts ...InterceptorOption) *RecvBufferInterceptor {
	i := &RecvBufferInterceptor{
		newBuffer:    newBuffer,
		unitPool:     unitPool,
		closed:       make(chan struct{}),
		nackInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Close shuts down the interceptor and releases resources.
func (i *RecvBufferInterceptor) Close() error {
	close(i.closed)
	i.wg.Wait()
	return nil
}

// BindRTCPWriter captures the writer used to send NACK packets and starts
// the NACK polling loop.
func (i *RecvBufferInterceptor) BindRTCPWriter(writer interceptor.RTCPWriter) interceptor.RTCPWriter {
	i.mu.Lock()
	i.rtcpWriter = writer
	i.mu.Unlock()

	i.wg.Add(1)
	go i.nackLoop()

	return writer
}

// BindRemoteStream creates a RecvBuffer for the stream and wraps the reader
// to feed every packet into it.
func (i *RecvBufferInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	i.startOnce.Do(func() {
		i.wg.Add(1)
		go i.cleanupLoop()
	})

	buffer, err := i.newBuffer()
	if err != nil {
		return reader
	}
	state := newStreamState(info.SSRC, buffer, i.unitPool)
	i.streams.Store(info.SSRC, state)

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTP(b[:n], info.SSRC)
		}
		return n, a, err
	})
}

// UnbindRemoteStream removes the stream's RecvBuffer.
func (i *RecvBufferInterceptor) UnbindRemoteStream(info *interceptor.StreamInfo) {
	i.streams.Delete(info.SSRC)
}

func (i *RecvBufferInterceptor) processRTP(raw []byte, ssrc uint32) {
	value, ok := i.streams.Load(ssrc)
	if !ok {
		return
	}
	state := value.(*streamState)
	state.UpdateLastPacket(time.Now())

	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return
	}

	unit := state.pool.Acquire()
	state.adapt.Fill(unit, &pkt, true)
	state.buffer.Insert(unit)
}

func (i *RecvBufferInterceptor) nackLoop() {
	defer i.wg.Done()
	ticker := time.NewTicker(i.nackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case <-ticker.C:
			i.sendNacks()
		}
	}
}

func (i *RecvBufferInterceptor) sendNacks() {
	i.mu.Lock()
	writer := i.rtcpWriter
	i.mu.Unlock()
	if writer == nil {
		return
	}

	i.streams.Range(func(key, value any) bool {
		ssrc := key.(uint32)
		state := value.(*streamState)

		if i.onStats != nil {
			i.onStats(ssrc, BufferStats{
				PktsCount:  state.buffer.PktsCount(),
				BytesCount: state.buffer.BytesCount(),
				DataSize:   state.buffer.DataSize(),
				Fullness:   state.buffer.StrFullness(),
			})
		}

		seq, hasMore := state.buffer.GetContiguousEnd()
		if !hasMore {
			return true
		}
		lossSeq, endSeq, found := state.buffer.GetFirstLossSeq(seq)
		if !found {
			return true
		}

		nack := &rtcp.TransportLayerNack{
			SenderSSRC: i.senderSSRC,
			MediaSSRC:  ssrc,
			Nacks:      rtcp.NackPairsFromSequenceNumbers(seqRange(uint16(lossSeq), uint16(endSeq))),
		}
		_, _ = writer.Write([]rtcp.Packet{nack}, nil)
		return true
	})
}

func seqRange(lo, hi uint16) []uint16 {
	if hi < lo {
		return []uint16{lo}
	}
	out := make([]uint16, 0, int(hi-lo)+1)
	for s := lo; ; s++ {
		out = append(out, s)
		if s == hi {
			break
		}
	}
	return out
}

func (i *RecvBufferInterceptor) cleanupLoop() {
	defer i.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case now := <-ticker.C:
			i.streams.Range(func(key, value any) bool {
				state := value.(*streamState)
				if now.Sub(state.LastPacket()) > streamTimeout {
					i.streams.Delete(key)
				}
				return true
			})
		}
	}
}
