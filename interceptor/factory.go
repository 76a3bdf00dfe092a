package interceptor

import (
	"errors"
	"time"

	"github.com/pion/interceptor"

	"github.com/go-srt/rcvbuf"
	"github.com/go-srt/rcvbuf/pool"
	"github.com/go-srt/rcvbuf/tsbpd"
)

// FactoryOption configures the RecvBufferInterceptorFactory.
type FactoryOption func(*RecvBufferInterceptorFactory) error

// RecvBufferInterceptorFactory creates RecvBufferInterceptor instances for
// each PeerConnection. Register this factory with the interceptor registry
// to give every remote stream a reordering, TSBPD-aware receive buffer.
type RecvBufferInterceptorFactory struct {
	bufferConfig rcvbuf.BufferConfig
	tsbpdMode    bool
	nackInterval time.Duration
	senderSSRC   uint32
	onStats      func(ssrc uint32, stats BufferStats)
}

// WithCapacity sets the receive buffer's packet-slot capacity.
// Default: 8192.
func WithCapacity(capacity int32) FactoryOption {
	return func(f *RecvBufferInterceptorFactory) error {
		if capacity <= 0 {
			return errors.New("capacity must be positive")
		}
		f.bufferConfig.Capacity = capacity
		return nil
	}
}

// WithMessageAPI toggles message-boundary tracking (PB_FIRST/PB_LAST
// framing and out-of-order message delivery). Default: true.
func WithMessageAPI(enabled bool) FactoryOption {
	return func(f *RecvBufferInterceptorFactory) error {
		f.bufferConfig.MessageAPI = enabled
		return nil
	}
}

// WithTSBPD enables time-stamp-based packet delivery gating on every
// buffer this factory creates. Default: false.
func WithTSBPD(enabled bool) FactoryOption {
	return func(f *RecvBufferInterceptorFactory) error {
		f.tsbpdMode = enabled
		return nil
	}
}

// WithFactoryNackInterval sets how often loss ranges are polled and NACKed.
// Default: 100ms.
func WithFactoryNackInterval(interval time.Duration) FactoryOption {
	return func(f *RecvBufferInterceptorFactory) error {
		if interval <= 0 {
			return errors.New("nack interval must be positive")
		}
		f.nackInterval = interval
		return nil
	}
}

// WithFactorySenderSSRC sets the sender SSRC carried on outgoing NACKs.
// Default: 0.
func WithFactorySenderSSRC(ssrc uint32) FactoryOption {
	return func(f *RecvBufferInterceptorFactory) error {
		f.senderSSRC = ssrc
		return nil
	}
}

// WithFactoryOnStats sets a callback invoked periodically with each
// tracked stream's RecvBuffer occupancy.
func WithFactoryOnStats(fn func(ssrc uint32, stats BufferStats)) FactoryOption {
	return func(f *RecvBufferInterceptorFactory) error {
		f.onStats = fn
		return nil
	}
}

// NewRecvBufferInterceptorFactory creates a new factory for
// RecvBufferInterceptor instances. Configure it using FactoryOption
// functions.
//
// Example:
//
//	factory, err := NewRecvBufferInterceptorFactory(
//	    WithCapacity(16384),
//	    WithTSBPD(true),
//	)
//	if err != nil {
//	    return err
//	}
//	registry.Add(factory)
func NewRecvBufferInterceptorFactory(opts ...FactoryOption) (*RecvBufferInterceptorFactory, error) {
	f := &RecvBufferInterceptorFactory{
		bufferConfig: rcvbuf.DefaultBufferConfig(),
		nackInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewInterceptor creates a new RecvBufferInterceptor for a PeerConnection.
// This method is called by the interceptor registry when setting up a
// connection.
func (f *RecvBufferInterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	// One pool shared by every stream this interceptor tracks: the buffer's
	// own release path and the ingest-side Acquire in processRTP must draw
	// from and return to the same sync.Pool for reuse to do anything.
	sharedPool := pool.NewSyncPool()

	newBuffer := func() (*rcvbuf.RecvBuffer, error) {
		timebase := tsbpd.New(nil)
		if f.tsbpdMode {
			timebase.SetMode(time.Now(), false, 120*time.Millisecond)
		}
		return rcvbuf.NewRecvBuffer(f.bufferConfig, rcvbuf.NewUnitPool(sharedPool), timebase, nil, nil)
	}

	opts := []InterceptorOption{
		WithNackInterval(f.nackInterval),
		WithSenderSSRC(f.senderSSRC),
	}
	if f.onStats != nil {
		opts = append(opts, WithOnStats(f.onStats))
	}

	i := NewRecvBufferInterceptor(newBuffer, sharedPool, opts...)
	return i, nil
}
