//go:build e2e

package e2e

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/require"

	rcvbufinterceptor "github.com/go-srt/rcvbuf/interceptor"
)

// TestRecvBuffer_EndToEnd validates that the receive-buffer interceptor
// observes a real RTP stream end to end: two PeerConnections are wired up
// in-process, a sample track is written to on the sending side, and the
// receiving side's RecvBufferInterceptorFactory is expected to report
// growing occupancy as packets arrive.
func TestRecvBuffer_EndToEnd(t *testing.T) {
	var (
		mu    sync.Mutex
		stats = map[uint32]rcvbufinterceptor.BufferStats{}
	)

	recvRegistry := &interceptor.Registry{}
	factory, err := rcvbufinterceptor.NewRecvBufferInterceptorFactory(
		rcvbufinterceptor.WithCapacity(2048),
		rcvbufinterceptor.WithFactoryNackInterval(50*time.Millisecond),
		rcvbufinterceptor.WithFactoryOnStats(func(ssrc uint32, s rcvbufinterceptor.BufferStats) {
			mu.Lock()
			stats[ssrc] = s
			mu.Unlock()
		}),
	)
	require.NoError(t, err)
	recvRegistry.Add(factory)

	recvMediaEngine := &webrtc.MediaEngine{}
	require.NoError(t, recvMediaEngine.RegisterDefaultCodecs())
	recvAPI := webrtc.NewAPI(
		webrtc.WithMediaEngine(recvMediaEngine),
		webrtc.WithInterceptorRegistry(recvRegistry),
	)

	sendAPI := webrtc.NewAPI()

	pcSend, err := sendAPI.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pcSend.Close()

	pcRecv, err := recvAPI.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pcRecv.Close()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "rcvbuf-e2e",
	)
	require.NoError(t, err)

	_, err = pcSend.AddTrack(track)
	require.NoError(t, err)

	connected := make(chan struct{})
	pcRecv.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()
	})
	pcRecv.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateConnected {
			select {
			case <-connected:
			default:
				close(connected)
			}
		}
	})

	offer, err := pcSend.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pcSend.SetLocalDescription(offer))
	<-webrtc.GatheringCompletePromise(pcSend)

	require.NoError(t, pcRecv.SetRemoteDescription(*pcSend.LocalDescription()))
	answer, err := pcRecv.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, pcRecv.SetLocalDescription(answer))
	<-webrtc.GatheringCompletePromise(pcRecv)

	require.NoError(t, pcSend.SetRemoteDescription(*pcRecv.LocalDescription()))

	select {
	case <-connected:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for peer connection")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, track.WriteSample(media.Sample{Data: []byte{0, 1, 2, 3}, Duration: 20 * time.Millisecond}))
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range stats {
			if s.PktsCount > 0 || s.BytesCount > 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 50*time.Millisecond, "expected at least one stream to report non-zero buffer occupancy")
}
