package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	rcvbufinterceptor "github.com/go-srt/rcvbuf/interceptor"
)

// latestStats holds the most recently reported occupancy for every tracked
// SSRC, refreshed by the interceptor's WithFactoryOnStats callback and read
// back out by HandleStatus.
var latestStats sync.Map // uint32 -> rcvbufinterceptor.BufferStats

// HandleOffer handles WebRTC offer requests. It creates a peer connection
// with the receive-buffer interceptor registered and returns an answer.
func HandleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		log.Printf("Failed to decode offer: %v", err)
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		log.Printf("Failed to register codecs: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	i := &interceptor.Registry{}

	factory, err := rcvbufinterceptor.NewRecvBufferInterceptorFactory(
		rcvbufinterceptor.WithCapacity(8192),
		rcvbufinterceptor.WithMessageAPI(true),
		rcvbufinterceptor.WithFactoryNackInterval(100*time.Millisecond),
		rcvbufinterceptor.WithFactoryOnStats(func(ssrc uint32, stats rcvbufinterceptor.BufferStats) {
			latestStats.Store(ssrc, stats)
		}),
	)
	if err != nil {
		log.Printf("Failed to create recv-buffer factory: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	i.Add(factory)

	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		log.Printf("Failed to configure RTCP reports: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	)

	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{},
	}
	peerConnection, err := api.NewPeerConnection(config)
	if err != nil {
		log.Printf("Failed to create peer connection: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	_, err = peerConnection.AddTransceiverFromKind(
		webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	)
	if err != nil {
		log.Printf("Failed to add transceiver: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	peerConnection.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("Received track: codec=%s, ssrc=%d", track.Codec().MimeType, track.SSRC())

		go func() {
			buf := make([]byte, 1500)
			for {
				_, _, err := track.Read(buf)
				if err != nil {
					log.Printf("Track read ended: %v", err)
					return
				}
				// packets are processed by the recv-buffer interceptor
			}
		}()
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("Connection state: %s", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			peerConnection.Close()
		}
	})

	if err := peerConnection.SetRemoteDescription(offer); err != nil {
		log.Printf("Failed to set remote description: %v", err)
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		log.Printf("Failed to create answer: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := peerConnection.SetLocalDescription(answer); err != nil {
		log.Printf("Failed to set local description: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	<-gatherComplete

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(peerConnection.LocalDescription())

	log.Println("WebRTC connection established, feeding receive buffer...")
}

// HandleStatus reports the most recent buffer-occupancy snapshot for every
// SSRC the receive-buffer interceptor has seen.
func HandleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := make(map[uint32]rcvbufinterceptor.BufferStats)
	latestStats.Range(func(key, value any) bool {
		snapshot[key.(uint32)] = value.(rcvbufinterceptor.BufferStats)
		return true
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
