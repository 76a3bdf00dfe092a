// Receive-buffer demo server.
//
// This server creates a Pion WebRTC endpoint that accepts an inbound track
// and feeds every arriving RTP packet through a rcvbuf.RecvBuffer via the
// receive-buffer interceptor, reporting occupancy and loss over a JSON
// status endpoint instead of a browser-rendered page.
package main

import (
	"fmt"
	"log"

	"github.com/go-srt/rcvbuf/cmd/rcvbufdemo/server"
)

func main() {
	fmt.Println(`
Receive-Buffer Demo Server
===========================
POST an SDP offer to http://localhost:8080/offer
GET  http://localhost:8080/status for buffer occupancy

Server ready on :8080`)

	cfg := server.Config{Addr: ":8080"}
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	addr, err := srv.Start()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("Listening on %s", addr)

	select {}
}
