// Soak test runner for long-duration receive-buffer testing.
//
// This tool simulates packet arrival against a RecvBuffer with induced
// loss, reordering, and retransmission, and monitors for memory growth and
// invariant violations over extended periods (up to 24 hours or more).
//
// Usage:
//
//	go run ./cmd/soak -duration 24h
//	go run ./cmd/soak -duration 1h  # shorter test
//
// Exposes pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-srt/rcvbuf"
	"github.com/go-srt/rcvbuf/pool"
	"github.com/go-srt/rcvbuf/tsbpd"
)

const (
	payloadSize           = 1200 // bytes
	packetIntervalMs      = 10   // 100 pps
	statusIntervalMinutes = 5
	lossRate              = 0.02
	reorderRate           = 0.05
	reorderMaxDelay       = 8 // packets
	capacity              = 8192
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration        time.Duration
	TotalSent       int
	TotalInserted   int
	TotalRead       int
	PeakHeapMB      float64
	TotalGCCycles   uint32
	InvariantErrors int
	Status          string
}

func main() {
	duration := flag.Duration("duration", 24*time.Hour, "Test duration (e.g., 1h, 24h)")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	flag.Parse()

	fmt.Printf("RecvBuffer Soak Test Runner\n")
	fmt.Printf("===========================\n")
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Pprof:    http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("Warning: pprof server failed: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived %v, shutting down gracefully...\n", sig)
		cancel()
	}()

	result := runSoakTest(ctx, *duration)

	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

// heldPacket is a reordered packet waiting for its delayed release tick.
type heldPacket struct {
	seq       int32
	timestamp uint32
	releaseAt int
}

func runSoakTest(ctx context.Context, duration time.Duration) SoakResult {
	config := rcvbuf.DefaultBufferConfig()
	config.Capacity = capacity

	unitPool := pool.NewSyncPool()
	timebase := tsbpd.New(nil)

	buffer, err := rcvbuf.NewRecvBuffer(config, rcvbuf.NewUnitPool(unitPool), timebase, nil, nil)
	if err != nil {
		fmt.Printf("failed to create buffer: %v\n", err)
		return SoakResult{Status: "FAIL"}
	}

	result := SoakResult{Status: "PASS"}

	var memStats runtime.MemStats
	rng := rand.New(rand.NewSource(1))

	nextSeq := int32(0)
	var held []heldPacket
	tick := 0
	readBuf := make([]byte, 64*1024)

	startTime := time.Now()
	lastStatusTime := startTime
	statusInterval := time.Duration(statusIntervalMinutes) * time.Minute

	packetInterval := time.Duration(packetIntervalMs) * time.Millisecond
	ticker := time.NewTicker(packetInterval)
	defer ticker.Stop()

	fmt.Printf("[%s] Starting soak test...\n", formatDuration(0))

	insertOne := func(seq int32, timestamp uint32) {
		unit := unitPool.Acquire()
		unit.Fill(seq, seq, pool.PBSolo, true, timestamp, make([]byte, payloadSize))
		report := buffer.Insert(unit)
		if report.Result == rcvbuf.Inserted {
			result.TotalInserted++
		}
	}

	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			return result

		case now := <-ticker.C:
			elapsed := now.Sub(startTime)
			if elapsed >= duration {
				result.Duration = elapsed
				return result
			}

			tick++
			timestamp := uint32(elapsed.Microseconds())
			seq := nextSeq
			nextSeq++
			result.TotalSent++

			switch {
			case rng.Float64() < lossRate:
				// dropped on the wire, never arrives
			case rng.Float64() < reorderRate:
				held = append(held, heldPacket{seq: seq, timestamp: timestamp, releaseAt: tick + 1 + rng.Intn(reorderMaxDelay)})
			default:
				insertOne(seq, timestamp)
			}

			remaining := held[:0]
			for _, h := range held {
				if h.releaseAt <= tick {
					insertOne(h.seq, h.timestamp)
				} else {
					remaining = append(remaining, h)
				}
			}
			held = remaining

			for {
				n, _ := buffer.ReadMessage(readBuf)
				if n == 0 {
					break
				}
				result.TotalRead++
			}

			if buffer.DataSize() < 0 || buffer.DataSize() > capacity {
				fmt.Printf("[%s] ERROR: DataSize out of range: %d\n", formatDuration(elapsed), buffer.DataSize())
				result.InvariantErrors++
				result.Status = "FAIL"
			}
			if buffer.PktsCount() < 0 || buffer.BytesCount() < 0 {
				fmt.Printf("[%s] ERROR: negative stats counter (pkts=%d bytes=%d)\n", formatDuration(elapsed), buffer.PktsCount(), buffer.BytesCount())
				result.InvariantErrors++
				result.Status = "FAIL"
			}

			if now.Sub(lastStatusTime) >= statusInterval {
				lastStatusTime = now
				runtime.ReadMemStats(&memStats)

				heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
				if heapMB > result.PeakHeapMB {
					result.PeakHeapMB = heapMB
				}
				result.TotalGCCycles = memStats.NumGC

				fmt.Printf("[%s] sent=%d inserted=%d read=%d %s HeapAlloc=%.2fMB NumGC=%d\n",
					formatDuration(elapsed), result.TotalSent, result.TotalInserted, result.TotalRead,
					buffer.StrFullness(), heapMB, memStats.NumGC)

				if heapMB > 100 {
					fmt.Printf("[%s] ERROR: Memory limit exceeded: %.2f MB\n", formatDuration(elapsed), heapMB)
					result.Status = "FAIL"
				}
			}
		}
	}
}

func printSummary(result SoakResult) {
	fmt.Printf("\n")
	fmt.Printf("Soak Test Complete\n")
	fmt.Printf("==================\n")
	fmt.Printf("Duration:          %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Total sent:        %d\n", result.TotalSent)
	fmt.Printf("Total inserted:    %d\n", result.TotalInserted)
	fmt.Printf("Total read:        %d\n", result.TotalRead)
	fmt.Printf("Peak HeapAlloc:    %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles:   %d\n", result.TotalGCCycles)
	fmt.Printf("Invariant errors:  %d\n", result.InvariantErrors)
	fmt.Printf("Status:            %s\n", result.Status)
	fmt.Printf("\n")

	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - No panics:            %s\n", checkMark(true))
	fmt.Printf("  - No invariant errors:  %s\n", checkMark(result.InvariantErrors == 0))
	fmt.Printf("  - Peak memory < 100 MB: %s\n", checkMark(result.PeakHeapMB < 100))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
