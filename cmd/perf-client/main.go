package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/server"
)

// PerfResult gathers aggregated metrics for the test run.
// LatencySum and P95Latency are in nanoseconds.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	PointsEarned  int64
	LatencySum    int64
	P95Latency    int64
}

const (
	fixedWorkers   = 50
	fixedRPSTarget = 300
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	fixedClients   = 1000
	baseURL        = "http://localhost:8080"
)

func main() {
	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers

	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}
	client := server.NewClient(httpClient, baseURL)

	// ─── Fixture ────────────────────────────────────────────────
	businessID, clientIDs, err := seed(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed fixture: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("==========================================")
	fmt.Println("Loyalty load test: issue + redeem stamps")
	fmt.Println("==========================================")
	fmt.Printf("Business   : %s\n", businessID)
	fmt.Printf("Clients    : %d\n", len(clientIDs))
	fmt.Printf("RPS        : %d\n", rps)
	fmt.Printf("Duration   : %v\n", duration)
	fmt.Println("==========================================")

	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup
	var next atomic.Int64

	latencyChan := make(chan time.Duration, 4096)
	var p95 sync.WaitGroup
	p95.Add(1)
	go func() {
		defer p95.Done()
		trackP95(latencyChan, &result)
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				clientID := clientIDs[int(next.Add(1))%len(clientIDs)]
				doRequest(client, businessID, clientID, &result, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done()

	wg.Wait()
	close(latencyChan)
	p95.Wait()

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Results")
	fmt.Println("==========================================")
	fmt.Printf("Elapsed            : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Total requests     : %d\n", result.TotalRequests)
	fmt.Printf("Succeeded          : %d\n", result.SuccessCount)
	fmt.Printf("Failed             : %d\n", result.ErrorCount)

	var successRate float64
	if result.TotalRequests > 0 {
		successRate = float64(result.SuccessCount) / float64(result.TotalRequests) * 100
	}
	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("Actual RPS         : %.2f\n", float64(result.SuccessCount)/totalDur.Seconds())
	fmt.Printf("Success rate       : %.2f%%\n", successRate)
	fmt.Printf("Average latency    : %v\n", avgLatency)
	fmt.Printf("P95 latency        : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("Consistency check")
	fmt.Println("==========================================")
	if err := verifyDataConsistency(client, businessID, result.PointsEarned); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK: card balances match redeemed stamps")
	fmt.Println("==========================================")
}

// seed creates a fresh business and its clients so each run starts from
// empty cards.
func seed(client *server.Client) (string, []string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	businessID := "perf-" + uuid.NewString()
	_, err := client.SyncBusiness.CallUnary(ctx, connect.NewRequest(&server.SyncBusinessRequest{
		ID:   businessID,
		Name: "Perf Coffee",
	}))
	if err != nil {
		return "", nil, fmt.Errorf("sync business failed: %w", err)
	}

	clientIDs := make([]string, 0, fixedClients)
	for i := 0; i < fixedClients; i++ {
		id := uuid.NewString()
		_, err := client.SyncClient.CallUnary(ctx, connect.NewRequest(&server.SyncClientRequest{
			ID:    id,
			Name:  fmt.Sprintf("Perf Client %d", i),
			Email: fmt.Sprintf("perf-%d@example.com", i),
		}))
		if err != nil {
			return "", nil, fmt.Errorf("sync client failed: %w", err)
		}
		clientIDs = append(clientIDs, id)
	}
	return businessID, clientIDs, nil
}

// doRequest issues one visit stamp and redeems it for clientID.
func doRequest(client *server.Client, businessID, clientID string, result *PerfResult, latencyChan chan<- time.Duration) {
	// Independent context so in-flight calls finish when the test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	issued, err := client.IssueStamp.CallUnary(ctx, connect.NewRequest(&server.IssueStampRequest{
		BusinessID: businessID,
		Kind:       model.StampKindVisit,
	}))
	if err != nil || issued.Msg.Stamp == nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}

	redeemed, err := client.RedeemStamp.CallUnary(ctx, connect.NewRequest(&server.RedeemStampRequest{
		ClientID: clientID,
		Code:     issued.Msg.Stamp.Code,
	}))
	latency := time.Since(start)
	if err != nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}

	atomic.AddInt64(&result.SuccessCount, 1)
	atomic.AddInt64(&result.PointsEarned, int64(redeemed.Msg.PointsEarned))
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencyChan <- latency:
	default:
	}
}

// trackP95 maintains a best-effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
			buf[idx] = lat.Nanoseconds()
		}

		if len(buf) >= 100 && len(buf)%100 == 0 {
			sorted := make([]int64, len(buf))
			copy(sorted, buf)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			p95Index := int(float64(len(sorted)) * 0.95)
			if p95Index >= len(sorted) {
				p95Index = len(sorted) - 1
			}
			atomic.StoreInt64(&result.P95Latency, sorted[p95Index])
		}
	}
}

// verifyDataConsistency checks that the cards at the business hold exactly
// the points the run earned and that every card balances.
func verifyDataConsistency(client *server.Client, businessID string, expectedPoints int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var total int64
	for offset := 0; ; offset += model.MaxPageSize {
		resp, err := client.ListCardsByBusiness.CallUnary(ctx, connect.NewRequest(&server.ListCardsByBusinessRequest{
			BusinessID: businessID,
			Limit:      model.MaxPageSize,
			Offset:     offset,
		}))
		if err != nil {
			return fmt.Errorf("failed to list cards: %w", err)
		}
		for _, card := range resp.Msg.Cards {
			if err := card.CheckInvariant(); err != nil {
				return err
			}
			total += int64(card.TotalStamps)
		}
		if len(resp.Msg.Cards) < model.MaxPageSize {
			break
		}
	}

	fmt.Printf("Points on cards    : %d\n", total)
	fmt.Printf("Points redeemed    : %d\n", expectedPoints)
	if total != expectedPoints {
		return fmt.Errorf("mismatch: cards=%d, redeemed=%d, diff=%d", total, expectedPoints, total-expectedPoints)
	}
	return nil
}
