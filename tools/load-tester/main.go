package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// buildEnvelope returns a synthetic envelope with n events. Every third
// event is a login call so forwarding exercises the anonymizer's drop rule.
func buildEnvelope(workerID, n int) ([]byte, error) {
	now := time.Now().UnixMilli()
	events := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		edataType := "page_view"
		if i%3 == 0 {
			edataType = "api_login_call"
		}
		events = append(events, map[string]any{
			"eid":   "LOG",
			"ets":   now,
			"mid":   uuid.NewString(),
			"edata": map[string]any{"type": edataType, "level": "INFO"},
			"context": map[string]any{
				"channel": "load-tester",
				"uid":     uuid.NewString(),
				"pdata":   map[string]any{"pid": "load-tester", "ver": "1.0"},
				"cdata": []map[string]any{
					{"type": "school_name", "id": "Example School"},
					{"type": "Buddy User", "id": uuid.NewString()},
					{"type": "worker", "id": workerID},
				},
			},
		})
	}
	return json.Marshal(map[string]any{
		"id":     "api.telemetry",
		"ver":    "3.0",
		"params": map[string]any{"msgid": uuid.NewString()},
		"ets":    now,
		"mid":    uuid.NewString(),
		"syncts": now,
		"events": events,
	})
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/v1/telemetry", "Target URL for telemetry batches")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 200, "Requests per second limit")
	batchSize := flag.Int("events", 20, "Events per envelope")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Events per batch: %d", *concurrency, *duration, *rps, *batchSize)

	var wg sync.WaitGroup
	var successCount, errorCount, eventCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 50)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 10 * time.Second,
			}

			for {
				if err := limiter.Wait(ctx); err != nil {
					return // deadline reached
				}

				payload, err := buildEnvelope(workerID, *batchSize)
				if err != nil {
					log.Printf("worker %d: build envelope: %v", workerID, err)
					return
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewReader(payload))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Request-ID", uuid.NewString())

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					errorCount.Add(1)
					continue
				}

				if resp.StatusCode == http.StatusOK {
					successCount.Add(1)
					eventCount.Add(int64(*batchSize))
				} else {
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (200 OK): %d", successCount.Load())
	log.Printf("Events persisted: %d", eventCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}
