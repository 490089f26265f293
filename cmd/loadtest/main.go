// Command loadtest drives the order engine HTTP API with concurrent order
// creation to measure oversell protection and latency under contention.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type config struct {
	baseURL     string
	total       int
	concurrency int
	quantity    int
	cancelRate  int
	timeout     time.Duration
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt        time.Time        `json:"started_at"`
	DurationSeconds  float64          `json:"duration_seconds"`
	TotalRequests    int64            `json:"total_requests"`
	CreatedOrders    int64            `json:"created_orders"`
	SoldOutRejects   int64            `json:"sold_out_rejects"`
	CancelledOrders  int64            `json:"cancelled_orders"`
	OtherErrors      int64            `json:"other_errors"`
	OfferingQuantity int              `json:"offering_quantity"`
	LatencyMs        latencySummary   `json:"latency_ms"`
	StatusCodes      map[string]int64 `json:"status_codes"`
}

type client struct {
	baseURL string
	http    *http.Client
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg := readConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("loadtest failed")
	}
}

func readConfig() config {
	var cfg config
	flag.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "engine HTTP base URL")
	flag.IntVar(&cfg.total, "total", 200, "total order create attempts")
	flag.IntVar(&cfg.concurrency, "concurrency", 16, "concurrent workers")
	flag.IntVar(&cfg.quantity, "quantity", 50, "available quantity of the test offering")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "percentage of created orders to cancel (0-100)")
	flag.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.StringVar(&cfg.outputPath, "output", "", "write JSON report to file (default: stdout)")
	flag.Parse()

	if cfg.total <= 0 || cfg.concurrency <= 0 || cfg.quantity <= 0 {
		log.Fatal("total, concurrency and quantity must be positive")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		log.Fatal("cancel-rate must be within 0-100")
	}
	return cfg
}

func run(ctx context.Context, cfg config) error {
	c := &client{
		baseURL: cfg.baseURL,
		http:    &http.Client{Timeout: cfg.timeout},
	}

	ownerUID := "loadtest-owner-" + uuid.NewString()[:8]
	studentUID := "loadtest-student-" + uuid.NewString()[:8]

	if err := c.register(ctx, ownerUID, "supplyOwner"); err != nil {
		return fmt.Errorf("register owner: %w", err)
	}
	if err := c.register(ctx, studentUID, "student"); err != nil {
		return fmt.Errorf("register student: %w", err)
	}

	offeringID, err := c.publishOffering(ctx, ownerUID, cfg.quantity)
	if err != nil {
		return fmt.Errorf("publish offering: %w", err)
	}
	log.WithFields(log.Fields{
		"offering_id": offeringID,
		"quantity":    cfg.quantity,
		"total":       cfg.total,
		"concurrency": cfg.concurrency,
	}).Info("starting load")

	var (
		created   atomic.Int64
		soldOut   atomic.Int64
		cancelled atomic.Int64
		failed    atomic.Int64

		mu        sync.Mutex
		latencies []float64
		codes     = map[string]int64{}
	)

	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				reqStart := time.Now()
				orderID, status, err := c.createOrder(ctx, studentUID, offeringID)
				elapsed := float64(time.Since(reqStart).Microseconds()) / 1000.0

				mu.Lock()
				latencies = append(latencies, elapsed)
				codes[fmt.Sprintf("%d", status)]++
				mu.Unlock()

				switch {
				case err != nil:
					failed.Add(1)
				case status == http.StatusCreated:
					created.Add(1)
					if cfg.cancelRate > 0 && i%100 < cfg.cancelRate {
						if cancelErr := c.cancelOrder(ctx, studentUID, orderID); cancelErr == nil {
							cancelled.Add(1)
						}
					}
				case status == http.StatusConflict:
					soldOut.Add(1)
				default:
					failed.Add(1)
				}
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	rep := report{
		StartedAt:        start.UTC(),
		DurationSeconds:  time.Since(start).Seconds(),
		TotalRequests:    int64(cfg.total),
		CreatedOrders:    created.Load(),
		SoldOutRejects:   soldOut.Load(),
		CancelledOrders:  cancelled.Load(),
		OtherErrors:      failed.Load(),
		OfferingQuantity: cfg.quantity,
		LatencyMs:        summarize(latencies),
		StatusCodes:      codes,
	}
	return writeReport(cfg.outputPath, rep)
}

func (c *client) register(ctx context.Context, uid, role string) error {
	suffix := uuid.NewString()[:8]
	_, status, err := c.post(ctx, "/api/create-user-with-login", "", map[string]any{
		"uid":   uid,
		"name":  "Load Test " + suffix,
		"email": suffix + "@loadtest.example.com",
		"phone": "+7999" + fmt.Sprintf("%07d", time.Now().UnixNano()%10000000),
		"role":  role,
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

func (c *client) publishOffering(ctx context.Context, ownerUID string, quantity int) (string, error) {
	body, status, err := c.post(ctx, "/api/supply/announcements", ownerUID, map[string]any{
		"title":       "loadtest offering",
		"scheduledAt": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("create announcement: status %d", status)
	}
	var ann struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &ann); err != nil {
		return "", err
	}

	body, status, err = c.post(ctx, "/api/supply/offerings/publish", ownerUID, map[string]any{
		"announcementId": ann.ID,
		"quantity":       quantity,
		"feeCents":       100,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("publish offering: status %d", status)
	}
	var offering struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &offering); err != nil {
		return "", err
	}
	return offering.ID, nil
}

func (c *client) createOrder(ctx context.Context, uid, offeringID string) (string, int, error) {
	body, status, err := c.post(ctx, "/api/orders", uid, map[string]any{"offeringId": offeringID})
	if err != nil || status != http.StatusCreated {
		return "", status, err
	}
	var order struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return "", status, err
	}
	return order.ID, status, nil
}

func (c *client) cancelOrder(ctx context.Context, uid, orderID string) error {
	_, status, err := c.post(ctx, "/api/orders/"+orderID+"/cancel", uid, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("cancel status %d", status)
	}
	return nil
}

func (c *client) post(ctx context.Context, path, uid string, payload any) ([]byte, int, error) {
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-User-UID", uid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func summarize(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}
	sort.Float64s(latencies)

	var sum float64
	for _, v := range latencies {
		sum += v
	}

	return latencySummary{
		Min: latencies[0],
		Max: latencies[len(latencies)-1],
		Avg: sum / float64(len(latencies)),
		P50: percentile(latencies, 50),
		P95: percentile(latencies, 95),
		P99: percentile(latencies, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func writeReport(path string, rep report) error {
	encoded, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}

	if path == "" {
		fmt.Println(string(encoded))
		return nil
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	log.WithField("path", path).Info("report written")
	return nil
}
