package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// The simulator drives whole booking conversations against a running
// api-server: many workers race each other for the same slot inventory, so
// conflicts here are expected and counted, not failures.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	CancelRatio float64
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Turns       OperationMetrics
	Bookings    OperationMetrics
	SlotRaces   int64 // times a picked slot was gone by pick time
	Cancelled   int64
	NoInventory int64
}

type sessionReply struct {
	SessionID   string `json:"session_id"`
	Stage       string `json:"stage"`
	Prompt      string `json:"prompt"`
	Slots       []any  `json:"slots"`
	Appointment *struct {
		ID string `json:"id"`
	} `json:"appointment"`
}

type Simulator struct {
	config  SimConfig
	client  *http.Client
	metrics Metrics
}

var specialties = []string{"Allergy", "Dermatology", "Cardiology", "General Practice", "Pediatrics"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadConfig()
	log.Printf("simulate starting: base_url=%s workers=%d duration=%s", cfg.APIBaseURL, cfg.Workers, cfg.Duration)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 16),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.1),
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		s.runConversation(ctx, rng)
	}
}

// runConversation plays one patient end to end: identity, specialty, slot
// pick with retries when another worker wins the race, insurance, confirm.
func (s *Simulator) runConversation(ctx context.Context, rng *rand.Rand) {
	start := time.Now()

	reply, err := s.post(ctx, "/sessions", struct{}{})
	if err != nil {
		s.metrics.Bookings.Record(time.Since(start), false, false)
		return
	}
	path := "/sessions/" + reply.SessionID + "/message"

	dob := gofakeit.DateRange(
		time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2008, 12, 31, 0, 0, 0, 0, time.UTC),
	).Format("2006-01-02")

	reply, err = s.turn(ctx, path, map[string]any{
		"name":          gofakeit.FirstName() + " " + gofakeit.LastName(),
		"date_of_birth": dob,
		"contact":       gofakeit.Email(),
	})
	if err != nil {
		s.metrics.Bookings.Record(time.Since(start), false, false)
		return
	}

	reply, err = s.turn(ctx, path, map[string]any{
		"requested_specialty": specialties[rng.Intn(len(specialties))],
	})
	if err != nil {
		s.metrics.Bookings.Record(time.Since(start), false, false)
		return
	}

	// Pick a slot, retrying when someone else just took it.
	for attempt := 0; attempt < 3; attempt++ {
		if reply.Stage != "SLOT_SELECTION" || len(reply.Slots) == 0 {
			atomic.AddInt64(&s.metrics.NoInventory, 1)
			s.abandon(ctx, path)
			return
		}

		reply, err = s.turn(ctx, path, map[string]any{
			"slot_choice": rng.Intn(len(reply.Slots)) + 1,
		})
		if err != nil {
			s.metrics.Bookings.Record(time.Since(start), false, false)
			return
		}
		if reply.Stage == "INSURANCE_COLLECTION" {
			break
		}
		atomic.AddInt64(&s.metrics.SlotRaces, 1)
	}
	if reply.Stage != "INSURANCE_COLLECTION" {
		s.metrics.Bookings.Record(time.Since(start), false, true)
		s.abandon(ctx, path)
		return
	}

	reply, err = s.turn(ctx, path, map[string]any{
		"insurance_carrier":   gofakeit.Company(),
		"insurance_member_id": gofakeit.LetterN(2) + gofakeit.DigitN(7),
	})
	if err != nil {
		s.metrics.Bookings.Record(time.Since(start), false, false)
		return
	}

	// Some patients walk away at the last step.
	if rng.Float64() < s.config.CancelRatio {
		s.abandon(ctx, path)
		atomic.AddInt64(&s.metrics.Cancelled, 1)
		return
	}

	reply, err = s.turn(ctx, path, map[string]any{"confirm": true})
	if err != nil {
		s.metrics.Bookings.Record(time.Since(start), false, false)
		return
	}

	booked := reply.Stage == "CONFIRMED" && reply.Appointment != nil
	s.metrics.Bookings.Record(time.Since(start), booked, !booked)
}

func (s *Simulator) abandon(ctx context.Context, path string) {
	_, _ = s.turn(ctx, path, map[string]any{"cancel": true})
}

func (s *Simulator) turn(ctx context.Context, path string, body any) (sessionReply, error) {
	start := time.Now()
	reply, err := s.post(ctx, path, body)
	s.metrics.Turns.Record(time.Since(start), err == nil, false)
	return reply, err
}

func (s *Simulator) post(ctx context.Context, path string, body any) (sessionReply, error) {
	var reply sessionReply

	payload, err := json.Marshal(body)
	if err != nil {
		return reply, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return reply, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return reply, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply, err
	}
	if resp.StatusCode >= 400 {
		return reply, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	err = json.Unmarshal(raw, &reply)
	return reply, err
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 60))

	printOperationReport("conversation turns", &s.metrics.Turns)
	printOperationReport("booking attempts", &s.metrics.Bookings)

	fmt.Printf("\nslot races lost:   %d\n", atomic.LoadInt64(&s.metrics.SlotRaces))
	fmt.Printf("walked away:       %d\n", atomic.LoadInt64(&s.metrics.Cancelled))
	fmt.Printf("no inventory:      %d\n", atomic.LoadInt64(&s.metrics.NoInventory))
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("\n%s\n", name)
	fmt.Printf("  total=%d success=%d conflict=%d error=%d\n",
		total, atomic.LoadInt64(&om.Success), atomic.LoadInt64(&om.Conflict), atomic.LoadInt64(&om.Error))
	fmt.Printf("  latency avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
