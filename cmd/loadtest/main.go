// Command loadtest drives concurrent GET /search requests against a running
// searcher and reports throughput, latency percentiles, and a per-query
// breakdown. Queries over frequent terms pull more posting blocks, so the
// breakdown shows which queries dominate tail latency.
package main

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

var defaultQueries = []string{
	"genetics",
	"python programming language",
	"world war ii",
	"information retrieval",
	"los angeles",
	"the beatles",
	"renaissance art",
	"black hole",
	"machine learning",
	"olympic games",
	"great fire of london",
	"how to make pasta",
	"nba",
	"ancient rome",
	"jazz",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	// RPS caps the aggregate request rate. Zero means unthrottled.
	RPS     int
	Queries []string
}

type outcome struct {
	query   string
	latency time.Duration
	status  int
	err     error
	results int
	badBody bool
}

type queryStats struct {
	latencies []time.Duration
	results   int
	failures  int
}

// Recorder aggregates outcomes from all workers.
type Recorder struct {
	mu       sync.Mutex
	total    int
	failed   int
	empty    int
	badBody  int
	statuses map[int]int
	all      []time.Duration
	byQuery  map[string]*queryStats
}

func NewRecorder() *Recorder {
	return &Recorder{
		statuses: make(map[int]int),
		all:      make([]time.Duration, 0, 100000),
		byQuery:  make(map[string]*queryStats),
	}
}

func (r *Recorder) Record(o outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	qs, ok := r.byQuery[o.query]
	if !ok {
		qs = &queryStats{}
		r.byQuery[o.query] = qs
	}
	if o.err != nil {
		r.failed++
		qs.failures++
		return
	}
	r.statuses[o.status]++
	r.all = append(r.all, o.latency)
	qs.latencies = append(qs.latencies, o.latency)
	switch {
	case o.status != http.StatusOK:
		r.failed++
		qs.failures++
	case o.badBody:
		r.badBody++
	case o.results == 0:
		r.empty++
	default:
		qs.results = o.results
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Int("rps", 0, "aggregate request rate cap (0 = unthrottled)")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in list)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = loadQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Queries:     queries,
	}

	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	if cfg.RPS > 0 {
		fmt.Printf("Rate cap:    %d req/s\n", cfg.RPS)
	}
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	rec := run(cfg)
	if !printReport(rec, cfg.Duration) {
		os.Exit(1)
	}
}

func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query file: %w", err)
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("query file %s has no queries", path)
	}
	return queries, nil
}

func run(cfg Config) *Recorder {
	rec := NewRecorder()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var pace <-chan time.Time
	if cfg.RPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		pace = ticker.C
	}

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				if pace != nil {
					select {
					case <-pace:
					case <-ctx.Done():
						return
					}
				}
				query := cfg.Queries[next%len(cfg.Queries)]
				next++
				o := searchOnce(ctx, client, cfg.BaseURL, query)
				if ctx.Err() != nil && o.err != nil {
					// cut off by the end of the run
					return
				}
				rec.Record(o)
			}
		}(w)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return rec
}

func searchOnce(ctx context.Context, client *http.Client, base, query string) outcome {
	o := outcome{query: query}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/search?query="+url.QueryEscape(query), nil)
	if err != nil {
		o.err = err
		return o
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		o.err = err
		o.latency = time.Since(start)
		return o
	}
	defer resp.Body.Close()

	o.status = resp.StatusCode
	if resp.StatusCode == http.StatusOK {
		var pairs [][2]string
		if err := json.NewDecoder(resp.Body).Decode(&pairs); err != nil {
			o.badBody = true
		}
		o.results = len(pairs)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	o.latency = time.Since(start)
	return o
}

// printReport writes the summary and reports whether any request completed.
func printReport(rec *Recorder, duration time.Duration) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", rec.total)
	fmt.Printf("Failed:          %d\n", rec.failed)
	fmt.Printf("Empty results:   %d\n", rec.empty)
	fmt.Printf("Bad responses:   %d\n", rec.badBody)
	if rec.total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(rec.failed)/float64(rec.total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(rec.total)/duration.Seconds())
	}

	if len(rec.all) > 0 {
		lat := slices.Clone(rec.all)
		slices.Sort(lat)
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", lat[0])
		fmt.Printf("Avg:    %s\n", mean(lat))
		fmt.Printf("P50:    %s\n", percentile(lat, 50))
		fmt.Printf("P90:    %s\n", percentile(lat, 90))
		fmt.Printf("P95:    %s\n", percentile(lat, 95))
		fmt.Printf("P99:    %s\n", percentile(lat, 99))
		fmt.Printf("Max:    %s\n", lat[len(lat)-1])
		fmt.Printf("StdDev: %s\n", stddev(lat))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(rec.statuses))
	for code := range rec.statuses {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, rec.statuses[code])
	}

	type row struct {
		query    string
		n        int
		p95      time.Duration
		results  int
		failures int
	}
	rows := make([]row, 0, len(rec.byQuery))
	for q, qs := range rec.byQuery {
		lat := slices.Clone(qs.latencies)
		slices.Sort(lat)
		rows = append(rows, row{q, len(lat), percentile(lat, 95), qs.results, qs.failures})
	}
	slices.SortFunc(rows, func(a, b row) int {
		if c := cmp.Compare(b.p95, a.p95); c != 0 {
			return c
		}
		return strings.Compare(a.query, b.query)
	})
	fmt.Println()
	fmt.Println("=== Per Query (slowest p95 first) ===")
	for _, r := range rows {
		fmt.Printf("  %-32q n=%-6d p95=%-12s results=%-4d failures=%d\n", r.query, r.n, r.p95, r.results, r.failures)
	}

	if rec.total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func mean(d []time.Duration) time.Duration {
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func stddev(d []time.Duration) time.Duration {
	avg := float64(mean(d))
	var sq float64
	for _, v := range d {
		diff := float64(v) - avg
		sq += diff * diff
	}
	return time.Duration(math.Sqrt(sq / float64(len(d))))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
