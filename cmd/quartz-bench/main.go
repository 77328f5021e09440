// quartz-bench is a closed-loop load generator for the quartz HTTP API:
// each worker sends a request, waits for the response, then sends the next.
//
// Workloads:
//   - putall:     alternating put/delete over the keyspace (store-heavy)
//   - getall:     rotating unique gets (store-heavy; use --seed to populate)
//   - mix:        configurable get/put/delete percentages
//   - getpopular: small hot set hammered by all workers (cache-heavy)
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

type benchConfig struct {
	target     string
	duration   time.Duration
	workers    int
	keyspace   int
	valueSize  int
	workload   string
	hotsetSize int
	readPct    int
	writePct   int
	deletePct  int
	seed       bool
	csvPath    string
}

type counters struct {
	requests atomic.Uint64
	success  atomic.Uint64
	fail     atomic.Uint64

	gets      atomic.Uint64
	getsOK    atomic.Uint64
	puts      atomic.Uint64
	putsOK    atomic.Uint64
	deletes   atomic.Uint64
	deletesOK atomic.Uint64

	latencySumNs atomic.Uint64
	latencyCount atomic.Uint64
}

func main() {
	cfg := &benchConfig{}

	rootCmd := &cobra.Command{
		Use:   "quartz-bench",
		Short: "Closed-loop load generator for quartz",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&cfg.target, "target", "http://127.0.0.1:8080", "Target base URL")
	f.DurationVar(&cfg.duration, "duration", 30*time.Second, "Test duration")
	f.IntVar(&cfg.workers, "threads", 4, "Number of concurrent clients")
	f.IntVar(&cfg.keyspace, "keyspace", 1000, "Number of keys for generic workloads")
	f.IntVar(&cfg.valueSize, "value-size", 100, "Bytes per written value")
	f.StringVar(&cfg.workload, "workload", "mix", "putall|getall|mix|getpopular")
	f.IntVar(&cfg.hotsetSize, "hotset-size", 10, "Hot set size for getpopular")
	f.IntVar(&cfg.readPct, "read-pct", 80, "Read percent for mix")
	f.IntVar(&cfg.writePct, "write-pct", 15, "Write percent for mix")
	f.IntVar(&cfg.deletePct, "delete-pct", 5, "Delete percent for mix")
	f.BoolVar(&cfg.seed, "seed", false, "Pre-seed the store before the run")
	f.StringVar(&cfg.csvPath, "csv", "", "Append a summary row to this CSV file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *benchConfig) error {
	switch cfg.workload {
	case "putall", "getall", "mix", "getpopular":
	default:
		return fmt.Errorf("unknown workload %q", cfg.workload)
	}

	if cfg.workload == "mix" {
		normalizeMix(cfg)
	}
	if cfg.hotsetSize <= 0 {
		cfg.hotsetSize = 1
	}

	client := &http.Client{Timeout: 5 * time.Second}

	if cfg.seed {
		fmt.Fprintln(os.Stderr, "seeding store...")
		if err := seedStore(client, cfg); err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
	}

	fmt.Printf("quartz-bench: target=%s workload=%s threads=%d duration=%s keyspace=%d hotset=%d mix=%d/%d/%d\n",
		cfg.target, cfg.workload, cfg.workers, cfg.duration, cfg.keyspace,
		cfg.hotsetSize, cfg.readPct, cfg.writePct, cfg.deletePct)

	var (
		stats  counters
		stop   atomic.Bool
		wg     sync.WaitGroup
		putSeq atomic.Uint64
		getSeq atomic.Uint64
	)

	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(id)*1103515245))
			seq := 0
			for !stop.Load() {
				op, key, value := nextOp(cfg, rng, seq, id, &putSeq, &getSeq)
				start := time.Now()
				ok := doRequest(client, cfg.target, op, key, value)
				latency := time.Since(start)
				record(&stats, op, ok, latency)
				seq++
			}
		}(w)
	}

	time.Sleep(cfg.duration)
	stop.Store(true)
	wg.Wait()

	printSummary(&stats, cfg.duration)
	if cfg.csvPath != "" {
		if err := appendCSV(cfg, &stats); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	return nil
}

func normalizeMix(cfg *benchConfig) {
	total := cfg.readPct + cfg.writePct + cfg.deletePct
	if total == 0 {
		cfg.readPct, cfg.writePct, cfg.deletePct = 100, 0, 0
		return
	}
	if total != 100 {
		cfg.readPct = cfg.readPct * 100 / total
		cfg.writePct = cfg.writePct * 100 / total
		cfg.deletePct = 100 - cfg.readPct - cfg.writePct
	}
}

// nextOp picks the verb and key for one request according to the workload.
func nextOp(cfg *benchConfig, rng *rand.Rand, seq, worker int, putSeq, getSeq *atomic.Uint64) (op, key string, value []byte) {
	switch cfg.workload {
	case "putall":
		// Alternate put and delete to keep the store busy.
		id := putSeq.Add(1) % uint64(cfg.keyspace)
		key = fmt.Sprintf("p%d", id)
		if seq%2 == 0 {
			return "PUT", key, buildValue(worker, seq, cfg.valueSize)
		}
		return "DELETE", key, nil
	case "getall":
		id := getSeq.Add(1) % uint64(cfg.keyspace)
		return "GET", fmt.Sprintf("g%d", id), nil
	case "getpopular":
		return "GET", fmt.Sprintf("hot%d", rng.Intn(cfg.hotsetSize)), nil
	default: // mix
		key = fmt.Sprintf("k%d", rng.Intn(cfg.keyspace))
		r := rng.Intn(100)
		if r < cfg.readPct {
			return "GET", key, nil
		}
		if r < cfg.readPct+cfg.writePct {
			return "PUT", key, buildValue(worker, seq, cfg.valueSize)
		}
		return "DELETE", key, nil
	}
}

// buildValue produces a deterministic payload of roughly size bytes.
func buildValue(worker, seq, size int) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "t%d_s%d:", worker, seq)
	for buf.Len() < size {
		fmt.Fprintf(&buf, "%02x", buf.Len()&0xff)
	}
	b := buf.Bytes()
	if len(b) > size && size > 0 {
		b = b[:size]
	}
	return b
}

// doRequest issues one HTTP request. A 404 counts as success for GET
// (valid not-found outcome) and a 400 as success for PUT, mirroring how
// the workloads define "server behaved correctly".
func doRequest(client *http.Client, target, op, key string, value []byte) bool {
	var (
		resp *http.Response
		err  error
	)

	switch op {
	case "PUT":
		body, _ := json.Marshal(map[string]string{"key": key, "value": string(value)})
		resp, err = client.Post(target+"/kv", "application/json", bytes.NewReader(body))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode/100 == 2 || resp.StatusCode == http.StatusBadRequest
	case "DELETE":
		req, rerr := http.NewRequest(http.MethodDelete, target+"/kv/"+url.PathEscape(key), nil)
		if rerr != nil {
			return false
		}
		resp, err = client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode/100 == 2
	default: // GET
		resp, err = client.Get(target + "/kv/" + url.PathEscape(key))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode/100 == 2 || resp.StatusCode == http.StatusNotFound
	}
}

func record(stats *counters, op string, ok bool, latency time.Duration) {
	stats.requests.Add(1)
	if ok {
		stats.success.Add(1)
		stats.latencySumNs.Add(uint64(latency.Nanoseconds()))
		stats.latencyCount.Add(1)
	} else {
		stats.fail.Add(1)
	}

	switch op {
	case "GET":
		stats.gets.Add(1)
		if ok {
			stats.getsOK.Add(1)
		}
	case "PUT":
		stats.puts.Add(1)
		if ok {
			stats.putsOK.Add(1)
		}
	default:
		stats.deletes.Add(1)
		if ok {
			stats.deletesOK.Add(1)
		}
	}
}

// seedStore pre-populates the keys the chosen workload will read.
func seedStore(client *http.Client, cfg *benchConfig) error {
	var prefix string
	var count int
	switch cfg.workload {
	case "getall":
		prefix, count = "g", cfg.keyspace
	case "getpopular":
		prefix, count = "hot", cfg.hotsetSize
	default:
		prefix, count = "k", cfg.keyspace
	}

	for i := 0; i < count; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		if !doRequest(client, cfg.target, "PUT", key, buildValue(0, i, cfg.valueSize)) {
			return fmt.Errorf("seed put %s failed", key)
		}
		if i&127 == 0 {
			fmt.Fprintf(os.Stderr, "seed: posted %d keys...\n", i)
		}
	}
	return nil
}

func printSummary(stats *counters, duration time.Duration) {
	success := stats.success.Load()
	avgMs := 0.0
	if n := stats.latencyCount.Load(); n > 0 {
		avgMs = float64(stats.latencySumNs.Load()) / float64(n) / 1e6
	}

	fmt.Printf("\n=== Summary ===\n")
	fmt.Printf("Duration: %s\n", duration)
	fmt.Printf("Total requests: %d  Success: %d  Fail: %d\n",
		stats.requests.Load(), success, stats.fail.Load())
	fmt.Printf("Throughput (successful req/s): %.3f\n", float64(success)/duration.Seconds())
	fmt.Printf("Avg response time (ms): %.3f\n", avgMs)
	fmt.Printf("GET total=%d OK=%d\n", stats.gets.Load(), stats.getsOK.Load())
	fmt.Printf("PUT total=%d OK=%d\n", stats.puts.Load(), stats.putsOK.Load())
	fmt.Printf("DELETE total=%d OK=%d\n", stats.deletes.Load(), stats.deletesOK.Load())
}

func appendCSV(cfg *benchConfig, stats *counters) error {
	newFile := false
	if _, err := os.Stat(cfg.csvPath); os.IsNotExist(err) {
		newFile = true
	}

	f, err := os.OpenFile(cfg.csvPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if newFile {
		fmt.Fprintln(f, "workload,threads,duration_s,requests,success,fail,avg_ms")
	}
	avgMs := 0.0
	if n := stats.latencyCount.Load(); n > 0 {
		avgMs = float64(stats.latencySumNs.Load()) / float64(n) / 1e6
	}
	_, err = fmt.Fprintf(f, "%s,%d,%.0f,%d,%d,%d,%.3f\n",
		cfg.workload, cfg.workers, cfg.duration.Seconds(),
		stats.requests.Load(), stats.success.Load(), stats.fail.Load(), avgMs)
	return err
}
