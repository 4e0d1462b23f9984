package document

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/txn"
	vmetrics "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the document store",
		Long:    "Runs parallel benchmarks against the configured store. All test documents are written below __perf and removed afterward.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	// per-test latency timers
	perfTimers = gometrics.NewRegistry()
)

// perfDoc is the payload used by all benchmarks
type perfDoc struct {
	Counter int    `json:"counter"`
	Data    string `json:"data,omitempty"`
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,read)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the write-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different documents to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "prometheus"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Print the store metrics in Prometheus text format after the run"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// benchmark describes one performance test.
// prepare (optional) runs before the timer starts, op is called in parallel with a running counter.
type benchmark struct {
	name    string
	prepare func(ctx context.Context, iter func(func(string)))
	op      func(ctx context.Context, key string, counter int) error
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for the document store")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	conf := docStore.Config()
	fmt.Println(conf.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	seed := func(ctx context.Context, iter func(func(string))) {
		iter(func(k string) {
			if !store.Write(ctx, docStore, k, perfDoc{}) {
				log.Printf("error seeding document %s\n", k)
			}
		})
	}

	benchmarks := []benchmark{
		{
			name: "write",
			op: func(ctx context.Context, key string, counter int) error {
				return boolErr(store.Write(ctx, docStore, key, perfDoc{Counter: counter}), "write")
			},
		},
		{
			name: "write-large",
			op: func(ctx context.Context, key string, counter int) error {
				return boolErr(store.Write(ctx, docStore, key, perfDoc{Counter: counter, Data: largeValue}), "write")
			},
		},
		{
			name:    "read",
			prepare: seed,
			op: func(ctx context.Context, key string, _ int) error {
				_, ok := store.Read[perfDoc](ctx, docStore, key)
				return boolErr(ok, "read")
			},
		},
		{
			name:    "exists",
			prepare: seed,
			op: func(ctx context.Context, key string, _ int) error {
				return boolErr(docStore.Exists(ctx, key), "exists")
			},
		},
		{
			name:    "delete",
			prepare: seed,
			op: func(ctx context.Context, key string, _ int) error {
				return boolErr(docStore.Delete(ctx, key), "delete")
			},
		},
		{
			name: "lock",
			op: func(ctx context.Context, key string, _ int) error {
				handle, err := docStore.Lock(ctx, lockmgr.NewOwnerID(), key)
				if err != nil {
					return err
				}
				return handle.Release()
			},
		},
		{
			name:    "txn",
			prepare: seed,
			op: func(ctx context.Context, key string, counter int) error {
				other := perfKey("txn", counter+1)
				_, err := store.ExecuteInTransaction(ctx, docStore, lockmgr.NewOwnerID(), []string{key, other},
					func(ctx context.Context, _ *txn.Transaction) (struct{}, error) {
						doc, _ := store.Read[perfDoc](ctx, docStore, key)
						doc.Counter++
						return struct{}{}, boolErr(store.Write(ctx, docStore, key, doc), "write")
					})
				return err
			},
		},
		{
			name:    "mixed",
			prepare: seed,
			op: func(ctx context.Context, key string, counter int) error {
				switch counter % 4 {
				case 0:
					return boolErr(store.Write(ctx, docStore, key, perfDoc{Counter: counter}), "write")
				case 1:
					store.Read[perfDoc](ctx, docStore, key) // may be deleted
				case 2:
					return boolErr(docStore.Delete(ctx, key), "delete")
				case 3:
					docStore.Exists(ctx, key)
				}
				return nil
			},
		},
	}

	fmt.Println("staring tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks {
		result := runBenchmark(ctx, bm)
		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	if viper.GetBool("prometheus") {
		fmt.Println()
		vmetrics.WritePrometheus(os.Stdout, false)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runBenchmark runs a single benchmark in parallel and records the latency of every operation
func runBenchmark(ctx context.Context, bm benchmark) testing.BenchmarkResult {
	if shouldSkip(bm.name) {
		return testing.BenchmarkResult{}
	}

	timer := gometrics.GetOrRegisterTimer(bm.name, perfTimers)
	getKey, iter := getKeys(bm.name)

	return testing.Benchmark(func(b *testing.B) {
		if bm.prepare != nil {
			bm.prepare(ctx, iter)
		}

		// cleanup
		b.Cleanup(func() {
			if !docStore.Delete(ctx, perfKeyPrefix+"/"+bm.name) {
				log.Printf("(%s) - error deleting test documents\n", bm.name)
			}
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := bm.op(ctx, getKey(counter), counter); err != nil {
					log.Printf("(%s) - error: %v\n", bm.name, err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

func boolErr(ok bool, op string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%s failed", op)
}

func perfKey(prefix string, i int) string {
	return fmt.Sprintf("%s/%s/doc-%d.json", perfKeyPrefix, prefix, i%perfKeySpread)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = perfKey(prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	p := latencyPercentiles(test)
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, time.Duration(p[0]), time.Duration(p[1]))
}

// latencyPercentiles returns p50 and p99 of the single operation latencies of a test (in ns)
func latencyPercentiles(test string) []float64 {
	timer, ok := perfTimers.Get(test).(gometrics.Timer)
	if !ok {
		return []float64{0, 0}
	}
	return timer.Percentiles([]float64{0.5, 0.99})
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	conf := docStore.Config()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Skipped",
		"CacheSize", "CacheTTLMin", "Versioning", "MaxVersions",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		p := latencyPercentiles(test)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			skipped,
			strconv.Itoa(conf.CacheMaxSize),
			strconv.Itoa(conf.CacheTTLMinutes),
			strconv.FormatBool(conf.VersioningEnabled),
			strconv.Itoa(conf.MaxVersions),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %v", err)
		}
	}

	return nil
}
