package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/resp/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmarking tool for rKV servers",
		PreRunE: processBenchConfig,
		RunE:    runBench,
	}
	benchKeyPrefix  = "__bench"
	benchValueSize  = 64
	benchNumThreads = 10
	benchKeySpread  = 100
	benchOps        = 10000
	benchSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	benchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	benchCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	benchCmd.Flags().Int(key, 10000, util.WrapString("Number of operations per benchmark"))
	key = "value-size"
	benchCmd.Flags().Int(key, 64, util.WrapString("Size of the generated values in bytes"))
	key = "keys"
	benchCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the benchmarks"))
	key = "csv"
	benchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchValueSize = viper.GetInt("value-size")
	benchKeySpread = viper.GetInt("keys")
	benchNumThreads = viper.GetInt("threads")
	benchOps = viper.GetInt("ops")
	if skip := viper.GetString("skip"); skip != "" {
		benchSkip = strings.Split(skip, ",")
	}

	return nil
}

func runBench(_ *cobra.Command, _ []string) error {

	fmt.Println("Benchmarking tool for rKV servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", benchNumThreads)
	fmt.Printf("Operations: %d\n", benchOps)
	fmt.Printf("Value Size: %d bytes\n", benchValueSize)
	fmt.Println()

	fmt.Println("starting benchmarks...")

	defer cleanupBenchKeys()

	value := make([]byte, benchValueSize)
	results := make([]*benchResult, 0)

	getKey, _ := getKeys("set")
	result := runTimed("set", nil, func(counter int) error {
		return kvClient.Set(getKey(counter), value)
	})
	results = append(results, result)
	printBenchResult(result)

	getKey, iter := getKeys("get")
	result = runTimed("get", func() {
		iter(func(k string) {
			if err := kvClient.Set(k, value); err != nil {
				log.Printf("(get) - error setting key: %v\n", err)
			}
		})
	}, func(counter int) error {
		_, _, err := kvClient.Get(getKey(counter))
		return err
	})
	results = append(results, result)
	printBenchResult(result)

	getKey, iter = getKeys("del")
	result = runTimed("del", func() {
		iter(func(k string) {
			if err := kvClient.Set(k, value); err != nil {
				log.Printf("(del) - error setting key: %v\n", err)
			}
		})
	}, func(counter int) error {
		_, err := kvClient.Del(getKey(counter))
		return err
	})
	results = append(results, result)
	printBenchResult(result)

	getKey, _ = getKeys("lpush")
	result = runTimed("lpush", nil, func(counter int) error {
		_, err := kvClient.LPush(getKey(counter), value)
		return err
	})
	results = append(results, result)
	printBenchResult(result)

	getKey, _ = getKeys("lpop")
	result = runTimed("lpop", func() {
		// fill the lists so every pop hits a non-empty list
		for i := 0; i < benchOps; i++ {
			if _, err := kvClient.RPush(getKey(i), value); err != nil {
				log.Printf("(lpop) - error filling list: %v\n", err)
			}
		}
	}, func(counter int) error {
		_, _, err := kvClient.LPop(getKey(counter))
		return err
	})
	results = append(results, result)
	printBenchResult(result)

	getKey, _ = getKeys("sadd")
	result = runTimed("sadd", nil, func(counter int) error {
		_, err := kvClient.SAdd(getKey(counter), []byte(strconv.Itoa(counter)))
		return err
	})
	results = append(results, result)
	printBenchResult(result)

	getKey, iter = getKeys("mixed")
	result = runTimed("mixed", func() {
		iter(func(k string) {
			if err := kvClient.Set(k, value); err != nil {
				log.Printf("(mixed) - error setting key: %v\n", err)
			}
		})
	}, func(counter int) error {
		key := getKey(counter)
		switch counter % 4 {
		case 0: // set
			return kvClient.Set(key, value)
		case 1: // get
			_, _, err := kvClient.Get(key)
			return err
		case 2: // exists
			_, err := kvClient.Exists(key)
			return err
		default: // del
			_, err := kvClient.Del(key)
			return err
		}
	})
	results = append(results, result)
	printBenchResult(result)

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// benchResult holds the timing data of one benchmark run
type benchResult struct {
	name    string
	skipped bool
	ops     int
	elapsed time.Duration
	timer   metrics.Timer
}

// runTimed executes op benchOps times spread over benchNumThreads goroutines
// and records the latency of every call in a timer
func runTimed(name string, setup func(), op func(counter int) error) *benchResult {
	if shouldSkip(name) {
		return &benchResult{name: name, skipped: true}
	}

	if setup != nil {
		setup()
	}

	timer := metrics.NewTimer()

	var wg sync.WaitGroup
	start := time.Now()
	for t := 0; t < benchNumThreads; t++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < benchOps; i += benchNumThreads {
				opStart := time.Now()
				if err := op(i); err != nil {
					log.Printf("(%s) - operation failed: %v\n", name, err)
				}
				timer.UpdateSince(opStart)
			}
		}(t)
	}
	wg.Wait()

	return &benchResult{name: name, ops: benchOps, elapsed: time.Since(start), timer: timer}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, benchKeySpread)
	for i := 0; i < benchKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", benchKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%benchKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// cleanupBenchKeys removes every key the benchmarks created
func cleanupBenchKeys() {
	keys, err := kvClient.Keys(benchKeyPrefix + "*")
	if err != nil {
		log.Printf("cleanup - error listing keys: %v\n", err)
		return
	}
	for len(keys) > 0 {
		batch := keys
		if len(batch) > 512 {
			batch = keys[:512]
		}
		if _, err := kvClient.Del(batch...); err != nil {
			log.Printf("cleanup - error deleting keys: %v\n", err)
			return
		}
		keys = keys[len(batch):]
	}
}

// printBenchResult prints the result of a benchmark in a formatted way
func printBenchResult(r *benchResult) {
	if r.skipped {
		fmt.Printf("%-10sskipped\n", r.name)
		return
	}

	ps := r.timer.Percentiles([]float64{0.5, 0.95, 0.99})
	opsPerSec := float64(r.ops) / r.elapsed.Seconds()

	fmt.Printf("%-10s%9.0f ops/sec\tmean=%-12v p50=%-12v p95=%-12v p99=%-12v\n",
		r.name,
		opsPerSec,
		time.Duration(r.timer.Mean()),
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(ps[2]),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []*benchResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Ops", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Transport", "Threads", "ValueSizeBytes", "KeysCount",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write benchmark results
	for _, r := range results {
		var row []string
		if r.skipped {
			row = []string{r.name, "0", "0", "0", "0", "0", "0", "true"}
		} else {
			ps := r.timer.Percentiles([]float64{0.5, 0.95, 0.99})
			opsPerSec := float64(r.ops) / r.elapsed.Seconds()
			row = []string{
				r.name,
				strconv.Itoa(r.ops),
				fmt.Sprintf("%.0f", r.timer.Mean()),
				fmt.Sprintf("%.0f", ps[0]),
				fmt.Sprintf("%.0f", ps[1]),
				fmt.Sprintf("%.0f", ps[2]),
				fmt.Sprintf("%.0f", opsPerSec),
				"false",
			}
		}
		row = append(row,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			viper.GetString("transport"),
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchValueSize),
			strconv.Itoa(benchKeySpread),
		)

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for benchmark %s: %v", r.name, err)
		}
	}

	return nil
}
