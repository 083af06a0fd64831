package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/elliotttate/RenderDocMCP/internal/bridge"
)

type stressSummary struct {
	Method        string         `json:"method"`
	Params        map[string]any `json:"params"`
	Threads       int            `json:"threads"`
	Requests      int            `json:"requests"`
	DurationSec   float64        `json:"duration_sec"`
	ThroughputRPS float64        `json:"throughput_rps"`
	Successes     int            `json:"successes"`
	Failures      int            `json:"failures"`
	FailureRate   float64        `json:"failure_rate"`
	LatencyMS     latencyStats   `json:"latency_ms"`
	TopErrors     [][]any        `json:"top_errors"`
}

type latencyStats struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	Max float64 `json:"max"`
}

func newStressCommand(flags *rootFlags) *cobra.Command {
	var (
		method     string
		paramsText string
		threads    int
		requests   int
		showErrors int
		dumpDiag   bool
	)
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer the bridge with concurrent calls and summarize latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, _, err := parseParams([]string{paramsText})
			if err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			client := bridge.New(cfg, nil)

			summary := runStress(cmd.Context(), client, method, params, threads, requests, showErrors)
			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if dumpDiag {
				payload, err := client.Diagnostics(cmd.Context(), bridge.DefaultDiagnosticsOptions())
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "\nBridge diagnostics unavailable: %v\n", err)
					return nil
				}
				pretty, err := prettyJSON(payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nBridge diagnostics:\n%s\n", pretty)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&method, "method", "get_capture_status", "bridge method to call")
	f.StringVar(&paramsText, "params", "{}", "JSON object of method params")
	f.IntVar(&threads, "threads", 8, "concurrent workers")
	f.IntVar(&requests, "requests", 200, "total request count")
	f.IntVar(&showErrors, "show-errors", 10, "unique errors to keep in the summary")
	f.BoolVar(&dumpDiag, "dump-diagnostics", false, "print bridge diagnostics after the run")
	return cmd
}

func runStress(ctx context.Context, client *bridge.Client, method string, params map[string]any, threads, requests, showErrors int) stressSummary {
	if threads < 1 {
		threads = 1
	}
	if requests < 1 {
		requests = 1
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		latencies = make([]time.Duration, 0, requests)
		errCounts = map[string]int{}
		successes int
		failures  int
	)

	work := make(chan struct{})
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range work {
				start := time.Now()
				_, err := client.Call(ctx, method, params)
				elapsed := time.Since(start)
				mu.Lock()
				latencies = append(latencies, elapsed)
				if err != nil {
					failures++
					errCounts[err.Error()]++
				} else {
					successes++
				}
				mu.Unlock()
			}
		}()
	}

	started := time.Now()
	for i := 0; i < requests; i++ {
		work <- struct{}{}
	}
	close(work)
	wg.Wait()

	duration := time.Since(started).Seconds()
	if duration < 0.0001 {
		duration = 0.0001
	}

	return stressSummary{
		Method:        method,
		Params:        params,
		Threads:       threads,
		Requests:      requests,
		DurationSec:   round(duration, 3),
		ThroughputRPS: round(float64(requests)/duration, 2),
		Successes:     successes,
		Failures:      failures,
		FailureRate:   round(float64(failures)/float64(requests)*100, 2),
		LatencyMS:     latencySummary(latencies),
		TopErrors:     topErrors(errCounts, showErrors),
	}
}

func latencySummary(latencies []time.Duration) latencyStats {
	if len(latencies) == 0 {
		return latencyStats{}
	}
	sorted := make([]float64, len(latencies))
	for i, d := range latencies {
		sorted[i] = d.Seconds() * 1000
	}
	sort.Float64s(sorted)

	n := len(sorted)
	p50 := sorted[n/2]
	if n%2 == 0 {
		p50 = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	p95 := sorted[0]
	if n > 1 {
		idx := int(float64(n)*0.95) - 1
		if idx < 0 {
			idx = 0
		}
		p95 = sorted[idx]
	}
	return latencyStats{
		Min: round(sorted[0], 2),
		P50: round(p50, 2),
		P95: round(p95, 2),
		Max: round(sorted[n-1], 2),
	}
}

func topErrors(counts map[string]int, limit int) [][]any {
	type pair struct {
		msg   string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for msg, count := range counts {
		pairs = append(pairs, pair{msg, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].msg < pairs[j].msg
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	out := make([][]any, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, []any{p.msg, p.count})
	}
	return out
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
