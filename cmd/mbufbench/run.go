package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memkit/memorykit/mbuf"
	"github.com/memkit/memorykit/memutils"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

const messageHeaderSize = 16

type workload struct {
	Workers      int
	Messages     int
	MessageSize  int
	Fanout       int
	CompactEvery int
	Detailed     bool
}

type workerResult struct {
	Worker             int
	Stats              memutils.DetailedStatistics
	AllocationFailures int
	Reclaimed          int
	PoolStats          string
}

type benchResult struct {
	Workers []workerResult
	Total   memutils.DetailedStatistics
	Elapsed time.Duration
}

var (
	runWorkload  workload
	runEnvPrefix string
	runChunkSize int
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().IntVarP(&runWorkload.Workers, "workers", "w", runtime.NumCPU(), "Number of workers, each with its own pool")
	cmd.Flags().IntVarP(&runWorkload.Messages, "messages", "n", 10000, "Messages processed by each worker")
	cmd.Flags().IntVar(&runWorkload.MessageSize, "message-size", 512, "Body bytes per message, clamped to the block data size")
	cmd.Flags().IntVar(&runWorkload.Fanout, "fanout", 4, "Downstream holders that share each message body")
	cmd.Flags().IntVar(&runWorkload.CompactEvery, "compact-every", 1000, "Compact each pool after this many messages, or 0 to never compact")
	cmd.Flags().BoolVar(&runWorkload.Detailed, "detailed", false, "Include per-block details in JSON pool stats")
	cmd.Flags().StringVar(&runEnvPrefix, "env-prefix", mbuf.DefaultEnvPrefix, "Prefix of the environment variables holding pool settings")
	cmd.Flags().IntVar(&runChunkSize, "chunk-size", 0, "Bytes per block including the block header, overriding the environment")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synthetic workload",
		Long: `The run command starts the configured number of workers and reports the
combined statistics of their pools.

Example:
  mbufbench run --workers 8 --messages 100000
  MBUF_CHUNK_SIZE=4096 mbufbench run --fanout 8 --json
  MBUF_CAPTURE_PROVENANCE=true mbufbench run --json --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := mbuf.OptionsFromEnv(runEnvPrefix)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("chunk-size") {
				options.ChunkSize = runChunkSize
			}

			result, err := runBenchmark(cmd.Context(), newLogger(), options, runWorkload)
			if err != nil {
				return err
			}

			if jsonOut {
				fmt.Println(buildResultJSON(result))
			} else {
				printResult(result)
			}
			return nil
		},
	}
	return cmd
}

func runBenchmark(ctx context.Context, logger *slog.Logger, options mbuf.CreateOptions, load workload) (benchResult, error) {
	if load.Workers < 1 {
		return benchResult{}, errors.Newf("at least one worker is required, got %d", load.Workers)
	}
	if load.Fanout < 0 || load.Messages < 0 {
		return benchResult{}, errors.New("message count and fanout may not be negative")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := benchResult{Workers: make([]workerResult, load.Workers)}
	start := time.Now()

	group, ctx := errgroup.WithContext(ctx)
	for index := 0; index < load.Workers; index++ {
		index := index
		group.Go(func() error {
			workerLogger := logger.With(slog.Int("worker", index))
			worker, err := runWorker(ctx, workerLogger, index, options, load)
			if err != nil {
				return errors.Wrapf(err, "worker %d", index)
			}

			result.Workers[index] = worker
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return benchResult{}, err
	}

	result.Elapsed = time.Since(start)
	result.Total.Clear()
	for index := range result.Workers {
		result.Total.AddDetailedStatistics(&result.Workers[index].Stats)
	}

	return result, nil
}

func runWorker(ctx context.Context, logger *slog.Logger, index int, options mbuf.CreateOptions, load workload) (workerResult, error) {
	pool, err := mbuf.New(logger, options)
	if err != nil {
		return workerResult{}, err
	}

	result := workerResult{Worker: index}
	downstream := make([]mbuf.View, 0, load.Fanout)

	for message := 0; message < load.Messages; message++ {
		if message%256 == 0 && ctx.Err() != nil {
			break
		}

		view, err := pool.Get()
		if errors.Is(err, memutils.ErrAllocationFailure) {
			// Shed the message and give memory back before trying again
			result.AllocationFailures++
			result.Reclaimed += pool.Compact()
			continue
		} else if err != nil {
			return result, err
		}

		header := view.Sub(0, messageHeaderSize)
		body := view.Sub(messageHeaderSize, load.MessageSize)
		view.Release()

		fillMessage(header, body, index, message)

		for holder := 0; holder < load.Fanout; holder++ {
			downstream = append(downstream, body.Clone())
		}
		header.Release()
		body.Release()

		for holder := range downstream {
			err = checkMessage(downstream[holder], index, message)
			downstream[holder].Release()
			if err != nil {
				return result, err
			}
		}
		downstream = downstream[:0]

		if load.CompactEvery > 0 && (message+1)%load.CompactEvery == 0 {
			result.Reclaimed += pool.Compact()
		}
	}

	err = pool.Validate()
	if err != nil {
		return result, err
	}

	result.Stats.Clear()
	pool.AddDetailedStatistics(&result.Stats)
	if load.Detailed {
		result.PoolStats = pool.BuildStatsString(true)
	}

	return result, pool.Destroy()
}

func fillMessage(header, body mbuf.View, worker, message int) {
	data := header.Bytes()
	for i := range data {
		data[i] = byte(worker)
	}

	data = body.Bytes()
	for i := range data {
		data[i] = byte(message + i)
	}
}

func checkMessage(body mbuf.View, worker, message int) error {
	data := body.Bytes()
	for i := range data {
		if data[i] != byte(message+i) {
			return errors.Newf("message %d of worker %d was overwritten at byte %d", message, worker, i)
		}
	}
	return nil
}

func printResult(result benchResult) {
	total := result.Total
	messages := 0
	failures := 0
	for _, worker := range result.Workers {
		messages += worker.Stats.CacheHits + worker.Stats.CacheMisses
		failures += worker.AllocationFailures
	}

	fmt.Printf("Workers:              %d\n", len(result.Workers))
	fmt.Printf("Messages:             %d\n", messages)
	fmt.Printf("Elapsed:              %s\n", result.Elapsed)
	fmt.Printf("Allocation failures:  %d\n", failures)
	fmt.Printf("Blocks allocated:     %d\n", total.CacheMisses)
	fmt.Printf("Free list hits:       %d\n", total.CacheHits)
	fmt.Printf("Blocks reclaimed:     %d\n", total.Reclaimed)
	fmt.Printf("Blocks at exit:       %d (%d bytes)\n", total.BlockCount, total.BlockBytes)
}

func buildResultJSON(result benchResult) string {
	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("ElapsedNanoseconds").Int(int(result.Elapsed.Nanoseconds()))

	total := obj.Name("Total").Object()
	mbuf.PrintDetailedStatistics(&total, &result.Total)
	total.End()

	workers := obj.Name("Workers").Array()
	for _, worker := range result.Workers {
		workerObj := workers.Object()
		workerObj.Name("Worker").Int(worker.Worker)
		workerObj.Name("AllocationFailures").Int(worker.AllocationFailures)
		workerObj.Name("Reclaimed").Int(worker.Reclaimed)

		stats := workerObj.Name("Stats").Object()
		mbuf.PrintDetailedStatistics(&stats, &worker.Stats)
		stats.End()

		if worker.PoolStats != "" {
			workerObj.Name("Pool").Raw([]byte(worker.PoolStats))
		}
		workerObj.End()
	}
	workers.End()

	obj.End()

	return string(writer.Bytes())
}
