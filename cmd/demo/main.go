// Command demo plays a short sync session against the in-memory store:
// a clean agenda import, a speakers run that hits a rate limit and is
// requeued, and an exhibitors run that fails for good.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"event-companion-sync/internal/config"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/infra/adapters/source"
	"event-companion-sync/internal/infra/db/memory"
	"event-companion-sync/internal/infra/logging"
	"event-companion-sync/internal/infra/worker"
	"event-companion-sync/internal/usecase"
)

func main() {
	verbose := flag.Bool("v", false, "print runner logs")
	timeout := flag.Duration("timeout", 30*time.Second, "give up after")
	flag.Parse()

	logCfg := config.LogConfig{Level: "warn", Format: "console"}
	if *verbose {
		logCfg.Level = "debug"
	}
	logger := logging.New(logCfg, true)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	src := source.NewStaticSource(map[model.ObjectType]int{
		model.ObjectTypeAgenda:     40,
		model.ObjectTypeSpeakers:   45,
		model.ObjectTypeExhibitors: 30,
	}).
		WithFault(model.ObjectTypeSpeakers, source.Fault{AtRecord: 12, Recoverable: true, Message: "API rate limit exceeded", Times: 1}).
		WithFault(model.ObjectTypeExhibitors, source.Fault{AtRecord: 20, Message: "invalid exhibitor payload"}).
		WithDelay(100 * time.Millisecond)

	uc := usecase.NewSyncUseCase(memory.NewJobStore(), memory.NewLogStore(), memory.TxManager{}, logger)
	pool := worker.NewPool(3, logger)
	pool.Start(ctx)
	defer pool.Stop()
	runner := worker.NewSyncRunner(uc, src, pool, 4, 3, logger, worker.WithAutoRequeue(500*time.Millisecond))

	var ids []string
	for _, ot := range []model.ObjectType{model.ObjectTypeAgenda, model.ObjectTypeSpeakers, model.ObjectTypeExhibitors} {
		job, err := runner.Trigger(ctx, ot, model.SyncSourceManual)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trigger %s: %v\n", ot, err)
			os.Exit(1)
		}
		ids = append(ids, job.ID)
	}

	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "demo timed out")
			os.Exit(1)
		case <-tick.C:
		}
		done := true
		fmt.Println("----")
		for _, id := range ids {
			j, err := uc.GetJob(ctx, id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "get %s: %v\n", id, err)
				os.Exit(1)
			}
			fmt.Printf("%-18s %-8s %3d/%-3d %5.1f%%  retries %d/%d  %s\n",
				j.Label(), j.Status, j.RecordsProcessed, j.RecordsTotal, model.ProgressPercent(j),
				j.RetryCount, j.MaxRetries, model.FormatDuration(int64(model.Elapsed(j, time.Now())/time.Second)))
			if j.Status != model.SyncStatusSuccess && j.Status != model.SyncStatusFailed {
				done = false
			}
		}
		if done {
			break
		}
	}

	for _, id := range ids {
		j, _ := uc.GetJob(ctx, id)
		fmt.Printf("\n%s (%s)\n", j.Label(), j.ID)
		for e, err := range uc.ListLogs(ctx, id) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "logs: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("  %s %-7s %s\n", e.Timestamp.Format("15:04:05.000"), e.Level, e.Message)
		}
	}
}
