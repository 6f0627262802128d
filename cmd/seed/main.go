// Command seed fills a Postgres store with jobs in every status so the
// monitor has something to show.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"event-companion-sync/internal/config"
	"event-companion-sync/internal/domain/model"
	pg "event-companion-sync/internal/infra/db/postgres"
	"event-companion-sync/internal/infra/logging"
	"event-companion-sync/internal/usecase"
)

type seedJob struct {
	objectType model.ObjectType
	source     model.SyncSource
	total      int
	events     []model.Event
}

var seeds = []seedJob{
	{model.ObjectTypeAgenda, model.SyncSourceScheduled, 120, []model.Event{
		model.Start(), model.ReportProgress(60), model.ReportProgress(60), model.Complete(),
	}},
	{model.ObjectTypeSpeakers, model.SyncSourceManual, 45, []model.Event{
		model.Start(), model.ReportProgress(12),
	}},
	{model.ObjectTypeExhibitors, model.SyncSourceScheduled, 60, []model.Event{
		model.Start(), model.ReportProgress(20), model.Fail("invalid exhibitor payload"),
	}},
	{model.ObjectTypeContent, model.SyncSourceWordPressPush, 30, []model.Event{
		model.Start(), model.ReportProgress(8), model.FailRecoverable("API rate limit exceeded"),
	}},
	{model.ObjectTypeUsers, model.SyncSourceManual, 800, nil},
}

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.Default()
	var err error
	if *cfgPath != "" {
		cfg, err = config.LoadConfig(*cfgPath, false)
	} else {
		err = config.ApplyEnv(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "database.url (or SYNC_DATABASE_URL) is required")
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema")
	}

	tm := pg.NewTxManager(pool)
	uc := usecase.NewSyncUseCase(pg.NewSyncJobRepo(pool, tm), pg.NewSyncLogRepo(pool, tm), tm, logger)

	// If jobs already exist, do nothing
	sum, err := uc.Summary(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("summary")
	}
	if sum.Total > 0 {
		fmt.Printf("%d jobs already present. No changes.\n", sum.Total)
		return
	}

	for _, s := range seeds {
		job, err := uc.CreateJob(ctx, usecase.CreateJobInput{
			ObjectType:   s.objectType,
			Source:       s.source,
			RecordsTotal: s.total,
			MaxRetries:   cfg.Sync.DefaultMaxRetries,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("object_type", string(s.objectType)).Msg("create job")
		}
		id := job.ID
		for _, ev := range s.events {
			if job, err = uc.Transition(ctx, id, ev); err != nil {
				logger.Fatal().Err(err).Str("job_id", id).Str("event", string(ev.Type)).Msg("transition")
			}
		}
		fmt.Printf("seeded: %-16s %-8s %d/%d (id=%s)\n", job.Label(), job.Status, job.RecordsProcessed, job.RecordsTotal, job.ID)
	}
	fmt.Println("Seeding complete.")
}
