package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contaflux/bankrecon/internal/config"
	"github.com/contaflux/bankrecon/internal/engine"
	"github.com/contaflux/bankrecon/internal/gateway"
	"github.com/contaflux/bankrecon/internal/jobs"
	"github.com/contaflux/bankrecon/internal/jobs/inmemory"
	"github.com/contaflux/bankrecon/internal/ledger"
	"github.com/contaflux/bankrecon/internal/logger"
	"github.com/contaflux/bankrecon/internal/runstore"
	"github.com/contaflux/bankrecon/internal/score"
)

const queueBufferSize = 100

func main() {
	// Initialize logger
	log := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		log.Fatal().Msg("GOOGLE_CLOUD_PROJECT must be set")
	}

	books, err := ledger.NewBigQueryLedger(ctx, projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger client")
	}
	defer books.Close()

	runs, err := runstore.NewBigQueryStore(ctx, projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run store")
	}
	defer runs.Close()

	oracle, err := score.NewGemini(ctx, cfg.Scorer.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scoring oracle")
	}

	eng := engine.New(cfg, oracle, books, books, runs)

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(queueBufferSize, cfg.Scorer.Workers, jobStore)

	log.Info().Msg("Starting reconciliation worker")

	handler := func(ctx context.Context, job jobs.Job) error {
		reconJob, ok := job.(*jobs.ReconcileJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", reconJob.JobID).
			Str("client_id", reconJob.ClientID).
			Str("period", reconJob.Period).
			Str("statement_uri", reconJob.StatementURI).
			Msg("Processing reconcile job")

		batch, err := gateway.FetchStatementBatch(ctx, reconJob.StatementURI)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", reconJob.JobID).
				Msg("Fetching statement batch failed")
			return err
		}

		result, err := eng.Reconcile(ctx, engine.Input{
			ClientID:  reconJob.ClientID,
			Period:    reconJob.Period,
			BankLines: batch.Lines,
		})
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", reconJob.JobID).
				Msg("Reconciliation failed")
			return err
		}

		reconJob.RunID = result.Run.RunID

		log.Info().
			Str("job_id", reconJob.JobID).
			Str("run_id", result.Run.RunID).
			Str("status", string(result.Run.Status)).
			Bool("reused", result.Reused).
			Msg("Reconcile job completed")

		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker exited")
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("BANKRECON_CONFIG"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}
