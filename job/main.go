package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"mailflow/config"
	"mailflow/dep"
	"mailflow/dispatch"
	"mailflow/job/run_campaigns"
	"mailflow/pkg/logutil"
	"mailflow/pkg/mq"
	"mailflow/pkg/service"
	"mailflow/repo"
)

func main() {
	var (
		opt = config.NewOptions()
		ctx = logutil.InitZeroLog(context.Background(), "DEBUG")
	)

	cfg := config.NewConfig()
	if err := cfg.Load(ctx, opt.ConfigPath); err != nil {
		log.Ctx(ctx).Error().Msgf("load config failed: %v", err)
		os.Exit(1)
	}

	// base repo
	baseRepo, err := repo.NewBaseRepo(ctx, cfg.MetadataDB)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init base repo failed, err: %v", err)
		os.Exit(1)
	}
	defer func() {
		if baseRepo != nil {
			if err := baseRepo.Close(ctx); err != nil {
				log.Ctx(ctx).Error().Msgf("close base repo failed, err: %v", err)
			}
		}
	}()

	// query repo
	queryRepo, err := repo.NewQueryRepo(ctx, cfg.QueryDB)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init query repo failed, err: %v", err)
		os.Exit(1)
	}
	defer func() {
		if queryRepo != nil {
			if err := queryRepo.Close(ctx); err != nil {
				log.Ctx(ctx).Error().Msgf("close query repo failed, err: %v", err)
			}
		}
	}()

	// event stream producer
	producer, err := mq.NewProducer(ctx, cfg.EventStream)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init producer failed, err: %v", err)
		os.Exit(1)
	}
	defer func() {
		if producer != nil {
			if err := producer.Close(); err != nil {
				log.Ctx(ctx).Error().Msgf("close producer failed, err: %v", err)
			}
		}
	}()

	baseCache := repo.NewBaseCache(ctx)

	campaignRepo := repo.NewCampaignRepo(ctx, baseRepo)
	recipientRepo := repo.NewRecipientRepo(ctx, baseRepo, baseCache)
	linkRepo := repo.NewLinkRepo(ctx, baseRepo, baseCache)
	contactRepo := repo.NewContactRepo(ctx, baseRepo)
	providerRepo := repo.NewProviderRepo(ctx, baseRepo)
	templateRepo := repo.NewTemplateRepo(ctx, baseRepo)
	domainRepo := repo.NewDomainRepo(ctx, baseRepo)
	rateLimitRepo := repo.NewRateLimitRepo(ctx, baseRepo)

	senderFactory, err := dep.NewSenderFactory(ctx, cfg)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init sender factory failed, err: %v", err)
		os.Exit(1)
	}

	dispatcher := dispatch.New(
		cfg,
		campaignRepo,
		recipientRepo,
		linkRepo,
		contactRepo,
		providerRepo,
		templateRepo,
		domainRepo,
		rateLimitRepo,
		queryRepo,
		senderFactory,
		producer,
	)

	jobs := map[string]service.Job{
		"run-campaigns": run_campaigns.New(cfg, campaignRepo, dispatcher),
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go <job_name>")
		os.Exit(1)
	}

	jobName := os.Args[1]
	job, exists := jobs[jobName]
	if !exists {
		log.Ctx(ctx).Error().Msgf("job %s not found", jobName)
		os.Exit(1)
	}

	if err := job.Init(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("init job err: %v", err)
		os.Exit(1)
	}

	// long-running jobs poll until the process is told to stop
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := job.Run(runCtx); err != nil {
		log.Ctx(ctx).Error().Msgf("run job err: %v", err)
		os.Exit(1)
	}

	if err := job.CleanUp(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("cleanup job err: %v", err)
		os.Exit(1)
	}

	log.Ctx(ctx).Info().Msg("job executed successfully")
	os.Exit(0)
}
