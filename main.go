package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"mailflow/config"
	"mailflow/dep"
	"mailflow/dispatch"
	"mailflow/handler"
	"mailflow/middleware"
	"mailflow/pkg/logutil"
	"mailflow/pkg/mq"
	"mailflow/pkg/router"
	"mailflow/pkg/service"
	"mailflow/repo"
)

type server struct {
	ctx context.Context
	opt *config.Option
	cfg *config.Config

	baseRepo  repo.BaseRepo
	baseCache repo.BaseCache
	queryRepo repo.QueryRepo
	producer  *mq.Producer

	campaignRepo     repo.CampaignRepo
	recipientRepo    repo.RecipientRepo
	linkRepo         repo.LinkRepo
	clickRepo        repo.ClickRepo
	contactRepo      repo.ContactRepo
	providerRepo     repo.ProviderRepo
	templateRepo     repo.TemplateRepo
	domainRepo       repo.DomainRepo
	rateLimitRepo    repo.RateLimitRepo
	webhookEventRepo repo.WebhookEventRepo

	dispatcher *dispatch.Dispatcher

	// api handlers
	campaignHandler  handler.CampaignHandler
	analyticsHandler handler.AnalyticsHandler
	contactHandler   handler.ContactHandler
	trackingHandler  handler.TrackingHandler
	webhookHandler   handler.WebhookHandler
}

func main() {
	s := new(server)
	if err := service.Run(s); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

func (s *server) Init() error {
	opt := config.NewOptions()

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		opt.LogLevel = logLevel
	}

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		opt.ConfigPath = configPath
	}

	if serverPort := os.Getenv("PORT"); serverPort != "" {
		if port, err := strconv.Atoi(serverPort); err == nil {
			opt.Port = port
		}
	}

	s.opt = opt

	return nil
}

func (s *server) Start() error {
	var err error

	// ====== init logger ===== //

	s.ctx = logutil.InitZeroLog(context.Background(), s.opt.LogLevel)

	// ===== init config ===== //

	s.cfg = config.NewConfig()
	if err = s.cfg.Load(s.ctx, s.opt.ConfigPath); err != nil {
		log.Ctx(s.ctx).Error().Msgf("load config failed, err: %v", err)
		return err
	}

	// ===== init repos ===== //

	// base repo
	s.baseRepo, err = repo.NewBaseRepo(s.ctx, s.cfg.MetadataDB)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init base repo failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.baseRepo != nil {
			if err := s.baseRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close base repo failed, err: %v", err)
				return
			}
		}
	}()

	// query repo
	s.queryRepo, err = repo.NewQueryRepo(s.ctx, s.cfg.QueryDB)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init query repo failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.queryRepo != nil {
			if err := s.queryRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close query repo failed, err: %v", err)
				return
			}
		}
	}()

	// event stream producer
	s.producer, err = mq.NewProducer(s.ctx, s.cfg.EventStream)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init producer failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil && s.producer != nil {
			if err := s.producer.Close(); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close producer failed, err: %v", err)
				return
			}
		}
	}()

	s.baseCache = repo.NewBaseCache(s.ctx)

	s.campaignRepo = repo.NewCampaignRepo(s.ctx, s.baseRepo)
	s.recipientRepo = repo.NewRecipientRepo(s.ctx, s.baseRepo, s.baseCache)
	s.linkRepo = repo.NewLinkRepo(s.ctx, s.baseRepo, s.baseCache)
	s.clickRepo = repo.NewClickRepo(s.ctx, s.baseRepo)
	s.contactRepo = repo.NewContactRepo(s.ctx, s.baseRepo)
	s.providerRepo = repo.NewProviderRepo(s.ctx, s.baseRepo)
	s.templateRepo = repo.NewTemplateRepo(s.ctx, s.baseRepo)
	s.domainRepo = repo.NewDomainRepo(s.ctx, s.baseRepo)
	s.rateLimitRepo = repo.NewRateLimitRepo(s.ctx, s.baseRepo)
	s.webhookEventRepo = repo.NewWebhookEventRepo(s.ctx, s.baseRepo)

	// ===== init deps ===== //

	senderFactory, err := dep.NewSenderFactory(s.ctx, s.cfg)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init sender factory failed, err: %v", err)
		return err
	}

	s.dispatcher = dispatch.New(
		s.cfg,
		s.campaignRepo,
		s.recipientRepo,
		s.linkRepo,
		s.contactRepo,
		s.providerRepo,
		s.templateRepo,
		s.domainRepo,
		s.rateLimitRepo,
		s.queryRepo,
		senderFactory,
		s.producer,
	)

	// ===== init handlers ===== //

	s.campaignHandler = handler.NewCampaignHandler(
		s.campaignRepo, s.recipientRepo, s.linkRepo, s.clickRepo, s.baseRepo, s.dispatcher)
	s.analyticsHandler = handler.NewAnalyticsHandler(s.campaignRepo, s.recipientRepo, s.linkRepo)
	s.contactHandler = handler.NewContactHandler(s.contactRepo)
	s.trackingHandler = handler.NewTrackingHandler(
		s.cfg, s.recipientRepo, s.linkRepo, s.clickRepo, s.producer)
	s.webhookHandler = handler.NewWebhookHandler(
		s.contactRepo, s.recipientRepo, s.campaignRepo, s.webhookEventRepo, s.providerRepo, s.producer)

	// ===== start server ===== //

	go func() {
		addr := fmt.Sprintf(":%d", s.opt.Port)

		log.Info().Msgf("starting HTTP server at %s", addr)

		httpServer := &http.Server{
			BaseContext: func(_ net.Listener) context.Context {
				return s.ctx
			},
			Addr:    addr,
			Handler: middleware.Log(cors.AllowAll().Handler(s.registerRoutes())),
		}
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fail to start HTTP server, err: %v", err)
		}
	}()

	return nil
}

func (s *server) Stop() error {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close producer failed, err: %v", err)
			return err
		}
	}

	if s.queryRepo != nil {
		if err := s.queryRepo.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close query repo failed, err: %v", err)
			return err
		}
	}

	if s.baseCache != nil {
		if err := s.baseCache.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close base cache failed, err: %v", err)
			return err
		}
	}

	if s.baseRepo != nil {
		if err := s.baseRepo.Close(s.ctx); err != nil {
			log.Ctx(s.ctx).Error().Msgf("close base repo failed, err: %v", err)
			return err
		}
	}

	return nil
}

type HealthCheckRequest struct{}

type HealthCheckResponse struct{}

func (s *server) registerRoutes() http.Handler {
	r := &router.HttpRouter{
		Router: mux.NewRouter(),
	}

	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathHealthCheck,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(HealthCheckRequest),
			Res: new(HealthCheckResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return nil
			},
		},
	})

	// create_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathCreateCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CreateCampaignRequest),
			Res: new(handler.CreateCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.CreateCampaign(ctx, req.(*handler.CreateCampaignRequest), res.(*handler.CreateCampaignResponse))
			},
		},
	})

	// update_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathUpdateCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.UpdateCampaignRequest),
			Res: new(handler.UpdateCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.UpdateCampaign(ctx, req.(*handler.UpdateCampaignRequest), res.(*handler.UpdateCampaignResponse))
			},
		},
	})

	// get_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetCampaign,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetCampaignRequest),
			Res: new(handler.GetCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.GetCampaign(ctx, req.(*handler.GetCampaignRequest), res.(*handler.GetCampaignResponse))
			},
		},
	})

	// get_campaigns
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetCampaigns,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.GetCampaignsRequest),
			Res: new(handler.GetCampaignsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.GetCampaigns(ctx, req.(*handler.GetCampaignsRequest), res.(*handler.GetCampaignsResponse))
			},
		},
	})

	// delete_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathDeleteCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.DeleteCampaignRequest),
			Res: new(handler.DeleteCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.DeleteCampaign(ctx, req.(*handler.DeleteCampaignRequest), res.(*handler.DeleteCampaignResponse))
			},
		},
	})

	// schedule_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathScheduleCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.ScheduleCampaignRequest),
			Res: new(handler.ScheduleCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.ScheduleCampaign(ctx, req.(*handler.ScheduleCampaignRequest), res.(*handler.ScheduleCampaignResponse))
			},
		},
	})

	// cancel_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathCancelCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CancelCampaignRequest),
			Res: new(handler.CancelCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.CancelCampaign(ctx, req.(*handler.CancelCampaignRequest), res.(*handler.CancelCampaignResponse))
			},
		},
	})

	// send_campaign
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathSendCampaign,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.SendCampaignRequest),
			Res: new(handler.SendCampaignResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.campaignHandler.SendCampaign(ctx, req.(*handler.SendCampaignRequest), res.(*handler.SendCampaignResponse))
			},
		},
	})

	// get_campaign_stats
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetCampaignStats,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetCampaignStatsRequest),
			Res: new(handler.GetCampaignStatsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.analyticsHandler.GetCampaignStats(ctx, req.(*handler.GetCampaignStatsRequest), res.(*handler.GetCampaignStatsResponse))
			},
		},
	})

	// get_dashboard
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetDashboard,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetDashboardRequest),
			Res: new(handler.GetDashboardResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.analyticsHandler.GetDashboard(ctx, req.(*handler.GetDashboardRequest), res.(*handler.GetDashboardResponse))
			},
		},
	})

	// create_contact
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathCreateContact,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CreateContactRequest),
			Res: new(handler.CreateContactResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.contactHandler.CreateContact(ctx, req.(*handler.CreateContactRequest), res.(*handler.CreateContactResponse))
			},
		},
	})

	// get_contacts
	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathGetContacts,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.GetContactsRequest),
			Res: new(handler.GetContactsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.contactHandler.GetContacts(ctx, req.(*handler.GetContactsRequest), res.(*handler.GetContactsResponse))
			},
		},
	})

	// tracking and webhooks bypass the JSON envelope
	r.RegisterRawHttpRoute(&router.RawHttpRoute{
		Path:    config.PathTrackOpen,
		Method:  http.MethodGet,
		Handler: http.HandlerFunc(s.trackingHandler.TrackOpen),
	})

	r.RegisterRawHttpRoute(&router.RawHttpRoute{
		Path:    config.PathTrackClick,
		Method:  http.MethodGet,
		Handler: http.HandlerFunc(s.trackingHandler.TrackClick),
	})

	r.RegisterRawHttpRoute(&router.RawHttpRoute{
		Path:    config.PathWebhookSES,
		Method:  http.MethodPost,
		Handler: http.HandlerFunc(s.webhookHandler.HandleSES),
	})

	r.RegisterRawHttpRoute(&router.RawHttpRoute{
		Path:    config.PathWebhookSendGrid,
		Method:  http.MethodPost,
		Handler: http.HandlerFunc(s.webhookHandler.HandleSendGrid),
	})

	r.RegisterRawHttpRoute(&router.RawHttpRoute{
		Path:    config.PathWebhookSMTP,
		Method:  http.MethodPost,
		Handler: http.HandlerFunc(s.webhookHandler.HandleSMTP),
	})

	return r
}
