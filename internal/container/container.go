package container

import (
	"context"

	"github.com/plantops/mv-backend/internal/api"
	"github.com/plantops/mv-backend/internal/approvals"
	"github.com/plantops/mv-backend/internal/auth"
	"github.com/plantops/mv-backend/internal/aws"
	"github.com/plantops/mv-backend/internal/config"
	"github.com/plantops/mv-backend/internal/database"
	"github.com/plantops/mv-backend/internal/logging"
	"github.com/plantops/mv-backend/internal/notifications"
	"github.com/plantops/mv-backend/internal/policy"
	"github.com/plantops/mv-backend/internal/quality"
	"github.com/plantops/mv-backend/internal/queue"
	"github.com/plantops/mv-backend/internal/refs"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Config        *config.Config
	Database      *database.Database
	Queue         *queue.TaskQueue
	RedisClient   *redis.Client
	EmailService  *aws.EmailService
	Authenticator *auth.Authenticator
	Rules         *policy.Service
	Evaluator     *policy.Evaluator
	Requests      *approvals.Manager
	Quality       *quality.Service
	Dispatcher    *notifications.NotificationDispatcher
	Server        *api.Server
	Worker        *queue.Worker
}

func New(cfg config.Config) (*Container, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}

	taskQueue, err := queue.NewQueue(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	// Two separate Redis connection pools are used: the asynq task queue
	// manages its own connection, and this client backs the shared rule
	// cache.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	jwtService, err := auth.NewJWTService([]byte(cfg.JWT.SigningKey), cfg.JWT.Issuer, cfg.JWT.Expiry)
	if err != nil {
		return nil, err
	}

	authenticator := auth.NewAuthenticator(jwtService, db.Store())

	sesService, err := aws.NewEmailService(cfg.AWS)
	if err != nil {
		return nil, err
	}

	// localstack-specific config (email identity not managed by app in prod)
	if cfg.AWS.EndpointURL != "" {
		if _, err := sesService.VerifyEmailIdentity(context.Background()); err != nil {
			logging.Error("Failed to verify email identity", "error", err)
		}
	}

	worker := queue.NewWorker(&cfg.Redis, sesService)

	templates, err := notifications.LoadTemplates(cfg.Server.TemplatesDir)
	if err != nil {
		return nil, err
	}

	notificationService := notifications.NewNotificationService(db.Store())
	dispatcher := notifications.NewNotificationDispatcher(
		notificationService,
		taskQueue,
		templates,
		notifications.NewEmailLookupFunc(db.Store()),
	)

	validator := refs.NewValidator(db.Store())
	ruleCache := policy.NewRedisRuleCache(redisClient, cfg.Cache.RuleTTL)

	rules := policy.NewService(db.Store(), validator, ruleCache)
	evaluator := policy.NewEvaluator(db.Store(), ruleCache)

	approvalNotifier := notifications.NewApprovalNotifier(dispatcher, db.Store())
	requests := approvals.NewManager(db.Store(), validator, approvalNotifier, cfg.Approvals.OverdueAfter)

	synchronizer := quality.NewSynchronizer(db.Store())
	qualityService := quality.NewService(db.Store(), synchronizer)

	server := api.NewServer(db, &cfg, authenticator, rules, evaluator, requests, qualityService, dispatcher)

	logging.Info("Connected to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port)

	return &Container{
		Config:        &cfg,
		Database:      db,
		Queue:         taskQueue,
		RedisClient:   redisClient,
		EmailService:  sesService,
		Authenticator: authenticator,
		Rules:         rules,
		Evaluator:     evaluator,
		Requests:      requests,
		Quality:       qualityService,
		Dispatcher:    dispatcher,
		Server:        server,
		Worker:        worker,
	}, nil
}

func (c *Container) Cleanup() {
	if c.Queue != nil {
		c.Queue.Close()
		logging.Info("Queue client closed")
	}
	if c.Worker != nil {
		c.Worker.Close()
		logging.Info("Worker closed")
	}
	if c.RedisClient != nil {
		c.RedisClient.Close()
		logging.Info("Redis client closed")
	}
	if c.Database != nil {
		c.Database.Close()
		logging.Info("Database connection closed")
	}
}
