package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gradeflow/internal/common/cache"
	"gradeflow/internal/common/db"
	commonmw "gradeflow/internal/common/http/middleware"
	"gradeflow/internal/common/lock"
	"gradeflow/internal/common/mq"
	"gradeflow/internal/common/storage"
	"gradeflow/internal/review/classify"
	"gradeflow/internal/review/controller"
	"gradeflow/internal/review/evaluate"
	"gradeflow/internal/review/github"
	"gradeflow/internal/review/gradebook"
	"gradeflow/internal/review/pipeline"
	"gradeflow/internal/review/report"
	"gradeflow/internal/review/repository"
	"gradeflow/internal/review/roster"
	"gradeflow/internal/review/runner"
	"gradeflow/internal/review/scoring"
	"gradeflow/internal/review/workspace"
	"gradeflow/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/review_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	var artifacts repository.ArtifactStore
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(context.Background(), appCfg.Artifacts.Bucket, appCfg.MinIO.Region); err != nil {
			logger.Error(context.Background(), "ensure artifact bucket failed", zap.Error(err))
			return
		}
		artifacts = repository.NewObjectArtifactStore(objStorage, appCfg.Artifacts.Bucket)
	} else {
		logger.Warn(context.Background(), "minio is not configured, review artifacts are not archived")
	}

	locker := lock.NewKeyedLocker(redisCache, appCfg.Lock)
	cmdRunner := runner.New(appCfg.Runner)
	engine, err := evaluate.NewEngine(cmdRunner, appCfg.Evaluate)
	if err != nil {
		logger.Error(context.Background(), "init evaluation engine failed", zap.Error(err))
		return
	}
	workspaces := workspace.NewManager(workspace.NewGit(cmdRunner, appCfg.Git), locker, appCfg.Workspace)
	gh := github.NewClient(appCfg.GitHub)

	submissionRepo := repository.NewSubmissionRepository(mysqlDB)
	assignmentRepo := repository.NewAssignmentRepository(mysqlDB, redisCache, appCfg.CacheTTL.Assignment)
	statusRepo := repository.NewStatusRepository(redisCache, appCfg.Status.TTL)
	rosterStore := roster.NewStore(mysqlDB, redisCache, appCfg.CacheTTL.Student)
	syncer := scoring.NewSyncer(gradebook.NewMySQLGradebook(mysqlDB, appCfg.Gradebook.AutoCreateSheets), locker)

	orchestrator, err := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Submissions:     submissionRepo,
		Assignments:     assignmentRepo,
		Students:        rosterStore,
		Provider:        gh,
		Workspaces:      workspaces,
		Selector:        classify.New(appCfg.Classifier.Root, classify.DefaultRules()),
		Evaluator:       engine,
		Grades:          syncer,
		Policy:          report.NewPolicy(appCfg.Merge),
		Status:          statusRepo,
		Publisher:       repository.NewMQStatusEventPublisher(mqClient, appCfg.Topics.StatusFinal),
		Artifacts:       artifacts,
		StatusTimeout:   appCfg.Status.Timeout,
		ArtifactTimeout: appCfg.Artifacts.Timeout,
	})
	if err != nil {
		logger.Error(context.Background(), "init review orchestrator failed", zap.Error(err))
		return
	}

	intake, err := pipeline.NewIntake(pipeline.IntakeConfig{
		Assignments: assignmentRepo,
		Submissions: submissionRepo,
		Dispatcher:  repository.NewMQJobDispatcher(mqClient, appCfg.Topics.Jobs),
		Pulls:       gh,
	})
	if err != nil {
		logger.Error(context.Background(), "init intake failed", zap.Error(err))
		return
	}

	reviewService, err := pipeline.NewService(pipeline.ServiceConfig{
		Reviewer:       orchestrator,
		Queue:          mqClient,
		RetryTopic:     appCfg.Topics.Retry,
		DeadLetter:     appCfg.Topics.DeadLetter,
		PoolRetryMax:   appCfg.Worker.PoolRetryMax,
		PoolRetryBase:  appCfg.Worker.PoolRetryBase,
		PoolRetryMaxD:  appCfg.Worker.PoolRetryMaxD,
		JobTimeout:     appCfg.Worker.Timeout,
		WorkerPoolSize: appCfg.Worker.PoolSize,
	})
	if err != nil {
		logger.Error(context.Background(), "init review service failed", zap.Error(err))
		return
	}

	topics := []string{appCfg.Topics.Jobs}
	if appCfg.Topics.Retry != "" {
		topics = append(topics, appCfg.Topics.Retry)
	}
	for _, topic := range topics {
		opts := &mq.SubscribeOptions{
			ConsumerGroup:   appCfg.Topics.ConsumerGroup,
			Concurrency:     appCfg.Worker.PoolSize,
			DeadLetterTopic: appCfg.Topics.DeadLetter,
			MessageTTL:      appCfg.Topics.MessageTTL,
		}
		if err := mqClient.Subscribe(context.Background(), topic, reviewService.HandleMessage, opts); err != nil {
			logger.Error(context.Background(), "subscribe review topic failed", zap.String("topic", topic), zap.Error(err))
			return
		}
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}

	health := controller.NewHealthController(map[string]controller.Pinger{
		"mysql": mysqlDB,
		"redis": redisCache,
		"kafka": mqClient,
	}, 0)
	limiter := commonmw.NewIPRateLimiter(appCfg.RateLimit)
	httpServer := buildHTTPServer(appCfg, handlers{
		webhook: controller.NewWebhookController(intake, appCfg.GitHub.WebhookSecret),
		review:  controller.NewReviewController(intake, statusRepo),
		roster:  controller.NewRosterController(roster.NewImporter(rosterStore)),
		health:  health,
	}, limiter)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go pruneLimiter(shutdownCtx, limiter, appCfg.RateLimit.Window)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "review http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	if err := mqClient.Stop(); err != nil {
		logger.Error(context.Background(), "kafka consumer stop failed", zap.Error(err))
	}
}

type handlers struct {
	webhook *controller.WebhookController
	review  *controller.ReviewController
	roster  *controller.RosterController
	health  *controller.HealthController
}

func buildHTTPServer(cfg *AppConfig, h handlers, limiter *commonmw.IPRateLimiter) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	router.GET("/healthz", h.health.Check)
	router.POST("/webhooks/github", commonmw.RateLimitMiddleware(limiter), h.webhook.GitHub)

	verifier := commonmw.NewTokenVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
	api := router.Group("/api/v1", commonmw.RateLimitMiddleware(limiter), commonmw.AuthMiddleware(verifier, cfg.Auth.Role))
	api.POST("/reviews", h.review.Run)
	api.POST("/reviews/import", h.review.ImportOpen)
	api.GET("/reviews/:id", h.review.GetStatus)
	api.POST("/roster/import", h.roster.Import)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func pruneLimiter(ctx context.Context, limiter *commonmw.IPRateLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}
