package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echoform/echoform-backend/internal/cache"
	"github.com/echoform/echoform-backend/internal/clients/features"
	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/consistency"
	"github.com/echoform/echoform-backend/internal/data/db"
	"github.com/echoform/echoform-backend/internal/data/repos"
	httpserver "github.com/echoform/echoform-backend/internal/http"
	httpH "github.com/echoform/echoform-backend/internal/http/handlers"
	"github.com/echoform/echoform-backend/internal/jobs/pipeline/synthesize"
	voiceclonetrain "github.com/echoform/echoform-backend/internal/jobs/pipeline/voice_clone_train"
	voicesampleextract "github.com/echoform/echoform-backend/internal/jobs/pipeline/voice_sample_extract"
	"github.com/echoform/echoform-backend/internal/jobs/runtime"
	"github.com/echoform/echoform-backend/internal/jobs/worker"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/blob"
	"github.com/echoform/echoform-backend/internal/platform/envutil"
	"github.com/echoform/echoform-backend/internal/platform/qdrant"
	"github.com/echoform/echoform-backend/internal/realtime/bus"
	"github.com/echoform/echoform-backend/internal/services"
	"github.com/echoform/echoform-backend/internal/sse"
	"github.com/echoform/echoform-backend/internal/synthesis"
)

func main() {
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Relational store
	var pg *db.PostgresService
	if envutil.String("DB_DRIVER", "postgres") == "sqlite" {
		pg, err = db.NewSQLiteService(log)
	} else {
		pg, err = db.NewPostgresService(log)
	}
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	gdb := pg.DB()
	if err := db.AutoMigrateAll(gdb); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}
	txRunner := db.NewTxRunner(gdb)

	// Repos
	userRepo := repos.NewUserRepo(gdb, log)
	sampleRepo := repos.NewVoiceSampleRepo(gdb, log)
	cloneRepo := repos.NewVoiceCloneRepo(gdb, log)
	jobRepo := repos.NewSynthesisJobRepo(gdb, log)
	claimRepo := repos.NewSynthesisClaimRepo(gdb, log)
	trainingRepo := repos.NewTrainingJobRepo(gdb, log)

	// Vector index
	qdrantCfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("Failed to resolve qdrant config", "error", err)
	}
	vectors, err := qdrant.NewVectorStore(log, qdrantCfg)
	if err != nil {
		log.Fatal("Failed to init vector store", "error", err)
	}

	// Blob storage
	minioCfg, err := blob.ResolveMinioConfigFromEnv()
	if err != nil {
		log.Fatal("Failed to resolve minio config", "error", err)
	}
	blobs, err := blob.NewMinioStore(ctx, log, minioCfg)
	if err != nil {
		log.Fatal("Failed to init blob store", "error", err)
	}

	// External services
	featuresClient, err := features.NewClient(log)
	if err != nil {
		log.Fatal("Failed to init features client", "error", err)
	}
	backend, err := synthesis.NewHTTPBackend(log)
	if err != nil {
		log.Fatal("Failed to init synthesis backend", "error", err)
	}

	// Realtime fan-out
	hub := sse.NewHub(log)
	var eventBus bus.Bus
	if envutil.String("REDIS_ADDR", "") != "" {
		eventBus, err = bus.NewRedisBus(log)
		if err != nil {
			log.Fatal("Failed to init redis bus", "error", err)
		}
		if err := eventBus.StartForwarder(ctx, hub.Broadcast); err != nil {
			log.Fatal("Failed to start bus forwarder", "error", err)
		}
		defer eventBus.Close()
	} else {
		log.Warn("REDIS_ADDR not set; job events stay process-local")
	}
	notifier := services.NewJobNotifier(log, hub, eventBus)

	// Core machinery
	coord := consistency.NewCoordinator(log, txRunner, vectors)
	dedup := cache.NewDedup(log, cfg.Cache, txRunner, jobRepo, claimRepo, featuresClient, vectors, blobs)

	reconciler := consistency.NewReconciler(log, cfg.Reconcile, sampleRepo, cloneRepo, jobRepo, featuresClient, vectors, blobs)
	stopReconciler, err := reconciler.Start(ctx)
	if err != nil {
		log.Fatal("Failed to start reconciler", "error", err)
	}
	defer stopReconciler()

	// Workers
	registry := runtime.NewRegistry()
	if err := registry.Register(voicesampleextract.NewHandler(log, sampleRepo, featuresClient, coord)); err != nil {
		log.Fatal("Failed to register extract handler", "error", err)
	}
	if err := registry.Register(voiceclonetrain.NewHandler(log, cloneRepo, sampleRepo, vectors, coord)); err != nil {
		log.Fatal("Failed to register train handler", "error", err)
	}
	trainingWorker := worker.NewTrainingWorker(gdb, log, cfg.Worker, trainingRepo, registry, notifier)
	trainingWorker.Start(ctx)

	pipeline := synthesize.NewPipeline(
		log, cfg.Synthesis, cfg.Cache, cfg.Worker, txRunner,
		jobRepo, userRepo, cloneRepo, claimRepo,
		backend, blobs, featuresClient, coord, notifier,
	)
	synthWorker := worker.NewSynthesisWorker(log, cfg.Worker, jobRepo, claimRepo, pipeline)
	synthWorker.Start(ctx)

	// Services and HTTP surface
	voiceService := services.NewVoiceService(log, cfg.Quota, txRunner, userRepo, sampleRepo, cloneRepo, trainingRepo, blobs, vectors, notifier)
	synthesisService := services.NewSynthesisService(log, cfg.Quota, userRepo, cloneRepo, jobRepo, claimRepo, dedup, notifier)

	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:              log,
		VoiceHandler:     httpH.NewVoiceHandler(voiceService),
		SynthesisHandler: httpH.NewSynthesisHandler(synthesisService),
		StreamHandler:    httpH.NewStreamHandler(log, hub),
		HealthHandler:    httpH.NewHealthHandler(),
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Server shutdown incomplete", "error", err)
		}
	}()

	addr := ":" + envutil.String("PORT", "8080")
	log.Info("Starting server", "addr", addr)
	if err := server.Run(addr); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
