package main

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/cppla/inkwell/config"
	"github.com/cppla/inkwell/repository"
	"github.com/cppla/inkwell/routes"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/storage"
	"github.com/cppla/inkwell/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, mongoClient := openRepository(ctx, cfg)
	store := openStore(ctx, cfg)

	cache := utils.NewCache(utils.NewRedis(cfg), time.Duration(cfg.CacheTTLSec)*time.Second, utils.Logger)
	posts := services.NewPostService(repo, store, cache, utils.Logger)

	var sweeper *services.OrphanSweeper
	if !cfg.OrphanSweepDisabled {
		sweeper = services.NewOrphanSweeper(repo, store.Backend(),
			time.Duration(cfg.OrphanGraceMinutes)*time.Minute,
			time.Duration(cfg.OrphanSweepIntervalMinutes)*time.Minute,
			utils.Logger)
		sweeper.Start(ctx)
	}

	r := routes.SetupRouter(cfg, routes.Deps{Posts: posts, Store: store, Logger: utils.Logger})

	srv := utils.NewServer(":"+cfg.AppPort, r, utils.DEFAULT_READ_TIMEOUT, utils.DEFAULT_WRITE_TIMEOUT)
	if sweeper != nil {
		srv.OnShutdown(func(context.Context) { sweeper.Stop() })
	}
	if mongoClient != nil {
		srv.OnShutdown(func(ctx context.Context) {
			if err := mongoClient.Disconnect(ctx); err != nil {
				utils.Logger.Warn("mongo disconnect failed", zap.Error(err))
			}
		})
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.Serve(ctx); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

func openRepository(ctx context.Context, cfg config.AppConfig) (repository.PostRepository, *mongo.Client) {
	switch cfg.DBDriver {
	case "mysql", "sqlite":
		repo := repository.NewGormPostRepository(config.InitDatabase())
		if err := repo.Migrate(); err != nil {
			utils.Sugar.Fatalf("auto migration failed: %v", err)
		}
		utils.Sugar.Infof("using %s post repository", cfg.DBDriver)
		return repo, nil
	default:
		client, db, err := config.InitMongo(ctx)
		if err != nil {
			utils.Sugar.Fatalf("Failed to connect to database: %v", err)
		}
		repo := repository.NewMongoPostRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			utils.Sugar.Fatalf("ensure indexes failed: %v", err)
		}
		utils.Sugar.Infof("using mongo post repository (db=%s)", cfg.MongoDatabase)
		return repo, client
	}
}

func openStore(ctx context.Context, cfg config.AppConfig) *storage.Store {
	var backend storage.Backend
	switch cfg.UploadsBackend {
	case "s3":
		b, err := storage.NewS3Backend(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
		if err != nil {
			utils.Sugar.Fatalf("s3 uploads backend: %v", err)
		}
		backend = b
		utils.Sugar.Infof("storing uploads in s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
	default:
		b, err := storage.NewLocalBackend(cfg.UploadsDir)
		if err != nil {
			utils.Sugar.Fatalf("uploads directory: %v", err)
		}
		backend = b
		utils.Sugar.Infof("storing uploads in %s", b.Root())
	}
	return storage.NewStore(backend, cfg.MaxUploadBytes())
}
