package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graftlab/graft/internal/docstore"
	"github.com/graftlab/graft/internal/queue"
	mid "github.com/graftlab/graft/internal/server/middleware"
	"github.com/graftlab/graft/internal/storage"
	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/logger"
	"github.com/graftlab/graft/pkg/store"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	migrationsPath := util.GetEnvString("MIGRATIONS_PATH", "internal/docstore/migrations")
	if err := docstore.Migrate(databaseURL, migrationsPath); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	conn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	graph, err := store.NewGraphStorage(ctx, store.ConfigFromEnv())
	if err != nil {
		logger.Fatal("Failed to open graph storage", "err", err)
	}
	defer graph.Close(ctx)

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	var s3 = storage.NewS3Client(ctx)
	if util.GetEnv("AWS_BUCKET") == "" {
		s3 = nil
	}

	app := &mid.App{
		DBConn:         conn,
		Queue:          ch,
		S3:             s3,
		Graph:          graph,
		Docs:           docstore.New(conn),
		DefaultGraphID: util.GetEnvString("GRAPH_ID", "default"),
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4G"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
