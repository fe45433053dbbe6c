package middleware

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/graftlab/graft/internal/docstore"
	"github.com/graftlab/graft/pkg/store"
)

// App bundles the shared server dependencies. S3 is nil when no bucket
// is configured.
type App struct {
	DBConn         *pgxpool.Pool
	Queue          *amqp091.Channel
	S3             *s3.Client
	Graph          store.GraphStorage
	Docs           *docstore.Store
	DefaultGraphID string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
