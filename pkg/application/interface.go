package application

import (
	"embed"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Name() string
	Register(app Application) error
}

// Application is the registry modules plug their services, controllers and
// migrations into.
type Application interface {
	// DB is nil when the import destination is not PostgreSQL.
	DB() *pgxpool.Pool
	Logger() *logrus.Logger
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	Migrations() MigrationManager
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[string]interface{}
}

type MigrationManager interface {
	RegisterSchema(fs ...*embed.FS)
	Schemas() []*embed.FS
}
