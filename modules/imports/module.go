package imports

import (
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/reportkind"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence/schema"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/spreadsheet"
	"github.com/iota-uz/sheet-importer/modules/imports/presentation/controllers"
	"github.com/iota-uz/sheet-importer/modules/imports/services"
	"github.com/iota-uz/sheet-importer/pkg/application"
	"github.com/iota-uz/sheet-importer/pkg/worker"
)

type ModuleOptions struct {
	Backend      *Backend
	Jobs         importjob.Repository
	Kinds        *reportkind.Registry
	Pool         *worker.Pool
	Uploads      controllers.UploadOptions
	ChunkSize    int
	WarningLimit int
	Logger       *logrus.Logger
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	o := m.opts
	log := logrus.NewEntry(app.Logger()).WithField("module", m.Name())

	app.Migrations().RegisterSchema(&schema.FS)

	importService := services.NewImportService(services.ImportServiceOptions{
		Destination:  o.Backend.Destination,
		Runs:         o.Backend.Runs,
		Kinds:        o.Kinds,
		Reader:       spreadsheet.NewExcelReader(),
		Loader:       services.NewLoader(o.ChunkSize, log),
		WarningLimit: o.WarningLimit,
	})
	jobService := services.NewJobService(services.JobServiceOptions{
		Jobs:    o.Jobs,
		Imports: importService,
		Pool:    o.Pool,
		Logger:  log,
	})
	app.RegisterServices(
		importService,
		jobService,
		services.NewRunsService(o.Backend.Runs),
	)
	app.RegisterControllers(
		controllers.NewImportsController(app, o.Uploads),
		controllers.NewJobsController(app, o.Uploads),
	)
	return nil
}

func (m *Module) Name() string {
	return "imports"
}
