package taskimport

import (
	"io/fs"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskimport/modules/taskimport/infrastructure/persistence"
	"github.com/iota-uz/taskimport/modules/taskimport/infrastructure/persistence/accelerators"
	"github.com/iota-uz/taskimport/modules/taskimport/infrastructure/persistence/schema"
	"github.com/iota-uz/taskimport/modules/taskimport/presentation/controllers"
	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/application"
	"github.com/iota-uz/taskimport/pkg/configuration"
	"github.com/iota-uz/taskimport/pkg/eventbus"
)

type ModuleOptions struct {
	Import         configuration.ImportOptions
	MaxBodyBytes   int64
	MaxUploadBytes int64
	// RouteMiddleware wraps the import API only.
	RouteMiddleware []mux.MiddlewareFunc
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		conf := configuration.Use()
		opts = &ModuleOptions{
			Import:         conf.Import,
			MaxBodyBytes:   conf.MaxUploadSize,
			MaxUploadBytes: conf.MaxUploadSize,
		}
	}
	return &Module{opts: opts}
}

type Module struct {
	opts *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	logger := app.Logger()
	app.EventPublisher().Subscribe(func(e services.ImportCommittedEvent) {
		logger.WithFields(logrus.Fields{
			"project_id": e.ProjectID,
			"actor_id":   e.ActorID,
			"strategy":   e.Strategy,
			"imported":   e.ImportedCount,
			"warnings":   e.Warnings,
		}).Info("tasks imported")
	})
	app.RegisterServices(NewImportService(m.opts.Import, app.EventPublisher()))
	app.RegisterControllers(
		controllers.NewTaskImportAPIController(app, controllers.TaskImportAPIControllerOptions{
			MaxBodyBytes:   m.opts.MaxBodyBytes,
			MaxUploadBytes: m.opts.MaxUploadBytes,
			MaxRows:        m.opts.Import.MaxRows,
			Middleware:     m.opts.RouteMiddleware,
		}),
	)
	return nil
}

func (m *Module) Name() string {
	return "taskimport"
}

// NewImportService wires the import pipeline over the Postgres repositories.
// publisher may be nil.
func NewImportService(opts configuration.ImportOptions, publisher eventbus.EventBus) *services.ImportService {
	projects := persistence.NewProjectRepository()
	vocab := persistence.NewVocabularyRepository()
	members := persistence.NewMemberRepository()
	tasks := persistence.NewTaskRepository()
	gateway := persistence.NewAcceleratorRepository(opts.RoutineSchema)
	cache := services.NewCapabilityCache(opts.ProbeTTL)
	defaults := services.Defaults{Priority: opts.DefaultPriority, Status: opts.DefaultStatus}

	resolver := services.NewIdentityResolver(members, gateway, cache, opts.UsersRoutine, opts.AcceleratorEnabled)
	committer := services.NewCommitter(
		services.NewAcceleratedStrategy(gateway, cache, opts.TasksRoutine, opts.AcceleratorEnabled),
		services.NewDirectStrategy(tasks, vocab, defaults),
	)
	return services.NewImportService(projects, vocab, members, resolver, committer, services.Options{
		Defaults:  defaults,
		MaxRows:   opts.MaxRows,
		Publisher: publisher,
	})
}

// MigrationFiles returns the goose migrations of the module.
func MigrationFiles() fs.FS {
	return schema.FS
}

// AcceleratorScripts returns the optional routine definitions keyed by routine name.
func AcceleratorScripts() (map[string]string, error) {
	scripts, err := accelerators.Scripts()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(scripts))
	for _, s := range scripts {
		out[s.Routine] = s.SQL
	}
	return out, nil
}
