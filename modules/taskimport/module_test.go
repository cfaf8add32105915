package taskimport

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/application"
	"github.com/iota-uz/taskimport/pkg/configuration"
)

func testImportOptions() configuration.ImportOptions {
	return configuration.ImportOptions{
		AcceleratorEnabled: true,
		ProbeTTL:           time.Minute,
		RoutineSchema:      "public",
		TasksRoutine:       "create_tasks_from_csv_import",
		UsersRoutine:       "create_users_from_csv_import",
		MaxRows:            10,
		DefaultPriority:    "Medium",
		DefaultStatus:      "To Do",
	}
}

func TestModule_Register(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	app := application.New(&application.ApplicationOptions{Logger: logger})

	limited := 0
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited++
			next.ServeHTTP(w, r)
		})
	}
	require.NoError(t, application.LoadModules(app, NewModule(&ModuleOptions{
		Import:          testImportOptions(),
		RouteMiddleware: []mux.MiddlewareFunc{mw},
	})))

	require.NotNil(t, app.Service(services.ImportService{}))
	require.Equal(t, 1, app.EventPublisher().SubscribersCount())
	require.Len(t, app.Controllers(), 1)

	r := mux.NewRouter()
	app.Controllers()[0].Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/task-csv-import/"+uuid.NewString()+"/template", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 1, limited)
}

func TestMigrationFiles(t *testing.T) {
	matches, err := fs.Glob(MigrationFiles(), "*.sql")
	require.NoError(t, err)
	require.Contains(t, matches, "00001_taskimport_baseline.sql")
}

func TestAcceleratorScripts(t *testing.T) {
	scripts, err := AcceleratorScripts()
	require.NoError(t, err)
	require.Contains(t, scripts, "create_tasks_from_csv_import")
	require.Contains(t, scripts, "create_users_from_csv_import")
	require.Contains(t, scripts["create_tasks_from_csv_import"], "create_tasks_from_csv_import")
}
