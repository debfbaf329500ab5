package migrate

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/baselayer/pkg/httputil"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

// statusCacheTTL bounds how often the status endpoint inspects the database
const statusCacheTTL = 10 * time.Second

// Status answers "is the schema at head" from a cached inspection
type Status struct {
	runner     *Runner
	migrations []Migration
	logger     *observability.Logger

	mu       sync.Mutex
	cachedAt time.Time
	cached   bool
}

// NewStatus creates a status checker over the loaded migration set
func NewStatus(runner *Runner, migrations []Migration, logger *observability.Logger) *Status {
	return &Status{runner: runner, migrations: migrations, logger: logger}
}

// Migrated reports whether every known migration has been applied. The
// answer is cached for a short TTL; an empty migration set always reports
// true. Inspection failures report false so the gate keeps polling.
func (s *Status) Migrated(ctx context.Context) bool {
	if len(s.migrations) == 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.cachedAt) < statusCacheTTL {
		return s.cached
	}

	current, err := s.runner.CurrentVersion(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to inspect schema version")
		current = -1
	}
	s.cached = current >= HeadVersion(s.migrations)
	s.cachedAt = time.Now()
	return s.cached
}

// statusResponse is the wire body of GET /
type statusResponse struct {
	Migrated bool `json:"migrated"`
}

// Handler returns the migration manager's HTTP surface
func (s *Status) Handler(metrics *observability.Metrics) http.Handler {
	router := mux.NewRouter()
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, statusResponse{Migrated: s.Migrated(r.Context())})
	})
	if metrics != nil {
		router.Path("/metrics").Handler(metrics.Handler())
		router.Path("/").Handler(metrics.InstrumentHandler("/", root))
	} else {
		router.Path("/").Handler(root)
	}
	return router
}
