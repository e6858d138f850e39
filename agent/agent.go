package agent

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/distflow/localizer/pkg/deletion"
	"github.com/distflow/localizer/pkg/dispatcher"
	derror "github.com/distflow/localizer/pkg/errors"
	"github.com/distflow/localizer/pkg/localizer"
	"github.com/distflow/localizer/pkg/localizer/model"
)

// Agent composes the localization subsystem of one compute node: the
// event dispatcher, the deletion service, and one resource tracker per
// visibility class. The application-scoped tracker runs without
// fan-out control; application resources are removed wholesale with
// the application.
type Agent struct {
	cfg *Config

	dispatcher *dispatcher.Dispatcher
	deletions  *deletion.Service
	registry   *prometheus.Registry
	trackers   map[model.Visibility]*localizer.ResourceTracker
	httpSrv    *http.Server
}

// New builds an agent from the adjusted config.
func New(cfg *Config) (*Agent, error) {
	if len(cfg.CacheRoots) == 0 {
		return nil, derror.ErrNoCacheRoot.GenWithStackByArgs()
	}
	for _, root := range cfg.CacheRoots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, derror.Wrap(derror.ErrCreateCacheRootFailed, err, root)
		}
	}

	registry := prometheus.NewRegistry()
	a := &Agent{
		cfg:        cfg,
		dispatcher: dispatcher.NewDispatcher(cfg.DispatcherShards),
		deletions:  deletion.NewService(cfg.Deletion),
		registry:   registry,
		trackers:   make(map[model.Visibility]*localizer.ResourceTracker),
	}

	requester := &downloadLogger{}
	scopes := []struct {
		visibility   model.Visibility
		user         string
		hierarchical bool
	}{
		{model.VisibilityPublic, "public", true},
		{model.VisibilityPrivate, cfg.User, true},
		{model.VisibilityApplication, "application", false},
	}
	for _, scope := range scopes {
		metrics := localizer.NewMetrics(registry, scope.user)
		tracker, err := localizer.NewResourceTracker(
			scope.user, requester, scope.hierarchical, cfg.Cache, metrics)
		if err != nil {
			return nil, err
		}
		a.trackers[scope.visibility] = tracker
		a.dispatcher.Register(scope.visibility, tracker)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	a.httpSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	return a, nil
}

// Dispatcher returns the agent's event dispatcher. Event producers
// (the container manager, the download engine) publish through it.
func (a *Agent) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// DeletionService returns the agent's deletion service.
func (a *Agent) DeletionService() *deletion.Service {
	return a.deletions
}

// Tracker returns the tracker serving the given visibility class.
func (a *Agent) Tracker(visibility model.Visibility) *localizer.ResourceTracker {
	return a.trackers[visibility]
}

// Run serves the metrics endpoint until the context is canceled, then
// shuts the agent down.
func (a *Agent) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.L().Info("localizer agent serving metrics",
			zap.String("addr", a.cfg.MetricsAddr))
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Close()
		return errors.Trace(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		log.L().Warn("metrics server shutdown failed", zap.Error(err))
	}
	a.Close()
	return nil
}

// Close stops the dispatcher and the deletion service.
func (a *Agent) Close() {
	a.dispatcher.Close()
	a.deletions.Close()
	log.L().Info("localizer agent closed")
}

// downloadLogger is the default download requester: it only records
// that a fetch is needed. A real fetch engine is attached by replacing
// it at construction time.
type downloadLogger struct{}

func (l *downloadLogger) RequestDownload(req model.DownloadRequest) {
	log.L().Info("download requested, no fetch engine attached",
		zap.Stringer("resource", req.Identity),
		zap.String("container", req.Container))
}
