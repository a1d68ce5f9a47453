package results

import (
	"time"

	"github.com/DeLoWaN/openfront-discord-bot/internal/eventbus"
	"github.com/DeLoWaN/openfront-discord-bot/internal/runtime/supervisor"
	"github.com/DeLoWaN/openfront-discord-bot/internal/storage"
	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

// Options are the pipeline tunables, already parsed from configuration.
type Options struct {
	PollInterval  time.Duration
	Worker        WorkerOptions
	Retention     time.Duration
	PruneSchedule string
	ExcludedModes []string
}

// Service owns the three pipeline tasks: lobby discovery, match resolution,
// and retention pruning. Fan-out runs inline inside the resolution worker.
type Service struct {
	discovery *Discovery
	worker    *Worker
	fanout    *Fanout
	pruner    *Pruner
}

func NewService(feed Feed, store storage.Store, deliver Deliverer, bus eventbus.Bus, opts Options, log logx.Logger) *Service {
	fanout := NewFanout(store, deliver, bus, opts.ExcludedModes, log.With(logx.String("task", "results.fanout")))
	return &Service{
		discovery: NewDiscovery(feed, store, bus, opts.PollInterval, log.With(logx.String("task", "results.discovery"))),
		worker:    NewWorker(feed, store, fanout, bus, opts.Worker, log.With(logx.String("task", "results.worker"))),
		fanout:    fanout,
		pruner:    NewPruner(store, opts.PruneSchedule, opts.Retention, log.With(logx.String("task", "results.pruner"))),
	}
}

// Start registers the pipeline tasks on the supervisor. Discovery and the
// worker restart on failure; the pruner only exits on shutdown.
func (s *Service) Start(sup *supervisor.Supervisor) {
	sup.GoRestart("results.discovery", s.discovery.Run)
	sup.GoRestart("results.worker", s.worker.Run)
	sup.GoRestart("results.pruner", s.pruner.Run)
}

// Apply pushes updated tunables into the running tasks. Worker pool size
// and the prune cron schedule stay fixed until restart.
func (s *Service) Apply(opts Options) {
	s.discovery.SetInterval(opts.PollInterval)
	s.worker.SetOptions(opts.Worker)
	s.fanout.SetExcludedModes(opts.ExcludedModes)
	s.pruner.SetRetention(opts.Retention)
}
