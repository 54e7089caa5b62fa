// Package scheduler runs named periodic jobs on cron expressions.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"fedbot/pkg/logx"
)

type Service struct {
	cron *cron.Cron
	log  logx.Logger
}

func New(log logx.Logger) *Service {
	return &Service{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		log:  log,
	}
}

// Add schedules fn under a cron spec ("@every 6h", "0 3 * * *", ...).
// Panics inside fn are recovered by the cron chain; errors are logged and
// do not unschedule the job.
func (s *Service) Add(name, spec string, fn func(ctx context.Context) error) (cron.EntryID, error) {
	log := s.log.With(logx.String("job", name))
	id, err := s.cron.AddFunc(spec, func() {
		if err := fn(context.Background()); err != nil {
			log.Warn("job failed", logx.Err(err))
		}
	})
	if err != nil {
		return 0, err
	}
	log.Debug("job scheduled", logx.String("spec", spec))
	return id, nil
}

func (s *Service) Remove(id cron.EntryID) { s.cron.Remove(id) }

func (s *Service) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}
