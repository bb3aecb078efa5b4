package queue

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	paymentJob "storefront-backend/internal/domains/payment/job"
	"storefront-backend/internal/shared"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
}

func NewScheduler(redisOpt asynq.RedisConnOpt) *Scheduler {
	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{scheduler: scheduler}
}

// RegisterPaymentJobs registers the periodic payment jobs.
func (s *Scheduler) RegisterPaymentJobs(reconcileInterval time.Duration) error {
	if err := s.registerReconcilePendingJob(reconcileInterval); err != nil {
		return err
	}
	return nil
}

// ================================================
// JOB: Reconcile Pending Payments (every interval)
// ================================================
// A unique window equal to the interval keeps a slow run from piling up a
// second copy in the queue.
func (s *Scheduler) registerReconcilePendingJob(interval time.Duration) error {
	task, err := paymentJob.NewReconcileTask("scheduler")
	if err != nil {
		return fmt.Errorf("build reconcile task: %w", err)
	}

	_, err = s.scheduler.Register(
		EverySpec(interval),
		task,
		asynq.Queue(shared.QueuePayment),
		asynq.MaxRetry(1),
		asynq.Timeout(interval),
		asynq.Unique(interval),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register ReconcilePendingPayments job")
		return err
	}

	log.Info().Dur("interval", interval).Msg("Registered ReconcilePendingPayments")
	return nil
}

// EverySpec renders a fixed interval as a cron descriptor, rounding up to
// a whole minute.
func EverySpec(interval time.Duration) string {
	if interval < time.Minute {
		interval = time.Minute
	}
	interval = interval.Round(time.Minute)
	return "@every " + interval.String()
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
