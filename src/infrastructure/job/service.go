package job

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/semaphore"

	"rankguard/src/infrastructure/log"
)

// JobsTopic is the topic job messages are published on.
const JobsTopic = "rank_jobs"

// DefaultConcurrency is the number of jobs a JobService runs at once
// unless WithConcurrency says otherwise.
const DefaultConcurrency = 16

// JobService dispatches jobs through a message publisher and records their
// lifecycle in a Registry.
type JobService struct {
	publisher message.Publisher
	registry  *Registry
	logger    watermill.LoggerAdapter

	slots   *semaphore.Weighted
	running sync.WaitGroup
}

// JobMessage is the payload published for every started job. The job
// itself stays in the registry; the message only names it.
type JobMessage struct {
	JobID string `json:"job_id"`
}

// Option configures a JobService.
type Option func(*JobService)

// WithConcurrency limits how many jobs run at the same time. Values below
// one select DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(s *JobService) {
		if n < 1 {
			n = DefaultConcurrency
		}
		s.slots = semaphore.NewWeighted(int64(n))
	}
}

func NewJobService(
	publisher message.Publisher,
	registry *Registry,
	logger watermill.LoggerAdapter,
	opts ...Option,
) *JobService {
	s := &JobService{
		publisher: publisher,
		registry:  registry,
		logger:    logger,
		slots:     semaphore.NewWeighted(DefaultConcurrency),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnqueueJob registers j and publishes it for processing. When the id is
// already in progress or completed nothing is published and the existing
// registration is returned.
func (s *JobService) EnqueueJob(ctx context.Context, j Job) (Registration, error) {
	reg, err := s.registry.Begin(j)
	if err != nil {
		return Registration{}, err
	}
	if !reg.Started {
		return reg, nil
	}

	msgPayload, err := json.Marshal(JobMessage{JobID: j.ID()})
	if err != nil {
		s.registry.Abandon(j.ID())
		return Registration{}, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(JobsTopic, msg); err != nil {
		s.registry.Abandon(j.ID())
		return Registration{}, fmt.Errorf("failed to publish job message: %w", err)
	}

	s.logger.Debug("Job enqueued", watermill.LogFields{"job_id": j.ID()})
	return reg, nil
}

// ProcessJobMessage starts the job named by msg and acknowledges the
// message once a run slot is taken, so a slow job never holds back the
// ones queued after it. Failures are recorded on the job rather than
// returned, so a message is never redelivered into a second rank change.
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		s.logger.Error("Dropping malformed job message", err, watermill.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	j, ok := s.registry.Get(jobMsg.JobID)
	if !ok {
		s.logger.Info("Job is not in progress, skipping", watermill.LogFields{"job_id": jobMsg.JobID})
		return nil
	}

	if err := s.slots.Acquire(msg.Context(), 1); err != nil {
		s.logger.Error("No run slot before shutdown, abandoning job", err, watermill.LogFields{"job_id": j.ID()})
		s.registry.Abandon(j.ID())
		return nil
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer s.slots.Release(1)
		s.run(context.WithoutCancel(msg.Context()), j)
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (s *JobService) Wait() {
	s.running.Wait()
}

// run executes j and persists its result.
func (s *JobService) run(ctx context.Context, j Job) {
	result, err := j.Run(ctx)
	if err != nil {
		s.logger.Error("Job failed", err, watermill.LogFields{"job_id": j.ID()})
		result = Outcome{Success: false, Message: "Internal server error"}
	}

	if err := s.registry.Complete(ctx, j.ID(), result); err != nil {
		log.Error(err, "Failed to persist job result", "job_id", j.ID())
		s.registry.Abandon(j.ID())
		return
	}

	s.logger.Info("Job completed", watermill.LogFields{"job_id": j.ID()})
}

// Status returns the state of id, or a *NotFoundError if it was never
// started.
func (s *JobService) Status(id string) (Status, error) {
	st := s.registry.Lookup(id)
	if st.State == JobStateUnknown {
		return st, &NotFoundError{ID: id}
	}
	return st, nil
}

// OpenResult returns the persisted result of a completed job.
func (s *JobService) OpenResult(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.registry.Open(ctx, id)
}

// Registry returns the registry backing the service.
func (s *JobService) Registry() *Registry {
	return s.registry
}
