package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/example/rewatch/internal/registry"
	"github.com/example/rewatch/internal/syncagent"
)

// Интервалы фоновых задач
const (
	heartbeatInterval = 1 * time.Minute
	dispatchInterval  = 1 * time.Minute
	agentWakeInterval = 15 * time.Minute
)

// Heartbeater re-evaluates local reminders when the clock advances
type Heartbeater interface {
	Heartbeat()
}

// Scheduler manages the periodic background jobs: the local reminder
// heartbeat, the remote push dispatch and the agent wake-up
type Scheduler struct {
	scheduler  *gocron.Scheduler
	gateway    Heartbeater
	dispatcher *registry.Dispatcher
	agent      *syncagent.Agent
	log        zerolog.Logger
}

// New creates a scheduler instance. Any of the jobs may be nil; only the
// wired ones are scheduled.
func New(gateway Heartbeater, dispatcher *registry.Dispatcher, agent *syncagent.Agent, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		gateway:    gateway,
		dispatcher: dispatcher,
		agent:      agent,
		log:        logger,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() {
	if s.gateway != nil {
		s.scheduler.Every(heartbeatInterval).Do(s.gateway.Heartbeat)
	}
	if s.dispatcher != nil {
		s.scheduler.Every(dispatchInterval).Do(s.runDispatch)
	}
	if s.agent != nil {
		s.scheduler.Every(agentWakeInterval).Do(s.wakeAgent)
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) runDispatch() {
	result := s.dispatcher.Run()
	if result.Sent > 0 {
		s.log.Info().Int("sent", result.Sent).Msg("scheduler: dispatched push reminders")
	}
}

func (s *Scheduler) wakeAgent() {
	if err := s.agent.Send(syncagent.CheckReminders{}); err != nil {
		s.log.Warn().Err(err).Msg("scheduler: agent mailbox full, wake dropped")
	}
}
