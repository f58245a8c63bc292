package usecase

import (
	"context"
	"log/slog"
	"time"

	"tasks-pizza/internal/domain"
)

// SchedularService fires scheduled dispatch runs while this node leads.
type SchedularService struct {
	leaderManager domain.LeaderElectionManager
	schedular     domain.Schedular
	schedule      string
	nodeID        string
	retryDelay    time.Duration
	logger        *slog.Logger
}

func NewSchedularService(leaderManager domain.LeaderElectionManager, schedular domain.Schedular, schedule, nodeID string, logger *slog.Logger) *SchedularService {
	return &SchedularService{
		leaderManager: leaderManager,
		schedular:     schedular,
		schedule:      schedule,
		nodeID:        nodeID,
		retryDelay:    5 * time.Second,
		logger:        logger.With("component", "schedular-service", "node_id", nodeID),
	}
}

// Start campaigns for leadership until ctx is done. Each time leadership is
// won the schedule runs until it is lost again.
func (s *SchedularService) Start(ctx context.Context) error {
	s.logger.Info("scheduler service starting")

	if err := s.schedular.AddRun(s.schedule); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler service shutting down")
			return ctx.Err()
		default:
		}

		s.logger.Info("campaigning for leadership")
		lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("leadership campaign failed, retrying", "error", err, "retry_in", s.retryDelay)
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		s.logger.Info("became leader, starting scheduled runs", "schedule", s.schedule)
		termCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = s.schedular.Start(termCtx)
		}()

		select {
		case <-lostLeadershipCh:
			s.logger.Warn("lost leadership, stopping scheduled runs")
			cancel()
			<-done
		case <-ctx.Done():
			cancel()
			<-done
			resignCtx, resignCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := s.leaderManager.Resign(resignCtx); err != nil {
				s.logger.Warn("failed to resign leadership", "error", err)
			}
			resignCancel()
			return ctx.Err()
		}
	}
}
