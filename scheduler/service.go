package scheduler

import (
	"context"
	"fmt"
)

//Lifecycle is the Start/Stop pair implemented by both schedulers
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop()
}

//Service adapts a scheduler to suture.Service: it starts the scheduler, blocks until the
//context is cancelled, then stops it.
type Service struct {
	scheduler Lifecycle
	name      string
}

//NewService wraps a scheduler
func NewService(name string, scheduler Lifecycle) *Service {
	return &Service{scheduler: scheduler, name: name}
}

//Serve implements suture.Service
func (s *Service) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("%v start failed: %w", s.name, err)
	}
	<-ctx.Done()
	s.scheduler.Stop()
	return ctx.Err()
}

func (s *Service) String() string {
	return s.name
}
