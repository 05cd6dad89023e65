// Package startup starts service dependencies in dependency order with a
// fibonacci backoff between failed attempts, and stops them in reverse.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

type StartupDependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Startup struct {
	logger      ectologger.Logger
	byName      map[string]StartupDependency
	order       []string
	startOrder  []string
	started     map[string]bool
	maxAttempts int
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	return &Startup{
		logger:      logger,
		byName:      make(map[string]StartupDependency),
		started:     make(map[string]bool),
		maxAttempts: maxAttempts,
	}
}

// AddDependency registers a dependency. Registration order is the tiebreak
// when DependsOn does not impose one.
func (s *Startup) AddDependency(dependency StartupDependency) {
	name := dependency.GetName()
	if _, exists := s.byName[name]; !exists {
		s.order = append(s.order, name)
	}
	s.byName[name] = dependency
}

// Start brings every registered dependency up, prerequisites first. A failed
// attempt leaves already-started dependencies running and retries the rest
// after a fibonacci wait, up to maxAttempts.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.startAll(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * time.Second
		s.logger.WithError(lastErr).Infof("Retrying startup in %s (attempt %d/%d)", wait, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startAll(ctx context.Context, attempt int) error {
	for _, name := range s.order {
		if err := s.startOne(ctx, name, nil); err != nil {
			s.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, attempt)
			return err
		}
	}
	return nil
}

func (s *Startup) startOne(ctx context.Context, name string, chain []string) error {
	if s.started[name] {
		return nil
	}
	dependency, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("unknown startup dependency %q", name)
	}
	for _, seen := range chain {
		if seen == name {
			return fmt.Errorf("startup dependency cycle through %q", name)
		}
	}

	for _, prerequisite := range dependency.DependsOn() {
		if err := s.startOne(ctx, prerequisite, append(chain, name)); err != nil {
			return err
		}
	}

	s.logger.WithField("dependency", name).Infof("Starting dependency '%s'", name)
	if err := dependency.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	s.started[name] = true
	s.startOrder = append(s.startOrder, name)
	return nil
}

// Stop halts started dependencies in reverse start order. Dependents stop
// before the things they depend on.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.startOrder) - 1; i >= 0; i-- {
		name := s.startOrder[i]
		if !s.started[name] {
			continue
		}

		s.logger.WithField("dependency", name).Infof("Stopping dependency '%s'", name)
		if err := s.byName[name].Stop(ctx); err != nil {
			s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.started[name] = false
	}
	return firstErr
}
