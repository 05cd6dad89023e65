package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeDependency struct {
	name      string
	dependsOn []string
	startErrs int
	log       *[]string
}

func (d *fakeDependency) GetName() string     { return d.name }
func (d *fakeDependency) DependsOn() []string { return d.dependsOn }

func (d *fakeDependency) Start(_ context.Context) error {
	if d.startErrs > 0 {
		d.startErrs--
		return errors.New("not ready")
	}
	*d.log = append(*d.log, "start:"+d.name)
	return nil
}

func (d *fakeDependency) Stop(_ context.Context) error {
	*d.log = append(*d.log, "stop:"+d.name)
	return nil
}

func TestStartup_StartsInDependencyOrder(t *testing.T) {
	var log []string
	s := NewStartup(noopLogger(), 1)
	s.AddDependency(&fakeDependency{name: "worker", dependsOn: []string{"database", "redis"}, log: &log})
	s.AddDependency(&fakeDependency{name: "database", log: &log})
	s.AddDependency(&fakeDependency{name: "redis", log: &log})

	require.NoError(t, s.Start(context.Background()))

	index := make(map[string]int, len(log))
	for i, entry := range log {
		index[entry] = i
	}
	assert.Less(t, index["start:database"], index["start:worker"])
	assert.Less(t, index["start:redis"], index["start:worker"])
}

func TestStartup_StopsInReverseStartOrder(t *testing.T) {
	var log []string
	s := NewStartup(noopLogger(), 1)
	s.AddDependency(&fakeDependency{name: "worker", dependsOn: []string{"database"}, log: &log})
	s.AddDependency(&fakeDependency{name: "database", log: &log})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, []string{"start:database", "start:worker", "stop:worker", "stop:database"}, log)
}

func TestStartup_UnknownPrerequisite(t *testing.T) {
	var log []string
	s := NewStartup(noopLogger(), 1)
	s.AddDependency(&fakeDependency{name: "worker", dependsOn: []string{"database"}, log: &log})

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "unknown startup dependency")
}

func TestStartup_RetriesFailedAttempts(t *testing.T) {
	var log []string
	s := NewStartup(noopLogger(), 3)
	s.AddDependency(&fakeDependency{name: "database", startErrs: 1, log: &log})

	require.NoError(t, s.Start(context.Background()))
	assert.Contains(t, log, "start:database")
}

func TestStartup_ExhaustsAttempts(t *testing.T) {
	var log []string
	s := NewStartup(noopLogger(), 2)
	s.AddDependency(&fakeDependency{name: "database", startErrs: 10, log: &log})

	err := s.Start(context.Background())
	assert.Error(t, err)
}
