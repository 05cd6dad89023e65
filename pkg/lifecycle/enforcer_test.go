package lifecycle

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestCheckEntity_DeprecatedWithoutSunsetDate(t *testing.T) {
	e := NewEnforcer(noopLogger())

	entity := &models.APIResource{}
	entity.OrdID = "acme.shop:apiResource:Orders:v1"
	entity.ReleaseStatus = string(models.ReleaseStatusDeprecated)

	issues := e.CheckEntity(entity)
	require.Len(t, issues, 2)
	for _, issue := range issues {
		assert.Equal(t, models.IssueLifecycle, issue.Kind)
		assert.Equal(t, models.SeverityWarning, issue.Severity)
	}
}

func TestCheckEntity_DeprecatedComplete(t *testing.T) {
	e := NewEnforcer(noopLogger())
	now := time.Now()

	entity := &models.APIResource{}
	entity.OrdID = "acme.shop:apiResource:Orders:v1"
	entity.ReleaseStatus = string(models.ReleaseStatusDeprecated)
	entity.DeprecationDate = &now
	entity.SunsetDate = &now
	entity.Successors = []string{"acme.shop:apiResource:Orders:v2"}

	assert.Empty(t, e.CheckEntity(entity))
}

func TestCheckEntity_ActiveNeedsNothing(t *testing.T) {
	e := NewEnforcer(noopLogger())

	entity := &models.Package{}
	entity.ReleaseStatus = string(models.ReleaseStatusActive)

	assert.Empty(t, e.CheckEntity(entity))
}

func TestCheckVersionTransition(t *testing.T) {
	e := NewEnforcer(noopLogger())
	ordID := "acme.shop:apiResource:Orders:v1"

	tests := []struct {
		name      string
		previous  string
		observed  string
		wantIssue bool
	}{
		{name: "increase", previous: "1.2.0", observed: "1.3.0"},
		{name: "equal", previous: "1.2.0", observed: "1.2.0"},
		{name: "decrease", previous: "1.3.0", observed: "1.2.9", wantIssue: true},
		{name: "patch decrease", previous: "1.2.1", observed: "1.2.0", wantIssue: true},
		{name: "no previous", previous: "", observed: "1.0.0"},
		{name: "unparseable", previous: "not-semver", observed: "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := e.CheckVersionTransition(ordID, tt.previous, tt.observed)
			if tt.wantIssue {
				require.Len(t, issues, 1)
				assert.Equal(t, models.SeverityWarning, issues[0].Severity)
			} else {
				assert.Empty(t, issues)
			}
		})
	}
}
