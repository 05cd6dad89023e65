package crawler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLastModified(t *testing.T) {
	assert.Nil(t, parseLastModified(""))
	assert.Nil(t, parseLastModified("yesterday"))

	want := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	got := parseLastModified(want.Format(http.TimeFormat))
	require.NotNil(t, got)
	assert.True(t, got.Equal(want))

	// RFC 850 dates are accepted too.
	got = parseLastModified("Saturday, 01-Aug-26 12:30:00 GMT")
	require.NotNil(t, got)
	assert.True(t, got.Equal(want))
}

func TestCrawler_StartupDependency(t *testing.T) {
	c := &Crawler{}
	assert.Equal(t, "crawler", c.GetName())
	assert.Equal(t, []string{"database", "redis"}, c.DependsOn())
}
