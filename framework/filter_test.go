package framework

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexFilters(t *testing.T) {
	var f RegexFilters
	require.NoError(t, f.MustMatch.Set("^install/"))
	require.NoError(t, f.MustNotMatch.Set("frozen"))
	filter := f.ForSuite("pm")

	assert.True(t, filter(TestID{Path: []string{"install", "basic"}}))
	assert.False(t, filter(TestID{Path: []string{"install", "frozen lockfile"}}))
	assert.False(t, filter(TestID{Path: []string{"publish", "basic"}}))
	assert.Equal(t, []string{"^install/"}, f.MustMatch.Patterns())
}

func TestRegexFiltersSelectSuite(t *testing.T) {
	var f RegexFilters
	require.NoError(t, f.MustMatch.Set("^express/"))
	id := TestID{Path: []string{"routing", "params"}}

	assert.True(t, f.ForSuite("express")(id))
	assert.False(t, f.ForSuite("pm")(id))

	var skip RegexFilters
	require.NoError(t, skip.MustNotMatch.Set("^pm/"))
	assert.False(t, skip.ForSuite("pm")(TestID{Path: []string{"install", "basic"}}))
	assert.True(t, skip.ForSuite("express")(id))
}

func TestRegexListRejectsInvalidPattern(t *testing.T) {
	var r RegexList
	assert.Error(t, r.Set("("))
	assert.Empty(t, r)
}

func TestEmptyFiltersMatchEverything(t *testing.T) {
	var f RegexFilters
	assert.False(t, f.IsDefined())
	assert.True(t, f.ForSuite("pm")(TestID{Path: []string{"anything"}}))
}

func TestDescribeFilters(t *testing.T) {
	var buf bytes.Buffer
	DescribeFilters(&buf, RegexFilters{})
	assert.Empty(t, buf.String())

	var f RegexFilters
	require.NoError(t, f.MustMatch.Set("^pm/"))
	require.NoError(t, f.MustMatch.Set("sendFile"))
	DescribeFilters(&buf, f)
	assert.Contains(t, buf.String(), `skip any not matching "^pm/" or "sendFile"`)
	assert.NotContains(t, buf.String(), "skip any matching")
}

func TestDescribeMissingCapabilitiesWithoutService(t *testing.T) {
	withHarness(t, func(h *TestHarness) {
		var buf bytes.Buffer
		DescribeMissingCapabilities(&buf, h, []string{"promise-errors"})
		assert.Empty(t, buf.String())
	})
}
