package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunUnknownCommandPrintsUsage(t *testing.T) {
	t.Setenv("ODYSSEY_TEST_MODE", "0")
	var stdout, stderr bytes.Buffer
	code := run([]string{"bogus"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "usage: odyssey")
}

func TestRunJobsReturnsCommandExitCode(t *testing.T) {
	t.Setenv("ODYSSEY_TEST_MODE", "0")
	var stdout, stderr bytes.Buffer
	code := run([]string{"jobs"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "usage: odyssey jobs")
}

func TestRunSkipsStartupInTestMode(t *testing.T) {
	t.Setenv("ODYSSEY_TEST_MODE", "1")
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run(nil, &stdout, &stderr))
	assert.Empty(t, stderr.String())
}
