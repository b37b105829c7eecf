package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evalbot/evalbot/internal/models"
)

func TestCountDiagnostics(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		errors   int
		warnings int
	}{
		{name: "empty", stderr: "", errors: 0, warnings: 0},
		{
			name:     "two errors one warning",
			stderr:   "error: a\nerror: b\nwarning: c\n",
			errors:   1, // compensation for the trailing summary line
			warnings: 1,
		},
		{
			name:   "single error is not compensated",
			stderr: "error: a\n",
			errors: 1,
		},
		{
			name:     "prefix must start the line",
			stderr:   "  error: indented\nnote: error: mid-line\nwarning: real\n",
			errors:   0,
			warnings: 1,
		},
		{
			name:   "compiler output with summary",
			stderr: "   Compiling playground v0.0.1 (/playground)\nerror[E0277]: cannot add\nerror: could not compile `playground`\n",
			errors: 1, // error[E0277] does not match the literal prefix
		},
		{
			name:     "warnings are never compensated",
			stderr:   "warning: a\nwarning: b\nwarning: c\n",
			warnings: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errorCount, warningCount := countDiagnostics(tt.stderr)
			assert.Equal(t, tt.errors, errorCount)
			assert.Equal(t, tt.warnings, warningCount)
		})
	}
}

func TestBuildPageData(t *testing.T) {
	rev := &models.Revision{
		RecordRevisionCount: 3,
		WarningCount:        1,
		ErrorCount:          0,
		ResultSuccess:       true,
		ResultStdout:        "out",
		ResultStderr:        "err",
	}
	var err error
	rev.RevisionID, err = models.NewID[models.Revision](5)
	assert.NoError(t, err)

	data := buildPageData(rev, models.PageStateOutput)
	assert.Equal(t, "Output", data.Title)
	assert.Equal(t, "out", data.Content)
	assert.True(t, data.HasWarning)
	assert.False(t, data.HasError)
	assert.False(t, data.HasFatalError)
	assert.Equal(t, 1, data.DiagnosticCount)
	assert.Equal(t, 3, data.Revision)
	assert.Equal(t, int64(5), data.RevisionID)

	data = buildPageData(rev, models.PageStateStderr)
	assert.Equal(t, "Stderr", data.Title)
	assert.Equal(t, "err", data.Content)
}

func TestBuildPageDataInfraErrorWins(t *testing.T) {
	rev := &models.Revision{
		ResultStdout:    "out",
		ResultStderr:    "err",
		PlaygroundError: "playground timeout",
	}
	rev.RevisionID, _ = models.NewID[models.Revision](1)

	// The infrastructure error takes precedence over any page state.
	for _, state := range []models.PageState{models.PageStateOutput, models.PageStateStderr} {
		data := buildPageData(rev, state)
		assert.Equal(t, "Error", data.Title)
		assert.Equal(t, "playground timeout", data.Content)
		assert.True(t, data.HasFatalError)
	}
}
