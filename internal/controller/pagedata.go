package controller

import "github.com/evalbot/evalbot/internal/models"

// buildPageData projects a revision into what the rendering layer consumes.
// Title/content selection: an infrastructure error always wins; otherwise
// the requested page state picks stdout or stderr.
func buildPageData(rev *models.Revision, pageState models.PageState) *EvalPageData {
	data := &EvalPageData{
		PermaLink:       rev.PermaLink,
		HasWarning:      rev.WarningCount > 0,
		HasError:        !rev.ResultSuccess,
		HasFatalError:   rev.PlaygroundError != "",
		DiagnosticCount: rev.ErrorCount + rev.WarningCount,
		Revision:        rev.RecordRevisionCount,
		RevisionID:      rev.RevisionID.Int64(),
	}
	switch {
	case rev.PlaygroundError != "":
		data.Title = "Error"
		data.Content = rev.PlaygroundError
	case pageState == models.PageStateOutput:
		data.Title = "Output"
		data.Content = rev.ResultStdout
	default:
		data.Title = "Stderr"
		data.Content = rev.ResultStderr
	}
	return data
}
