package controller

import (
	"context"
	"log/slog"
	"strings"

	"github.com/evalbot/evalbot/internal/models"
	"github.com/evalbot/evalbot/internal/playground"
)

// EvalOutcome classifies what WaitForEvalResult produced.
type EvalOutcome int

const (
	// EvalOK carries page data for the committed result.
	EvalOK EvalOutcome = iota
	// EvalOutdated means a newer revision superseded this run; the result
	// was discarded and nothing should be rendered.
	EvalOutdated
	// EvalCancelled means the shutdown signal won the race; storage was not
	// touched.
	EvalCancelled
	// EvalErr carries an opaque message for the user.
	EvalErr
)

// EvalResult is the terminal state of one evaluation request.
type EvalResult struct {
	Outcome EvalOutcome
	Page    *EvalPageData
	ErrMsg  string
}

// EvalProcessing is the handle for one in-flight evaluation. EvalMsgID is
// the record's previous displayed-message id; nil means no message exists
// yet.
type EvalProcessing struct {
	EvalMsgID *int64

	renderedCode string
	controller   *Controller
	upsertResult *models.CreateRevisionUpsertRecordResult
}

// RevisionID returns the revision this handle is processing.
func (p *EvalProcessing) RevisionID() models.RevisionID {
	return p.upsertResult.RevisionID
}

// UpdateEvalMsgID records the chat message that now displays this
// evaluation. Failures are logged and swallowed; the message is already out.
func (p *EvalProcessing) UpdateEvalMsgID(ctx context.Context, evalMsgID int64) {
	err := p.controller.repo.UpdateEvalMsgIDForRevisionID(ctx, p.upsertResult.RevisionID, evalMsgID)
	if err != nil {
		slog.Error("failed to update eval_msg_id", "revision_id", p.upsertResult.RevisionID, "error", err)
	}
}

type runCodeResult struct {
	res *playground.ExecuteResult
	err error
}

// WaitForEvalResult consumes the handle: it races the playground call
// against ctx's cancellation, classifies the diagnostics, and commits the
// result if and only if this revision is still the record's current one.
// When cancellation wins, the playground call is abandoned and the revision
// row stays pending forever; it is simply never rendered.
func (p *EvalProcessing) WaitForEvalResult(ctx context.Context) EvalResult {
	ch := make(chan runCodeResult, 1)
	runCtx := context.WithoutCancel(ctx)
	go func() {
		res, err := p.controller.playground.RunCode(
			runCtx, p.renderedCode, evalChannel, evalMode, evalEdition,
		)
		ch <- runCodeResult{res: res, err: err}
	}()

	var run runCodeResult
	select {
	case <-ctx.Done():
		return EvalResult{Outcome: EvalCancelled}
	case run = <-ch:
	}

	var rev models.Revision
	if run.err != nil {
		rev = models.Revision{
			RevisionID:      p.upsertResult.RevisionID,
			RenderedCode:    p.renderedCode,
			PlaygroundError: run.err.Error(),
		}
	} else {
		errorCount, warningCount := countDiagnostics(run.res.ResultStderr)
		rev = models.Revision{
			RevisionID:       p.upsertResult.RevisionID,
			RenderedCode:     p.renderedCode,
			WarningCount:     warningCount,
			ErrorCount:       errorCount,
			ResultSuccess:    run.res.ResultSuccess,
			ResultCode:       run.res.ResultCode,
			ResultExitDetail: run.res.ResultExitDetail,
			ResultStdout:     run.res.ResultStdout,
			ResultStderr:     run.res.ResultStderr,
		}
	}

	initPageState := p.upsertResult.PageState
	if rev.ResultStdout == "" {
		initPageState = models.PageStateStderr
	}

	isLatest, err := p.controller.repo.UpdateRevisionForRevisionCountAndIsLatest(ctx, &rev)
	if err != nil {
		slog.Error("failed to commit revision result", "revision_id", rev.RevisionID, "error", err)
		return EvalResult{Outcome: EvalErr, ErrMsg: "failed to update revision"}
	}
	if !isLatest {
		return EvalResult{Outcome: EvalOutdated}
	}
	return EvalResult{Outcome: EvalOK, Page: buildPageData(&rev, initPageState)}
}

// countDiagnostics counts stderr lines starting with "error:" and
// "warning:". When more than one error line appears, one is assumed to be
// the compiler's trailing "N errors emitted" summary and is not counted.
// Best-effort, tied to rustc's diagnostic format.
func countDiagnostics(stderr string) (errorCount, warningCount int) {
	for line := range strings.Lines(stderr) {
		if strings.HasPrefix(line, "error:") {
			errorCount++
		} else if strings.HasPrefix(line, "warning:") {
			warningCount++
		}
	}
	if errorCount > 1 {
		errorCount--
	}
	return errorCount, warningCount
}
