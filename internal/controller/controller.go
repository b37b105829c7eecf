// Package controller orchestrates the evaluation lifecycle: create a
// revision, wait for the playground result, switch the rendered page,
// delete, and generate permalinks. It owns no durable state itself; the
// repository does.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evalbot/evalbot/internal/models"
	"github.com/evalbot/evalbot/internal/playground"
)

// ErrSenderMismatch reports that the requesting user, message, or revision
// did not match the live record. It is a normal outcome, not a failure, and
// deliberately does not say which part mismatched.
var ErrSenderMismatch = errors.New("sender mismatch")

// ErrNotFound reports that the referenced revision does not exist.
var ErrNotFound = errors.New("revision not found")

// Repository is the set of atomic storage operations the controller needs.
type Repository interface {
	CreateRevisionUpsertRecord(ctx context.Context, chatID, userMsgID, createdByUserID int64, renderedCode string, pageState models.PageState) (*models.CreateRevisionUpsertRecordResult, error)
	UpdateEvalMsgIDForRevisionID(ctx context.Context, revisionID models.RevisionID, evalMsgID int64) error
	UpdateRevisionForRevisionCountAndIsLatest(ctx context.Context, rev *models.Revision) (bool, error)
	DeleteRecordByRevisionIDIfMatch(ctx context.Context, evalMsgID, createdByUserID int64, revisionID models.RevisionID) (bool, error)
	GetRevisionUpdatePageStateIfMatch(ctx context.Context, evalMsgID, createdByUserID int64, revisionID models.RevisionID, pageState models.PageState) (*models.Revision, error)
	GetRevisionByID(ctx context.Context, revisionID models.RevisionID) (*models.Revision, models.PageState, error)
	UpdatePermaLinkForRevisionID(ctx context.Context, revisionID models.RevisionID, permaLink string) error
}

// PlaygroundService runs code remotely and generates permalinks.
type PlaygroundService interface {
	RunCode(ctx context.Context, code, channel, mode, edition string) (*playground.ExecuteResult, error)
	GenerateLink(ctx context.Context, code, channel, mode, edition string) (string, error)
}

const (
	evalChannel = "stable"
	evalMode    = "debug"
	evalEdition = "2021"
)

// EvalPageState is the page a callback can request.
type EvalPageState int

const (
	EvalPageOutput EvalPageState = iota
	EvalPageBuild
)

// EvalPageData is what the rendering layer consumes.
type EvalPageData struct {
	PermaLink       *string
	HasWarning      bool
	HasError        bool
	HasFatalError   bool
	DiagnosticCount int
	Revision        int
	RevisionID      int64
	Title           string
	Content         string
}

type Controller struct {
	repo       Repository
	playground PlaygroundService
}

func New(repo Repository, playground PlaygroundService) *Controller {
	return &Controller{repo: repo, playground: playground}
}

// NewEval wraps code into a runnable program and reserves a new revision for
// the (chatID, userMsgID) slot. The returned handle carries the previous
// displayed-message id, if any, and is consumed by WaitForEvalResult.
func (c *Controller) NewEval(ctx context.Context, chatID, userMsgID, createdByUserID int64, code string) (*EvalProcessing, error) {
	renderedCode := fmt.Sprintf(
		"fn main() { let res = {\n%s\n}; println!(\"{res:?}\"); }",
		code,
	)
	res, err := c.repo.CreateRevisionUpsertRecord(
		ctx, chatID, userMsgID, createdByUserID, renderedCode, models.PageStateOutput,
	)
	if err != nil {
		slog.Error("failed to create record", "chat_id", chatID, "user_msg_id", userMsgID, "error", err)
		return nil, errors.New("failed to create record")
	}
	return &EvalProcessing{
		EvalMsgID:    res.EvalMsgID,
		renderedCode: renderedCode,
		controller:   c,
		upsertResult: res,
	}, nil
}

// SwitchEvalState changes which page the record renders, gated on the exact
// (revision, message, user) match. Returns ErrSenderMismatch when the match
// failed.
func (c *Controller) SwitchEvalState(ctx context.Context, evalMsgID, requestUserID, revisionID int64, requestPage EvalPageState) (*EvalPageData, error) {
	revID, err := models.NewID[models.Revision](revisionID)
	if err != nil {
		return nil, ErrSenderMismatch
	}
	pageState := models.PageStateOutput
	if requestPage == EvalPageBuild {
		pageState = models.PageStateStderr
	}
	rev, err := c.repo.GetRevisionUpdatePageStateIfMatch(ctx, evalMsgID, requestUserID, revID, pageState)
	if err != nil {
		slog.Error("failed to switch eval state", "revision_id", revisionID, "error", err)
		return nil, errors.New("error lookup eval record")
	}
	if rev == nil {
		return nil, ErrSenderMismatch
	}
	return buildPageData(rev, pageState), nil
}

// RequestDeleteEval clears the record's displayed-message id when the exact
// (revision, message, user) triple matches. On approval it returns a revert
// func: the caller invokes it if deleting the chat message itself fails
// afterward, restoring the association.
func (c *Controller) RequestDeleteEval(ctx context.Context, evalMsgID, requestUserID, revisionID int64) (func(context.Context), error) {
	revID, err := models.NewID[models.Revision](revisionID)
	if err != nil {
		return nil, ErrSenderMismatch
	}
	ok, err := c.repo.DeleteRecordByRevisionIDIfMatch(ctx, evalMsgID, requestUserID, revID)
	if err != nil {
		slog.Error("failed to delete record", "revision_id", revisionID, "error", err)
		return nil, errors.New("error deleting eval record")
	}
	if !ok {
		return nil, ErrSenderMismatch
	}
	revert := func(ctx context.Context) {
		if err := c.repo.UpdateEvalMsgIDForRevisionID(ctx, revID, evalMsgID); err != nil {
			slog.Error("failed to revert delete", "revision_id", revisionID, "error", err)
		}
	}
	return revert, nil
}

// GetEvalLink returns the page data for a revision with its permalink,
// generating and best-effort persisting the link if the revision does not
// have one yet.
func (c *Controller) GetEvalLink(ctx context.Context, revisionID int64) (*EvalPageData, error) {
	revID, err := models.NewID[models.Revision](revisionID)
	if err != nil {
		return nil, ErrNotFound
	}
	rev, pageState, err := c.repo.GetRevisionByID(ctx, revID)
	if err != nil {
		slog.Error("failed to get revision", "revision_id", revisionID, "error", err)
		return nil, errors.New("error getting revision")
	}
	if rev == nil {
		return nil, ErrNotFound
	}
	if rev.PermaLink != nil {
		return buildPageData(rev, pageState), nil
	}

	link, err := c.playground.GenerateLink(ctx, rev.RenderedCode, evalChannel, evalMode, evalEdition)
	if err != nil {
		slog.Error("failed to generate link", "revision_id", revisionID, "error", err)
		return nil, errors.New("error generating link")
	}
	// The link is still returned even when persisting it fails; the next
	// request will just generate it again.
	if err := c.repo.UpdatePermaLinkForRevisionID(ctx, rev.RevisionID, link); err != nil {
		slog.Error("failed to update perma_link", "revision_id", revisionID, "error", err)
	}
	rev.PermaLink = &link
	return buildPageData(rev, pageState), nil
}
