package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evalbot/evalbot/internal/models"
)

// Queries exposes the eval record/revision operations. Every operation is a
// single transaction executed on the Store worker, so no two of them ever run
// concurrently against the database.
type Queries struct {
	store *Store
}

func NewQueries(store *Store) *Queries {
	return &Queries{store: store}
}

const selectRevisionColumns = `
	rev.id,
	(SELECT COUNT(rev1.id) FROM eval_revisions rev1 WHERE rev1.record_id = rev.record_id) AS record_revision_count,
	rev.perma_link,
	rev.rendered_code,
	rev.warning_count,
	rev.error_count,
	rev.result_success,
	rev.result_code,
	rev.result_exit_detail,
	rev.result_stdout,
	rev.result_stderr,
	rev.playground_error`

// CreateRevisionUpsertRecord inserts a new revision holding renderedCode,
// upserts the record keyed by (chatID, userMsgID) to point at it, and
// back-patches the revision's record id. On conflict the existing record's
// revision pointer and page state are overwritten while its eval_msg_id is
// left untouched and returned, so the caller can edit the existing chat
// message instead of sending a new one.
func (q *Queries) CreateRevisionUpsertRecord(ctx context.Context, chatID, userMsgID, createdByUserID int64, renderedCode string, pageState models.PageState) (*models.CreateRevisionUpsertRecordResult, error) {
	return Submit(ctx, q.store, func(db *sql.DB) (*models.CreateRevisionUpsertRecordResult, error) {
		tx, err := db.Begin()
		if err != nil {
			return nil, fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		// The record upsert references the revision id, so the revision row
		// has to exist first; its record_id is patched once the record id is
		// known.
		ins, err := tx.Exec(
			`INSERT INTO eval_revisions (record_id, rendered_code) VALUES (0, ?)`,
			renderedCode,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting revision: %w", err)
		}
		rawRevisionID, err := ins.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading revision id: %w", err)
		}
		revisionID, err := models.NewID[models.Revision](rawRevisionID)
		if err != nil {
			return nil, fmt.Errorf("invalid revision id %d: %w", rawRevisionID, err)
		}

		var (
			recordID     int64
			evalMsgID    sql.NullInt64
			rawPageState int64
		)
		err = tx.QueryRow(
			`INSERT INTO eval_records (chat_id, user_msg_id, created_by_user_id, revision_id, page_state)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (user_msg_id, chat_id)
			     DO UPDATE SET revision_id = excluded.revision_id, page_state = excluded.page_state
			 RETURNING id, eval_msg_id, page_state`,
			chatID, userMsgID, createdByUserID, revisionID.Int64(), int64(pageState),
		).Scan(&recordID, &evalMsgID, &rawPageState)
		if err != nil {
			return nil, fmt.Errorf("upserting record: %w", err)
		}

		if _, err := tx.Exec(
			`UPDATE eval_revisions SET record_id = ? WHERE id = ?`,
			recordID, revisionID.Int64(),
		); err != nil {
			return nil, fmt.Errorf("patching revision record id: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing: %w", err)
		}
		res := &models.CreateRevisionUpsertRecordResult{
			RevisionID: revisionID,
			PageState:  models.DecodePageState(rawPageState),
		}
		if evalMsgID.Valid {
			res.EvalMsgID = &evalMsgID.Int64
		}
		return res, nil
	})
}

// UpdateEvalMsgIDForRevisionID points the revision's owning record at the
// chat message that now displays it. Trusted internal call, no matching.
func (q *Queries) UpdateEvalMsgIDForRevisionID(ctx context.Context, revisionID models.RevisionID, evalMsgID int64) error {
	_, err := Submit(ctx, q.store, func(db *sql.DB) (struct{}, error) {
		_, err := db.Exec(
			`UPDATE eval_records
			 SET eval_msg_id = ?
			 WHERE id = (SELECT record_id FROM eval_revisions WHERE id = ?)`,
			evalMsgID, revisionID.Int64(),
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("updating eval_msg_id: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// UpdateRevisionForRevisionCountAndIsLatest writes rev's result fields and
// then checks, in the same transaction, whether the owning record still
// points at this revision. If it does, rev.RecordRevisionCount is back-filled
// with the record's total revision count and true is returned. False means a
// newer evaluation has superseded this one and the result must be discarded.
func (q *Queries) UpdateRevisionForRevisionCountAndIsLatest(ctx context.Context, rev *models.Revision) (bool, error) {
	count, err := Submit(ctx, q.store, func(db *sql.DB) (sql.NullInt64, error) {
		tx, err := db.Begin()
		if err != nil {
			return sql.NullInt64{}, fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		var permaLink any
		if rev.PermaLink != nil {
			permaLink = *rev.PermaLink
		}
		if _, err := tx.Exec(
			`UPDATE eval_revisions
			 SET perma_link = ?, warning_count = ?, error_count = ?, result_success = ?,
			     result_code = ?, result_exit_detail = ?, result_stdout = ?, result_stderr = ?,
			     playground_error = ?
			 WHERE id = ?`,
			permaLink, rev.WarningCount, rev.ErrorCount, rev.ResultSuccess,
			rev.ResultCode, rev.ResultExitDetail, rev.ResultStdout, rev.ResultStderr,
			rev.PlaygroundError, rev.RevisionID.Int64(),
		); err != nil {
			return sql.NullInt64{}, fmt.Errorf("updating revision: %w", err)
		}

		// No rows iff the record's live pointer moved on: this is the
		// optimistic-concurrency check, read at commit time.
		var count sql.NullInt64
		err = tx.QueryRow(
			`SELECT COUNT(rev.id)
			 FROM eval_revisions rev
			 INNER JOIN eval_records r ON rev.record_id = r.id
			 WHERE r.id = (SELECT record_id FROM eval_revisions rev1 WHERE rev1.id = ?1)
			   AND r.revision_id = ?1
			 GROUP BY r.id
			 LIMIT 1`,
			rev.RevisionID.Int64(),
		).Scan(&count.Int64)
		if errors.Is(err, sql.ErrNoRows) {
			count.Valid = false
		} else if err != nil {
			return sql.NullInt64{}, fmt.Errorf("checking revision is latest: %w", err)
		} else {
			count.Valid = true
		}

		if err := tx.Commit(); err != nil {
			return sql.NullInt64{}, fmt.Errorf("committing: %w", err)
		}
		return count, nil
	})
	if err != nil {
		return false, err
	}
	if !count.Valid {
		return false, nil
	}
	rev.RecordRevisionCount = int(count.Int64)
	return true, nil
}

// DeleteRecordByRevisionIDIfMatch clears the record's displayed-message id,
// but only when the record currently belongs to revisionID, displays
// evalMsgID, and was created by createdByUserID. Returns whether the match
// succeeded; stale and unauthorized requests are indistinguishable.
func (q *Queries) DeleteRecordByRevisionIDIfMatch(ctx context.Context, evalMsgID, createdByUserID int64, revisionID models.RevisionID) (bool, error) {
	return Submit(ctx, q.store, func(db *sql.DB) (bool, error) {
		res, err := db.Exec(
			`UPDATE eval_records
			 SET eval_msg_id = NULL
			 WHERE id = (SELECT record_id FROM eval_revisions WHERE id = ?1)
			   AND revision_id = ?1
			   AND eval_msg_id = ?2
			   AND created_by_user_id = ?3`,
			revisionID.Int64(), evalMsgID, createdByUserID,
		)
		if err != nil {
			return false, fmt.Errorf("deleting record: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("reading affected rows: %w", err)
		}
		return affected > 0, nil
	})
}

// GetRevisionUpdatePageStateIfMatch atomically updates the record's page
// state when the (revisionID, evalMsgID, createdByUserID) triple matches the
// live record, then re-reads the full revision in the same transaction.
// Returns nil without error when the match failed.
func (q *Queries) GetRevisionUpdatePageStateIfMatch(ctx context.Context, evalMsgID, createdByUserID int64, revisionID models.RevisionID, pageState models.PageState) (*models.Revision, error) {
	return Submit(ctx, q.store, func(db *sql.DB) (*models.Revision, error) {
		tx, err := db.Begin()
		if err != nil {
			return nil, fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		res, err := tx.Exec(
			`UPDATE eval_records
			 SET page_state = ?1
			 WHERE id = (SELECT record_id FROM eval_revisions WHERE id = ?2)
			   AND revision_id = ?2
			   AND eval_msg_id = ?3
			   AND created_by_user_id = ?4`,
			int64(pageState), revisionID.Int64(), evalMsgID, createdByUserID,
		)
		if err != nil {
			return nil, fmt.Errorf("updating page state: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("reading affected rows: %w", err)
		}
		if affected == 0 {
			return nil, nil
		}

		rev, err := scanRevision(tx.QueryRow(
			`SELECT `+selectRevisionColumns+`
			 FROM eval_revisions rev
			 WHERE rev.id = ?
			 LIMIT 1`,
			revisionID.Int64(),
		))
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing: %w", err)
		}
		return rev, nil
	})
}

type revisionWithState struct {
	revision  *models.Revision
	pageState models.PageState
}

// GetRevisionByID is a read-only lookup, joined to the owning record's page
// state. Returns (nil, Output, nil) when the revision does not exist.
func (q *Queries) GetRevisionByID(ctx context.Context, revisionID models.RevisionID) (*models.Revision, models.PageState, error) {
	res, err := Submit(ctx, q.store, func(db *sql.DB) (revisionWithState, error) {
		var rawPageState int64
		rev := &models.Revision{}
		err := db.QueryRow(
			`SELECT `+selectRevisionColumns+`, r.page_state
			 FROM eval_revisions rev
			 INNER JOIN eval_records r ON rev.record_id = r.id
			 WHERE rev.id = ?
			 LIMIT 1`,
			revisionID.Int64(),
		).Scan(
			&rev.RevisionID, &rev.RecordRevisionCount, &rev.PermaLink, &rev.RenderedCode,
			&rev.WarningCount, &rev.ErrorCount, &rev.ResultSuccess, &rev.ResultCode,
			&rev.ResultExitDetail, &rev.ResultStdout, &rev.ResultStderr, &rev.PlaygroundError,
			&rawPageState,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return revisionWithState{}, nil
		}
		if err != nil {
			return revisionWithState{}, fmt.Errorf("getting revision: %w", err)
		}
		return revisionWithState{revision: rev, pageState: models.DecodePageState(rawPageState)}, nil
	})
	if err != nil {
		return nil, models.PageStateOutput, err
	}
	return res.revision, res.pageState, nil
}

// UpdatePermaLinkForRevisionID is an idempotent field update; calling it
// redundantly with the same link is safe.
func (q *Queries) UpdatePermaLinkForRevisionID(ctx context.Context, revisionID models.RevisionID, permaLink string) error {
	_, err := Submit(ctx, q.store, func(db *sql.DB) (struct{}, error) {
		_, err := db.Exec(
			`UPDATE eval_revisions SET perma_link = ? WHERE id = ?`,
			permaLink, revisionID.Int64(),
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("updating perma_link: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// GetRecord looks up the record for a (chatID, userMsgID) slot. Returns
// (nil, nil) when no record exists.
func (q *Queries) GetRecord(ctx context.Context, chatID, userMsgID int64) (*models.Record, error) {
	return Submit(ctx, q.store, func(db *sql.DB) (*models.Record, error) {
		r := &models.Record{}
		var (
			createdAt    string
			evalMsgID    sql.NullInt64
			rawPageState int64
		)
		err := db.QueryRow(
			`SELECT id, created_at, chat_id, user_msg_id, eval_msg_id, created_by_user_id, revision_id, page_state
			 FROM eval_records
			 WHERE chat_id = ? AND user_msg_id = ?`,
			chatID, userMsgID,
		).Scan(&r.ID, &createdAt, &r.ChatID, &r.UserMsgID, &evalMsgID, &r.CreatedByUserID, &r.RevisionID, &rawPageState)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("getting record: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		r.PageState = models.DecodePageState(rawPageState)
		if evalMsgID.Valid {
			r.EvalMsgID = &evalMsgID.Int64
		}
		return r, nil
	})
}

func scanRevision(row *sql.Row) (*models.Revision, error) {
	rev := &models.Revision{}
	err := row.Scan(
		&rev.RevisionID, &rev.RecordRevisionCount, &rev.PermaLink, &rev.RenderedCode,
		&rev.WarningCount, &rev.ErrorCount, &rev.ResultSuccess, &rev.ResultCode,
		&rev.ResultExitDetail, &rev.ResultStdout, &rev.ResultStderr, &rev.PlaygroundError,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning revision: %w", err)
	}
	return rev, nil
}
