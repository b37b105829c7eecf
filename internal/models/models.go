package models

import "time"

// RecordID identifies an eval record, the durable (chat, user message) slot.
type RecordID = ID[Record]

// RevisionID identifies one execution attempt of a record.
type RevisionID = ID[Revision]

// PageState selects which captured stream a record currently renders.
type PageState int

const (
	PageStateOutput PageState = iota
	PageStateStderr
	PageStateMiri // reserved
)

// DecodePageState maps a stored integer back to a PageState. Unknown values
// fall back to Output.
func DecodePageState(v int64) PageState {
	switch v {
	case 1:
		return PageStateStderr
	case 2:
		return PageStateMiri
	default:
		return PageStateOutput
	}
}

func (s PageState) String() string {
	switch s {
	case PageStateStderr:
		return "stderr"
	case PageStateMiri:
		return "miri"
	default:
		return "output"
	}
}

// Record tracks which revision and page state is currently displayed for one
// (chat_id, user_msg_id) pair. EvalMsgID is nil until the result message has
// been sent, and again after a delete.
type Record struct {
	ID              RecordID
	CreatedAt       time.Time
	ChatID          int64
	UserMsgID       int64
	EvalMsgID       *int64
	CreatedByUserID int64
	RevisionID      RevisionID
	PageState       PageState
}

// Revision is one execution attempt. Result fields stay zero until the
// playground call completes; PlaygroundError is set instead when the call
// itself failed. Superseded revisions are kept for history.
type Revision struct {
	RevisionID          RevisionID
	RecordRevisionCount int // total revisions ever created for the owning record, computed on read
	PermaLink           *string
	RenderedCode        string
	WarningCount        int
	ErrorCount          int
	ResultSuccess       bool
	ResultCode          string
	ResultExitDetail    string
	ResultStdout        string
	ResultStderr        string
	PlaygroundError     string
}

// CreateRevisionUpsertRecordResult is the read-your-write return of the
// create/upsert operation. EvalMsgID is the record's previous displayed
// message id, which the caller uses to decide edit-vs-send.
type CreateRevisionUpsertRecordResult struct {
	RevisionID RevisionID
	EvalMsgID  *int64
	PageState  PageState
}
