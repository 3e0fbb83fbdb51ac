package reconcile

import "fmt"

// ErrorKind classifies domain errors raised while reconciling.
type ErrorKind int

const (
	// KindUnknownAccount means the target account does not exist.
	KindUnknownAccount ErrorKind = iota + 1
	// KindInvalidRecord means a record cannot be matched or written.
	KindInvalidRecord
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnknownAccount:
		return "unknown account"
	case KindInvalidRecord:
		return "invalid record"
	}
	return "reconcile error"
}

// Error is a reconciliation domain error. Callers collect these per batch
// instead of aborting other partitions.
type Error struct {
	Kind      ErrorKind
	AccountID int
	Index     int // record index in the batch, -1 for batch-level errors
	Msg       string
}

func (e *Error) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s (account %d): %s", e.Kind, e.AccountID, e.Msg)
	}
	return fmt.Sprintf("%s (account %d, record %d): %s", e.Kind, e.AccountID, e.Index+1, e.Msg)
}
