package app

import (
	"errors"
	"fmt"
)

// Lookup failures. Each names the entity so handlers can surface which id
// was missing.
var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrNodeNotFound     = errors.New("structure node not found")
	ErrTemplateNotFound = errors.New("audit template not found")
	ErrSessionNotFound  = errors.New("audit session not found")
	ErrPointNotFound    = errors.New("audit point not found")
	ErrItemNotFound     = errors.New("audit item not found")
)

// ErrSessionSubmitted rejects writes against a session that already reached
// its terminal state. Sessions never reopen.
var ErrSessionSubmitted = errors.New("session already submitted")

// EvidenceError reports the first FAIL item found without a photo during
// submission. The item id lets the client send the auditor straight to the
// offending entry.
type EvidenceError struct {
	ItemID string
}

func (e *EvidenceError) Error() string {
	return fmt.Sprintf("fail item %s has no media attached", e.ItemID)
}
