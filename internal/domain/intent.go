// Package domain defines the core types, events, error taxonomy, and
// external-collaborator interfaces shared by every component of the
// resolution core.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// IntentStatus is the lifecycle state of an intent. Transitions only move
// forward: submitted -> resolved or submitted -> failed.
type IntentStatus string

const (
	IntentSubmitted IntentStatus = "submitted"
	IntentResolved  IntentStatus = "resolved"
	IntentFailed    IntentStatus = "failed"
)

// Intent is an opaque, uniquely-identified execution request. Intents are
// append-only: they are created at submission, mutated exactly once by the
// call that finalizes them, and never deleted.
type Intent struct {
	ID          common.Hash
	Submitter   common.Address
	Payload     []byte
	Resolver    *common.Address
	Status      IntentStatus
	SubmittedAt time.Time
}

// ExecData carries the caller-supplied parameters for a single resolution
// attempt. A nil or zero LoanAmount means the resolution runs unfunded.
type ExecData struct {
	Proof        []byte
	CallbackData []byte
	LoanToken    common.Address
	LoanAmount   *uint256.Int
}

// WantsLoan reports whether the resolution should draw a flashloan.
func (d ExecData) WantsLoan() bool {
	return d.LoanAmount != nil && !d.LoanAmount.IsZero()
}
