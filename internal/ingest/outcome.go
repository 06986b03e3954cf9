package ingest

import "github.com/google/uuid"

// OutcomeKind enumerates the terminal states of a scan.
type OutcomeKind string

const (
	// OutcomeSaved means the receipt was processed and persisted inline.
	OutcomeSaved OutcomeKind = "saved"

	// OutcomeAccepted means the work was queued for deferred processing.
	OutcomeAccepted OutcomeKind = "accepted"

	// OutcomeConflict means this owner already ingested this document.
	OutcomeConflict OutcomeKind = "conflict"

	// OutcomeFailed means the scan terminated with an error.
	OutcomeFailed OutcomeKind = "failed"
)

// FailureKind classifies failed outcomes for transport mapping.
type FailureKind string

const (
	FailureInvalidQR   FailureKind = "invalid_qr"
	FailureMalformed   FailureKind = "malformed"
	FailureSecurity    FailureKind = "security"
	FailureRateLimited FailureKind = "rate_limited"
	FailureProvider    FailureKind = "provider"
	FailureInternal    FailureKind = "internal"
)

// Outcome is the result of one scan. Exactly one of the ID fields is
// meaningful, selected by Kind.
type Outcome struct {
	Kind OutcomeKind

	// ReceiptID is set for Saved and Conflict outcomes. For Conflict it is
	// the previously saved receipt.
	ReceiptID uuid.UUID

	// TaskID is set for Accepted outcomes.
	TaskID uuid.UUID

	// Failure and Message are set for Failed outcomes.
	Failure FailureKind
	Message string
}

func saved(id uuid.UUID) Outcome {
	return Outcome{Kind: OutcomeSaved, ReceiptID: id}
}

func accepted(taskID uuid.UUID) Outcome {
	return Outcome{Kind: OutcomeAccepted, TaskID: taskID}
}

func conflict(existingID uuid.UUID) Outcome {
	return Outcome{Kind: OutcomeConflict, ReceiptID: existingID}
}

func failed(kind FailureKind, message string) Outcome {
	return Outcome{Kind: OutcomeFailed, Failure: kind, Message: message}
}
