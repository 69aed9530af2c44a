package domain

import "github.com/google/uuid"

type VerdictKind string

const (
	VerdictAdmit              VerdictKind = "admit"
	VerdictReject             VerdictKind = "reject"
	VerdictAdmitAsSuperseding VerdictKind = "admit_as_superseding"
	VerdictAlreadyKnown       VerdictKind = "already_known"
)

type RejectReason string

const (
	ReasonContradictsConstant  RejectReason = "contradicts_constant"
	ReasonCyclicClassification RejectReason = "cyclic_classification"
)

// Verdict is the outcome of checking a candidate triple against the store.
type Verdict struct {
	Kind   VerdictKind  `json:"kind"`
	Reason RejectReason `json:"reason,omitempty"`
	// Conflicting lists the triples that caused a rejection.
	Conflicting []uuid.UUID `json:"conflicting,omitempty"`
	// Supersedes is the learned belief displaced by an AdmitAsSuperseding verdict.
	Supersedes *uuid.UUID `json:"supersedes,omitempty"`
	// Existing is the stored triple an AlreadyKnown candidate matched.
	Existing *uuid.UUID `json:"existing,omitempty"`
}

func Admit() Verdict {
	return Verdict{Kind: VerdictAdmit}
}

func Reject(reason RejectReason, conflicting ...uuid.UUID) Verdict {
	return Verdict{Kind: VerdictReject, Reason: reason, Conflicting: conflicting}
}

func AdmitAsSuperseding(old uuid.UUID) Verdict {
	return Verdict{Kind: VerdictAdmitAsSuperseding, Supersedes: &old}
}

func AlreadyKnown(existing uuid.UUID) Verdict {
	return Verdict{Kind: VerdictAlreadyKnown, Existing: &existing}
}
