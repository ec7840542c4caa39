// Package engine implements the process-event transition rules. Apply is
// pure: it reads the definition and the current record, validates legality,
// and returns the set of changes to persist. It performs no I/O and keeps no
// state, so any number of callers may invoke it concurrently as long as each
// call runs under the store's per-record lock.
package engine

import (
	"time"

	"solicitudes/internal/workflow/catalog"
	"solicitudes/internal/workflow/models"
	dErrors "solicitudes/pkg/domain-errors"
)

// DeadlineChange expresses the engine's decision about the next-action
// deadline. A nil *DeadlineChange in Changes means the event is not
// deadline-relevant and the stored value is left untouched.
type DeadlineChange struct {
	// At is the new deadline. Nil clears the stored deadline.
	At *time.Time
}

// Closure carries the terminal side effect emitted when a transition reaches
// a closed status.
type Closure struct {
	Date   time.Time
	Reason string
}

// Changes is the engine's output: everything the persistence gateway must
// apply to the record, plus the audit entry fields that depend on the
// transition. Approval deltas are additive; the engine never unsets a flag.
type Changes struct {
	NextStatus     models.Status
	ApprovalDeltas map[models.Department]models.ApprovalDecision
	Deadline       *DeadlineChange
	Closure        *Closure
	VisitDelta     int
	// ClosureReasonOnly is set by the closure event, which supplements the
	// recorded reason on an already-terminal record without touching the
	// closure date.
	ClosureReasonOnly string
}

// Apply validates that the event is legal for the record and computes the
// resulting changes. Validation failures return a domain error with a
// distinct code per rule; no partial result is ever returned alongside an
// error.
//
// Validation order (fail fast): event exists, role allowed, previous state
// matches, result code resolves.
func Apply(def *catalog.EventDefinition, record *models.Solicitud, actorRole models.Role, resultCode string, fields models.Submission, now time.Time) (*Changes, error) {
	if def == nil {
		return nil, dErrors.New(dErrors.CodeUnknownEvent, "unknown process event")
	}
	if !def.RoleAllowed(actorRole) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "role %s may not trigger event %s", actorRole, def.Name)
	}
	if !def.AllowsPreviousState(record.Status) {
		return nil, dErrors.Newf(dErrors.CodeIllegalState,
			"event %s not allowed in status %q, expected one of %v", def.Name, record.Status, def.PreviousStates)
	}

	nextStatus := record.Status
	if def.HasResultTransitions() {
		target, ok := def.Transitions[resultCode]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeInvalidResult, "result %q is not valid for event %s", resultCode, def.Name)
		}
		nextStatus = target
	} else if def.NextStatus != "" {
		nextStatus = def.NextStatus
	}

	changes := &Changes{
		NextStatus:     nextStatus,
		ApprovalDeltas: approvalDeltas(def, actorRole, fields),
		Deadline:       deadlineChange(def, nextStatus, now),
	}

	if def.IncrementsVisitCount {
		changes.VisitDelta = 1
	}

	if def.Name == catalog.EventClosure {
		// The record is already terminal; only supplement the reason.
		changes.ClosureReasonOnly = closureReason(fields)
		return changes, nil
	}

	if nextStatus.IsTerminal() && !record.Status.IsTerminal() {
		changes.Closure = &Closure{Date: now, Reason: closureReason(fields)}
	}

	return changes, nil
}

// approvalDeltas computes the flag updates an event declares. Only the IyV
// document verification (own flag from the submitted decision) and the area
// radication (involved departments marked applies) touch flags. Area
// verification outcomes drive the status, not the applicability flags.
func approvalDeltas(def *catalog.EventDefinition, actorRole models.Role, fields models.Submission) map[models.Department]models.ApprovalDecision {
	if !def.RequiresApproval {
		return nil
	}

	deltas := make(map[models.Department]models.ApprovalDecision)
	switch def.Name {
	case catalog.EventVerificationIyV:
		if actorRole == models.RoleIyV && fields.IyVApproval != nil {
			deltas[models.DepartmentIyV] = *fields.IyVApproval
		}
	case catalog.EventAreaRadication:
		for _, dept := range fields.InvolvedDepartments {
			deltas[dept] = models.ApprovalApplies
		}
	}
	if len(deltas) == 0 {
		return nil
	}
	return deltas
}

// deadlineChange implements the deadline policy: a deadline-relevant event
// (non-zero offset) sets the deadline when the transition lands in a
// remediation status and clears it otherwise; other events leave the stored
// deadline untouched.
func deadlineChange(def *catalog.EventDefinition, nextStatus models.Status, now time.Time) *DeadlineChange {
	if def.DeadlineOffsetDays == 0 {
		return nil
	}
	if nextStatus.IsRemediation() {
		at := now.AddDate(0, 0, def.DeadlineOffsetDays)
		return &DeadlineChange{At: &at}
	}
	return &DeadlineChange{}
}

func closureReason(fields models.Submission) string {
	if fields.ClosureReason != "" {
		return fields.ClosureReason
	}
	return fields.Comment
}

// ApplyChanges folds the engine output into the record. The store calls this
// inside its transaction after Apply succeeds; keeping it here keeps the
// record-mutation rules next to the rules that produce them.
func ApplyChanges(record *models.Solicitud, changes *Changes) {
	record.Status = changes.NextStatus

	if len(changes.ApprovalDeltas) > 0 && record.Approvals == nil {
		record.Approvals = make(map[models.Department]models.ApprovalDecision)
	}
	for dept, decision := range changes.ApprovalDeltas {
		record.Approvals[dept] = decision
	}

	if changes.Deadline != nil {
		record.NextActionDeadline = changes.Deadline.At
	}

	record.VisitCount += changes.VisitDelta

	if changes.Closure != nil {
		date := changes.Closure.Date
		record.ClosureDate = &date
		record.ClosureReason = changes.Closure.Reason
	}
	if changes.ClosureReasonOnly != "" {
		record.ClosureReason = changes.ClosureReasonOnly
	}
}

// ValidateSubmission checks the required fields the definition declares.
// Boundary validation lives here rather than in the handler so the rule and
// the catalog stay together.
func ValidateSubmission(def *catalog.EventDefinition, resultCode string, fields models.Submission) error {
	for _, field := range def.RequiredFields {
		if field == models.FieldResultCode {
			if resultCode == "" {
				return dErrors.Newf(dErrors.CodeValidation, "event %s requires a result code", def.Name)
			}
			continue
		}
		if !fields.Has(field) {
			return dErrors.Newf(dErrors.CodeValidation, "event %s requires field %s", def.Name, field)
		}
	}
	return nil
}
