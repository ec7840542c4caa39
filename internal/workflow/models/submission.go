package models

// FieldName identifies one submitted form field. The catalog declares which
// fields each event requires; the boundary validates a Submission against
// that list before anything reaches the engine.
type FieldName string

const (
	FieldResultCode          FieldName = "result_code"
	FieldComment             FieldName = "comment"
	FieldAttachments         FieldName = "attachments"
	FieldInvolvedDepartments FieldName = "involved_departments"
	FieldIyVApproval         FieldName = "iyv_approval"
	FieldVisitDate           FieldName = "visit_date"
	FieldVisitTime           FieldName = "visit_time"
	FieldClosureReason       FieldName = "closure_reason"
)

// Submission carries the event-specific fields of one process-event call.
// Only the fields the event's definition names are consulted; everything else
// is ignored by the engine.
type Submission struct {
	Comment             string
	Attachments         []string
	InvolvedDepartments []Department
	// IyVApproval is the applies/does-not-apply decision submitted with the
	// IyV document verification. Nil means the flag is left untouched.
	IyVApproval *ApprovalDecision
	VisitDate   string
	VisitTime   string
	// ClosureReason overrides Comment as the recorded closure reason when set.
	ClosureReason string
}

// Has reports whether the submission carries a value for the given field.
func (s Submission) Has(field FieldName) bool {
	switch field {
	case FieldComment:
		return s.Comment != ""
	case FieldAttachments:
		return len(s.Attachments) > 0
	case FieldInvolvedDepartments:
		return len(s.InvolvedDepartments) > 0
	case FieldIyVApproval:
		return s.IyVApproval != nil
	case FieldVisitDate:
		return s.VisitDate != ""
	case FieldVisitTime:
		return s.VisitTime != ""
	case FieldClosureReason:
		return s.ClosureReason != ""
	default:
		return false
	}
}
