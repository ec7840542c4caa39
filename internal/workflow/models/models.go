// Package models holds the workflow domain types: the solicitud record, its
// append-only process event history, and the closed status/role/department
// enumerations shared by the catalog, the engine, and the authorization layer.
package models

import "time"

// Status is the closed set of workflow statuses. The engine matches on these
// instead of comparing workflow-defined string literals; values read from
// storage that no longer parse map to StatusUnknown.
type Status string

const (
	StatusReceived           Status = "received"
	StatusAreaReview         Status = "area-review"
	StatusRemediationIyV     Status = "remediation-iyv"
	StatusRemediationArea    Status = "remediation-area"
	StatusAdminActPending    Status = "admin-act-pending"
	StatusVisitScheduled     Status = "visit-scheduled"
	StatusClosedSuccessful   Status = "closed-successful"
	StatusClosedUnsuccessful Status = "closed-unsuccessful"

	// StatusUnknown is the fallback for legacy values found in storage.
	// No event accepts it as a previous state, so such records are frozen
	// until repaired.
	StatusUnknown Status = "unknown"
)

var knownStatuses = map[Status]bool{
	StatusReceived:           true,
	StatusAreaReview:         true,
	StatusRemediationIyV:     true,
	StatusRemediationArea:    true,
	StatusAdminActPending:    true,
	StatusVisitScheduled:     true,
	StatusClosedSuccessful:   true,
	StatusClosedUnsuccessful: true,
}

// ParseStatus maps a stored string to a Status, falling back to StatusUnknown.
func ParseStatus(s string) Status {
	if knownStatuses[Status(s)] {
		return Status(s)
	}
	return StatusUnknown
}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether the status closes the workflow.
func (s Status) IsTerminal() bool {
	return s == StatusClosedSuccessful || s == StatusClosedUnsuccessful
}

// IsRemediation reports whether the status is a subsanación state carrying a
// next-action deadline.
func (s Status) IsRemediation() bool {
	return s == StatusRemediationIyV || s == StatusRemediationArea
}

// Role is the closed set of actor roles. The same values appear in JWT
// claims, route-level gates, and the catalog's allowed-role lists, so the two
// checks cannot drift.
type Role string

const (
	RoleIyV       Role = "IyV"
	RoleAdmin     Role = "Administrador"
	RoleQuality   Role = "Area_Calidad"
	RolePlanning  Role = "Area_Planeacion"
	RoleFinancial Role = "Area_Financiero"
)

var knownRoles = map[Role]bool{
	RoleIyV:       true,
	RoleAdmin:     true,
	RoleQuality:   true,
	RolePlanning:  true,
	RoleFinancial: true,
}

// ParseRole validates a role tag from an external source (JWT claim).
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, knownRoles[r]
}

// Department identifies a reviewing unit with an independent approval flag.
type Department string

const (
	DepartmentIyV       Department = "iyv"
	DepartmentQuality   Department = "calidad"
	DepartmentPlanning  Department = "planeacion"
	DepartmentFinancial Department = "financiero"
)

// Departments lists all reviewing units in a stable order.
var Departments = []Department{DepartmentIyV, DepartmentQuality, DepartmentPlanning, DepartmentFinancial}

// DepartmentForRole maps an area role to the department whose approval flag
// it owns. IyV and Admin are not area roles.
func DepartmentForRole(r Role) (Department, bool) {
	switch r {
	case RoleQuality:
		return DepartmentQuality, true
	case RolePlanning:
		return DepartmentPlanning, true
	case RoleFinancial:
		return DepartmentFinancial, true
	default:
		return "", false
	}
}

// ApprovalDecision is the tri-state value of a department approval flag.
// Flags start unset and move to applies/does-not-apply exactly once; the
// engine never produces a delta back to unset.
type ApprovalDecision string

const (
	ApprovalUnset        ApprovalDecision = ""
	ApprovalApplies      ApprovalDecision = "applies"
	ApprovalDoesNotApply ApprovalDecision = "does-not-apply"
)

// ParseApprovalDecision validates a submitted approval value. The empty
// string is not accepted from payloads; absence is expressed by omission.
func ParseApprovalDecision(s string) (ApprovalDecision, bool) {
	switch ApprovalDecision(s) {
	case ApprovalApplies, ApprovalDoesNotApply:
		return ApprovalDecision(s), true
	default:
		return ApprovalUnset, false
	}
}

// Solicitud is one licensing request tracked through the workflow. Mutable
// fields change only through the transition engine under a per-record lock.
type Solicitud struct {
	ID        int64
	Radicado  string // unique external filing number
	Applicant string
	Type      string
	Email     string

	Status             Status
	Approvals          map[Department]ApprovalDecision
	FilingDate         time.Time
	FilingDeadline     time.Time // filing date + 6 months, computed once at creation
	NextActionDeadline *time.Time
	VisitCount         int
	ClosureDate        *time.Time
	ClosureReason      string

	CreatedBy int64
	CreatedAt time.Time
}

// Clone returns a deep copy so engine callers can mutate freely without
// aliasing the store's record.
func (s *Solicitud) Clone() *Solicitud {
	cp := *s
	cp.Approvals = make(map[Department]ApprovalDecision, len(s.Approvals))
	for dept, decision := range s.Approvals {
		cp.Approvals[dept] = decision
	}
	if s.NextActionDeadline != nil {
		t := *s.NextActionDeadline
		cp.NextActionDeadline = &t
	}
	if s.ClosureDate != nil {
		t := *s.ClosureDate
		cp.ClosureDate = &t
	}
	return &cp
}

// ProcessEvent is one immutable audit entry: a snapshot of an applied event.
// Entries are created once and never mutated; they are removed only when an
// administrative purge deletes the whole solicitud.
type ProcessEvent struct {
	ID          int64
	SolicitudID int64
	EventLabel  string
	Timestamp   time.Time
	ActorID     int64
	ActorRole   Role
	ResultCode  string // empty for fixed-transition events
	Comment     string
	Attachments []string
	// NextActionDeadline snapshots the deadline at the time of the event.
	NextActionDeadline *time.Time
}
