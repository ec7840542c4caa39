// Package catalog is the static registry of process-event definitions. It is
// pure data: the transition engine consults it, nothing mutates it after
// process start, and concurrent reads are safe.
package catalog

import (
	"fmt"

	"solicitudes/internal/workflow/models"
)

// EventName identifies one process event.
type EventName string

const (
	EventReception                EventName = "reception"
	EventVerificationIyV          EventName = "verification-iyv"
	EventRemediationIyVReception  EventName = "remediation-iyv-reception"
	EventAreaRadication           EventName = "area-radication"
	EventAreaVerification         EventName = "area-verification"
	EventRemediationAreaReception EventName = "remediation-area-reception"
	EventVisit                    EventName = "visit"
	EventAdministrativeAct        EventName = "administrative-act"
	EventClosure                  EventName = "closure"
)

// Result codes accepted by events with a result-driven transition.
const (
	ResultOK                 = "ok"
	ResultRemediation        = "remediation"
	ResultClosedUnsuccessful = "closed-unsuccessful"
	ResultClosedSuccessful   = "closed-successful"
	ResultComplete           = "complete"
	ResultIncomplete         = "incomplete"
	ResultApproved           = "approved"
	ResultVisitPerformed     = "performed"
	ResultVisitScheduled     = "scheduled"
)

// EventDefinition describes one process event: who may trigger it, from which
// statuses, where it transitions, and which side effects it declares.
// Definitions are immutable after init.
type EventDefinition struct {
	Name  EventName
	Label string // Spanish label recorded verbatim in the audit trail

	AllowedRoles []models.Role

	// Initial marks the creation event; it is the only definition allowed to
	// have no previous states.
	Initial bool

	// PreviousStates the record must currently hold. Empty only for the
	// initial event.
	PreviousStates []models.Status

	// NextStatus is the fixed transition target. Zero when Transitions is set.
	NextStatus models.Status

	// Transitions maps a submitted result code to the next status. Nil when
	// NextStatus is set. The closure event has neither: it leaves the
	// terminal status untouched.
	Transitions map[string]models.Status

	// RequiresApproval marks events that update department approval flags.
	RequiresApproval bool

	// DeadlineOffsetDays, when non-zero, makes the event deadline-relevant: a
	// transition into a remediation status sets the next-action deadline this
	// many days out, and any other result clears it.
	DeadlineOffsetDays int

	// IncrementsVisitCount marks the visit event's counter side effect.
	IncrementsVisitCount bool

	// RequiredFields must be present in the submission; validated at the
	// boundary.
	RequiredFields []models.FieldName
}

// HasResultTransitions reports whether the event resolves its target from a
// submitted result code.
func (d *EventDefinition) HasResultTransitions() bool { return len(d.Transitions) > 0 }

// RoleAllowed reports whether the role may trigger this event.
func (d *EventDefinition) RoleAllowed(role models.Role) bool {
	for _, allowed := range d.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

// AllowsPreviousState reports whether the record's current status satisfies
// the event's precondition. Events without a precondition (initial) accept
// any status.
func (d *EventDefinition) AllowsPreviousState(status models.Status) bool {
	if len(d.PreviousStates) == 0 {
		return true
	}
	for _, prev := range d.PreviousStates {
		if prev == status {
			return true
		}
	}
	return false
}

// Catalog is the lookup table of event definitions.
type Catalog struct {
	byName map[EventName]*EventDefinition
	order  []EventName
}

// Lookup returns the definition for name, or false when no such event exists.
func (c *Catalog) Lookup(name EventName) (*EventDefinition, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// Events returns all definitions in declaration order.
func (c *Catalog) Events() []*EventDefinition {
	defs := make([]*EventDefinition, 0, len(c.order))
	for _, name := range c.order {
		defs = append(defs, c.byName[name])
	}
	return defs
}

// New builds the default process-event catalog and validates it. The
// definitions mirror the licensing workflow: reception, IyV document
// verification with an 8-day remediation window, area radication and
// verification with a 20-day remediation window, inspection visits, the
// administrative act, and terminal closure metadata.
func New() (*Catalog, error) {
	defs := []*EventDefinition{
		{
			Name:         EventReception,
			Label:        "Recepción de Solicitud",
			AllowedRoles: []models.Role{models.RoleIyV},
			Initial:      true,
			NextStatus:   models.StatusReceived,
		},
		{
			Name:           EventVerificationIyV,
			Label:          "Verificación Documentos IyV",
			AllowedRoles:   []models.Role{models.RoleIyV},
			PreviousStates: []models.Status{models.StatusReceived},
			Transitions: map[string]models.Status{
				ResultOK:                 models.StatusAreaReview,
				ResultRemediation:        models.StatusRemediationIyV,
				ResultClosedUnsuccessful: models.StatusClosedUnsuccessful,
			},
			RequiresApproval:   true,
			DeadlineOffsetDays: 8,
			RequiredFields:     []models.FieldName{models.FieldResultCode},
		},
		{
			Name:           EventRemediationIyVReception,
			Label:          "Recepción Subsanación IyV",
			AllowedRoles:   []models.Role{models.RoleIyV},
			PreviousStates: []models.Status{models.StatusRemediationIyV},
			Transitions: map[string]models.Status{
				ResultComplete:   models.StatusAreaReview,
				ResultIncomplete: models.StatusClosedUnsuccessful,
			},
			DeadlineOffsetDays: 8,
			RequiredFields:     []models.FieldName{models.FieldResultCode},
		},
		{
			Name:           EventAreaRadication,
			Label:          "Radicar Solicitud en Áreas",
			AllowedRoles:   []models.Role{models.RoleIyV},
			PreviousStates: []models.Status{models.StatusAreaReview},
			NextStatus:     models.StatusAreaReview,
			RequiresApproval: true,
			RequiredFields: []models.FieldName{models.FieldInvolvedDepartments},
		},
		{
			Name:           EventAreaVerification,
			Label:          "Verificación en Área",
			AllowedRoles:   []models.Role{models.RoleQuality, models.RolePlanning, models.RoleFinancial},
			PreviousStates: []models.Status{models.StatusAreaReview},
			Transitions: map[string]models.Status{
				ResultApproved:    models.StatusAdminActPending,
				ResultRemediation: models.StatusRemediationArea,
			},
			DeadlineOffsetDays: 20,
			RequiredFields:     []models.FieldName{models.FieldResultCode},
		},
		{
			Name:           EventRemediationAreaReception,
			Label:          "Recepción Subsanación Área",
			AllowedRoles:   []models.Role{models.RoleQuality, models.RolePlanning, models.RoleFinancial},
			PreviousStates: []models.Status{models.StatusRemediationArea},
			Transitions: map[string]models.Status{
				ResultComplete:   models.StatusAdminActPending,
				ResultIncomplete: models.StatusClosedUnsuccessful,
			},
			DeadlineOffsetDays: 20,
			RequiredFields:     []models.FieldName{models.FieldResultCode},
		},
		{
			Name:           EventVisit,
			Label:          "Visita de Inspección/Vigilancia",
			AllowedRoles:   []models.Role{models.RoleIyV},
			PreviousStates: []models.Status{models.StatusAdminActPending, models.StatusVisitScheduled},
			Transitions: map[string]models.Status{
				ResultVisitPerformed: models.StatusAdminActPending,
				ResultVisitScheduled: models.StatusVisitScheduled,
			},
			IncrementsVisitCount: true,
			RequiredFields:       []models.FieldName{models.FieldResultCode, models.FieldVisitDate},
		},
		{
			Name:           EventAdministrativeAct,
			Label:          "Acto Administrativo",
			AllowedRoles:   []models.Role{models.RoleIyV},
			PreviousStates: []models.Status{models.StatusAdminActPending},
			Transitions: map[string]models.Status{
				ResultClosedSuccessful:   models.StatusClosedSuccessful,
				ResultClosedUnsuccessful: models.StatusClosedUnsuccessful,
			},
			RequiredFields: []models.FieldName{models.FieldResultCode},
		},
		{
			Name:           EventClosure,
			Label:          "Cierre de Solicitud",
			AllowedRoles:   []models.Role{models.RoleIyV, models.RoleAdmin},
			PreviousStates: []models.Status{models.StatusClosedSuccessful, models.StatusClosedUnsuccessful},
			// No transition: the record is already terminal; this event only
			// records supplementary closure metadata.
		},
	}

	c := &Catalog{byName: make(map[EventName]*EventDefinition, len(defs))}
	for _, def := range defs {
		if _, dup := c.byName[def.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate event %q", def.Name)
		}
		c.byName[def.Name] = def
		c.order = append(c.order, def.Name)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew builds the default catalog and panics on an invalid definition set.
// The catalog is static, so a failure here is a programming error caught at
// process start.
func MustNew() *Catalog {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// validate enforces catalog-level invariants:
//   - only the initial event may omit previous states
//   - every definition has either a fixed target, a result map, or (closure
//     only) neither
//   - every non-terminal transition target is reachable as some event's
//     previous state
func (c *Catalog) validate() error {
	reachable := make(map[models.Status]bool)
	for _, def := range c.byName {
		for _, prev := range def.PreviousStates {
			reachable[prev] = true
		}
	}

	for _, def := range c.byName {
		if len(def.PreviousStates) == 0 && !def.Initial {
			return fmt.Errorf("catalog: event %q has no previous states and is not initial", def.Name)
		}
		if def.NextStatus != "" && def.HasResultTransitions() {
			return fmt.Errorf("catalog: event %q declares both a fixed and a result-driven transition", def.Name)
		}

		targets := make([]models.Status, 0, len(def.Transitions)+1)
		if def.NextStatus != "" {
			targets = append(targets, def.NextStatus)
		}
		for _, target := range def.Transitions {
			targets = append(targets, target)
		}
		for _, target := range targets {
			if target.IsTerminal() {
				continue
			}
			if !reachable[target] {
				return fmt.Errorf("catalog: event %q transitions to %q, which no event accepts as a previous state", def.Name, target)
			}
		}
	}
	return nil
}
