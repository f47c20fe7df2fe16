// Package editsession implements the draft/committed pair used while an
// operator edits an organization. A Session is created when edit mode
// starts and is finished once it returns to Viewing.
package editsession

import (
	"context"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
)

// State of an edit session.
type State string

const (
	StateViewing    State = "viewing"
	StateEditing    State = "editing"
	StateSaving     State = "saving"
	StateDiscarding State = "discarding"
)

// Resolution of the unsaved-changes decision point.
type Resolution string

const (
	ResolutionPending         Resolution = "pending"
	ResolutionDiscard         Resolution = "discard"
	ResolutionSaveAndContinue Resolution = "saveAndContinue"
)

// Continuation is what the caller was trying to do when it asked to cancel.
type Continuation string

const (
	// ContinueCancel leaves edit mode only.
	ContinueCancel Continuation = "cancel"
	// ContinueClose also closes the outer organization view.
	ContinueClose Continuation = "close"
)

// Decision is returned by RequestCancel and Resolve. Once Resolution is no
// longer pending the caller performs Continuation.
type Decision struct {
	Resolution   Resolution   `json:"resolution"`
	Continuation Continuation `json:"continuation"`
}

func (d Decision) Pending() bool { return d.Resolution == ResolutionPending }

// Updater persists the editable fields and returns the server copy.
type Updater interface {
	UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error)
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error)

func (f UpdaterFunc) UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
	return f(ctx, id, patch)
}

type Session struct {
	state     State
	committed *models.Organization
	draft     *models.Organization
	// inputs holds raw text that failed validation, so it is not lost and
	// still blocks commit.
	inputs   map[Field]string
	errors   apperr.FieldErrors
	dirty    bool
	decision *Decision
}

// Begin opens a session in Editing with a draft copied from committed.
func Begin(committed *models.Organization) *Session {
	return &Session{
		state:     StateEditing,
		committed: committed.Clone(),
		draft:     committed.Clone(),
		inputs:    map[Field]string{},
		errors:    apperr.FieldErrors{},
	}
}

func (s *Session) State() State { return s.state }

// Closed reports whether the session has returned to Viewing.
func (s *Session) Closed() bool { return s.state == StateViewing }

func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) Committed() *models.Organization { return s.committed.Clone() }

func (s *Session) Draft() *models.Organization { return s.draft.Clone() }

func (s *Session) Errors() apperr.FieldErrors { return s.errors.Clone() }

// PendingDecision returns the open decision point, if any.
func (s *Session) PendingDecision() (Decision, bool) {
	if s.decision == nil {
		return Decision{}, false
	}
	return *s.decision, true
}

func (s *Session) requireEditing() error {
	if s.state != StateEditing {
		return apperr.ErrNoSession
	}
	return nil
}

// UpdateField validates value and, when valid, writes it into the draft and
// marks the session dirty. An invalid value is recorded with its error and
// returned, but the caller may keep typing; errors only block Commit.
func (s *Session) UpdateField(f Field, value string) error {
	if err := s.requireEditing(); err != nil {
		return err
	}
	spec, err := lookup(f)
	if err != nil {
		return err
	}

	s.decision = nil
	v := spec.format(value)
	if err := spec.validate(v); err != nil {
		s.inputs[f] = value
		s.errors[string(f)] = messageOf(err)
		return err
	}
	delete(s.inputs, f)
	delete(s.errors, string(f))
	spec.write(s.draft, v)
	s.dirty = true
	return nil
}

// Input returns what the operator last typed for f: the rejected raw text
// if it failed validation, otherwise the draft value.
func (s *Session) Input(f Field) string {
	if v, ok := s.inputs[f]; ok {
		return v
	}
	spec, err := lookup(f)
	if err != nil || s.draft == nil {
		return ""
	}
	return spec.read(s.draft)
}

// RequestCancel leaves straight away when nothing changed. Otherwise it
// opens the decision point and returns it pending.
func (s *Session) RequestCancel(cont Continuation) (Decision, error) {
	if err := s.requireEditing(); err != nil {
		return Decision{}, err
	}
	if cont == "" {
		cont = ContinueCancel
	}
	if !s.dirty {
		s.discard()
		return Decision{Resolution: ResolutionDiscard, Continuation: cont}, nil
	}
	s.decision = &Decision{Resolution: ResolutionPending, Continuation: cont}
	return *s.decision, nil
}

// Resolve settles the open decision point. A failed save keeps the session
// in Editing with the draft intact and closes the decision point.
func (s *Session) Resolve(ctx context.Context, u Updater, r Resolution) (Decision, error) {
	if err := s.requireEditing(); err != nil {
		return Decision{}, err
	}
	if s.decision == nil {
		return Decision{}, apperr.ErrNoDecision
	}
	cont := s.decision.Continuation

	switch r {
	case ResolutionDiscard:
		s.discard()
		return Decision{Resolution: ResolutionDiscard, Continuation: cont}, nil
	case ResolutionSaveAndContinue:
		s.decision = nil
		if _, err := s.Commit(ctx, u); err != nil {
			return Decision{}, err
		}
		return Decision{Resolution: ResolutionSaveAndContinue, Continuation: cont}, nil
	default:
		return Decision{}, &apperr.ValidationError{Field: "decision", Message: "decision must be discard or saveAndContinue"}
	}
}

// Validate re-runs every field rule against the draft, plus any rejected
// raw input still pending.
func (s *Session) Validate() apperr.FieldErrors {
	fe := apperr.FieldErrors{}
	for f, spec := range fields {
		if raw, ok := s.inputs[f]; ok {
			if err := spec.validate(spec.format(raw)); err != nil {
				fe[string(f)] = messageOf(err)
			}
			continue
		}
		if err := spec.validate(spec.read(s.draft)); err != nil {
			fe[string(f)] = messageOf(err)
		}
	}
	return fe
}

// Commit sends the draft when every field is valid. Validation failure
// changes nothing and makes no call. On persistence failure the session
// stays in Editing with the draft and dirty flag untouched. On success the
// server copy becomes committed and the session closes.
func (s *Session) Commit(ctx context.Context, u Updater) (*models.Organization, error) {
	if err := s.requireEditing(); err != nil {
		return nil, err
	}
	if fe := s.Validate(); len(fe) > 0 {
		return nil, fe
	}

	s.state = StateSaving
	saved, err := u.UpdateOrganization(ctx, s.draft.ID, models.PatchOf(s.draft))
	if err != nil {
		s.state = StateEditing
		return nil, err
	}

	s.committed = saved.Clone()
	s.close()
	return saved.Clone(), nil
}

// Rebase replaces the committed snapshot after a background refresh. The
// draft and any pending input are left alone.
func (s *Session) Rebase(committed *models.Organization) {
	s.committed = committed.Clone()
}

func (s *Session) discard() {
	s.state = StateDiscarding
	s.close()
}

func (s *Session) close() {
	s.draft = nil
	s.inputs = map[Field]string{}
	s.errors = apperr.FieldErrors{}
	s.dirty = false
	s.decision = nil
	s.state = StateViewing
}

// View is a read-only snapshot for the presentation layer.
type View struct {
	State    State                `json:"state"`
	Draft    *models.Organization `json:"draft,omitempty"`
	Inputs   map[Field]string     `json:"inputs,omitempty"`
	Errors   apperr.FieldErrors   `json:"errors,omitempty"`
	Dirty    bool                 `json:"dirty"`
	Decision *Decision            `json:"decision,omitempty"`
}

func (s *Session) View() View {
	v := View{
		State:  s.state,
		Draft:  s.draft.Clone(),
		Errors: s.errors.Clone(),
		Dirty:  s.dirty,
	}
	if len(s.inputs) > 0 {
		v.Inputs = make(map[Field]string, len(s.inputs))
		for k, in := range s.inputs {
			v.Inputs[k] = in
		}
	}
	if s.decision != nil {
		d := *s.decision
		v.Decision = &d
	}
	return v
}
