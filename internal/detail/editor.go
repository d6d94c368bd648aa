// Package detail implements the single-appointment view and its clinical
// note editor. Completing an appointment here is the only path that
// transitions it to Completed; afterwards the record is read-only.
package detail

import (
	"context"
	"errors"
	"sync"

	"github.com/farmacia-suite/citas-client/internal/appointment"
	"github.com/farmacia-suite/citas-client/internal/farmacia"
	"github.com/farmacia-suite/citas-client/pkg/logging"
)

// Phase is the editor's lifecycle state.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseReady     Phase = "ready"
	PhaseNotFound  Phase = "not-found"
	PhaseLoadError Phase = "load-error"
)

var (
	// ErrNotEditable means the appointment is not in a state that accepts
	// clinical edits (not loaded, or no longer Active).
	ErrNotEditable = errors.New("detail: appointment is not editable")

	// ErrSaveInFlight guards against duplicate completion submissions.
	ErrSaveInFlight = errors.New("detail: a save is already in flight")
)

// API is the slice of the citas client the editor needs.
type API interface {
	Get(ctx context.Context, id string) (*appointment.Appointment, error)
	Update(ctx context.Context, id string, fields farmacia.UpdateFields) error
}

// Editor loads one appointment and captures clinical notes.
type Editor struct {
	api    API
	id     string
	logger *logging.Logger

	mu      sync.Mutex
	phase   Phase
	appt    *appointment.Appointment
	loadErr error
	saving  bool
}

// NewEditor creates an editor for one appointment id. Call Load before
// anything else.
func NewEditor(client API, id string, logger *logging.Logger) *Editor {
	if client == nil {
		panic("detail: api client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Editor{api: client, id: id, logger: logger, phase: PhaseLoading}
}

// Load fetches the appointment. A missing id is terminal: once the editor
// reaches NotFound, further loads are no-ops (there is nothing to retry).
// Transport or server failures land in LoadError and may be retried by
// calling Load again.
func (e *Editor) Load(ctx context.Context) Phase {
	e.mu.Lock()
	if e.phase == PhaseNotFound {
		e.mu.Unlock()
		return PhaseNotFound
	}
	e.phase = PhaseLoading
	e.mu.Unlock()

	appt, err := e.api.Get(ctx, e.id)

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case errors.Is(err, farmacia.ErrNotFound):
		e.phase = PhaseNotFound
		e.appt = nil
		e.loadErr = nil
	case err != nil:
		e.phase = PhaseLoadError
		e.loadErr = err
	default:
		e.phase = PhaseReady
		e.appt = appt
		e.loadErr = nil
	}
	return e.phase
}

// Phase returns the editor's current state.
func (e *Editor) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Retryable reports whether Load may be re-invoked after a failure.
// NotFound is terminal; LoadError is not.
func (e *Editor) Retryable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == PhaseLoadError
}

// LoadError returns the failure behind a LoadError phase.
func (e *Editor) LoadError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// Appointment returns a copy of the loaded appointment, or false outside
// Ready.
func (e *Editor) Appointment() (appointment.Appointment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseReady || e.appt == nil {
		return appointment.Appointment{}, false
	}
	return *e.appt, true
}

// Editable reports whether the clinical fields accept input: Ready and
// still Active.
func (e *Editor) Editable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == PhaseReady && e.appt != nil && e.appt.CanEditClinical()
}

// Complete records the clinical outcome and requests the Completed
// transition, sending the full field set the remote expects. On failure
// the local record is left untouched; on success the editor's copy becomes
// read-only with the new fields applied.
func (e *Editor) Complete(ctx context.Context, observations, diagnosis, medications string) error {
	e.mu.Lock()
	if e.phase != PhaseReady || e.appt == nil || !e.appt.CanComplete() {
		e.mu.Unlock()
		return ErrNotEditable
	}
	if e.saving {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	e.saving = true
	current := *e.appt
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.saving = false
		e.mu.Unlock()
	}()

	consultation := current.ConsultationType
	if !consultation.Valid() {
		consultation = appointment.ConsultationGeneral
	}
	fields := farmacia.UpdateFields{
		ConsultationType: consultation,
		Notes:            current.Notes,
		Status:           appointment.StatusCompleted,
		Observations:     observations,
		Diagnosis:        diagnosis,
		Medications:      medications,
	}
	if err := e.api.Update(ctx, e.id, fields); err != nil {
		e.logger.Warn("complete failed", "id", e.id, "error", err)
		return err
	}

	e.mu.Lock()
	e.appt.Status = appointment.StatusCompleted
	e.appt.Observations = observations
	e.appt.Diagnosis = diagnosis
	e.appt.Medications = medications
	e.mu.Unlock()
	e.logger.Info("appointment completed", "id", e.id)
	return nil
}
