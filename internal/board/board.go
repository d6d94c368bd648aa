// Package board drives the appointment list: status filtering, per-row
// actions gated by lifecycle state, and in-place row refresh after a
// transition. The set of enabled actions is strictly a function of the
// row's current status.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/farmacia-suite/citas-client/internal/appointment"
	"github.com/farmacia-suite/citas-client/internal/farmacia"
	"github.com/farmacia-suite/citas-client/internal/session"
	"github.com/farmacia-suite/citas-client/pkg/logging"
)

// StatusFilter is the board's filter selector, including the All
// pass-through.
type StatusFilter string

const (
	FilterAll       StatusFilter = "Todos"
	FilterActive    StatusFilter = "Activa"
	FilterCancelled StatusFilter = "Cancelada"
	FilterCompleted StatusFilter = "Terminada"
)

// ParseFilter accepts a filter label, an English status name or a wire code.
func ParseFilter(v string) (StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "todos", "all":
		return FilterAll, nil
	case "activa":
		return FilterActive, nil
	case "cancelada":
		return FilterCancelled, nil
	case "terminada":
		return FilterCompleted, nil
	}
	status, err := appointment.ParseStatus(v)
	if err != nil {
		return "", fmt.Errorf("board: unknown filter %q", v)
	}
	switch status {
	case appointment.StatusActive:
		return FilterActive, nil
	case appointment.StatusCancelled:
		return FilterCancelled, nil
	default:
		return FilterCompleted, nil
	}
}

// Status maps the filter to its wire status code; FilterAll maps to the
// empty status, which the client omits from the query.
func (f StatusFilter) Status() appointment.Status {
	switch f {
	case FilterActive:
		return appointment.StatusActive
	case FilterCancelled:
		return appointment.StatusCancelled
	case FilterCompleted:
		return appointment.StatusCompleted
	}
	return ""
}

// Action is one of the per-row operations the board can enable.
type Action string

const (
	ActionCancel        Action = "cancel"
	ActionAttend        Action = "attend"
	ActionViewDiagnosis Action = "view-diagnosis"
	ActionReactivate    Action = "reactivate"
)

// ActionsFor returns the enabled actions for an appointment. Reactivation
// of a cancelled appointment is an administrative override, never a
// default capability.
func ActionsFor(a appointment.Appointment, admin bool) []Action {
	switch a.Status {
	case appointment.StatusActive:
		return []Action{ActionCancel, ActionAttend}
	case appointment.StatusCancelled:
		if admin {
			return []Action{ActionReactivate}
		}
		return nil
	case appointment.StatusCompleted:
		return []Action{ActionViewDiagnosis}
	}
	return nil
}

var (
	// ErrActionNotAllowed means the requested action is not enabled for the
	// row's current status (or the caller's role).
	ErrActionNotAllowed = errors.New("board: action not allowed for this appointment")

	// ErrNotConfirmed means the user declined the destructive-action prompt.
	ErrNotConfirmed = errors.New("board: action not confirmed")

	// ErrRowBusy means another action on the same row has not resolved yet.
	ErrRowBusy = errors.New("board: an action on this row is still in flight")

	// ErrUnknownRow means the id is not on the currently loaded board.
	ErrUnknownRow = errors.New("board: appointment is not on the board")
)

// API is the slice of the citas client the board needs.
type API interface {
	List(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
	Get(ctx context.Context, id string) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id string) error
	Update(ctx context.Context, id string, fields farmacia.UpdateFields) error
}

// Row is one board entry with its enabled actions.
type Row struct {
	Appointment appointment.Appointment
	Actions     []Action
}

// Board is the appointment list controller.
type Board struct {
	api     API
	sess    *session.Session
	logger  *logging.Logger
	confirm func(prompt string) bool

	mu       sync.Mutex
	rows     []appointment.Appointment
	inFlight map[string]bool
}

// New creates a board. confirm is invoked before destructive transitions;
// a nil confirm declines everything, which keeps an unwired UI safe.
func New(client API, sess *session.Session, confirm func(string) bool, logger *logging.Logger) *Board {
	if client == nil {
		panic("board: api client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if confirm == nil {
		confirm = func(string) bool { return false }
	}
	return &Board{
		api:      client,
		sess:     sess,
		logger:   logger,
		confirm:  confirm,
		inFlight: map[string]bool{},
	}
}

// Load fetches the appointments matching the filter. An empty result is a
// valid empty board, not an error.
func (b *Board) Load(ctx context.Context, filter StatusFilter, from, to time.Time) error {
	list, err := b.api.List(ctx, appointment.Filter{Status: filter.Status(), From: from, To: to})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.rows = list
	b.mu.Unlock()
	return nil
}

// Rows returns the current board rows with their enabled actions.
func (b *Board) Rows() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	admin := b.sess.IsAdmin()
	out := make([]Row, 0, len(b.rows))
	for _, a := range b.rows {
		out = append(out, Row{Appointment: a, Actions: ActionsFor(a, admin)})
	}
	return out
}

// Cancel requests the Cancelled transition for a row. The user confirms
// first; on success only the affected row is refreshed; on failure the row
// is left untouched.
func (b *Board) Cancel(ctx context.Context, id string) error {
	row, err := b.acquire(id, ActionCancel)
	if err != nil {
		return err
	}
	defer b.release(id)

	if !b.confirm(fmt.Sprintf("¿Cancelar la cita del %s?", row.ScheduledAt.Format("2006-01-02 15:04"))) {
		return ErrNotConfirmed
	}
	if err := b.api.Cancel(ctx, id); err != nil {
		b.logger.Warn("cancel failed", "id", id, "error", err)
		return err
	}
	b.logger.Info("appointment cancelled", "id", id)
	return b.refreshRow(ctx, id)
}

// Attend validates that the row can be attended and returns the id the
// caller should navigate the detail editor to.
func (b *Board) Attend(id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.find(id)
	if !ok {
		return "", ErrUnknownRow
	}
	if !hasAction(ActionsFor(row, b.sess.IsAdmin()), ActionAttend) {
		return "", ErrActionNotAllowed
	}
	return id, nil
}

// Reactivate is the administrative override that forces a cancelled
// appointment back to Active. It preserves the row's consultation type and
// notes, since the remote overwrites omitted fields with defaults.
func (b *Board) Reactivate(ctx context.Context, id string) error {
	if !b.sess.IsAdmin() {
		return ErrActionNotAllowed
	}
	row, err := b.acquire(id, ActionReactivate)
	if err != nil {
		return err
	}
	defer b.release(id)

	consultation := row.ConsultationType
	if !consultation.Valid() {
		consultation = appointment.ConsultationGeneral
	}
	fields := farmacia.UpdateFields{
		ConsultationType: consultation,
		Notes:            row.Notes,
		Status:           appointment.StatusActive,
		Observations:     row.Observations,
		Diagnosis:        row.Diagnosis,
		Medications:      row.Medications,
	}
	if err := b.api.Update(ctx, id, fields); err != nil {
		b.logger.Warn("reactivate failed", "id", id, "error", err)
		return err
	}
	b.logger.Info("appointment reactivated by admin override", "id", id)
	return b.refreshRow(ctx, id)
}

// acquire looks the row up, checks the action is enabled and takes the
// per-row in-flight guard.
func (b *Board) acquire(id string, action Action) (appointment.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.find(id)
	if !ok {
		return appointment.Appointment{}, ErrUnknownRow
	}
	if !hasAction(ActionsFor(row, b.sess.IsAdmin()), action) {
		return appointment.Appointment{}, ErrActionNotAllowed
	}
	if b.inFlight[id] {
		return appointment.Appointment{}, ErrRowBusy
	}
	b.inFlight[id] = true
	return row, nil
}

func (b *Board) release(id string) {
	b.mu.Lock()
	delete(b.inFlight, id)
	b.mu.Unlock()
}

// refreshRow re-fetches one appointment and swaps it in place. A row that
// disappeared upstream is dropped from the board.
func (b *Board) refreshRow(ctx context.Context, id string) error {
	fresh, err := b.api.Get(ctx, id)
	if err != nil {
		if errors.Is(err, farmacia.ErrNotFound) {
			b.mu.Lock()
			b.rows = removeRow(b.rows, id)
			b.mu.Unlock()
			return nil
		}
		return err
	}
	b.mu.Lock()
	for i := range b.rows {
		if b.rows[i].ID == id {
			b.rows[i] = *fresh
			break
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *Board) find(id string) (appointment.Appointment, bool) {
	for _, a := range b.rows {
		if a.ID == id {
			return a, true
		}
	}
	return appointment.Appointment{}, false
}

func hasAction(actions []Action, want Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

func removeRow(rows []appointment.Appointment, id string) []appointment.Appointment {
	out := rows[:0]
	for _, a := range rows {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}
