package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmacia-suite/citas-client/internal/appointment"
	"github.com/farmacia-suite/citas-client/internal/farmacia"
	"github.com/farmacia-suite/citas-client/internal/session"
)

type fakeAPI struct {
	mu             sync.Mutex
	store          map[string]appointment.Appointment
	cancelErr      error
	updateErr      error
	listCalls      int
	getCalls       int
	cancelGate     chan struct{}
	deleteOnCancel bool
	lastUpdate     farmacia.UpdateFields
}

func newFakeAPI(appts ...appointment.Appointment) *fakeAPI {
	f := &fakeAPI{store: map[string]appointment.Appointment{}}
	for _, a := range appts {
		f.store[a.ID] = a
	}
	return f
}

func (f *fakeAPI) List(ctx context.Context, filter appointment.Filter) ([]appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]appointment.Appointment, 0, len(f.store))
	for _, a := range f.store {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAPI) Get(ctx context.Context, id string) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	a, ok := f.store[id]
	if !ok {
		return nil, farmacia.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAPI) Cancel(ctx context.Context, id string) error {
	if f.cancelGate != nil {
		<-f.cancelGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	a, ok := f.store[id]
	if !ok {
		return farmacia.ErrNotFound
	}
	if f.deleteOnCancel {
		delete(f.store, id)
		return nil
	}
	a.Status = appointment.StatusCancelled
	f.store[id] = a
	return nil
}

func (f *fakeAPI) Update(ctx context.Context, id string, fields farmacia.UpdateFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.store[id]
	if !ok {
		return farmacia.ErrNotFound
	}
	f.lastUpdate = fields
	a.ConsultationType = fields.ConsultationType
	a.Notes = fields.Notes
	a.Status = fields.Status
	a.Observations = fields.Observations
	a.Diagnosis = fields.Diagnosis
	a.Medications = fields.Medications
	f.store[id] = a
	return nil
}

func appt(id string, status appointment.Status) appointment.Appointment {
	return appointment.Appointment{
		ID:               id,
		PatientName:      "Ana Ruiz",
		ScheduledAt:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		ConsultationType: appointment.ConsultationGeneral,
		Notes:            "revisión",
		Status:           status,
	}
}

func confirmYes(string) bool { return true }

func TestActionsFor(t *testing.T) {
	tests := []struct {
		name   string
		status appointment.Status
		admin  bool
		want   []Action
	}{
		{"active", appointment.StatusActive, false, []Action{ActionCancel, ActionAttend}},
		{"active admin", appointment.StatusActive, true, []Action{ActionCancel, ActionAttend}},
		{"cancelled", appointment.StatusCancelled, false, nil},
		{"cancelled admin", appointment.StatusCancelled, true, []Action{ActionReactivate}},
		{"completed", appointment.StatusCompleted, false, []Action{ActionViewDiagnosis}},
		{"completed admin", appointment.StatusCompleted, true, []Action{ActionViewDiagnosis}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActionsFor(appointment.Appointment{Status: tt.status}, tt.admin)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]StatusFilter{
		"":          FilterAll,
		"Todos":     FilterAll,
		"all":       FilterAll,
		"Activa":    FilterActive,
		"A":         FilterActive,
		"active":    FilterActive,
		"Cancelada": FilterCancelled,
		"C":         FilterCancelled,
		"Terminada": FilterCompleted,
		"T":         FilterCompleted,
		"completed": FilterCompleted,
	} {
		got, err := ParseFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFilter("pendiente")
	require.Error(t, err)
}

func TestLoadAndRows(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusActive), appt("2", appointment.StatusCancelled))
	b := New(api, session.New("tok"), confirmYes, nil)

	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))
	assert.Len(t, b.Rows(), 2)

	require.NoError(t, b.Load(context.Background(), FilterActive, time.Time{}, time.Time{}))
	rows := b.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Appointment.ID)
	assert.Equal(t, []Action{ActionCancel, ActionAttend}, rows[0].Actions)
}

func TestLoadEmptyBoard(t *testing.T) {
	b := New(newFakeAPI(), nil, confirmYes, nil)
	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))
	assert.Empty(t, b.Rows())
}

func TestCancelRefreshesRowInPlace(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusActive), appt("2", appointment.StatusActive))
	b := New(api, nil, confirmYes, nil)
	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))
	listCallsAfterLoad := api.listCalls

	require.NoError(t, b.Cancel(context.Background(), "1"))

	assert.Equal(t, listCallsAfterLoad, api.listCalls, "no full reload after cancel")
	for _, row := range b.Rows() {
		if row.Appointment.ID == "1" {
			assert.Equal(t, appointment.StatusCancelled, row.Appointment.Status)
			assert.Nil(t, row.Actions)
		}
		if row.Appointment.ID == "2" {
			assert.Equal(t, appointment.StatusActive, row.Appointment.Status)
		}
	}
}

func TestCancelNeedsConfirmation(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusActive))
	declined := New(api, nil, func(string) bool { return false }, nil)
	require.NoError(t, declined.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))

	err := declined.Cancel(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Equal(t, appointment.StatusActive, declined.Rows()[0].Appointment.Status)
}

func TestCancelFailureLeavesRowUntouched(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusActive))
	api.cancelErr = &farmacia.NetworkError{Err: errors.New("refused")}
	b := New(api, nil, confirmYes, nil)
	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))

	err := b.Cancel(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, appointment.StatusActive, b.Rows()[0].Appointment.Status)

	// Transient failure: the same action can be retried.
	api.mu.Lock()
	api.cancelErr = nil
	api.mu.Unlock()
	require.NoError(t, b.Cancel(context.Background(), "1"))
	assert.Equal(t, appointment.StatusCancelled, b.Rows()[0].Appointment.Status)
}

func TestCancelOnlyForActive(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusCancelled), appt("2", appointment.StatusCompleted))
	b := New(api, nil, confirmYes, nil)
	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))

	assert.ErrorIs(t, b.Cancel(context.Background(), "1"), ErrActionNotAllowed)
	assert.ErrorIs(t, b.Cancel(context.Background(), "2"), ErrActionNotAllowed)
	assert.ErrorIs(t, b.Cancel(context.Background(), "404"), ErrUnknownRow)
}

func TestCancelRowBusyGuard(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusActive))
	api.cancelGate = make(chan struct{})
	b := New(api, nil, confirmYes, nil)
	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))

	done := make(chan error, 1)
	go func() { done <- b.Cancel(context.Background(), "1") }()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.inFlight["1"]
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, b.Cancel(context.Background(), "1"), ErrRowBusy)

	close(api.cancelGate)
	require.NoError(t, <-done)
}

func TestAttend(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusActive), appt("2", appointment.StatusCompleted))
	b := New(api, nil, confirmYes, nil)
	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))

	id, err := b.Attend("1")
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	_, err = b.Attend("2")
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	_, err = b.Attend("404")
	assert.ErrorIs(t, err, ErrUnknownRow)
}

func TestReactivateAdminOverride(t *testing.T) {
	cancelled := appt("1", appointment.StatusCancelled)
	cancelled.ConsultationType = appointment.ConsultationFollowUp
	cancelled.Notes = "seguimiento de tensión"

	api := newFakeAPI(cancelled)
	admin := New(api, session.New("tok").WithRole(session.RoleAdmin), confirmYes, nil)
	require.NoError(t, admin.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))

	require.NoError(t, admin.Reactivate(context.Background(), "1"))

	// The override preserves the row's fields instead of blanking them.
	assert.Equal(t, appointment.ConsultationFollowUp, api.lastUpdate.ConsultationType)
	assert.Equal(t, "seguimiento de tensión", api.lastUpdate.Notes)
	assert.Equal(t, appointment.StatusActive, api.lastUpdate.Status)

	rows := admin.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, appointment.StatusActive, rows[0].Appointment.Status)
}

func TestReactivateDeniedForRegularUsers(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusCancelled))
	b := New(api, session.New("tok"), confirmYes, nil)
	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))

	assert.ErrorIs(t, b.Reactivate(context.Background(), "1"), ErrActionNotAllowed)
	assert.Equal(t, appointment.StatusCancelled, b.Rows()[0].Appointment.Status)
}

func TestRefreshDropsRowRemovedUpstream(t *testing.T) {
	api := newFakeAPI(appt("1", appointment.StatusActive), appt("2", appointment.StatusActive))
	api.deleteOnCancel = true
	b := New(api, nil, confirmYes, nil)
	require.NoError(t, b.Load(context.Background(), FilterAll, time.Time{}, time.Time{}))

	// The record disappears upstream right after the cancel round-trip; the
	// in-place refresh sees NotFound and drops the row rather than failing.
	require.NoError(t, b.Cancel(context.Background(), "1"))
	rows := b.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].Appointment.ID)
}

func TestReactivateNotFoundSurfaced(t *testing.T) {
	api := newFakeAPI()
	admin := New(api, session.New("tok").WithRole(session.RoleAdmin), confirmYes, nil)
	admin.mu.Lock()
	admin.rows = []appointment.Appointment{appt("1", appointment.StatusCancelled)}
	admin.mu.Unlock()

	err := admin.Reactivate(context.Background(), "1")
	assert.ErrorIs(t, err, farmacia.ErrNotFound)
	assert.Equal(t, appointment.StatusCancelled, admin.Rows()[0].Appointment.Status)
}
