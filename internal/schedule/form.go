// Package schedule implements the appointment booking flow: slot-driven
// date and time selection, client-side validation and submission. Client
// rejections never reach the network; remote rejections never leave a
// half-created appointment behind.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/farmacia-suite/citas-client/internal/appointment"
	"github.com/farmacia-suite/citas-client/internal/farmacia"
	"github.com/farmacia-suite/citas-client/internal/slots"
	"github.com/farmacia-suite/citas-client/pkg/logging"
)

// Field identifies the form field an error is scoped to.
type Field string

const (
	FieldPatientName      Field = "patientName"
	FieldDate             Field = "date"
	FieldTime             Field = "time"
	FieldConsultationType Field = "consultationType"
)

// ValidationError is a client-detected, field-scoped rejection. It is
// resolved locally and never sent to the server.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schedule: invalid %s: %s", e.Field, e.Reason)
}

// SubmitReason classifies a remote rejection of an otherwise valid form.
type SubmitReason string

const (
	ReasonConflict SubmitReason = "conflict"
	ReasonServer   SubmitReason = "server"
	ReasonNetwork  SubmitReason = "network"
)

// SubmitError is a failed create after validation passed.
type SubmitError struct {
	Reason SubmitReason
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("schedule: submit failed (%s): %v", e.Reason, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ErrSubmitInFlight guards against duplicate submissions while a create
// request has not resolved yet.
var ErrSubmitInFlight = errors.New("schedule: a submission is already in flight")

// Form is the collected user input. Day is a civil date; Time is an
// "HH:MM" label drawn from the resolved available set.
type Form struct {
	PatientName      string
	Day              time.Time
	Time             string
	ConsultationType appointment.ConsultationType
	Notes            string
}

// Creator is the slice of the citas API the controller submits through.
type Creator interface {
	Create(ctx context.Context, draft farmacia.Draft) (*appointment.Appointment, error)
}

// Controller validates and submits booking forms. It owns a slot watcher:
// whenever the selected date changes, the available set is refreshed and a
// previously selected time that is no longer available is cleared rather
// than silently submitted.
type Controller struct {
	creator     Creator
	resolver    *slots.Resolver
	watcher     *slots.Watcher
	logger      *logging.Logger
	requireName bool
	now         func() time.Time

	mu           sync.Mutex
	day          time.Time
	available    map[string]bool
	slotErr      error
	selectedTime string
	submitting   bool
	onSlots      func(slots.Update)
}

// NewController creates a form controller. requireName marks flows where
// the patient name is mandatory (the staff scheduling screen); the patient
// self-service flow passes false.
func NewController(creator Creator, resolver *slots.Resolver, requireName bool, logger *logging.Logger) *Controller {
	if creator == nil {
		panic("schedule: creator cannot be nil")
	}
	if resolver == nil {
		panic("schedule: resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Controller{
		creator:     creator,
		resolver:    resolver,
		logger:      logger,
		requireName: requireName,
		now:         time.Now,
		available:   map[string]bool{},
	}
	c.watcher = slots.NewWatcher(resolver, c.applySlots)
	return c
}

// OnSlots registers a hook invoked after each applied slot update, so a
// view can re-render its time options.
func (c *Controller) OnSlots(fn func(slots.Update)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSlots = fn
}

// SelectDate switches the form to a new date and starts resolving its
// slots. A fetch for a previously selected date that is still in flight is
// superseded.
func (c *Controller) SelectDate(ctx context.Context, day time.Time) error {
	day, err := c.resolver.NormalizeDay(day)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.day = day
	c.available = map[string]bool{}
	c.slotErr = nil
	c.mu.Unlock()

	c.watcher.Select(ctx, day)
	return nil
}

func (c *Controller) applySlots(u slots.Update) {
	c.mu.Lock()
	if !u.Day.Equal(c.day) {
		// The form moved on while this response was in flight.
		c.mu.Unlock()
		return
	}
	c.slotErr = u.Err
	c.available = map[string]bool{}
	for _, label := range slots.AvailableTimes(u.Slots) {
		c.available[label] = true
	}
	if c.selectedTime != "" && !c.available[c.selectedTime] {
		// Never silently submit a stale time selection.
		c.selectedTime = ""
	}
	hook := c.onSlots
	c.mu.Unlock()

	if hook != nil {
		hook(u)
	}
}

// SelectTime picks a time from the current available set.
func (c *Controller) SelectTime(hhmm string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.available[hhmm] {
		return &ValidationError{Field: FieldTime, Reason: fmt.Sprintf("time %q is not in the available set", hhmm)}
	}
	c.selectedTime = hhmm
	return nil
}

// SelectedTime returns the currently selected time, empty when none (or
// when a date change cleared a stale selection).
func (c *Controller) SelectedTime() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedTime
}

// AvailableTimes lists the resolved available "HH:MM" labels.
func (c *Controller) AvailableTimes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.available))
	for label := range c.available {
		out = append(out, label)
	}
	// "HH:MM" labels sort correctly as strings.
	sort.Strings(out)
	return out
}

// SlotError returns the last slot fetch failure for the selected date.
func (c *Controller) SlotError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slotErr
}

// Close releases the controller's slot watcher.
func (c *Controller) Close() {
	c.watcher.Close()
}

// Submit validates the form and creates the appointment. Validation order:
// patient name, date, time, consultation type, short-circuiting on the
// first failure. On success the resolver's slot set for that date is
// invalidated, since the booked time is no longer available.
func (c *Controller) Submit(ctx context.Context, form Form) (*appointment.Appointment, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	c.submitting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	draft, err := c.validate(form)
	if err != nil {
		return nil, err
	}

	created, err := c.creator.Create(ctx, draft)
	if err != nil {
		return nil, c.classifySubmit(err)
	}

	c.logger.Info("appointment created",
		"id", created.ID,
		"fechaHora", created.ScheduledAt.Format("2006-01-02T15:04"),
	)
	c.resolver.Invalidate(ctx, form.Day)
	return created, nil
}

func (c *Controller) validate(form Form) (farmacia.Draft, error) {
	if c.requireName && strings.TrimSpace(form.PatientName) == "" {
		return farmacia.Draft{}, &ValidationError{Field: FieldPatientName, Reason: "patient name is required"}
	}

	if form.Day.IsZero() {
		return farmacia.Draft{}, &ValidationError{Field: FieldDate, Reason: "date is required"}
	}
	day, err := c.resolver.NormalizeDay(form.Day)
	if err != nil {
		return farmacia.Draft{}, &ValidationError{Field: FieldDate, Reason: err.Error()}
	}
	now := c.now().In(c.resolver.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.resolver.Location())
	if day.Before(today) {
		return farmacia.Draft{}, &ValidationError{Field: FieldDate, Reason: "date must not be in the past"}
	}

	if form.Time == "" {
		return farmacia.Draft{}, &ValidationError{Field: FieldTime, Reason: "time is required"}
	}
	c.mu.Lock()
	sameDay := day.Equal(c.day)
	inSet := c.available[form.Time]
	c.mu.Unlock()
	if !sameDay || !inSet {
		return farmacia.Draft{}, &ValidationError{Field: FieldTime, Reason: fmt.Sprintf("time %q is not in the available set", form.Time)}
	}
	hm, err := time.Parse("15:04", form.Time)
	if err != nil {
		return farmacia.Draft{}, &ValidationError{Field: FieldTime, Reason: fmt.Sprintf("unparseable time %q", form.Time)}
	}
	scheduledAt := time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, c.resolver.Location())
	if scheduledAt.Before(now) {
		return farmacia.Draft{}, &ValidationError{Field: FieldTime, Reason: "time is already in the past"}
	}

	if !form.ConsultationType.Valid() {
		return farmacia.Draft{}, &ValidationError{Field: FieldConsultationType, Reason: fmt.Sprintf("unknown consultation type %q", form.ConsultationType)}
	}

	return farmacia.Draft{
		PatientName:      strings.TrimSpace(form.PatientName),
		ScheduledAt:      scheduledAt,
		ConsultationType: form.ConsultationType,
		Notes:            form.Notes,
	}, nil
}

func (c *Controller) classifySubmit(err error) error {
	switch {
	case errors.Is(err, farmacia.ErrUnauthenticated):
		// Pass through unchanged so the caller can redirect to login.
		return err
	case errors.Is(err, farmacia.ErrConflict):
		return &SubmitError{Reason: ReasonConflict, Err: err}
	default:
		var ne *farmacia.NetworkError
		if errors.As(err, &ne) {
			return &SubmitError{Reason: ReasonNetwork, Err: err}
		}
		return &SubmitError{Reason: ReasonServer, Err: err}
	}
}
