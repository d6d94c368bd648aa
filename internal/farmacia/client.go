// Package farmacia is the HTTP client for the pharmacy's remote citas API,
// the single owner of all durable appointment state. It translates the
// documented REST contract into domain types and a typed error taxonomy;
// nothing here depends on server internals beyond that contract.
package farmacia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/farmacia-suite/citas-client/internal/appointment"
	"github.com/farmacia-suite/citas-client/internal/observability/metrics"
	"github.com/farmacia-suite/citas-client/internal/session"
	"github.com/farmacia-suite/citas-client/pkg/logging"
)

const (
	defaultTimeout  = 20 * time.Second
	requestIDHeader = "X-Request-Id"

	citasPath = "/api/Citas"
	slotsPath = "/api/Citas/slots"
)

// Client talks to the citas API. The session is fixed at construction; a
// caller with a different credential builds a different client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	loc        *time.Location
	logger     *logging.Logger
	metrics    *metrics.ClientMetrics
	now        func() time.Time
}

// NewClient creates a citas API client. A nil session is anonymous; the
// server decides whether anonymous requests are acceptable.
func NewClient(baseURL string, sess *session.Session, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		session: sess,
		loc:     time.Local,
		logger:  logger,
		now:     time.Now,
	}
}

// WithLocation sets the clinic timezone used to interpret civil timestamps.
func (c *Client) WithLocation(loc *time.Location) *Client {
	if loc != nil {
		c.loc = loc
	}
	return c
}

// WithMetrics attaches request metrics. A nil value disables recording.
func (c *Client) WithMetrics(m *metrics.ClientMetrics) *Client {
	c.metrics = m
	return c
}

// Location returns the clinic timezone the client anchors civil times in.
func (c *Client) Location() *time.Location { return c.loc }

// Slots fetches the bookable time positions for a calendar date. The time
// component of day is ignored. Read-only and safe to repeat.
func (c *Client) Slots(ctx context.Context, day time.Time) ([]Slot, error) {
	q := url.Values{}
	q.Set("dia", day.Format(diaLayout))

	var wire []slotWire
	if err := c.do(ctx, "slots", http.MethodGet, slotsPath, q, nil, &wire); err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, len(wire))
	for _, w := range wire {
		s, err := w.toDomain(day, c.loc)
		if err != nil {
			return nil, &APIError{StatusCode: http.StatusOK, Message: err.Error()}
		}
		slots = append(slots, s)
	}
	return slots, nil
}

// List fetches appointments, optionally narrowed by status and date range.
// An empty result is an empty slice, not an error.
func (c *Client) List(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("estado", string(f.Status))
	}
	if !f.From.IsZero() {
		q.Set("desde", f.From.Format(diaLayout))
	}
	if !f.To.IsZero() {
		q.Set("hasta", f.To.Format(diaLayout))
	}

	var wire []citaWire
	if err := c.do(ctx, "list", http.MethodGet, citasPath, q, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]appointment.Appointment, 0, len(wire))
	for _, w := range wire {
		a, err := w.toDomain(c.loc)
		if err != nil {
			return nil, &APIError{StatusCode: http.StatusOK, Message: err.Error()}
		}
		out = append(out, a)
	}
	return out, nil
}

// Get fetches one appointment. Returns ErrNotFound when the id no longer
// resolves.
func (c *Client) Get(ctx context.Context, id string) (*appointment.Appointment, error) {
	var wire citaWire
	if err := c.do(ctx, "get", http.MethodGet, citasPath+"/"+url.PathEscape(id), nil, nil, &wire); err != nil {
		return nil, err
	}
	a, err := wire.toDomain(c.loc)
	if err != nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: err.Error()}
	}
	return &a, nil
}

// Create books a new appointment. The remote store enforces slot
// availability; a stale selection surfaces as ErrConflict.
func (c *Client) Create(ctx context.Context, draft Draft) (*appointment.Appointment, error) {
	body := crearCitaWire{
		FechaHora:      draft.ScheduledAt.Format(fechaHoraLayout),
		TipoConsulta:   string(draft.ConsultationType),
		Notas:          draft.Notes,
		NombrePaciente: draft.PatientName,
	}
	var wire citaWire
	if err := c.do(ctx, "create", http.MethodPost, citasPath, nil, body, &wire); err != nil {
		return nil, err
	}
	a, err := wire.toDomain(c.loc)
	if err != nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: err.Error()}
	}
	return &a, nil
}

// Update replaces the mutable field set of an appointment. Used both for
// status transitions and clinical-note edits; fields carries everything the
// remote expects, since omitted fields would be overwritten with defaults.
func (c *Client) Update(ctx context.Context, id string, fields UpdateFields) error {
	body := actualizarCitaWire{
		TipoConsulta:  string(fields.ConsultationType),
		Notas:         fields.Notes,
		Estatus:       string(fields.Status),
		Observaciones: fields.Observations,
		Diagnostico:   fields.Diagnosis,
		Medicamentos:  fields.Medications,
	}
	return c.do(ctx, "update", http.MethodPut, citasPath+"/"+url.PathEscape(id), nil, body, nil)
}

// Cancel requests the Cancelled transition. Cancellation is a status
// change, not a removal; ErrNotFound means the record was removed upstream.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, "cancel", http.MethodDelete, citasPath+"/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body, out any) error {
	if c.session.Expired(c.now()) {
		// No point in a round trip the server is guaranteed to reject.
		return fmt.Errorf("%w: token expired", ErrUnauthenticated)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("farmacia: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("farmacia: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if tok, ok := c.session.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(operation, "network_error", c.now().Sub(start).Seconds())
		c.logger.Warn("citas API request failed", "operation", operation, "error", err)
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveRequest(operation, "network_error", c.now().Sub(start).Seconds())
		return &NetworkError{Err: err}
	}
	c.metrics.ObserveRequest(operation, strconv.Itoa(resp.StatusCode), c.now().Sub(start).Seconds())

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
		}
	}
	return nil
}
