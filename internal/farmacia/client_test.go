package farmacia

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farmacia-suite/citas-client/internal/appointment"
	"github.com/farmacia-suite/citas-client/internal/session"
)

func newTestClient(t *testing.T, handler http.Handler, sess *session.Session) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := NewClient(ts.URL, sess, nil).WithLocation(time.UTC)
	return c, ts
}

func TestSlots(t *testing.T) {
	var gotDia string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/Citas/slots" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotDia = r.URL.Query().Get("dia")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"fechaHora": "2025-03-10T09:00", "horaTexto": "09:00", "disponible": true},
			{"fechaHora": "2025-03-10T09:30", "horaTexto": "09:30", "disponible": false},
		})
	}), nil)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	slots, err := c.Slots(context.Background(), day)
	if err != nil {
		t.Fatalf("Slots error: %v", err)
	}
	if gotDia != "2025-03-10" {
		t.Fatalf("unexpected dia query: %s", gotDia)
	}
	if len(slots) != 2 {
		t.Fatalf("unexpected slots: %+v", slots)
	}
	if !slots[0].Available || slots[1].Available {
		t.Fatalf("availability flags wrong: %+v", slots)
	}
	if got := slots[0].Start.Format("15:04"); got != "09:00" {
		t.Fatalf("unexpected start time: %s", got)
	}
}

func TestSlotsHoraTextoFallback(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"horaTexto": "17:30", "disponible": true},
		})
	}), nil)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	slots, err := c.Slots(context.Background(), day)
	if err != nil {
		t.Fatalf("Slots error: %v", err)
	}
	want := time.Date(2025, 3, 10, 17, 30, 0, 0, time.UTC)
	if !slots[0].Start.Equal(want) {
		t.Fatalf("got %v want %v", slots[0].Start, want)
	}
}

func TestCreate(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/Citas" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Fatal("missing request id")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["fechaHora"] != "2025-03-10T09:00" {
			t.Fatalf("unexpected fechaHora: %v", body["fechaHora"])
		}
		if body["tipoConsulta"] != "General" {
			t.Fatalf("unexpected tipoConsulta: %v", body["tipoConsulta"])
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"idCita":         42,
			"nombrePaciente": "Ana Ruiz",
			"fechaHora":      "2025-03-10T09:00:00",
			"tipoConsulta":   "General",
			"estatus":        "A",
		})
	}), session.New("tok-1"))

	got, err := c.Create(context.Background(), Draft{
		PatientName:      "Ana Ruiz",
		ScheduledAt:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		ConsultationType: appointment.ConsultationGeneral,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "42" || got.Status != appointment.StatusActive {
		t.Fatalf("unexpected appointment: %+v", got)
	}
}

func TestCreateConflict(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "el horario ya no está disponible", http.StatusConflict)
	}), nil)

	_, err := c.Create(context.Background(), Draft{
		ScheduledAt:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		ConsultationType: appointment.ConsultationGeneral,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}), nil)

	_, err := c.Get(context.Background(), "999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFilter(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"idCita": "7", "fechaHora": "2025-03-10T10:00", "tipoConsulta": "Control", "estatus": "C"},
		})
	}), nil)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	list, err := c.List(context.Background(), appointment.Filter{Status: appointment.StatusCancelled, From: from, To: to})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if gotQuery != "desde=2025-03-01&estado=C&hasta=2025-03-31" {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
	if len(list) != 1 || list[0].ID != "7" || list[0].Status != appointment.StatusCancelled {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestListEmptyIsNotAnError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]any{})
	}), nil)

	list, err := c.List(context.Background(), appointment.Filter{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestUpdateSendsFullFieldSet(t *testing.T) {
	var body map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/Citas/42" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}), nil)

	err := c.Update(context.Background(), "42", UpdateFields{
		ConsultationType: appointment.ConsultationGeneral,
		Notes:            "dolor de cabeza",
		Status:           appointment.StatusCompleted,
		Observations:     "presión normal",
		Diagnosis:        "migraña",
		Medications:      "Paracetamol 500 mg cada 8h",
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if body["estatus"] != "T" {
		t.Fatalf("unexpected estatus: %v", body["estatus"])
	}
	for _, k := range []string{"tipoConsulta", "notas", "observaciones", "diagnostico", "medicamentos"} {
		if _, ok := body[k]; !ok {
			t.Fatalf("missing field %s in payload %v", k, body)
		}
	}
}

func TestCancel(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/Citas/42" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		calls++
		if calls > 1 {
			// Remote treats a second cancel as already cancelled.
			http.Error(w, "la cita no está activa", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}), nil)

	if err := c.Cancel(context.Background(), "42"); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	// Second cancel is a well-defined conflict, never a crash.
	err := c.Cancel(context.Background(), "42")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on repeat cancel, got %v", err)
	}
}

func TestUnauthenticatedStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token requerido", http.StatusUnauthorized)
	}), nil)

	_, err := c.List(context.Background(), appointment.Filter{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestExpiredTokenShortCircuits(t *testing.T) {
	called := false
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), session.New(expiredJWT))

	_, err := c.List(context.Background(), appointment.Filter{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if called {
		t.Fatal("expected no network call with an expired token")
	}
}

// HS256 token with exp in 2020; signature is irrelevant to expiry parsing.
const expiredJWT = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
	"eyJzdWIiOiJ1c2VyLTEiLCJleHAiOjE1Nzc4MzY4MDB9." +
	"aW52YWxpZC1zaWduYXR1cmU"

func TestNetworkErrorClassification(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused from here on

	c := NewClient(ts.URL, nil, nil).WithLocation(time.UTC)
	_, err := c.List(context.Background(), appointment.Filter{})
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatal("network errors must be retryable")
	}
}

func TestServerErrorClassification(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}), nil)

	_, err := c.List(context.Background(), appointment.Filter{})
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if ae.StatusCode != http.StatusInternalServerError || !ae.Temporary() {
		t.Fatalf("unexpected APIError: %+v", ae)
	}
	if !IsRetryable(err) {
		t.Fatal("5xx must be retryable")
	}
}

func TestMalformedResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}), nil)

	_, err := c.Get(context.Background(), "1")
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected APIError for malformed body, got %v", err)
	}
}
