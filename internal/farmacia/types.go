package farmacia

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/farmacia-suite/citas-client/internal/appointment"
)

// Slot is one bookable time position for a given date, as computed by the
// remote store. Start is clinic-local civil time.
type Slot struct {
	Start     time.Time
	Available bool
}

// Draft is the payload for creating an appointment. PatientName is optional
// on the wire; flows that require it validate before calling Create.
type Draft struct {
	PatientName      string
	ScheduledAt      time.Time
	ConsultationType appointment.ConsultationType
	Notes            string
}

// UpdateFields is the full field set expected by PUT /api/Citas/{id}. The
// remote does not support partial patches: omitted fields are overwritten
// with defaults, so callers always send everything.
type UpdateFields struct {
	ConsultationType appointment.ConsultationType
	Notes            string
	Status           appointment.Status
	Observations     string
	Diagnosis        string
	Medications      string
}

// Wire layouts for fechaHora. The API emits civil timestamps without zone
// information; different endpoints include or omit seconds.
var fechaHoraLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

const (
	diaLayout       = "2006-01-02"
	fechaHoraLayout = "2006-01-02T15:04"
)

type slotWire struct {
	FechaHora  string `json:"fechaHora"`
	HoraTexto  string `json:"horaTexto"`
	Disponible bool   `json:"disponible"`
}

type citaWire struct {
	IDCita         json.Number `json:"idCita"`
	NombrePaciente string      `json:"nombrePaciente"`
	FechaHora      string      `json:"fechaHora"`
	TipoConsulta   string      `json:"tipoConsulta"`
	Notas          string      `json:"notas"`
	Estatus        string      `json:"estatus"`
	Observaciones  string      `json:"observaciones"`
	Diagnostico    string      `json:"diagnostico"`
	Medicamentos   string      `json:"medicamentos"`
}

type crearCitaWire struct {
	FechaHora      string `json:"fechaHora"`
	TipoConsulta   string `json:"tipoConsulta"`
	Notas          string `json:"notas"`
	NombrePaciente string `json:"nombrePaciente,omitempty"`
}

type actualizarCitaWire struct {
	TipoConsulta  string `json:"tipoConsulta"`
	Notas         string `json:"notas"`
	Estatus       string `json:"estatus"`
	Observaciones string `json:"observaciones,omitempty"`
	Diagnostico   string `json:"diagnostico,omitempty"`
	Medicamentos  string `json:"medicamentos,omitempty"`
}

func parseFechaHora(v string, loc *time.Location) (time.Time, error) {
	for _, layout := range fechaHoraLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	// Some deployments tag the zone; accept and re-anchor to clinic time.
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("farmacia: unparseable fechaHora %q", v)
}

func (w citaWire) toDomain(loc *time.Location) (appointment.Appointment, error) {
	at, err := parseFechaHora(w.FechaHora, loc)
	if err != nil {
		return appointment.Appointment{}, err
	}
	status := appointment.Status(w.Estatus)
	if !status.Valid() {
		return appointment.Appointment{}, fmt.Errorf("farmacia: unknown estatus %q", w.Estatus)
	}
	return appointment.Appointment{
		ID:               w.IDCita.String(),
		PatientName:      w.NombrePaciente,
		ScheduledAt:      at,
		ConsultationType: appointment.ConsultationType(w.TipoConsulta),
		Notes:            w.Notas,
		Status:           status,
		Observations:     w.Observaciones,
		Diagnosis:        w.Diagnostico,
		Medications:      w.Medicamentos,
	}, nil
}

func (w slotWire) toDomain(day time.Time, loc *time.Location) (Slot, error) {
	if w.FechaHora != "" {
		start, err := parseFechaHora(w.FechaHora, loc)
		if err != nil {
			return Slot{}, err
		}
		return Slot{Start: start, Available: w.Disponible}, nil
	}
	// Fall back to horaTexto ("HH:MM") anchored on the requested day.
	hm, err := time.Parse("15:04", w.HoraTexto)
	if err != nil {
		return Slot{}, fmt.Errorf("farmacia: unparseable horaTexto %q", w.HoraTexto)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, loc)
	return Slot{Start: start, Available: w.Disponible}, nil
}
