// Package appointment defines the appointment domain model shared by the
// citas API client and its controllers. Appointments live in the remote
// store; this package only describes them and the transitions the client
// is allowed to request.
package appointment

import (
	"fmt"
	"strings"
	"time"
)

// Status is the appointment lifecycle state. The wire format uses the
// single-letter codes from the citas API.
type Status string

const (
	StatusActive    Status = "A"
	StatusCancelled Status = "C"
	StatusCompleted Status = "T"
)

// Valid reports whether s is one of the known wire codes.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusCancelled:
		return "Cancelled"
	case StatusCompleted:
		return "Completed"
	}
	return fmt.Sprintf("Unknown(%q)", string(s))
}

// ParseStatus accepts a wire code or an English status name.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "a", "active":
		return StatusActive, nil
	case "c", "cancelled", "canceled":
		return StatusCancelled, nil
	case "t", "completed":
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("appointment: unknown status %q", v)
}

// ConsultationType is one of the canonical consultation labels accepted by
// the remote store. The set is fixed here; the wire carries the label as-is.
type ConsultationType string

const (
	ConsultationGeneral         ConsultationType = "General"
	ConsultationControl         ConsultationType = "Control"
	ConsultationPharmacological ConsultationType = "Farmacológica"
	ConsultationFollowUp        ConsultationType = "Seguimiento"
)

// ConsultationTypes lists the canonical labels in display order.
func ConsultationTypes() []ConsultationType {
	return []ConsultationType{
		ConsultationGeneral,
		ConsultationControl,
		ConsultationPharmacological,
		ConsultationFollowUp,
	}
}

// Valid reports whether t is one of the canonical labels.
func (t ConsultationType) Valid() bool {
	for _, c := range ConsultationTypes() {
		if t == c {
			return true
		}
	}
	return false
}

// Appointment is the central entity. ScheduledAt is local civil time in the
// clinic's timezone; the wire format carries no zone information.
type Appointment struct {
	ID               string
	PatientName      string
	ScheduledAt      time.Time
	ConsultationType ConsultationType
	Notes            string
	Status           Status
	Observations     string
	Diagnosis        string
	Medications      string
}

// CanCancel reports whether a cancel transition may be requested.
// Cancelled and Completed are terminal.
func (a Appointment) CanCancel() bool {
	return a.Status == StatusActive
}

// CanComplete reports whether the completed transition may be requested.
func (a Appointment) CanComplete() bool {
	return a.Status == StatusActive
}

// CanEditClinical reports whether observations, diagnosis and medications
// are still mutable. Once the record leaves Active it is read-only.
func (a Appointment) CanEditClinical() bool {
	return a.Status == StatusActive
}

// Filter narrows a list query. Zero values mean "no constraint".
type Filter struct {
	Status Status
	From   time.Time
	To     time.Time
}
