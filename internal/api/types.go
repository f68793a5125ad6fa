package api

import (
	"github.com/healthconnect/healthconnect-server/internal/appointment"
	"github.com/healthconnect/healthconnect-server/internal/patient"
	"github.com/healthconnect/healthconnect-server/internal/record"
	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

// Response is the JSON envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	UserID  *int64 `json:"user_id,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Requests

type RegisterPatientRequest struct {
	FullName         string `json:"full_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Password         string `json:"password"`
	BloodType        string `json:"blood_type"`
	EmergencyContact string `json:"emergency_contact"`
}

type UpdateApprovalRequest struct {
	UserID             int64 `json:"user_id"`
	IsApproved         *bool `json:"is_approved"`
	DeleteOnDisapprove bool  `json:"delete_on_disapprove"`
}

type BookAppointmentRequest struct {
	PatientID      int64  `json:"patient_id"`
	HealthWorkerID int64  `json:"health_worker_id"`
	Date           string `json:"date"` // YYYY-MM-DD
	Time           string `json:"time"` // HH:MM
	Reason         string `json:"reason"`
}

type MedicalRecordRequest struct {
	PatientID      int64  `json:"patient_id"`
	HealthWorkerID int64  `json:"health_worker_id"`
	VisitDate      string `json:"visit_date"`
	Diagnosis      string `json:"diagnosis"`
	Treatment      string `json:"treatment"`
	Notes          string `json:"notes"`
}

type ImmunizationRecordRequest struct {
	PatientID      int64  `json:"patient_id"`
	HealthWorkerID int64  `json:"health_worker_id"`
	Vaccine        string `json:"vaccine"`
	DoseNumber     int    `json:"dose_number"`
	AdministeredOn string `json:"administered_on"`
	NextDoseDue    string `json:"next_dose_due"`
}

// Responses

type PatientResponse struct {
	UserID           int64   `json:"user_id"`
	PatientID        int64   `json:"patient_id"`
	FullName         string  `json:"full_name"`
	Email            *string `json:"email,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	IsApproved       bool    `json:"is_approved"`
	BloodType        *string `json:"blood_type,omitempty"`
	EmergencyContact *string `json:"emergency_contact,omitempty"`
	ApprovedAt       *string `json:"approved_at,omitempty"`
}

func toPatientResponse(d *patient.Detail) PatientResponse {
	resp := PatientResponse{
		UserID:           d.User.ID,
		PatientID:        d.Patient.ID,
		FullName:         d.User.FullName,
		Email:            d.User.Email,
		Phone:            d.User.Phone,
		IsApproved:       d.User.IsApproved,
		BloodType:        d.BloodType,
		EmergencyContact: d.EmergencyContact,
	}
	if d.ApprovedAt != nil {
		s := d.ApprovedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.ApprovedAt = &s
	}
	return resp
}

type AppointmentResponse struct {
	ID             int64   `json:"id"`
	PatientID      int64   `json:"patient_id"`
	HealthWorkerID int64   `json:"health_worker_id"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Status         string  `json:"status"`
	Reason         *string `json:"reason,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PatientID:      a.PatientID,
		HealthWorkerID: a.HealthWorkerID,
		Date:           appointment.DateKey(a.Date),
		Time:           a.Time.String(),
		Status:         string(a.Status),
		Reason:         a.Reason,
	}
}

type DayResponse struct {
	Date      string `json:"date"`
	Status    string `json:"status"`
	Capacity  int    `json:"capacity"`
	Remaining int    `json:"remaining"`
}

func toDayResponses(days []schedule.DayAvailability) []DayResponse {
	out := make([]DayResponse, len(days))
	for i, d := range days {
		out[i] = DayResponse{
			Date:      appointment.DateKey(d.Date),
			Status:    string(d.Status),
			Capacity:  d.Capacity,
			Remaining: d.Remaining,
		}
	}
	return out
}

type MedicalRecordResponse struct {
	ID             int64   `json:"id"`
	PatientID      int64   `json:"patient_id"`
	HealthWorkerID int64   `json:"health_worker_id"`
	VisitDate      string  `json:"visit_date"`
	Diagnosis      string  `json:"diagnosis"`
	Treatment      *string `json:"treatment,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

func toMedicalResponse(m *record.MedicalRecord) MedicalRecordResponse {
	return MedicalRecordResponse{
		ID:             m.ID,
		PatientID:      m.PatientID,
		HealthWorkerID: m.HealthWorkerID,
		VisitDate:      m.VisitDate.Format("2006-01-02"),
		Diagnosis:      m.Diagnosis,
		Treatment:      m.Treatment,
		Notes:          m.Notes,
	}
}

type ImmunizationRecordResponse struct {
	ID             int64   `json:"id"`
	PatientID      int64   `json:"patient_id"`
	HealthWorkerID int64   `json:"health_worker_id"`
	Vaccine        string  `json:"vaccine"`
	DoseNumber     int     `json:"dose_number"`
	AdministeredOn string  `json:"administered_on"`
	NextDoseDue    *string `json:"next_dose_due,omitempty"`
}

func toImmunizationResponse(rec *record.ImmunizationRecord) ImmunizationRecordResponse {
	out := ImmunizationRecordResponse{
		ID:             rec.ID,
		PatientID:      rec.PatientID,
		HealthWorkerID: rec.HealthWorkerID,
		Vaccine:        rec.Vaccine,
		DoseNumber:     rec.DoseNumber,
		AdministeredOn: rec.AdministeredOn.Format("2006-01-02"),
	}
	if rec.NextDoseDue != nil {
		s := rec.NextDoseDue.Format("2006-01-02")
		out.NextDoseDue = &s
	}
	return out
}

type HistoryResponse struct {
	Medical       []MedicalRecordResponse      `json:"medical"`
	Immunizations []ImmunizationRecordResponse `json:"immunizations"`
}

func toHistoryResponse(h *record.PatientHistory) HistoryResponse {
	out := HistoryResponse{
		Medical:       make([]MedicalRecordResponse, 0, len(h.Medical)),
		Immunizations: make([]ImmunizationRecordResponse, 0, len(h.Immunizations)),
	}
	for i := range h.Medical {
		out.Medical = append(out.Medical, toMedicalResponse(&h.Medical[i]))
	}
	for i := range h.Immunizations {
		out.Immunizations = append(out.Immunizations, toImmunizationResponse(&h.Immunizations[i]))
	}
	return out
}
