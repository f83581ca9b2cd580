package models

import "time"

type Appointment struct {
	Record
	Reference       string    `json:"reference,omitempty"`
	PatientID       string    `json:"patientId" validate:"required"`
	DoctorID        string    `json:"doctorId,omitempty"`
	Department      string    `json:"department,omitempty"`
	ScheduledAt     time.Time `json:"scheduledAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes,omitempty" validate:"gte=0,lte=480"`
	Status          string    `json:"status" validate:"required,oneof=scheduled checked_in completed cancelled no_show"`
	Reason          string    `json:"reason,omitempty"`
}

// Visit is an OPD, inpatient or emergency encounter.
type Visit struct {
	Record
	PatientID     string     `json:"patientId" validate:"required"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	VisitType     string     `json:"visitType" validate:"required,oneof=opd inpatient emergency"`
	QueueNumber   int        `json:"queueNumber,omitempty" validate:"gte=0"`
	Complaint     string     `json:"complaint,omitempty"`
	Diagnosis     string     `json:"diagnosis,omitempty"`
	Vitals        *Vitals    `json:"vitals,omitempty"`
	StartedAt     time.Time  `json:"startedAt" validate:"required"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
}

type Vitals struct {
	TemperatureC  float64 `json:"temperatureC,omitempty" validate:"gte=0,lte=45"`
	PulseBPM      int     `json:"pulseBpm,omitempty" validate:"gte=0,lte=300"`
	BloodPressure string  `json:"bloodPressure,omitempty"`
	WeightKg      float64 `json:"weightKg,omitempty" validate:"gte=0"`
}

type Prescription struct {
	Record
	PatientID    string `json:"patientId" validate:"required"`
	VisitID      string `json:"visitId,omitempty"`
	PrescriberID string `json:"prescriberId,omitempty"`
	Medication   string `json:"medication" validate:"required"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	DurationDays int    `json:"durationDays,omitempty" validate:"gte=0"`
	Instructions string `json:"instructions,omitempty"`
	Status       string `json:"status" validate:"required,oneof=active dispensed cancelled"`
}

type LabOrder struct {
	Record
	PatientID       string    `json:"patientId" validate:"required"`
	VisitID         string    `json:"visitId,omitempty"`
	AccessionNumber string    `json:"accessionNumber,omitempty"`
	TestName        string    `json:"testName" validate:"required"`
	Priority        string    `json:"priority" validate:"required,oneof=routine urgent stat"`
	Status          string    `json:"status" validate:"required,oneof=ordered collected in_progress completed cancelled"`
	Result          string    `json:"result,omitempty"`
	OrderedAt       time.Time `json:"orderedAt" validate:"required"`
}
