package models

// Kind describes how an entity type is stored locally. Field names are JSON
// keys of the domain struct.
type Kind struct {
	Type         EntityType
	Table        string
	UniqueFields []string
	SearchFields []string
	Reference    bool
}

var entityKinds = []Kind{
	{
		Type:         TypePatient,
		Table:        "patients",
		UniqueFields: []string{"patientNumber", "phone", "email"},
		SearchFields: []string{"firstName", "middleName", "lastName", "patientNumber", "phone", "email"},
	},
	{
		Type:         TypeAppointment,
		Table:        "appointments",
		UniqueFields: []string{"reference"},
		SearchFields: []string{"patientId", "doctorId", "department", "reason"},
	},
	{
		Type:         TypeVisit,
		Table:        "visits",
		SearchFields: []string{"patientId", "complaint", "diagnosis"},
	},
	{
		Type:         TypePrescription,
		Table:        "prescriptions",
		SearchFields: []string{"patientId", "medication"},
	},
	{
		Type:         TypeLabOrder,
		Table:        "lab_orders",
		UniqueFields: []string{"accessionNumber"},
		SearchFields: []string{"patientId", "testName", "accessionNumber"},
	},
	{
		Type:         TypeBill,
		Table:        "bills",
		UniqueFields: []string{"invoiceNumber"},
		SearchFields: []string{"patientId", "invoiceNumber"},
	},
}

var referenceKinds = []Kind{
	{Type: TypeStaff, Table: "staff", Reference: true},
	{Type: TypeHospital, Table: "hospitals", Reference: true},
	{Type: TypeBranch, Table: "branches", Reference: true},
	{Type: TypeRole, Table: "roles", Reference: true},
}

var kindsByType = func() map[EntityType]Kind {
	m := make(map[EntityType]Kind, len(entityKinds)+len(referenceKinds))
	for _, k := range entityKinds {
		m[k.Type] = k
	}
	for _, k := range referenceKinds {
		m[k.Type] = k
	}
	return m
}()

// KindOf looks up the storage descriptor for t.
func KindOf(t EntityType) (Kind, bool) {
	k, ok := kindsByType[t]
	return k, ok
}

// EntityKinds lists the mutable kinds in a fixed order.
func EntityKinds() []Kind {
	return append([]Kind(nil), entityKinds...)
}

// ReferenceKinds lists the read-only kinds refreshed from the authority.
func ReferenceKinds() []Kind {
	return append([]Kind(nil), referenceKinds...)
}
