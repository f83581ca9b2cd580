package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatient_ImplementsEntity(t *testing.T) {
	var e Entity = &Patient{}
	e.SetID("p1")
	e.Meta().MarkPending(time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("WAT", 3600)))

	p := e.(*Patient)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, StatusPending, p.SyncStatus)
	assert.Equal(t, time.UTC, p.LocalUpdatedAt.Location())
}

func TestEntityJSON_OmitsSyncMeta(t *testing.T) {
	now := time.Now()
	p := &Patient{Record: Record{ID: "p1"}, FirstName: "Chioma", LastName: "Okafor"}
	p.SyncStatus = StatusConflict
	p.ServerUpdatedAt = &now

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1","firstName":"Chioma","lastName":"Okafor"}`, string(b))
}

func TestPatient_FullName(t *testing.T) {
	assert.Equal(t, "Chioma Okafor", (&Patient{FirstName: "Chioma", LastName: "Okafor"}).FullName())
	assert.Equal(t, "Chioma Ada Okafor", (&Patient{FirstName: "Chioma", MiddleName: "Ada", LastName: "Okafor"}).FullName())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		v       any
		wantErr string
	}{
		{name: "valid patient", v: &Patient{FirstName: "A", LastName: "B", Email: "a@b.ng", Gender: "female", DateOfBirth: "1990-02-03"}},
		{name: "missing names", v: &Patient{}, wantErr: "Patient.FirstName failed required"},
		{name: "bad email", v: &Patient{FirstName: "A", LastName: "B", Email: "nope"}, wantErr: "Patient.Email failed email"},
		{name: "bad dob", v: &Patient{FirstName: "A", LastName: "B", DateOfBirth: "03/02/1990"}, wantErr: "DateOfBirth failed datetime"},
		{name: "bad lab priority", v: &LabOrder{PatientID: "p", TestName: "FBC", Priority: "asap", Status: "ordered", OrderedAt: time.Now()}, wantErr: "Priority failed oneof"},
		{name: "bill item quantity", v: &Bill{PatientID: "p", Currency: "NGN", Status: "draft", Items: []BillItem{{Description: "x"}}}, wantErr: "Quantity failed gte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.v)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, common.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBill_Recalculate(t *testing.T) {
	b := &Bill{
		Items: []BillItem{
			{Description: "Consultation", Quantity: 1, UnitPrice: decimal.RequireFromString("5000.00")},
			{Description: "Paracetamol", Quantity: 3, UnitPrice: decimal.RequireFromString("150.50")},
		},
		AmountPaid: decimal.RequireFromString("2000"),
	}
	b.Recalculate()

	assert.True(t, decimal.RequireFromString("5451.50").Equal(b.Total))
	assert.True(t, decimal.RequireFromString("3451.50").Equal(b.Balance()))
}

func TestKinds(t *testing.T) {
	k, ok := KindOf(TypePatient)
	require.True(t, ok)
	assert.Equal(t, "patients", k.Table)
	assert.Contains(t, k.SearchFields, "firstName")

	k, ok = KindOf(TypeBranch)
	require.True(t, ok)
	assert.True(t, k.Reference)

	_, ok = KindOf("ward")
	assert.False(t, ok)

	assert.Len(t, EntityKinds(), 6)
	assert.Len(t, ReferenceKinds(), 4)

	kinds := EntityKinds()
	kinds[0].Table = "mutated"
	again, _ := KindOf(TypePatient)
	assert.Equal(t, "patients", again.Table)
}

func TestConflict_Helpers(t *testing.T) {
	c := &Conflict{}
	assert.False(t, c.Resolved())
	assert.True(t, c.ServerDeleted())

	c.ServerData = json.RawMessage(`null`)
	assert.True(t, c.ServerDeleted())

	c.ServerData = json.RawMessage(`{"id":"p1"}`)
	assert.False(t, c.ServerDeleted())

	now := time.Now()
	c.ResolvedAt = &now
	assert.True(t, c.Resolved())

	assert.True(t, ResolutionMerged.Valid())
	assert.False(t, Resolution("both").Valid())
}
