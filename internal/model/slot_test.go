package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSlotStart(t *testing.T) {
	tests := []struct {
		slot string
		want string
	}{
		{"7:00-8:00", "07:00"},
		{"09:30 - 10:30", "09:30"},
		{"7:00 PM - 8:00 PM", "19:00"},
		{"12:15 AM-1:00 AM", "00:15"},
		{"6", "06:00"},
	}

	for _, tt := range tests {
		got, err := NormalizeSlotStart(tt.slot)
		require.NoError(t, err, tt.slot)
		assert.Equal(t, tt.want, got, tt.slot)
	}

	_, err := NormalizeSlotStart("morning")
	assert.Error(t, err)
}

func TestSlotInstantUsesLocation(t *testing.T) {
	date, err := ParseDate("2026-03-10")
	require.NoError(t, err)

	ist := time.FixedZone("IST", 5*3600+1800)
	got, err := SlotInstant(date, "7:00-8:00", ist)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC), got)
}

func TestPanelRequiresFasting(t *testing.T) {
	assert.True(t, PanelRequiresFasting([]string{"CBC", "lipid"}))
	assert.False(t, PanelRequiresFasting([]string{"CBC", "TSH", "UNKNOWN"}))
}

func TestPartnerServes(t *testing.T) {
	p := &Partner{ServiceablePincodes: []string{"400058"}, ServiceableCities: []string{"Mumbai"}}
	assert.True(t, p.Serves(Area{Pincode: "400058", City: "Mumbai"}))
	assert.False(t, p.Serves(Area{Pincode: "400001", City: "Mumbai"}))
	// no pincode on the work item falls back to the city
	assert.True(t, p.Serves(Area{City: "mumbai"}))

	cityOnly := &Partner{ServiceableCities: []string{"Pune"}}
	assert.True(t, cityOnly.Serves(Area{Pincode: "411001", City: "Pune"}))
	assert.False(t, cityOnly.Serves(Area{Pincode: "411001"}))
}

func TestPharmacyStatusAtLeast(t *testing.T) {
	assert.True(t, PharmacyOutForDelivery.AtLeast(PharmacyPickupArranged))
	assert.False(t, PharmacyReady.AtLeast(PharmacyPickupArranged))
	assert.False(t, PharmacyIssue.AtLeast(PharmacyPrescriptionCreated))
}
