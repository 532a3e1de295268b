package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAvailability_AbsentIsAvailable(t *testing.T) {
	a := Availability{}
	assert.True(t, a.State("ST-01").IsAvailable())
	assert.Equal(t, ResourceAvailable, a.State("ST-01").Status)
}

func TestResourceState_Held(t *testing.T) {
	now := time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)
	s := Held("user-a", "BK100", now, now.Add(5*time.Minute))

	assert.False(t, s.IsAvailable())
	assert.True(t, s.HeldFor("BK100"))
	assert.False(t, s.HeldFor("BK101"))
	assert.False(t, s.HoldExpired(now.Add(4*time.Minute)))
	assert.True(t, s.HoldExpired(now.Add(5*time.Minute)))
}

func TestResourceState_BookedDropsHoldFields(t *testing.T) {
	now := time.Now()
	s := Booked("user-a", "BK100", "Asha", now)

	assert.Equal(t, ResourceBooked, s.Status)
	assert.Nil(t, s.HeldAt)
	assert.Nil(t, s.ExpiresAt)
	assert.False(t, s.HeldFor("BK100"))
	assert.False(t, s.HoldExpired(now.Add(time.Hour)))
}
