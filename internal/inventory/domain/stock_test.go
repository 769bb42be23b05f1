package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, LevelCritical, Classify(0, 10))
	assert.Equal(t, LevelCritical, Classify(5, 10))
	assert.Equal(t, LevelLow, Classify(6, 10))
	assert.Equal(t, LevelLow, Classify(10, 10))
	assert.Equal(t, LevelOK, Classify(11, 10))
}

func TestDonation_Normalize(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	d, err := Donation{ItemName: " rice ", Quantity: 3}.Normalize(now)
	require.NoError(t, err)
	assert.Equal(t, "rice", d.ItemName)
	assert.Equal(t, AnonymousDonor, d.DonorID)
	assert.Equal(t, now, d.DonatedAt)

	_, err = Donation{ItemName: "", Quantity: 3}.Normalize(now)
	assert.ErrorIs(t, err, ErrInvalidDonation)

	_, err = Donation{ItemName: "rice", Quantity: 0}.Normalize(now)
	assert.ErrorIs(t, err, ErrInvalidDonation)
}
