package patient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := Classifier{
		NewPatientDuration:       60 * time.Minute,
		ReturningPatientDuration: 30 * time.Minute,
	}

	tests := []struct {
		name         string
		match        *Patient
		wantCategory Category
		wantDuration time.Duration
	}{
		{
			name:         "no prior record is new",
			match:        nil,
			wantCategory: CategoryNew,
			wantDuration: 60 * time.Minute,
		},
		{
			name:         "prior record is returning",
			match:        &Patient{FirstName: "Jane", LastName: "Doe"},
			wantCategory: CategoryReturning,
			wantDuration: 30 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.match)
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.Equal(t, tt.wantDuration, got.Duration)

			// Deterministic: same input, same output.
			assert.Equal(t, got, c.Classify(tt.match))
		})
	}
}

func TestMemoryStoreLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Patient{FirstName: "Jane", LastName: "Doe", DateOfBirth: dob}
	require.NoError(t, store.Upsert(ctx, p))

	t.Run("case-insensitive match", func(t *testing.T) {
		got, err := store.Lookup(ctx, "jane", "DOE", dob)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	})

	t.Run("different dob is no match", func(t *testing.T) {
		_, err := store.Lookup(ctx, "Jane", "Doe", dob.AddDate(0, 0, 1))
		assert.ErrorIs(t, err, ErrPatientNotFound)
	})

	t.Run("insurance update preserves identity", func(t *testing.T) {
		got, err := store.GetByID(ctx, p.ID)
		require.NoError(t, err)

		got.Insurance = &Insurance{Carrier: "BlueCross", MemberID: "M123", GroupID: "G9"}
		require.NoError(t, store.Upsert(ctx, got))

		again, err := store.GetByID(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, again.Insurance)
		assert.Equal(t, "BlueCross", again.Insurance.Carrier)
		assert.Equal(t, "Jane", again.FirstName)
	})
}
