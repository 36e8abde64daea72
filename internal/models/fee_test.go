package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFeeObligationOwedNeverNegative(t *testing.T) {
	o := FeeObligation{AmountDue: decimal.NewFromInt(5000), AmountPaid: decimal.NewFromInt(6000)}
	assert.True(t, o.Owed().IsZero())
	assert.True(t, o.Settled())

	o.AmountPaid = decimal.NewFromInt(1500)
	assert.True(t, o.Owed().Equal(decimal.NewFromInt(3500)))
	assert.False(t, o.Settled())
}

func TestSortForAllocation(t *testing.T) {
	y2025 := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	y2026 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	obligations := []FeeObligation{
		{ID: "c", AcademicYearStart: y2026, Term: 1},
		{ID: "b", AcademicYearStart: y2025, Term: 3},
		{ID: "a2", AcademicYearStart: y2025, Term: 1},
		{ID: "a1", AcademicYearStart: y2025, Term: 1},
	}

	SortForAllocation(obligations)

	ids := make([]string, len(obligations))
	for i, o := range obligations {
		ids[i] = o.ID
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, ids)
}
