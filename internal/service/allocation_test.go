package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

func obligation(id string, due, paid int64) models.FeeObligation {
	return models.FeeObligation{ID: id, AmountDue: decimal.NewFromInt(due), AmountPaid: decimal.NewFromInt(paid)}
}

func TestPlanAllocationSpillsInOrder(t *testing.T) {
	obligations := []models.FeeObligation{obligation("a", 5000, 0), obligation("b", 3000, 0), obligation("c", 2000, 0)}

	steps, remaining := planAllocation(decimal.NewFromInt(7000), obligations)

	require.Len(t, steps, 2)
	assert.Equal(t, "a", steps[0].obligation.ID)
	assert.True(t, steps[0].amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "b", steps[1].obligation.ID)
	assert.True(t, steps[1].amount.Equal(decimal.NewFromInt(2000)))
	assert.True(t, remaining.IsZero())
}

func TestPlanAllocationOverpayment(t *testing.T) {
	obligations := []models.FeeObligation{obligation("tuition", 50000, 0), obligation("sports", 5000, 0), obligation("labs", 8000, 0), obligation("library", 3000, 0)}

	steps, remaining := planAllocation(decimal.NewFromInt(70000), obligations)

	require.Len(t, steps, 4)
	total := decimal.Zero
	for _, step := range steps {
		assert.True(t, step.amount.Equal(step.obligation.Owed()))
		total = total.Add(step.amount)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(66000)))
	assert.True(t, remaining.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, "Overpayment of KES 4000.00. All fees cleared.", overpaymentMessage(remaining))
}

func TestPlanAllocationConservesAmount(t *testing.T) {
	obligations := []models.FeeObligation{obligation("a", 5000, 4500), obligation("b", 3000, 0), obligation("c", 2000, 1999)}
	amounts := []string{"0.01", "499.99", "500", "3500.50", "10000"}

	for _, raw := range amounts {
		amount := decimal.RequireFromString(raw)
		steps, remaining := planAllocation(amount, obligations)

		applied := decimal.Zero
		for _, step := range steps {
			assert.False(t, step.amount.GreaterThan(step.obligation.Owed()), raw)
			applied = applied.Add(step.amount)
		}
		assert.True(t, applied.Add(remaining).Equal(amount), raw)
		assert.False(t, remaining.IsNegative(), raw)
	}
}

func TestPlanAllocationSkipsSettledAndNonPositive(t *testing.T) {
	obligations := []models.FeeObligation{obligation("paid", 3000, 3000), obligation("open", 3000, 0)}

	steps, remaining := planAllocation(decimal.NewFromInt(1000), obligations)
	require.Len(t, steps, 1)
	assert.Equal(t, "open", steps[0].obligation.ID)
	assert.True(t, remaining.IsZero())

	steps, remaining = planAllocation(decimal.Zero, obligations)
	assert.Empty(t, steps)
	assert.True(t, remaining.IsZero())
}

func TestPlanAllocationExactMatchLeavesOthersUntouched(t *testing.T) {
	obligations := []models.FeeObligation{obligation("tuition", 50000, 0), obligation("sports", 5000, 0)}

	steps, remaining := planAllocation(decimal.NewFromInt(50000), obligations)

	require.Len(t, steps, 1)
	assert.Equal(t, "tuition", steps[0].obligation.ID)
	assert.True(t, steps[0].amount.Equal(decimal.NewFromInt(50000)))
	assert.True(t, remaining.IsZero())
}

func TestPlanAllocationPartialPayment(t *testing.T) {
	obligations := []models.FeeObligation{obligation("tuition", 50000, 10000)}

	steps, remaining := planAllocation(decimal.NewFromInt(15000), obligations)

	require.Len(t, steps, 1)
	assert.True(t, steps[0].amount.Equal(decimal.NewFromInt(15000)))
	assert.True(t, steps[0].amount.LessThan(steps[0].obligation.Owed()))
	assert.True(t, remaining.IsZero())
}
