package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{PurchaseStatusUnpaid, PurchaseStatusPaid, true},
		{PurchaseStatusUnpaid, PurchaseStatusCancelled, true},
		{PurchaseStatusPaid, PurchaseStatusReturned, true},
		{PurchaseStatusUnpaid, PurchaseStatusReturned, false},
		{PurchaseStatusPaid, PurchaseStatusPaid, false},
		{PurchaseStatusPaid, PurchaseStatusCancelled, false},
		{PurchaseStatusReturned, PurchaseStatusPaid, false},
		{PurchaseStatusCancelled, PurchaseStatusPaid, false},
		{"UNKNOWN", PurchaseStatusPaid, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransitionTo(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRoleSatisfies(t *testing.T) {
	assert.True(t, RoleSatisfies(RoleSuperAdmin, RoleAdmin))
	assert.True(t, RoleSatisfies(RoleSuperAdmin, RoleSuperAdmin))
	assert.True(t, RoleSatisfies(RoleAdmin, RoleAdmin))
	assert.True(t, RoleSatisfies(RoleNone, RoleNone))
	assert.False(t, RoleSatisfies(RoleAdmin, RoleSuperAdmin))
	assert.False(t, RoleSatisfies(RoleNone, RoleAdmin))
	assert.False(t, RoleSatisfies("ROOT", RoleNone))
	assert.False(t, ValidRole("ROOT"))
}

func TestCalculateTotal(t *testing.T) {
	order := &PurchaseOrder{Details: []PurchaseDetail{
		{Quantity: 3, PurchasePrice: decimal.RequireFromString("12.50")},
		{Quantity: 2, PurchasePrice: decimal.RequireFromString("0.10")},
	}}
	assert.Equal(t, "37.70", order.CalculateTotal().StringFixed(2))
	assert.True(t, (&PurchaseOrder{}).CalculateTotal().IsZero())
}

func TestBookCanAdjust(t *testing.T) {
	b := &Book{Stock: 3}
	assert.True(t, b.CanAdjust(-3))
	assert.True(t, b.CanAdjust(5))
	assert.False(t, b.CanAdjust(-4))
}

func TestFinancialSummaryNetProfit(t *testing.T) {
	s := &FinancialSummary{
		TotalIncome:  decimal.RequireFromString("100.00"),
		TotalExpense: decimal.RequireFromString("120.50"),
	}
	assert.Equal(t, "-20.50", s.NetProfit().StringFixed(2))
}
