package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(Rates{
		GeneralTicketPct: 5,
		EventTicketPct:   5,
		MenuPct:          2.5,
		GatewayVarPct:    2.65,
		GatewayFixed:     700,
		GatewayTaxPct:    19,
	})
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAllocate_WorkedExample(t *testing.T) {
	a, err := newTestEngine().Allocate(100000, 0, false)
	require.NoError(t, err)

	assert.True(t, a.PlatformFeeTickets.Equal(dec("5000")), "platformFeeTickets=%s", a.PlatformFeeTickets)
	assert.True(t, a.PlatformReceives.Equal(dec("5000")))
	assert.True(t, a.GatewayFee.Equal(dec("3482.5")), "gatewayFee=%s", a.GatewayFee)
	assert.True(t, a.GatewayIVA.Equal(dec("661.675")), "gatewayIVA=%s", a.GatewayIVA)
	assert.True(t, a.TotalPaid.Equal(dec("109144.175")), "totalPaid=%s", a.TotalPaid)
	assert.True(t, a.ClubReceives.Equal(dec("100000")))
}

func TestAllocate_Invariants(t *testing.T) {
	cases := []struct {
		tickets, menu int64
		event         bool
	}{
		{100000, 0, false},
		{100000, 0, true},
		{0, 48000, false},
		{123457, 9999, true},
		{1, 1, false},
		{0, 0, false},
	}

	e := newTestEngine()
	for _, tc := range cases {
		a, err := e.Allocate(tc.tickets, tc.menu, tc.event)
		require.NoError(t, err)

		assert.True(t, a.PlatformFeeTickets.Add(a.PlatformFeeMenu).Equal(a.PlatformReceives),
			"platform fee sum must be exact for %+v", tc)
		assert.True(t, a.ClubReceives.Equal(decimal.NewFromInt(tc.tickets+tc.menu)),
			"club must receive full listed value for %+v", tc)
	}
}

func TestAllocate_MenuRate(t *testing.T) {
	a, err := newTestEngine().Allocate(0, 100000, false)
	require.NoError(t, err)

	assert.True(t, a.PlatformFeeMenu.Equal(dec("2500")))
	assert.True(t, a.PlatformFeeTickets.IsZero())
}

func TestAllocate_GatewaySplitSumsBack(t *testing.T) {
	a, err := newTestEngine().Allocate(75000, 25000, false)
	require.NoError(t, err)

	gatewayTotal := a.GatewayFee.Add(a.GatewayIVA)
	split := a.GatewayFeeTickets.Add(a.GatewayFeeMenu)
	assert.True(t, split.Sub(gatewayTotal).Abs().LessThanOrEqual(decimal.NewFromInt(1)),
		"split %s vs gateway total %s", split, gatewayTotal)

	// 75/25 weights
	assert.True(t, a.GatewayFeeTickets.GreaterThan(a.GatewayFeeMenu))
}

func TestAllocate_RejectsNegativeSubtotal(t *testing.T) {
	_, err := newTestEngine().Allocate(-1, 0, false)
	assert.Error(t, err)
}

func TestValidate_RejectsTamperedAllocation(t *testing.T) {
	a, err := newTestEngine().Allocate(100000, 50000, false)
	require.NoError(t, err)

	tampered := a
	tampered.PlatformReceives = tampered.PlatformReceives.Add(dec("10"))
	assert.Error(t, tampered.Validate())

	tampered = a
	tampered.TotalPaid = tampered.TotalPaid.Add(dec("2"))
	assert.Error(t, tampered.Validate())

	tampered = a
	tampered.ClubReceives = tampered.ClubReceives.Sub(dec("1"))
	assert.Error(t, tampered.Validate())
}

func TestTotalPaidCents_RoundsUp(t *testing.T) {
	a, err := newTestEngine().Allocate(100000, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(109145), a.TotalPaidCents())
}
