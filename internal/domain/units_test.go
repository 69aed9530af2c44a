package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultUnits(t *testing.T) *UnitTable {
	t.Helper()
	units, err := DefaultUnits()
	require.NoError(t, err)
	return units
}

func TestUnitTable_Resolve(t *testing.T) {
	units := defaultUnits(t)

	tests := []struct {
		name      string
		unit      string
		symbol    string
		dimension string
	}{
		{"symbol", "cm", "cm", "length"},
		{"alias", "centimetres", "cm", "length"},
		{"case insensitive", "KM", "km", "length"},
		{"trailing dot", "in.", "in", "length"},
		{"time", "hours", "h", "time"},
		{"mass", "lbs", "lb", "mass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := units.Resolve(tt.unit)
			require.NoError(t, err)
			assert.Equal(t, tt.symbol, u.Symbol)
			assert.Equal(t, tt.dimension, u.Dimension)
		})
	}

	_, err := units.Resolve("furlongs-per-fortnight")
	assert.ErrorIs(t, err, ErrUnknownUnit)
	_, err = units.Resolve("")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestUnitTable_Normalize(t *testing.T) {
	units := defaultUnits(t)

	m, err := units.Normalize(Quantity{Value: 7.5, Unit: "cm"})
	require.NoError(t, err)
	assert.InDelta(t, 0.075, m.Value, 1e-12)
	assert.Equal(t, "m", m.Unit)
	assert.Equal(t, "length", m.Dimension)

	m, err = units.Normalize(Quantity{Value: 2, Unit: "h"})
	require.NoError(t, err)
	assert.InDelta(t, 7200, m.Value, 1e-9)
	assert.Equal(t, "s", m.Unit)
}

func TestUnitTable_ConvertRoundTrip(t *testing.T) {
	units := defaultUnits(t)

	pairs := [][2]string{{"cm", "in"}, {"km", "mi"}, {"h", "min"}, {"kg", "lb"}, {"l", "gal"}}
	for _, p := range pairs {
		q := Quantity{Value: 123.456, Unit: p[0]}
		there, err := units.Convert(q, p[1])
		require.NoError(t, err)
		back, err := units.Convert(there, p[0])
		require.NoError(t, err)
		assert.True(t, NearlyEqual(q.Value, back.Value), "%s -> %s -> %s: %v", p[0], p[1], p[0], back.Value)
		assert.True(t, units.SameQuantity(q, there))
	}

	_, err := units.Convert(Quantity{Value: 1, Unit: "kg"}, "m")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUnitTable_SameObject(t *testing.T) {
	units := defaultUnits(t)

	assert.True(t, units.SameObject(TextObject("Round"), TextObject("round")))
	assert.False(t, units.SameObject(TextObject("round"), TextObject("square")))
	assert.True(t, units.SameObject(NumericObject(24, "h"), NumericObject(1, "day")))
	assert.False(t, units.SameObject(NumericObject(1, "m"), NumericObject(1, "kg")))
	assert.False(t, units.SameObject(TextObject("1 m"), NumericObject(1, "m")))
}

func TestCanonical(t *testing.T) {
	units := defaultUnits(t)

	c, err := units.Canonical("mass")
	require.NoError(t, err)
	assert.Equal(t, "kg", c)

	_, err = units.Canonical("temperature")
	assert.ErrorIs(t, err, ErrUnknownDimension)
}

func TestParseUnitTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero factor", "dimensions:\n  - name: length\n    canonical: m\n    units:\n      - {symbol: m, factor: 0}\n"},
		{"missing canonical", "dimensions:\n  - name: length\n    canonical: m\n    units:\n      - {symbol: cm, factor: 0.01}\n"},
		{"canonical factor", "dimensions:\n  - name: length\n    canonical: cm\n    units:\n      - {symbol: cm, factor: 0.01}\n"},
		{"duplicate alias", "dimensions:\n  - name: length\n    canonical: m\n    units:\n      - {symbol: m, factor: 1}\n  - name: mass\n    canonical: kg\n    units:\n      - {symbol: kg, factor: 1, aliases: [m]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUnitTable([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in    string
		value float64
		unit  string
	}{
		{"7.5 cm", 7.5, "cm"},
		{"7.5cm", 7.5, "cm"},
		{"1,200 km", 1200, "km"},
		{"24", 24, ""},
		{"-3 m", -3, "m"},
		{"  60 minutes ", 60, "minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			q, err := ParseQuantity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.value, q.Value)
			assert.Equal(t, tt.unit, q.Unit)
		})
	}

	for _, bad := range []string{"", "cm", "big", "."} {
		_, err := ParseQuantity(bad)
		assert.ErrorIs(t, err, ErrMalformedQuantity, bad)
	}
}

func TestNearlyEqual(t *testing.T) {
	assert.True(t, NearlyEqual(0.1+0.2, 0.3))
	assert.True(t, NearlyEqual(1e12, 1e12+1e2))
	assert.False(t, NearlyEqual(1, 1.001))
	assert.False(t, NearlyEqual(0, 1e-6))
}
