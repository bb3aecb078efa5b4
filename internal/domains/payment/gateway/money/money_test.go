package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnitsCurrencyAware(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"19.99", "USD", 1999},
		{"149.99", "INR", 14999},
		{"0.5", "eur", 50},
		{"500", "JPY", 500},
		{"120000", "VND", 120000},
		{"10.005", "USD", 1001},
	}

	for _, tt := range tests {
		t.Run(tt.currency+"_"+tt.amount, func(t *testing.T) {
			got := MinorUnits(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	for _, currency := range []string{"USD", "EUR", "INR", "GBP", "JPY", "KRW"} {
		for _, minor := range []int64{0, 1, 99, 100, 14999, 123456789} {
			back := MinorUnits(MajorUnits(minor, currency), currency)
			assert.Equal(t, minor, back, "%s %d", currency, minor)
		}
	}
}

func TestSubunitsAlwaysTimesHundred(t *testing.T) {
	assert.Equal(t, int64(14999), Subunits(decimal.RequireFromString("149.99")))
	assert.Equal(t, int64(50000), Subunits(decimal.RequireFromString("500")))

	for _, n := range []int64{1, 250, 14999, 99999999} {
		assert.Equal(t, n, Subunits(FromSubunits(n)))
	}
}

func TestFixed2(t *testing.T) {
	assert.Equal(t, "149.90", Fixed2(decimal.RequireFromString("149.9")))
	assert.Equal(t, "10.00", Fixed2(decimal.NewFromInt(10)))

	parsed, err := ParseFixed2("149.90")
	require.NoError(t, err)
	assert.Equal(t, "149.90", Fixed2(parsed))

	truncated, err := ParseFixed2("1.239")
	require.NoError(t, err)
	assert.True(t, truncated.Equal(decimal.RequireFromString("1.23")))

	_, err = ParseFixed2("abc")
	assert.Error(t, err)
}

func TestParseSubunits(t *testing.T) {
	amount, err := ParseSubunits("14999")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("149.99")))

	_, err = ParseSubunits("1.5")
	assert.Error(t, err)
}
