package marketdata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"43250.5", "43250.50"},
		{"1", "1.00"},
		{"0.5", "0.5000"},
		{"0.01", "0.0100"},
		{"0.00012345", "0.00012345"},
		{"0.000001", "0.00000100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(decimal.RequireFromString(tt.in)), "price %s", tt.in)
	}
}

func TestFormatPercent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "+2.50%", FormatPercent(decimal.RequireFromString("2.5")))
	assert.Equal(t, "+0.00%", FormatPercent(decimal.Zero))
	assert.Equal(t, "-3.17%", FormatPercent(decimal.RequireFromString("-3.171")))
}

func TestFormatVolume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"2500000000", "$2.50B"},
		{"1000000000", "$1.00B"},
		{"34500000", "$34.50M"},
		{"120000", "$120.00K"},
		{"999.99", "$999.99"},
		{"0", "$0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatVolume(decimal.RequireFromString(tt.in)), "volume %s", tt.in)
	}
}
