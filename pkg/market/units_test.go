package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	wei, err := ParseEther("0.05")
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", wei.String())

	usdc, err := ParseUnits("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), usdc.Int64())

	_, err = ParseEther("-1")
	assert.Error(t, err)
	_, err = ParseEther("abc")
	assert.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FormatEther(wei))
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
}

func TestPercentAndMultiple(t *testing.T) {
	assert.Equal(t, int64(125), PercentOf(big.NewInt(1000), 12.5).Int64())
	assert.Equal(t, int64(333), PercentOf(big.NewInt(1000), 33.333).Int64())
	assert.Equal(t, int64(250), MultipleOf(big.NewInt(100), 2.5).Int64())
	assert.Equal(t, int64(0), PercentOf(nil, 50).Int64())
}

func TestSlippage(t *testing.T) {
	cases := map[string]int64{"none": 1000, "1%": 990, "2%": 980, "10%": 900}
	for raw, want := range cases {
		s, err := ParseSlippage(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, s.Apply(big.NewInt(1000)).Int64(), raw)
		assert.Equal(t, raw, s.String())
	}

	// rounds down
	assert.Equal(t, int64(899), SlippageTenPercent.Apply(big.NewInt(999)).Int64())
	assert.Equal(t, int64(0), SlippageTwoPercent.Apply(nil).Int64())

	_, err := ParseSlippage("5%")
	assert.Error(t, err)
}
