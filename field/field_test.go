package field_test

import (
	"math/big"
	"testing"

	"github.com/shieldpool/go-sdk/field"
	"github.com/stretchr/testify/require"
)

func TestNegate(t *testing.T) {
	require.Zero(t, field.Negate(big.NewInt(0)).Sign())

	fee := big.NewInt(5000)
	encoded := field.Negate(fee)
	require.Equal(t, new(big.Int).Sub(field.FieldSize, fee), encoded)
	require.True(t, field.IsNegativeEncoding(encoded))
	require.Zero(t, field.Mod(new(big.Int).Add(encoded, fee)).Sign())
}

func TestMod(t *testing.T) {
	tests := []struct {
		name     string
		in       *big.Int
		expected *big.Int
	}{
		{"zero", big.NewInt(0), big.NewInt(0)},
		{"positive", big.NewInt(42), big.NewInt(42)},
		{"negative wraps", big.NewInt(-1), new(big.Int).Sub(field.FieldSize, big.NewInt(1))},
		{"field size", new(big.Int).Set(field.FieldSize), big.NewInt(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, 0, tt.expected.Cmp(field.Mod(tt.in)))
		})
	}
}

func TestFitsU64(t *testing.T) {
	require.True(t, field.FitsU64(big.NewInt(0)))
	require.True(t, field.FitsU64(field.MaxU64))
	require.False(t, field.FitsU64(new(big.Int).Add(field.MaxU64, big.NewInt(1))))
	require.False(t, field.FitsU64(big.NewInt(-1)))
	require.False(t, field.FitsU64(nil))
}

func TestByteEncodings(t *testing.T) {
	x := big.NewInt(0x0102)
	be := field.ToBytesBE(x)
	le := field.ToBytesLE(x)
	require.Equal(t, byte(0x01), be[30])
	require.Equal(t, byte(0x02), be[31])
	require.Equal(t, byte(0x02), le[0])
	require.Equal(t, byte(0x01), le[1])
	require.Equal(t, x, field.FromBytesBE(be[:]))
	require.Equal(t, x, field.FromBytesLE(le[:]))
}

func TestHashAndTruncateToCircuit(t *testing.T) {
	h := field.HashAndTruncateToCircuit([]byte("asset"))
	require.LessOrEqual(t, h.BitLen(), 248)
	require.Equal(t, h, field.HashAndTruncateToCircuit([]byte("asset")))
	require.NotEqual(t, h, field.HashAndTruncateToCircuit([]byte("asset2")))
}
