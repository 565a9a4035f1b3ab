package utxo_test

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shieldpool/go-sdk/hasher"
	"github.com/shieldpool/go-sdk/utxo"
	"github.com/stretchr/testify/require"
)

var (
	h        = hasher.NewPoseidon()
	usdcMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func newKeypair(t *testing.T) *utxo.Keypair {
	kp, err := utxo.NewKeypairFromSeed(h, []byte(t.Name()))
	require.NoError(t, err)
	return kp
}

func TestNewUtxo(t *testing.T) {
	kp := newKeypair(t)

	t.Run("valid", func(t *testing.T) {
		u, err := utxo.NewUtxo(h, utxo.Args{
			Amounts: []*big.Int{big.NewInt(1_000_000), big.NewInt(5)},
			Assets:  []solana.PublicKey{solana.SystemProgramID, usdcMint},
			Keypair: kp,
		})
		require.NoError(t, err)
		require.Equal(t, int64(1_000_000), u.Amount(solana.SystemProgramID).Int64())
		require.Equal(t, int64(5), u.Amount(usdcMint).Int64())
		require.Equal(t, utxo.NativeAssetCircuit(), u.AssetsCircuit[0])
		require.NotZero(t, u.AssetsCircuit[1].Sign())
		require.False(t, u.IsEmpty())
		require.Nil(t, u.Index)

		spl, ok := u.SplAsset()
		require.True(t, ok)
		require.Equal(t, usdcMint, spl)
	})

	t.Run("sol only is padded", func(t *testing.T) {
		u, err := utxo.NewUtxo(h, utxo.Args{
			Amounts: []*big.Int{big.NewInt(10)},
			Assets:  []solana.PublicKey{solana.SystemProgramID},
			Keypair: kp,
		})
		require.NoError(t, err)
		require.Equal(t, solana.SystemProgramID, u.Assets[1])
		require.Zero(t, u.AssetsCircuit[1].Sign())
		require.Zero(t, u.Amounts[1].Sign())
		_, ok := u.SplAsset()
		require.False(t, ok)
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			args utxo.Args
			err  error
		}{
			{
				name: "no keypair",
				args: utxo.Args{},
				err:  utxo.ErrKeypairUndefined,
			},
			{
				name: "length mismatch",
				args: utxo.Args{
					Amounts: []*big.Int{big.NewInt(1)},
					Assets:  []solana.PublicKey{solana.SystemProgramID, usdcMint},
					Keypair: kp,
				},
				err: utxo.ErrAssetsAmountsMismatch,
			},
			{
				name: "too many assets",
				args: utxo.Args{
					Amounts: []*big.Int{big.NewInt(1), big.NewInt(1), big.NewInt(1)},
					Assets:  []solana.PublicKey{solana.SystemProgramID, usdcMint, usdcMint},
					Keypair: kp,
				},
				err: utxo.ErrTooManyAssets,
			},
			{
				name: "native asset not first",
				args: utxo.Args{
					Amounts: []*big.Int{big.NewInt(1)},
					Assets:  []solana.PublicKey{usdcMint},
					Keypair: kp,
				},
				err: utxo.ErrNativeAssetMissing,
			},
			{
				name: "negative amount",
				args: utxo.Args{
					Amounts: []*big.Int{big.NewInt(-1)},
					Assets:  []solana.PublicKey{solana.SystemProgramID},
					Keypair: kp,
				},
				err: utxo.ErrNegativeAmount,
			},
			{
				name: "amount overflow",
				args: utxo.Args{
					Amounts: []*big.Int{new(big.Int).Lsh(big.NewInt(1), 64)},
					Assets:  []solana.PublicKey{solana.SystemProgramID},
					Keypair: kp,
				},
				err: utxo.ErrAmountOverflow,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := utxo.NewUtxo(h, tt.args)
				require.ErrorIs(t, err, tt.err)
			})
		}
	})
}

func TestCommitmentDeterminism(t *testing.T) {
	kp := newKeypair(t)
	args := utxo.Args{
		Amounts:  []*big.Int{big.NewInt(7), big.NewInt(3)},
		Assets:   []solana.PublicKey{solana.SystemProgramID, usdcMint},
		Keypair:  kp,
		Blinding: big.NewInt(12345),
	}
	a, err := utxo.NewUtxo(h, args)
	require.NoError(t, err)
	b, err := utxo.NewUtxo(h, args)
	require.NoError(t, err)
	require.Equal(t, a.Commitment(), b.Commitment())
	require.Equal(t, a.Key(), b.Key())

	args.Blinding = big.NewInt(12346)
	c, err := utxo.NewUtxo(h, args)
	require.NoError(t, err)
	require.NotEqual(t, a.Commitment(), c.Commitment())
}

func TestNullifier(t *testing.T) {
	kp := newKeypair(t)
	u, err := utxo.NewUtxo(h, utxo.Args{
		Amounts: []*big.Int{big.NewInt(7)},
		Assets:  []solana.PublicKey{solana.SystemProgramID},
		Keypair: kp,
	})
	require.NoError(t, err)

	_, err = u.Nullifier(h)
	require.ErrorIs(t, err, utxo.ErrIndexUndefined)

	inserted := u.WithIndex(3)
	require.Nil(t, u.Index)
	require.Equal(t, uint64(3), *inserted.Index)
	require.Equal(t, u.Commitment(), inserted.Commitment())

	n1, err := inserted.Nullifier(h)
	require.NoError(t, err)
	n2, err := u.WithIndex(4).Nullifier(h)
	require.NoError(t, err)
	require.NotEqual(t, n1, n2)

	empty, err := utxo.NewEmptyUtxo(h, kp)
	require.NoError(t, err)
	require.True(t, empty.IsEmpty())
	_, err = empty.Nullifier(h)
	require.NoError(t, err)

	recipient := utxo.NewRecipientKeypair(kp.PublicKey, kp.EncryptionPublicKey)
	foreign, err := utxo.NewUtxo(h, utxo.Args{
		Amounts: []*big.Int{big.NewInt(7)},
		Assets:  []solana.PublicKey{solana.SystemProgramID},
		Keypair: recipient,
	})
	require.NoError(t, err)
	_, err = foreign.WithIndex(1).Nullifier(h)
	require.ErrorIs(t, err, utxo.ErrPrivateKeyUndefined)
}

func TestEncryptDecrypt(t *testing.T) {
	owner := newKeypair(t)
	other, err := utxo.NewKeypair(h)
	require.NoError(t, err)

	assets := utxo.NewAssetLookupTable(usdcMint)
	verifiers := utxo.NewVerifierLookupTable()

	u, err := utxo.NewUtxo(h, utxo.Args{
		Amounts: []*big.Int{big.NewInt(42), big.NewInt(300)},
		Assets:  []solana.PublicKey{solana.SystemProgramID, usdcMint},
		Keypair: owner,
	})
	require.NoError(t, err)

	ciphertext, err := u.Encrypt(assets, verifiers)
	require.NoError(t, err)
	require.Len(t, ciphertext, utxo.EncryptedUtxoLength)

	index := uint64(8)
	decrypted, err := utxo.Decrypt(h, owner, ciphertext, u.Commitment(), assets, verifiers, &index)
	require.NoError(t, err)
	require.Equal(t, u.Commitment(), decrypted.Commitment())
	require.Equal(t, index, *decrypted.Index)
	require.Equal(t, int64(300), decrypted.Amount(usdcMint).Int64())

	_, err = utxo.Decrypt(h, other, ciphertext, u.Commitment(), assets, verifiers, &index)
	require.ErrorIs(t, err, utxo.ErrNotOwned)

	_, err = utxo.Decrypt(h, owner, ciphertext[:10], u.Commitment(), assets, verifiers, &index)
	require.ErrorIs(t, err, utxo.ErrInvalidCiphertext)

	unknown := utxo.NewAssetLookupTable()
	_, err = u.Encrypt(unknown, verifiers)
	require.ErrorIs(t, err, utxo.ErrAssetNotFound)
}

func TestKeypairExportImport(t *testing.T) {
	kp := newKeypair(t)
	encoded, err := kp.Export()
	require.NoError(t, err)

	imported, err := utxo.ImportKeypair(h, encoded)
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey, imported.PublicKey)
	require.Equal(t, kp.EncryptionPublicKey, imported.EncryptionPublicKey)

	recipient, err := utxo.ParseAddress(kp.Address())
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey, recipient.PublicKey)
	require.Equal(t, kp.EncryptionPublicKey, recipient.EncryptionPublicKey)
	require.False(t, recipient.HasPrivateKey())

	_, err = utxo.ParseAddress("abc")
	require.Error(t, err)
}

func TestLookupTables(t *testing.T) {
	assets := utxo.NewAssetLookupTable(solana.SystemProgramID, usdcMint)
	require.Equal(t, 2, assets.Len())

	idx, err := assets.IndexOf(solana.SystemProgramID)
	require.NoError(t, err)
	require.Zero(t, idx)

	idx, err = assets.IndexOf(usdcMint)
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	other := solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	_, err = assets.IndexOf(other)
	require.ErrorIs(t, err, utxo.ErrAssetNotFound)
	require.Equal(t, 2, assets.Append(other))
	require.Equal(t, 2, assets.Append(other))

	got, err := assets.Get(2)
	require.NoError(t, err)
	require.Equal(t, other, got)

	_, err = utxo.NewVerifierLookupTable().Get(5)
	require.ErrorIs(t, err, utxo.ErrVerifierNotFound)
}
