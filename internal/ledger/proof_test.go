package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"restakeLedger/internal/model"
)

func TestEquivocationVerifier(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	msgA, msgB := []byte("block a"), []byte("block b")
	sigA, err := SignEquivocation(key, 7, msgA)
	require.NoError(t, err)
	sigB, err := SignEquivocation(key, 7, msgB)
	require.NoError(t, err)
	proof := model.SlashProof{
		Round:      7,
		MessageA:   hexutil.Encode(msgA),
		SignatureA: sigA,
		MessageB:   hexutil.Encode(msgB),
		SignatureB: sigB,
	}

	v := EquivocationVerifier{}
	require.NoError(t, v.Verify(ctxBg, signer, proof))
	require.Error(t, v.Verify(ctxBg, operator1, proof))

	wrongRound := proof
	wrongRound.Round = 8
	require.Error(t, v.Verify(ctxBg, signer, wrongRound))

	same := proof
	same.MessageB, same.SignatureB = proof.MessageA, proof.SignatureA
	require.Error(t, v.Verify(ctxBg, signer, same))

	truncated := proof
	truncated.SignatureB = proof.SignatureB[:len(proof.SignatureB)-2]
	require.Error(t, v.Verify(ctxBg, signer, truncated))
}

func TestSlashWithEquivocationProof(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	operator := crypto.PubkeyToAddress(key.PublicKey)

	verifier, err := NewProofVerifier("equivocation")
	require.NoError(t, err)
	slashing := NewSlashingRegistry(verifier)
	require.NoError(t, slashing.Enroll(operator, authority))

	sigA, err := SignEquivocation(key, 1, []byte{0x01})
	require.NoError(t, err)
	sigB, err := SignEquivocation(key, 1, []byte{0x02})
	require.NoError(t, err)

	err = slashing.Slash(ctxBg, authority, operator, model.SlashProof{Valid: true})
	require.ErrorIs(t, err, ErrInvalidProof)
	require.False(t, slashing.IsSlashed(operator))

	err = slashing.Slash(ctxBg, authority, operator, model.SlashProof{
		Round:      1,
		MessageA:   "0x01",
		SignatureA: sigA,
		MessageB:   "0x02",
		SignatureB: sigB,
	})
	require.NoError(t, err)
	require.True(t, slashing.IsSlashed(operator))
}

func TestNewProofVerifier(t *testing.T) {
	v, err := NewProofVerifier("")
	require.NoError(t, err)
	require.IsType(t, FlagVerifier{}, v)

	_, err = NewProofVerifier("oracle")
	require.Error(t, err)
}
