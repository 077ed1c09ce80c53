package ledger

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"restakeLedger/internal/model"
)

// ProofVerifier decides whether a slash proof against operator is valid.
type ProofVerifier interface {
	Verify(ctx context.Context, operator common.Address, proof model.SlashProof) error
}

// FlagVerifier trusts the proof's Valid flag. It carries no cryptographic
// guarantee and is meant for simulation and journal replay.
type FlagVerifier struct{}

func (FlagVerifier) Verify(_ context.Context, _ common.Address, proof model.SlashProof) error {
	if !proof.Valid {
		return errors.New("proof flag not set")
	}
	return nil
}

// EquivocationVerifier accepts proof that the operator signed two different
// messages for the same round.
type EquivocationVerifier struct{}

func (EquivocationVerifier) Verify(_ context.Context, operator common.Address, proof model.SlashProof) error {
	msgA, err := hexutil.Decode(proof.MessageA)
	if err != nil {
		return fmt.Errorf("message a: %w", err)
	}
	msgB, err := hexutil.Decode(proof.MessageB)
	if err != nil {
		return fmt.Errorf("message b: %w", err)
	}
	if bytes.Equal(msgA, msgB) {
		return errors.New("messages are identical")
	}

	for _, pair := range []struct {
		name string
		msg  []byte
		sig  string
	}{
		{"a", msgA, proof.SignatureA},
		{"b", msgB, proof.SignatureB},
	} {
		sig, err := hexutil.Decode(pair.sig)
		if err != nil {
			return fmt.Errorf("signature %s: %w", pair.name, err)
		}
		if len(sig) != crypto.SignatureLength {
			return fmt.Errorf("signature %s length %d", pair.name, len(sig))
		}
		pub, err := crypto.SigToPub(EquivocationDigest(proof.Round, pair.msg), sig)
		if err != nil {
			return fmt.Errorf("recover signer %s: %w", pair.name, err)
		}
		if signer := crypto.PubkeyToAddress(*pub); signer != operator {
			return fmt.Errorf("signature %s by %s, not operator", pair.name, signer.Hex())
		}
	}
	return nil
}

// EquivocationDigest is keccak256(round as 8 big-endian bytes || message).
func EquivocationDigest(round uint64, message []byte) []byte {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], round)
	return crypto.Keccak256(prefix[:], message)
}

// SignEquivocation signs message for round with key, in the form
// EquivocationVerifier checks.
func SignEquivocation(key *ecdsa.PrivateKey, round uint64, message []byte) (string, error) {
	sig, err := crypto.Sign(EquivocationDigest(round, message), key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// NewProofVerifier returns the verifier for mode: "flag" or "equivocation".
func NewProofVerifier(mode string) (ProofVerifier, error) {
	switch mode {
	case "", "flag":
		return FlagVerifier{}, nil
	case "equivocation":
		return EquivocationVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown proof mode: %s", mode)
	}
}
