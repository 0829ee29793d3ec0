// Package crypto wraps the cryptographic primitives C2 exposes: Ed25519
// signatures, Ristretto255 group operations, Pedersen commitments, range
// proofs and VRF (spec §4.2). Signature and range-proof verification have
// batch entry points (VerifyBatch, VerifyBatchAll, VerifyRangeProofBatch);
// VRF and equality-proof verification take one proof per call.
package crypto

import (
	stded25519 "crypto/ed25519"

	"github.com/tos-network/tos-core/errors"
)

const (
	PublicKeySize = stded25519.PublicKeySize
	SignatureSize = stded25519.SignatureSize
)

// Sign produces a 64-byte Ed25519 signature over msg (spec §4.2).
func Sign(sk stded25519.PrivateKey, msg []byte) [64]byte {
	sig := stded25519.Sign(sk, msg)
	var out [64]byte
	copy(out[:], sig)
	return out
}

// Verify checks a single Ed25519 signature.
func Verify(pk [32]byte, msg []byte, sig [64]byte) bool {
	return stded25519.Verify(pk[:], msg, sig[:])
}

// SigVerifyJob is one signature-verification request in a batch.
type SigVerifyJob struct {
	PublicKey [32]byte
	Message   []byte
	Signature [64]byte
}

// VerifyBatch verifies every job and returns a per-job pass/fail slice,
// the shape C6's stateless batch verifier consumes (spec §4.2, §4.6).
// Ed25519 has no amortised batch-verification speedup in the standard
// library API; the "batch" here is a uniform call surface that verifies
// each job in turn, not a cryptographic optimisation.
func VerifyBatch(jobs []SigVerifyJob) []bool {
	out := make([]bool, len(jobs))
	for i, j := range jobs {
		out[i] = Verify(j.PublicKey, j.Message, j.Signature)
	}
	return out
}

// VerifyBatchAll is a convenience wrapper returning a single error for
// the first failing job, or nil if every job verified.
func VerifyBatchAll(jobs []SigVerifyJob) error {
	results := VerifyBatch(jobs)
	for i, ok := range results {
		if !ok {
			return errors.New(errors.ERR_INVALID_SIGNATURE, "signature %d failed verification", i)
		}
	}
	return nil
}
