// Package keyproof defines the Groth16 proof surface of the round-2
// contribution: the exact public-input layout the deployed verifier expects,
// and the prover/verifier interfaces the protocol code is written against.
//
// Proving and verifying the circuit internals is out of scope for this
// repository; production deployments plug in a Groth16 implementation with a
// verifying key per parameter set. The dev transcript prover in dev.go
// stands in for it during local runs and tests.
package keyproof

import "fmt"

// Params fixes one supported (threshold, numPeers) pair. The verifier is
// parameterized over these: every pair has its own circuit and verifying
// key.
type Params struct {
	Threshold int
	NumPeers  int
}

// supportedParams enumerates the deployed circuit instantiations. A table,
// not conditionals: adding a pair means adding a verifying key, nothing
// else.
var supportedParams = map[Params]struct{}{
	{Threshold: 2, NumPeers: 3}: {},
	{Threshold: 3, NumPeers: 5}: {},
}

// Supported reports whether a circuit exists for p.
func Supported(p Params) bool {
	_, ok := supportedParams[p]
	return ok
}

// Validate returns an error for unsupported parameter pairs.
func (p Params) Validate() error {
	if !Supported(p) {
		return fmt.Errorf("keyproof: unsupported parameters t=%d n=%d", p.Threshold, p.NumPeers)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("keygen-%d-%d", p.Threshold, p.NumPeers)
}
