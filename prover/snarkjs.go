package prover

import (
	"encoding/json"
	"fmt"

	"github.com/shieldpool/go-sdk/field"
)

// SnarkjsProof is the proof layout returned by snarkjs based provers.
type SnarkjsProof struct {
	PiA           []string   `json:"pi_a"`
	PiB           [][]string `json:"pi_b"`
	PiC           []string   `json:"pi_c"`
	Protocol      string     `json:"protocol,omitempty"`
	PublicSignals []string   `json:"publicSignals"`
}

func ParseProof(data []byte) (*Proof, error) {
	var raw SnarkjsProof
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse proof: %w", err)
	}
	return raw.Proof()
}

func (s SnarkjsProof) Proof() (*Proof, error) {
	a, err := ParseG1(s.PiA)
	if err != nil {
		return nil, fmt.Errorf("pi_a: %w", err)
	}
	b, err := ParseG2(s.PiB)
	if err != nil {
		return nil, fmt.Errorf("pi_b: %w", err)
	}
	c, err := ParseG1(s.PiC)
	if err != nil {
		return nil, fmt.Errorf("pi_c: %w", err)
	}
	proof := &Proof{A: a, B: b, C: c}
	for i, signal := range s.PublicSignals {
		v, err := field.FromString(signal)
		if err != nil {
			return nil, fmt.Errorf("public signal %d: %w", i, err)
		}
		proof.PublicInputs = append(proof.PublicInputs, v)
	}
	return proof, nil
}

// Snarkjs converts the proof back to the snarkjs layout.
func (p *Proof) Snarkjs() SnarkjsProof {
	out := SnarkjsProof{
		PiA: []string{p.A.X.String(), p.A.Y.String(), "1"},
		PiB: [][]string{
			{p.B.X.A0.String(), p.B.X.A1.String()},
			{p.B.Y.A0.String(), p.B.Y.A1.String()},
			{"1", "0"},
		},
		PiC:      []string{p.C.X.String(), p.C.Y.String(), "1"},
		Protocol: "groth16",
	}
	out.PublicSignals = field.Strings(p.PublicInputs)
	return out
}
