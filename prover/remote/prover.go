package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/shieldpool/go-sdk/prover"
	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

const defaultTimeout = 2 * time.Minute

type proveRequest struct {
	Circuit string         `json:"circuit"`
	Inputs  map[string]any `json:"inputs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type remoteProver struct {
	client *resty.Client
}

// NewProver returns a Prover delegating proof generation to a prover
// service exposing POST /prove.
func NewProver(serverURL string, timeout time.Duration) (prover.Prover, error) {
	if len(serverURL) <= 0 {
		return nil, fmt.Errorf("missing prover url")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(serverURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &remoteProver{client}, nil
}

func (p *remoteProver) Prove(
	ctx context.Context, circuit string, inputs map[string]any,
) (*prover.Proof, error) {
	var result prover.SnarkjsProof
	var failure errorResponse

	start := time.Now()
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(proveRequest{Circuit: circuit, Inputs: inputs}).
		SetResult(&result).
		SetError(&failure).
		Post("/prove")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", prover.ErrProofGeneration, err)
	}
	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = resp.String()
		}
		return nil, fmt.Errorf("%w: prover replied %d: %s", prover.ErrProofGeneration, resp.StatusCode(), msg)
	}
	log.Debugf("proof for circuit %s generated in %s", circuit, time.Since(start))

	proof, err := result.Proof()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", prover.ErrProofGeneration, err)
	}
	return proof, nil
}

func (p *remoteProver) Close() {
	// nolint
	p.client.Close()
}
