// Package signer implements the request signer (C6): AWS SigV4 signing of
// outbound SP-API requests using the credential manager's temporary signed
// credentials rather than the AWS default credential chain.
//
// DESIGN: grounded on the teacher's gateway/bedrock_signer.go BedrockSigner,
// which loads credentials from the default chain and signs for the
// "bedrock" service. Here the service is fixed to "execute-api" (the
// service SP-API's SigV4 signing uses) and credentials come from
// internal/credentials.Manager.SignedCredentials instead of
// aws-sdk-go-v2/config.LoadDefaultConfig, since SP-API calls use
// short-lived per-region signed credentials minted through identity
// federation rather than an ambient AWS identity.
package signer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/Pelmog/zigi-amazon-mcp/internal/clock"
	"github.com/Pelmog/zigi-amazon-mcp/internal/credentials"
)

const executeAPIService = "execute-api"

// CredentialSource is the subset of *credentials.Manager the signer
// depends on, so tests can substitute a fake.
type CredentialSource interface {
	SignedCredentials(ctx context.Context, region string) (credentials.Signed, error)
}

// Signer signs outbound HTTP requests for a given marketplace region with
// AWS SigV4, using temporary signed credentials from the credential manager.
type Signer struct {
	creds  CredentialSource
	clock  clock.Clock
	signer *v4.Signer
}

// New builds a Signer backed by creds.
func New(creds CredentialSource, clk clock.Clock) *Signer {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Signer{creds: creds, clock: clk, signer: v4.NewSigner()}
}

// Sign signs req in place for the given region, using body for the payload
// hash. req's Host header and URL must already target the marketplace's
// endpoint.
func (s *Signer) Sign(ctx context.Context, req *http.Request, region string, body []byte) error {
	sc, err := s.creds.SignedCredentials(ctx, region)
	if err != nil {
		return fmt.Errorf("signer: resolve credentials: %w", err)
	}

	creds := aws.Credentials{
		AccessKeyID:     sc.KeyID,
		SecretAccessKey: sc.Secret,
		SessionToken:    sc.Session,
	}

	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	if err := s.signer.SignHTTP(ctx, creds, req, payloadHash, executeAPIService, region, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("signer: sign request: %w", err)
	}
	return nil
}
