// manager.go implements the two refresh exchanges and the coalesced cache
// lookups described in spec.md §4.1.
//
// The access-token refresh is a plain form-encoded POST, grounded on the
// teacher's external/llm.go CallLLM request-building (build request with
// context timeout, read body with a size limit, classify non-2xx as an
// error). The signed-credential federation exchange optionally delegates to
// AWS STS AssumeRole via aws-sdk-go-v2/service/sts, mirroring the same SDK
// family the teacher uses for its Bedrock SigV4 signer
// (gateway/bedrock_signer.go) — here used for the credential mint instead of
// request signing, which lives in internal/signer.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/Pelmog/zigi-amazon-mcp/internal/clock"
	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/monitoring"
)

const maxRefreshResponseBytes = 1 << 20 // 1MB, analogous to the teacher's maxResponseSize guard

// STSAssumeRoleAPI is the subset of the STS client the manager depends on,
// so tests can substitute a fake without a network call.
type STSAssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Manager is the credential manager (C4): two independent TTL caches (access
// token, signed request credentials), both keyed by region, with coalesced
// refresh.
type Manager struct {
	cfg     config.CredentialsConfig
	clock   clock.Clock
	http    *http.Client
	sts     STSAssumeRoleAPI
	alerts  *monitoring.AlertManager
	metrics *monitoring.MetricsCollector

	accessTokens *cache[AccessToken]
	signed       *cache[Signed]
	flight       *flightGroup
}

// NewManager builds a Manager. httpClient and stsClient may be nil to use
// production defaults; tests inject fakes.
func NewManager(cfg config.CredentialsConfig, clk clock.Clock, httpClient *http.Client, stsClient STSAssumeRoleAPI, alerts *monitoring.AlertManager, metrics *monitoring.MetricsCollector) *Manager {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		cfg:          cfg,
		clock:        clk,
		http:         httpClient,
		sts:          stsClient,
		alerts:       alerts,
		metrics:      metrics,
		accessTokens: newCache[AccessToken](),
		signed:       newCache[Signed](),
		flight:       newFlightGroup(),
	}
}

// AccessToken returns a valid access token for region, refreshing (and
// coalescing concurrent refreshers) if the cached one is missing or within
// the safety margin of expiry.
func (m *Manager) AccessToken(ctx context.Context, region string) (AccessToken, error) {
	if tok, ok := m.accessTokens.get(region); ok && tok.ValidWithMargin(m.clock.Now(), m.cfg.SafetyMargin) {
		return tok, nil
	}

	key := "access:" + region
	v, err, coalesced := m.flight.do(key, func() (interface{}, error) {
		return m.refreshAccessToken(ctx)
	})
	if coalesced && m.metrics != nil {
		m.metrics.RecordCredentialCoalesced()
	}
	if err != nil {
		if m.alerts != nil {
			m.alerts.FlagCredentialRefreshFailure(region, "access_token", err)
		}
		return AccessToken{}, envelope.Wrap(envelope.AuthFailed, "access token refresh failed", err)
	}
	tok := v.(AccessToken)
	m.accessTokens.set(region, tok)
	return tok, nil
}

// InvalidateAccessToken evicts the cached access token for region so the
// next AccessToken call performs a genuine refresh instead of returning the
// same (possibly server-revoked) token. Used by the dispatcher's forced
// single-retry-on-401 policy (spec.md §7): a local TTL that hasn't expired
// yet does not guarantee the upstream still honors the token.
func (m *Manager) InvalidateAccessToken(region string) {
	m.accessTokens.delete(region)
}

// SignedCredentials returns valid signed-request credentials for region,
// refreshing (and coalescing) as needed.
func (m *Manager) SignedCredentials(ctx context.Context, region string) (Signed, error) {
	if s, ok := m.signed.get(region); ok && s.ValidWithMargin(m.clock.Now(), m.cfg.SafetyMargin) {
		return s, nil
	}

	key := "signed:" + region
	v, err, coalesced := m.flight.do(key, func() (interface{}, error) {
		return m.refreshSigned(ctx, region)
	})
	if coalesced && m.metrics != nil {
		m.metrics.RecordCredentialCoalesced()
	}
	if err != nil {
		if m.alerts != nil {
			m.alerts.FlagCredentialRefreshFailure(region, "signed", err)
		}
		return Signed{}, envelope.Wrap(envelope.AuthFailed, "signed credential refresh failed", err)
	}
	s := v.(Signed)
	m.signed.set(region, s)
	return s, nil
}

// tokenResponse is the identity-provider's JSON response shape.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (m *Manager) refreshAccessToken(ctx context.Context) (interface{}, error) {
	if m.cfg.TokenEndpoint == "" || m.cfg.RefreshToken == "" {
		return nil, fmt.Errorf("credentials: token_endpoint/refresh_token not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh")
	form.Set("refresh_token", m.cfg.RefreshToken)
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRefreshResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	if m.metrics != nil {
		m.metrics.RecordCredentialRefresh()
	}

	return AccessToken{
		Token:     tr.AccessToken,
		ExpiresAt: m.clock.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func (m *Manager) refreshSigned(ctx context.Context, region string) (interface{}, error) {
	if m.cfg.AssumeRoleARN == "" || m.sts == nil {
		// No delegated role configured: use the static pair directly,
		// treated as non-expiring (spec.md §4.1).
		if m.cfg.StaticKeyID == "" || m.cfg.StaticSecretKey == "" {
			return nil, fmt.Errorf("credentials: no static key pair or assume_role_arn configured")
		}
		if m.metrics != nil {
			m.metrics.RecordCredentialRefresh()
		}
		return Signed{KeyID: m.cfg.StaticKeyID, Secret: m.cfg.StaticSecretKey}, nil
	}

	sessionName := fmt.Sprintf("spapi-core-%d", m.clock.Now().UnixNano())
	out, err := m.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(m.cfg.AssumeRoleARN),
		RoleSessionName: aws.String(sessionName),
	})
	if err != nil {
		return nil, fmt.Errorf("assume role federation exchange failed: %w", err)
	}
	if out.Credentials == nil {
		return nil, fmt.Errorf("assume role response missing credentials")
	}

	if m.metrics != nil {
		m.metrics.RecordCredentialRefresh()
	}

	return Signed{
		KeyID:     aws.ToString(out.Credentials.AccessKeyId),
		Secret:    aws.ToString(out.Credentials.SecretAccessKey),
		Session:   aws.ToString(out.Credentials.SessionToken),
		ExpiresAt: aws.ToTime(out.Credentials.Expiration),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}

// staticCredentialsProvider adapts a static key pair to the
// aws.CredentialsProvider interface, for components (e.g. tests) that need
// to construct an STS client pinned to a fixed pair rather than the default
// credential chain.
func staticCredentialsProvider(keyID, secret string) aws.CredentialsProvider {
	return awscreds.NewStaticCredentialsProvider(keyID, secret, "")
}
