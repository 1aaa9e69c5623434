// Package core assembles every component (C1–C12) into one running value,
// the way the teacher's gateway.New(cfg) wires the proxy's pipes, adapters,
// and middleware from a single Config (cmd/main.go's runGatewayServer).
// Nothing outside this package constructs components directly; cmd/spapictl
// depends only on Core.
package core

import (
	"context"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"

	"github.com/Pelmog/zigi-amazon-mcp/internal/clock"
	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
	"github.com/Pelmog/zigi-amazon-mcp/internal/credentials"
	"github.com/Pelmog/zigi-amazon-mcp/internal/dispatcher"
	"github.com/Pelmog/zigi-amazon-mcp/internal/filtercatalog"
	"github.com/Pelmog/zigi-amazon-mcp/internal/filterengine"
	"github.com/Pelmog/zigi-amazon-mcp/internal/marketplace"
	"github.com/Pelmog/zigi-amazon-mcp/internal/monitoring"
	"github.com/Pelmog/zigi-amazon-mcp/internal/operations"
	"github.com/Pelmog/zigi-amazon-mcp/internal/pagination"
	"github.com/Pelmog/zigi-amazon-mcp/internal/postprocess"
	"github.com/Pelmog/zigi-amazon-mcp/internal/ratelimit"
	"github.com/Pelmog/zigi-amazon-mcp/internal/session"
	"github.com/Pelmog/zigi-amazon-mcp/internal/signer"
	"github.com/Pelmog/zigi-amazon-mcp/internal/tools"
)

// newSTSClient loads AWS credentials from the default chain (env vars,
// shared credentials file, IAM role) the same way the teacher's
// gateway/bedrock_signer.go NewBedrockSigner does, so AssumeRoleARN-based
// federation works without any SP-API-specific credential plumbing. A
// failure to load the chain is not fatal here: the manager only calls STS
// when CredentialsConfig.AssumeRoleARN is set, so an unconfigured chain is
// harmless when static credentials are used instead.
func newSTSClient() credentials.STSAssumeRoleAPI {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		log.Warn().Err(err).Msg("failed to load AWS config for STS client")
		return nil
	}
	return sts.NewFromConfig(cfg)
}

// Core holds every wired component. Tools is the only field cmd/spapictl
// actually needs to drive the transport; the rest are exported for tests
// and diagnostics that want to reach past the tool boundary.
type Core struct {
	Config   *config.Config
	Logger   *monitoring.Logger
	Alerts   *monitoring.AlertManager
	Metrics  *monitoring.MetricsCollector
	Catalog  *filtercatalog.Catalog
	Gate     *session.Gate
	Tools    *tools.Registry

	dispatcher *dispatcher.Dispatcher
	ops        *operations.Adapter
}

// New builds a Core from cfg. The filter catalog is opened and seeded here;
// callers own its lifetime and must call Close when done.
func New(cfg *config.Config) (*Core, error) {
	logger := monitoring.New(cfg.Monitoring)
	alerts := monitoring.NewAlertManager(logger, cfg.Monitoring)
	metrics := monitoring.NewMetricsCollector()
	clk := clock.NewSystem()

	catalog, err := filtercatalog.Open(cfg.FilterCatalog.DSN)
	if err != nil {
		return nil, err
	}
	for _, dir := range cfg.FilterCatalog.SeedDirs {
		if err := catalog.ImportSeedDir(dir); err != nil {
			catalog.Close()
			return nil, err
		}
	}

	marketplaces, err := marketplace.NewTable(cfg.Marketplace)
	if err != nil {
		catalog.Close()
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimits, clk)
	var stsClient credentials.STSAssumeRoleAPI
	if cfg.Credentials.AssumeRoleARN != "" {
		stsClient = newSTSClient()
	}
	credMgr := credentials.NewManager(cfg.Credentials, clk, nil, stsClient, alerts, metrics)
	sgn := signer.New(credMgr, clk)
	reqLogger := monitoring.NewRequestLogger(logger)

	disp := dispatcher.New(
		limiter,
		credMgr,
		sgn,
		nil,
		clk,
		cfg.Dispatcher,
		cfg.RateLimits.WaitOnSaturation,
		metrics,
		alerts,
		reqLogger,
	)

	engine := filterengine.New(catalog, filterengine.Limits{
		MaxDepth: cfg.FilterEngine.MaxDepth,
		MaxNodes: cfg.FilterEngine.MaxNodes,
	})
	post := postprocess.New(engine)
	pager := pagination.New(cfg.Server.OperationDeadline)
	ops := operations.New(disp, marketplaces, pager, post, catalog, clk)

	gate := session.New()
	registry := tools.NewRegistry(ops, gate, alerts)

	return &Core{
		Config:     cfg,
		Logger:     logger,
		Alerts:     alerts,
		Metrics:    metrics,
		Catalog:    catalog,
		Gate:       gate,
		Tools:      registry,
		dispatcher: disp,
		ops:        ops,
	}, nil
}

// Close releases resources Core opened (currently just the filter catalog's
// database handle).
func (c *Core) Close() error {
	return c.Catalog.Close()
}
