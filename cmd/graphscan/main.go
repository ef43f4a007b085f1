// graphscan CLI - unified resource graph discovery
//
// Usage:
//
//	graphscan discover --source aws --region us-east-1
//	graphscan parse-state --file terraform.tfstate
//	graphscan correlate --file aws.json --file state.json
//	graphscan serve --port 8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	httpapi "resource-graph/api"
	"resource-graph/db/clickhouse"
	"resource-graph/db/postgres"
	"resource-graph/db/store"
	"resource-graph/internal/correlate"
	"resource-graph/internal/discovery"
	"resource-graph/internal/discovery/awscloud"
	"resource-graph/internal/discovery/azurecloud"
	"resource-graph/internal/discovery/kube"
	"resource-graph/internal/discovery/tfstate"
	"resource-graph/internal/enrich"
	"resource-graph/pkg/api"
	"resource-graph/pkg/confidence"
	"resource-graph/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "graphscan",
		Usage:   "Unified resource graph discovery across cloud, IaC state and cluster inventories",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"GRAPHSCAN_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   "",
				Usage:   "Graph sink backend (clickhouse, postgres, or empty for none)",
				EnvVars: []string{"GRAPHSCAN_STORE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "resourcegraph",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Value:   "postgres://localhost/resourcegraph?sslmode=disable",
				Usage:   "Postgres DSN",
				EnvVars: []string{"POSTGRES_DSN"},
			},
		},

		Commands: []*cli.Command{
			discoverCommand(),
			parseStateCommand(),
			correlateCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// DISCOVER COMMAND
// =============================================================================

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Run one discovery pass against a source and print the graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "Source kind (aws, azure, kubernetes)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    "region",
				Aliases: []string{"r"},
				Usage:   "Region to scan (repeatable)",
			},
			&cli.StringFlag{
				Name:  "account",
				Usage: "Account/subscription scope for node identity",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Value: 4,
				Usage: "Concurrent resource-type fetches",
			},
			&cli.StringFlag{
				Name:    "inventory-endpoint",
				Usage:   "Inventory endpoint base URL (azure and kubernetes sources)",
				EnvVars: []string{"GRAPHSCAN_INVENTORY_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "enrich-endpoint",
				Usage:   "Collaborator endpoint base URL; enables the enrichment passes",
				EnvVars: []string{"GRAPHSCAN_ENRICH_ENDPOINT"},
			},
			&cli.BoolFlag{
				Name:  "persist",
				Usage: "Write the result through the configured graph sink",
			},
		},
		Action: runDiscover,
	}
}

func runDiscover(c *cli.Context) error {
	ctx := context.Background()
	logger := platform.InitLogger()

	adapter, err := buildAdapter(ctx, c.String("source"), c.String("inventory-endpoint"), logger)
	if err != nil {
		return err
	}

	result, err := adapter.Discover(ctx, api.DiscoveryOptions{
		Regions:      c.StringSlice("region"),
		AccountScope: c.String("account"),
		Concurrency:  c.Int("concurrency"),
	})
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if endpoint := c.String("enrich-endpoint"); endpoint != "" {
		pipeline := enrich.NewHTTPPipeline(endpoint, platform.NewHTTPClient(3, 30*time.Second), logger)
		pipeline.Apply(ctx, result)
	}

	fmt.Fprintf(os.Stderr, "Discovered %d nodes, %d edges, %d errors in %dms\n",
		len(result.Nodes), len(result.Edges), len(result.Errors), result.DurationMs)

	if c.Bool("persist") {
		if err := persistResult(ctx, c, result); err != nil {
			return err
		}
	}
	return outputJSON(result)
}

func buildAdapter(ctx context.Context, source, endpoint string, logger *slog.Logger) (discovery.Adapter, error) {
	switch source {
	case "aws":
		lister, err := awscloud.NewSDKLister(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize aws lister: %w", err)
		}
		return awscloud.NewAdapter(lister, logger), nil
	case "azure":
		if endpoint == "" {
			return nil, fmt.Errorf("azure source requires --inventory-endpoint")
		}
		lister := discovery.NewRESTLister(endpoint, platform.NewHTTPClient(3, 30*time.Second))
		return azurecloud.NewAdapter(lister, logger), nil
	case "kubernetes":
		if endpoint == "" {
			return nil, fmt.Errorf("kubernetes source requires --inventory-endpoint")
		}
		lister := discovery.NewRESTLister(endpoint, platform.NewHTTPClient(3, 30*time.Second))
		return kube.NewAdapter(lister, logger), nil
	default:
		return nil, fmt.Errorf("unknown source: %s (expected aws, azure or kubernetes)", source)
	}
}

// =============================================================================
// PARSE-STATE COMMAND
// =============================================================================

func parseStateCommand() *cli.Command {
	return &cli.Command{
		Name:  "parse-state",
		Usage: "Parse IaC state documents into a graph",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to a state document (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "account",
				Usage: "Account scope for node identity",
			},
			&cli.BoolFlag{
				Name:  "persist",
				Usage: "Write the result through the configured graph sink",
			},
		},
		Action: runParseState,
	}
}

func runParseState(c *cli.Context) error {
	ctx := context.Background()
	logger := platform.InitLogger()

	adapter := tfstate.New(c.StringSlice("file"), logger)
	result, err := adapter.Discover(ctx, api.DiscoveryOptions{
		AccountScope: c.String("account"),
	})
	if err != nil {
		return fmt.Errorf("state parsing failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Parsed %d nodes, %d edges, %d errors\n",
		len(result.Nodes), len(result.Edges), len(result.Errors))

	if c.Bool("persist") {
		if err := persistResult(ctx, c, result); err != nil {
			return err
		}
	}
	return outputJSON(result)
}

// =============================================================================
// CORRELATE COMMAND
// =============================================================================

func correlateCommand() *cli.Command {
	return &cli.Command{
		Name:  "correlate",
		Usage: "Correlate independently discovered result files",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to a discovery result JSON file (repeatable, at least two)",
				Required: true,
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Value: correlate.DefaultThreshold,
				Usage: "Confidence threshold; matches below it are flagged, not dropped",
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Correlate through a running API server instead of locally",
				EnvVars: []string{"GRAPHSCAN_SERVER"},
			},
		},
		Action: runCorrelate,
	}
}

func runCorrelate(c *cli.Context) error {
	files := c.StringSlice("file")
	if len(files) < 2 {
		return fmt.Errorf("correlate needs at least two --file arguments")
	}

	results := make([]*api.DiscoveryResult, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		var result api.DiscoveryResult
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if result.Source == "" {
			result.Source = path
		}
		results = append(results, &result)
	}

	threshold := confidence.Clamp(c.Float64("threshold"))
	if server := c.String("server"); server != "" {
		return correlateRemote(server, results, threshold)
	}

	matches := correlate.Correlate(results...)
	strong := len(correlate.Filter(matches, threshold))
	fmt.Fprintf(os.Stderr, "Found %d matches (%d at or above %.2f)\n",
		len(matches), strong, threshold)
	return outputJSON(matches)
}

// correlateRemote posts the result sets to a running API server and prints
// its ranked match list.
func correlateRemote(server string, results []*api.DiscoveryResult, threshold float64) error {
	body, err := json.Marshal(httpapi.CorrelateRequest{
		Results:   results,
		Threshold: &threshold,
	})
	if err != nil {
		return err
	}

	client := platform.NewHTTPClient(3, 30*time.Second)
	resp, err := client.PostJSON(server+"/api/v1/correlate", body)
	if err != nil {
		return fmt.Errorf("correlate request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("correlate request failed: %s", resp.Status)
	}

	var out httpapi.CorrelateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode correlate response: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Found %d matches (threshold %.2f)\n", len(out.Matches), out.Threshold)
	return outputJSON(out.Matches)
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the resource graph API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"GRAPHSCAN_PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Value:   "*",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"GRAPHSCAN_CORS_ORIGINS"},
			},
			&cli.StringFlag{
				Name:    "inventory-endpoint",
				Usage:   "Inventory endpoint base URL (azure and kubernetes sources)",
				EnvVars: []string{"GRAPHSCAN_INVENTORY_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "enrich-endpoint",
				Usage:   "Collaborator endpoint base URL; enables the enrichment passes",
				EnvVars: []string{"GRAPHSCAN_ENRICH_ENDPOINT"},
			},
			&cli.StringSliceFlag{
				Name:  "state-file",
				Usage: "State document registered as the iac-state source (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "with-aws",
				Usage: "Register the AWS source using ambient SDK credentials",
			},
			&cli.BoolFlag{
				Name:    "require-auth",
				Usage:   "Require basic auth (AUTH_USER/AUTH_PASS) on /api/v1",
				EnvVars: []string{"GRAPHSCAN_REQUIRE_AUTH"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	ctx := context.Background()
	logger := platform.InitLogger()

	adapters := map[string]discovery.Adapter{}
	if c.Bool("with-aws") {
		lister, err := awscloud.NewSDKLister(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize aws lister: %w", err)
		}
		adapters["aws"] = awscloud.NewAdapter(lister, logger)
	}
	if endpoint := c.String("inventory-endpoint"); endpoint != "" {
		client := platform.NewHTTPClient(3, 30*time.Second)
		adapters["azure"] = azurecloud.NewAdapter(discovery.NewRESTLister(endpoint, client), logger)
		adapters["kubernetes"] = kube.NewAdapter(discovery.NewRESTLister(endpoint, client), logger)
	}
	if files := c.StringSlice("state-file"); len(files) > 0 {
		adapters["iac-state"] = tfstate.New(files, logger)
	}

	var sink store.GraphStore
	if backend := c.String("store"); backend != "" {
		var err error
		sink, err = openStore(c)
		if err != nil {
			return err
		}
		defer sink.Close()
	}

	corsOrigins := strings.Split(c.String("cors-origins"), ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	server := httpapi.NewServer(adapters, sink, &httpapi.Config{
		Port:           c.Int("port"),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024,
		CORSOrigins:    corsOrigins,
		RequireAuth:    c.Bool("require-auth"),
	}, logger)

	if endpoint := c.String("enrich-endpoint"); endpoint != "" {
		server.WithEnricher(enrich.NewHTTPPipeline(endpoint, platform.NewHTTPClient(3, 30*time.Second), logger))
	}

	return server.StartWithGracefulShutdown()
}

// =============================================================================
// HELPERS
// =============================================================================

func openStore(c *cli.Context) (store.GraphStore, error) {
	switch c.String("store") {
	case "clickhouse":
		return clickhouse.NewStore(&clickhouse.Config{
			Host:     c.String("clickhouse-host"),
			Port:     c.Int("clickhouse-port"),
			Database: c.String("clickhouse-database"),
			Username: c.String("clickhouse-user"),
			Password: c.String("clickhouse-password"),
		})
	case "postgres":
		return postgres.NewStore(c.String("postgres-dsn"))
	case "":
		return nil, fmt.Errorf("no graph sink configured; set --store")
	default:
		return nil, fmt.Errorf("unknown store backend: %s", c.String("store"))
	}
}

func persistResult(ctx context.Context, c *cli.Context, result *api.DiscoveryResult) error {
	sink, err := openStore(c)
	if err != nil {
		return err
	}
	defer sink.Close()

	snapID, err := store.Persist(ctx, sink, result)
	if err != nil {
		return fmt.Errorf("failed to persist result: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Persisted snapshot %s\n", snapID)
	return nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
