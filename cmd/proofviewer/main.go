package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"proof-viewer/certverify"
	"proof-viewer/proofverifier"
	"proof-viewer/providers"
	"proof-viewer/redaction"
	"proof-viewer/shared"
)

func main() {
	cfg := shared.LoadConfig()

	app := &cli.App{
		Name:      "proofviewer",
		Usage:     "Verify TLS session proofs and show what the server said",
		ArgsUsage: "ARTIFACT...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key",
				Aliases: []string{"k"},
				Usage:   "trusted notary key: PEM text, PEM file, 0x address or hex secp256k1 key",
				Value:   cfg.NotaryKey,
			},
			&cli.StringSliceFlag{
				Name:  "trust-store",
				Usage: "PEM, DER or PKCS#7 root bundle; repeat for more, default is the system pool",
				Value: cli.NewStringSlice(cfg.TrustStore...),
			},
			&cli.StringFlag{
				Name:  "claims",
				Usage: "JSON file with claims to check against received content",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON reports instead of styled text",
			},
			&cli.StringFlag{
				Name:  "marker",
				Usage: "glyph printed for each withheld byte",
				Value: cfg.RedactionMarker,
			},
			&cli.IntFlag{
				Name:  "collapse",
				Usage: "collapse withheld runs longer than this, 0 disables",
				Value: cfg.CollapseThreshold,
			},
			&cli.IntFlag{
				Name:  "max-bytes",
				Usage: "largest artifact accepted",
				Value: cfg.MaxArtifactBytes,
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "development logging",
				Value: cfg.Development,
			},
		},
		Action: func(c *cli.Context) error {
			cfg.Development = c.Bool("dev")
			return run(c, cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context, cfg *shared.Config) error {
	if c.NArg() == 0 {
		return cli.Exit("no artifacts given", 2)
	}

	logger, err := shared.NewLogger(shared.LoggerConfig{
		ServiceName: "proofviewer",
		Development: cfg.Development,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}
	defer logger.Sync()
	providers.SetLogger(logger.Logger)

	key, err := shared.LoadTrustedKey(c.String("key"))
	if err != nil {
		return fmt.Errorf("invalid trusted key: %v", err)
	}
	roots, err := certverify.LoadTrustStore(c.StringSlice("trust-store"))
	if err != nil {
		return fmt.Errorf("failed to load trust store: %v", err)
	}

	opts := []proofverifier.Option{proofverifier.WithMaxArtifactBytes(c.Int("max-bytes"))}
	if path := c.String("claims"); path != "" {
		claims, err := loadClaims(path)
		if err != nil {
			return err
		}
		opts = append(opts, proofverifier.WithClaims(claims))
	}

	verifier := proofverifier.NewVerifier(
		shared.NewKeyStore(key),
		certverify.NewVerifier(roots, logger.Logger),
		logger,
		opts...,
	)
	logger.Debug("Verifier ready", zap.String("key", key.Fingerprint()), zap.Int("artifacts", c.NArg()))

	renderOpts := redaction.RenderOptions{Marker: c.String("marker"), CollapseThreshold: c.Int("collapse")}

	failed := 0
	for _, path := range c.Args().Slice() {
		out, err := verifier.VerifyPath(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		if out.State.Failed() {
			failed++
		}

		if c.Bool("json") {
			raw, err := proofverifier.NewReport(out, renderOpts).JSON()
			if err != nil {
				return fmt.Errorf("failed to encode report: %v", err)
			}
			fmt.Println(string(raw))
			continue
		}
		fmt.Println(renderOutcome(out, renderOpts))
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d artifacts failed verification", failed, c.NArg()), 1)
	}
	return nil
}

func loadClaims(path string) ([]providers.Claim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read claims: %v", err)
	}
	var claims []providers.Claim
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims: %v", err)
	}
	return claims, nil
}
