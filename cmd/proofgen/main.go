package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"proof-viewer/artifact"
	"proof-viewer/commitment"
	"proof-viewer/pki"
	"proof-viewer/shared"
)

const (
	demoSent = "GET /api/balance HTTP/1.1\r\nHost: bank.example.com\r\nAuthorization: Bearer 5f2b1c9e\r\n\r\n"
	demoRecv = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"account\":\"DE89370400440532013000\",\"balance\":1024.5,\"currency\":\"EUR\"}"
)

func main() {
	app := &cli.App{
		Name:  "proofgen",
		Usage: "Produce a demo proof artifact with a throwaway notary and CA",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "proof", Usage: "output directory"},
			&cli.StringFlag{Name: "server", Value: "bank.example.com", Usage: "server name to notarize"},
			&cli.StringFlag{Name: "sent", Usage: "file with the sent transcript, default is a demo request"},
			&cli.StringFlag{Name: "recv", Usage: "file with the received transcript, default is a demo response"},
			&cli.StringSliceFlag{Name: "withhold", Usage: "DIR:START-END with DIR sent or recv; repeatable"},
			&cli.StringFlag{Name: "hash", Value: commitment.HashSHA256, Usage: "sha256 or blake2b-256"},
			&cli.BoolFlag{Name: "eth", Usage: "sign with a secp256k1 key instead of P-256"},
		},
		Action: generate,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generate(c *cli.Context) error {
	logger, err := shared.NewLoggerFromEnv("proofgen")
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	sent, recv, err := transcripts(c.String("sent"), c.String("recv"))
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	ca, err := pki.NewAuthority("Proof Viewer Demo Root", now.Add(-24*time.Hour), now.Add(365*24*time.Hour))
	if err != nil {
		return err
	}
	chain, err := ca.Issue(c.String("server"), now.Add(-time.Hour), now.Add(90*24*time.Hour))
	if err != nil {
		return err
	}

	signer, err := newSigner(c.Bool("eth"))
	if err != nil {
		return err
	}

	builder := commitment.NewBuilder(c.String("server"), chain.DER).
		WithTime(now).
		WithHashAlgorithm(c.String("hash")).
		SetTranscript(sent, recv)

	specs := c.StringSlice("withhold")
	if len(specs) == 0 && c.String("sent") == "" && c.String("recv") == "" {
		specs = demoWithholds()
	}
	for _, spec := range specs {
		dir, start, end, err := parseWithhold(spec)
		if err != nil {
			return err
		}
		if err := builder.Withhold(dir, start, end); err != nil {
			return err
		}
	}

	proof, err := builder.Build(signer)
	if err != nil {
		return fmt.Errorf("failed to build proof: %v", err)
	}
	raw, err := artifact.Marshal(proof)
	if err != nil {
		return err
	}
	keyText, err := signer.TrustedKey().Encode()
	if err != nil {
		return err
	}

	outDir := c.String("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %v", outDir, err)
	}
	files := map[string][]byte{
		"proof.json": raw,
		"root.pem":   ca.PEM(),
		"notary.key": []byte(keyText),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %v", name, err)
		}
	}

	logger.Info("Proof generated",
		zap.String("dir", outDir),
		zap.String("server_name", c.String("server")),
		zap.String("algorithm", signer.Algorithm()),
		zap.String("key", signer.TrustedKey().Fingerprint()),
		zap.Int("sent_bytes", len(sent)),
		zap.Int("recv_bytes", len(recv)))

	fmt.Printf("proofviewer --key %s --trust-store %s %s\n",
		filepath.Join(outDir, "notary.key"), filepath.Join(outDir, "root.pem"), filepath.Join(outDir, "proof.json"))
	return nil
}

func newSigner(eth bool) (*commitment.Signer, error) {
	if eth {
		return commitment.GenerateEthSigner()
	}
	return commitment.GenerateP256Signer()
}

func transcripts(sentPath, recvPath string) ([]byte, []byte, error) {
	sent, recv := []byte(demoSent), []byte(demoRecv)
	var err error
	if sentPath != "" {
		if sent, err = os.ReadFile(sentPath); err != nil {
			return nil, nil, fmt.Errorf("failed to read sent transcript: %v", err)
		}
	}
	if recvPath != "" {
		if recv, err = os.ReadFile(recvPath); err != nil {
			return nil, nil, fmt.Errorf("failed to read received transcript: %v", err)
		}
	}
	return sent, recv, nil
}

// demoWithholds hides the bearer token and the account number
func demoWithholds() []string {
	token := strings.Index(demoSent, "5f2b1c9e")
	account := strings.Index(demoRecv, "DE89370400440532013000")
	return []string{
		fmt.Sprintf("sent:%d-%d", token, token+len("5f2b1c9e")),
		fmt.Sprintf("recv:%d-%d", account, account+len("DE89370400440532013000")),
	}
}

// parseWithhold reads DIR:START-END
func parseWithhold(spec string) (commitment.Direction, int, int, error) {
	dirName, span, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid withhold %q, want DIR:START-END", spec)
	}

	var dir commitment.Direction
	switch dirName {
	case "sent":
		dir = commitment.Sent
	case "recv", "received":
		dir = commitment.Received
	default:
		return 0, 0, 0, fmt.Errorf("invalid direction %q in %q", dirName, spec)
	}

	startText, endText, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid range in %q", spec)
	}
	start, err := strconv.Atoi(startText)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start in %q: %v", spec, err)
	}
	end, err := strconv.Atoi(endText)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end in %q: %v", spec, err)
	}
	return dir, start, end, nil
}
