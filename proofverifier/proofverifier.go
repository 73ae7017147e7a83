// Package proofverifier runs the verification pipeline for proof artifacts:
// parse, verify the session, verify the substrings, then build a view that a
// rendering surface can show without ever seeing withheld bytes.
package proofverifier

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"proof-viewer/artifact"
	"proof-viewer/commitment"
	"proof-viewer/providers"
	"proof-viewer/shared"
)

// File is one artifact handed over by the file source. DeclaredType is a
// hint only.
type File struct {
	Name         string
	DeclaredType string
	Data         []byte
}

// Outcome is the terminal result of one attempt. View is set only in
// StateRendered; Err only in failure states.
type Outcome struct {
	AttemptID    string
	Name         string
	DeclaredType string
	State        State
	KeyID        string // fingerprint of the key the attempt captured
	Err          *shared.VerificationError
	View         *View
}

// Verifier holds what attempts share: the key store, the certificate
// verifier and settings. It keeps no per-attempt state.
type Verifier struct {
	keys        *shared.KeyStore
	chains      commitment.ChainVerifier
	parser      *artifact.Parser
	claims      []providers.Claim
	concurrency int
	logger      *shared.Logger
}

// Option configures a Verifier
type Option func(*Verifier)

// WithClaims evaluates claims against every rendered received transcript
func WithClaims(claims []providers.Claim) Option {
	return func(v *Verifier) { v.claims = claims }
}

// WithMaxArtifactBytes bounds artifact size
func WithMaxArtifactBytes(n int) Option {
	return func(v *Verifier) { v.parser = artifact.NewParser(n) }
}

// WithConcurrency bounds VerifyAll parallelism
func WithConcurrency(n int) Option {
	return func(v *Verifier) { v.concurrency = n }
}

// NewVerifier creates a pipeline. keys supplies the trusted key, captured
// once at the start of each attempt.
func NewVerifier(keys *shared.KeyStore, chains commitment.ChainVerifier, logger *shared.Logger, opts ...Option) *Verifier {
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	v := &Verifier{
		keys:        keys,
		chains:      chains,
		parser:      artifact.NewParser(0),
		concurrency: runtime.NumCPU(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs one attempt to a terminal state. It never panics on artifact
// content and never returns a view for a failed attempt.
func (v *Verifier) Verify(file File) *Outcome {
	out := &Outcome{
		AttemptID:    uuid.NewString(),
		Name:         file.Name,
		DeclaredType: file.DeclaredType,
		State:        StateStart,
	}
	log := v.logger.WithAttempt(out.AttemptID).With(zap.String("artifact", file.Name))

	// one read per attempt; later key changes do not affect this attempt
	var key *shared.TrustedKey
	if v.keys != nil {
		key = v.keys.Load()
	}
	if key != nil {
		out.KeyID = key.Fingerprint()
	}

	if file.DeclaredType != "" && !strings.Contains(file.DeclaredType, "json") {
		log.Debug("Declared type is not JSON, parsing anyway", zap.String("declared_type", file.DeclaredType))
	}

	proof, err := v.parser.Parse(file.Data)
	if err != nil {
		return v.fail(log, out, StateParseFailed, asVerificationError(err, shared.KindParse))
	}
	out.State = StateParsed

	if key == nil {
		return v.fail(log, out, StateSessionInvalid, shared.NewSignatureError(errors.New("no trusted key configured")))
	}
	session, err := commitment.VerifySession(&proof.Session, key, v.chains)
	if err != nil {
		if errors.Is(err, commitment.ErrIdentityInvalid) {
			return v.fail(log, out, StateSessionInvalid, shared.NewIdentityError(err))
		}
		return v.fail(log, out, StateSessionInvalid, shared.NewSignatureError(err))
	}
	out.State = StateSessionVerified
	log.Debug("Session verified",
		zap.String("server_name", session.ServerName()),
		zap.Time("session_time", session.Time()),
		zap.String("key", out.KeyID))

	sent, recv, err := commitment.VerifySubstrings(&proof.Substrings, session)
	if err != nil {
		return v.fail(log, out, StateSubstringsInvalid, shared.NewSubstringError(err))
	}
	out.State = StateSubstringsVerified

	view, err := buildView(session, sent, recv, v.claims)
	if err != nil {
		return v.fail(log, out, StateInternalFault, asVerificationError(err, shared.KindInvalidRanges))
	}
	out.View = view
	out.State = StateRendered

	log.Info("Proof verified",
		zap.String("server_name", view.ServerName()),
		zap.Int("sent_bytes", view.Sent().Length),
		zap.Int("recv_bytes", view.Received().Length),
		zap.Int("recv_withheld", view.Received().Withheld),
		zap.Stringer("content", view.Content().Kind))
	return out
}

func (v *Verifier) fail(log *zap.Logger, out *Outcome, state State, verr *shared.VerificationError) *Outcome {
	out.State = state
	out.Err = verr
	out.View = nil

	fields := []zap.Field{
		zap.String("attempt_id", out.AttemptID),
		zap.String("artifact", out.Name),
		zap.Stringer("state", state),
		zap.String("kind", string(verr.Kind)),
		zap.String("error", verr.Message),
	}
	switch {
	case verr.Internal():
		v.logger.Critical("Verifier produced invalid ranges", fields...)
	case state == StateParseFailed:
		log.Warn("Artifact could not be parsed", zap.String("error", verr.Message))
	default:
		v.logger.Security("Proof rejected", fields...)
	}
	return out
}

// VerifyAll runs independent attempts concurrently. Results keep the input
// order and one failure never affects another attempt.
func (v *Verifier) VerifyAll(files []File) []*Outcome {
	outcomes := make([]*Outcome, len(files))

	var g errgroup.Group
	if v.concurrency > 0 {
		g.SetLimit(v.concurrency)
	}
	for i := range files {
		g.Go(func() error {
			outcomes[i] = v.Verify(files[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// VerifyPath reads an artifact from disk and verifies it. The error is only
// for I/O failures; verification failures are reported in the outcome.
func (v *Verifier) VerifyPath(path string) (*Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open artifact: %v", err)
	}
	defer f.Close()

	// one byte past the limit is enough for the parser to reject it
	limit := int64(v.parser.MaxBytes)
	if limit <= 0 {
		limit = artifact.DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %v", err)
	}

	return v.Verify(File{
		Name:         filepath.Base(path),
		DeclaredType: mime.TypeByExtension(filepath.Ext(path)),
		Data:         data,
	}), nil
}

func asVerificationError(err error, kind shared.ErrorKind) *shared.VerificationError {
	var verr *shared.VerificationError
	if errors.As(err, &verr) {
		return verr
	}
	return &shared.VerificationError{Kind: kind, Message: err.Error(), Cause: err}
}
