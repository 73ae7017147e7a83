package proofverifier

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"proof-viewer/artifact"
	"proof-viewer/certverify"
	"proof-viewer/commitment"
	"proof-viewer/pki"
	"proof-viewer/providers"
	"proof-viewer/redaction"
	"proof-viewer/shared"
)

var (
	validFrom  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	validUntil = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	notarized  = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	sentData = "GET /api HTTP/1.1\r\nHost: example.com\r\nAuthorization: Bearer abc\r\n\r\n"
	recvData = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"token\":\"s3cr3t-value\",\"user\":\"alice\"}"
)

type fixture struct {
	ca     *pki.Authority
	chain  *pki.Chain
	signer *commitment.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ca, err := pki.NewAuthority("Test Root", validFrom, validUntil)
	if err != nil {
		t.Fatalf("Failed to create CA: %v", err)
	}
	chain, err := ca.Issue("example.com", validFrom, validUntil)
	if err != nil {
		t.Fatalf("Failed to issue leaf: %v", err)
	}
	signer, err := commitment.GenerateP256Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	return &fixture{ca: ca, chain: chain, signer: signer}
}

func (f *fixture) proof(t *testing.T, sent, recv string, withhold func(b *commitment.Builder) error) *commitment.Proof {
	t.Helper()
	b := commitment.NewBuilder("example.com", f.chain.DER).
		WithTime(notarized).
		SetTranscript([]byte(sent), []byte(recv))
	if withhold != nil {
		if err := withhold(b); err != nil {
			t.Fatalf("Withhold failed: %v", err)
		}
	}
	proof, err := b.Build(f.signer)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return proof
}

func (f *fixture) artifact(t *testing.T) []byte {
	t.Helper()
	return marshal(t, f.proof(t, sentData, recvData, withholdSecrets))
}

func withholdSecrets(b *commitment.Builder) error {
	token := strings.Index(recvData, "s3cr3t-value")
	if err := b.Withhold(commitment.Received, token, token+len("s3cr3t-value")); err != nil {
		return err
	}
	bearer := strings.Index(sentData, "abc")
	return b.Withhold(commitment.Sent, bearer, bearer+3)
}

func marshal(t *testing.T, proof *commitment.Proof) []byte {
	t.Helper()
	raw, err := artifact.Marshal(proof)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return raw
}

func (f *fixture) verifier(t *testing.T, key *shared.TrustedKey, opts ...Option) *Verifier {
	t.Helper()
	logger := shared.WrapLogger(zaptest.NewLogger(t), "test")
	chains := certverify.NewVerifier(f.ca.Pool(), logger.Logger)
	return NewVerifier(shared.NewKeyStore(key), chains, logger, opts...)
}

func TestVerifyRendered(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t, f.signer.TrustedKey())

	out := v.Verify(File{Name: "proof.json", DeclaredType: "application/json", Data: f.artifact(t)})
	if out.State != StateRendered {
		t.Fatalf("expected rendered, got %s (%v)", out.State, out.Err)
	}
	if out.Err != nil || out.View == nil {
		t.Fatal("rendered outcome must carry a view and no error")
	}
	if out.AttemptID == "" || out.KeyID != f.signer.TrustedKey().Fingerprint() {
		t.Errorf("unexpected attempt metadata %q %q", out.AttemptID, out.KeyID)
	}

	view := out.View
	if view.ServerName() != "example.com" || !view.Time().Equal(notarized) {
		t.Errorf("unexpected identity %q %v", view.ServerName(), view.Time())
	}

	recv := view.Received().Segments
	if len(recv) != 3 {
		t.Fatalf("expected 3 received segments, got %d", len(recv))
	}
	if recv[0].Kind != redaction.Disclosed || recv[1].Kind != redaction.Redacted || recv[2].Kind != redaction.Disclosed {
		t.Fatalf("unexpected segment kinds %s %s %s", recv[0].Kind, recv[1].Kind, recv[2].Kind)
	}
	if recv[1].Length != len("s3cr3t-value") || recv[1].Data != nil {
		t.Errorf("unexpected redacted segment %+v", recv[1])
	}

	content := view.Content()
	if content.Kind != providers.Structured {
		t.Fatalf("expected structured content, got %s", content.Kind)
	}
	if strings.Contains(content.Text, "s3cr3t") {
		t.Fatal("classified content leaked withheld bytes")
	}
	if !strings.Contains(content.Text, "\"user\": \"alice\"") {
		t.Errorf("expected pretty printed body, got %q", content.Text)
	}

	if len(view.Sent().Segments) != 3 || view.Sent().Withheld != 3 {
		t.Errorf("unexpected sent view %+v", view.Sent())
	}
}

func TestVerifyWrongKey(t *testing.T) {
	f := newFixture(t)
	other, err := commitment.GenerateP256Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	v := f.verifier(t, other.TrustedKey())

	out := v.Verify(File{Name: "proof.json", Data: f.artifact(t)})
	if out.State != StateSessionInvalid {
		t.Fatalf("expected session invalid, got %s", out.State)
	}
	if out.View != nil {
		t.Fatal("invalid session must not produce a view")
	}
	if !errors.Is(out.Err, shared.ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", out.Err)
	}
	if !strings.Contains(out.Err.Message, commitment.ErrSignatureInvalid.Error()) {
		t.Errorf("library error text not surfaced: %q", out.Err.Message)
	}
}

func TestVerifyNoKey(t *testing.T) {
	f := newFixture(t)
	v := NewVerifier(shared.NewKeyStore(nil), nil, nil)

	out := v.Verify(File{Name: "proof.json", Data: f.artifact(t)})
	if out.State != StateSessionInvalid || !errors.Is(out.Err, shared.ErrSignatureInvalid) {
		t.Fatalf("expected signature failure without a key, got %s %v", out.State, out.Err)
	}
}

func TestVerifyUntrustedChain(t *testing.T) {
	f := newFixture(t)
	stranger, err := pki.NewAuthority("Other Root", validFrom, validUntil)
	if err != nil {
		t.Fatalf("Failed to create CA: %v", err)
	}
	logger := shared.WrapLogger(zaptest.NewLogger(t), "test")
	v := NewVerifier(shared.NewKeyStore(f.signer.TrustedKey()), certverify.NewVerifier(stranger.Pool(), logger.Logger), logger)

	out := v.Verify(File{Name: "proof.json", Data: f.artifact(t)})
	if out.State != StateSessionInvalid || out.View != nil {
		t.Fatalf("expected session invalid, got %s", out.State)
	}
	if !errors.Is(out.Err, shared.ErrIdentityInvalid) {
		t.Fatalf("expected identity error, got %v", out.Err)
	}
}

func TestVerifySubstringsMismatch(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t, f.signer.TrustedKey())

	a := f.proof(t, sentData, recvData, nil)
	b := f.proof(t, sentData, strings.Replace(recvData, "alice", "mallo", 1), nil)
	a.Substrings = b.Substrings

	out := v.Verify(File{Name: "spliced.json", Data: marshal(t, a)})
	if out.State != StateSubstringsInvalid || out.View != nil {
		t.Fatalf("expected substrings invalid, got %s", out.State)
	}
	if !errors.Is(out.Err, shared.ErrSubstringMismatch) {
		t.Fatalf("expected substring mismatch, got %v", out.Err)
	}
}

func TestVerifyParseFailure(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t, f.signer.TrustedKey())

	for _, data := range [][]byte{nil, []byte("{"), []byte(`{"version":"1"}`)} {
		out := v.Verify(File{Name: "bad.json", Data: data})
		if out.State != StateParseFailed || out.View != nil {
			t.Fatalf("expected parse failure, got %s", out.State)
		}
		if !errors.Is(out.Err, shared.ErrParse) {
			t.Fatalf("expected parse error, got %v", out.Err)
		}
	}
}

func TestVerifyClaims(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t, f.signer.TrustedKey(), WithClaims([]providers.Claim{
		{Name: "user", JSONPath: "$.user", Value: "alice"},
		{Name: "token", Regex: `"token":"[^"]*"`},
	}))

	out := v.Verify(File{Name: "proof.json", Data: f.artifact(t)})
	if out.State != StateRendered {
		t.Fatalf("expected rendered, got %s (%v)", out.State, out.Err)
	}

	claims := out.View.Claims()
	if len(claims) != 2 {
		t.Fatalf("expected 2 claim results, got %d", len(claims))
	}

	user := claims[0]
	if !user.Matched || len(user.Matches) != 1 {
		t.Fatalf("user claim failed: %+v", user)
	}
	if want := strings.Index(recvData, `"alice"`); user.Matches[0].Offset != want {
		t.Errorf("user claim at %d, want %d", user.Matches[0].Offset, want)
	}

	if claims[1].Matched || !strings.Contains(claims[1].Error, "redaction") {
		t.Errorf("token claim must not read across the redaction: %+v", claims[1])
	}
}

func TestVerifyClaimsHostileBody(t *testing.T) {
	f := newFixture(t)
	claims := []providers.Claim{
		{Name: "div", XPath: "//div"},
		{Name: "json", JSONPath: "$.a"},
		{Name: "digits", XPath: "//div", Regex: `\d+`},
	}

	tests := []struct {
		name  string
		recv  string
		match string
	}{
		{"nul in html", "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<div>a\x00b</div>", "<div>a\x00b</div>"},
		{"nul outside element", "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n\x00<div>1</div>", "<div>1</div>"},
		{"invalid utf8", "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<div>\xff\xfe</div>", "<div>\xff\xfe</div>"},
		{"broken chunking", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n<div>\x00</div>", "<div>\x00</div>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.verifier(t, f.signer.TrustedKey(), WithClaims(claims))
			data := marshal(t, f.proof(t, sentData, tt.recv, nil))

			done := make(chan *Outcome, 1)
			go func() { done <- v.Verify(File{Name: "proof.json", Data: data}) }()

			var out *Outcome
			select {
			case out = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Verify did not reach a terminal state")
			}

			if out.State != StateRendered {
				t.Fatalf("expected rendered, got %s (%v)", out.State, out.Err)
			}
			results := out.View.Claims()
			if len(results) != len(claims) {
				t.Fatalf("expected %d claim results, got %d", len(claims), len(results))
			}
			if results[1].Matched {
				t.Errorf("json claim must not match html: %+v", results[1])
			}
			div := results[0]
			if !div.Matched || div.Matches[0].Value != tt.match {
				t.Fatalf("div claim failed: %+v", div)
			}
			if want := strings.Index(tt.recv, tt.match); div.Matches[0].Offset != want {
				t.Errorf("div claim at %d, want %d", div.Matches[0].Offset, want)
			}
		})
	}
}

func TestNewVerifierConcurrentWithVerify(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t, f.signer.TrustedKey(), WithClaims([]providers.Claim{{Name: "user", JSONPath: "$.user"}}))
	data := f.artifact(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			f.verifier(t, f.signer.TrustedKey())
		}
	}()

	for i := 0; i < 4; i++ {
		out := v.Verify(File{Name: "proof.json", Data: data})
		if out.State != StateRendered || !out.View.Claims()[0].Matched {
			t.Errorf("attempt %d: %s %+v", i, out.State, out.Err)
		}
	}
	wg.Wait()
}

func TestVerifyAll(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t, f.signer.TrustedKey(), WithConcurrency(2))
	good := f.artifact(t)

	outcomes := v.VerifyAll([]File{
		{Name: "a", Data: good},
		{Name: "b", Data: []byte("garbage")},
		{Name: "c", Data: good},
	})
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	want := []State{StateRendered, StateParseFailed, StateRendered}
	for i, out := range outcomes {
		if out.Name != string(rune('a'+i)) || out.State != want[i] {
			t.Errorf("outcome %d: %s %s, want %s", i, out.Name, out.State, want[i])
		}
	}
	if outcomes[0].AttemptID == outcomes[2].AttemptID {
		t.Error("attempts must have distinct IDs")
	}
}

func TestVerifyKeyReplacedMidFlight(t *testing.T) {
	f := newFixture(t)
	other, err := commitment.GenerateP256Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	good, bad := f.signer.TrustedKey(), other.TrustedKey()

	store := shared.NewKeyStore(good)
	logger := shared.WrapLogger(zaptest.NewLogger(t), "test")
	v := NewVerifier(store, certverify.NewVerifier(f.ca.Pool(), logger.Logger), logger)

	data := f.artifact(t)
	files := make([]File, 32)
	for i := range files {
		files[i] = File{Name: "proof.json", Data: data}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_ = store.Set(bad)
			} else {
				_ = store.Set(good)
			}
		}
	}()

	outcomes := v.VerifyAll(files)
	close(stop)
	wg.Wait()

	for i, out := range outcomes {
		switch out.KeyID {
		case good.Fingerprint():
			if out.State != StateRendered {
				t.Errorf("outcome %d captured the signing key but ended %s", i, out.State)
			}
		case bad.Fingerprint():
			if out.State != StateSessionInvalid {
				t.Errorf("outcome %d captured the wrong key but ended %s", i, out.State)
			}
		default:
			t.Errorf("outcome %d has unknown key %q", i, out.KeyID)
		}
	}
}

func TestVerifyPath(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t, f.signer.TrustedKey())

	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, f.artifact(t), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	out, err := v.VerifyPath(path)
	if err != nil {
		t.Fatalf("VerifyPath failed: %v", err)
	}
	if out.State != StateRendered || out.Name != "session.json" || out.DeclaredType != "application/json" {
		t.Fatalf("unexpected outcome %s %q %q", out.State, out.Name, out.DeclaredType)
	}

	if _, err := v.VerifyPath(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t, f.signer.TrustedKey())

	out := v.Verify(File{Name: "proof.json", Data: f.artifact(t)})
	raw, err := NewReport(out, redaction.DefaultRenderOptions()).JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	text := string(raw)
	if strings.Contains(text, "s3cr3t") {
		t.Fatal("report leaked withheld bytes")
	}
	for _, want := range []string{`"state": "rendered"`, `"server_name": "example.com"`, `"kind": "structured"`, "Bearer XXX"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}

	failed := v.Verify(File{Name: "bad.json", Data: []byte("nope")})
	report := NewReport(failed, redaction.DefaultRenderOptions())
	if report.Error == nil || report.Error.Kind != shared.KindParse || report.Received != nil {
		t.Fatalf("unexpected failure report %+v", report)
	}
}

func TestStates(t *testing.T) {
	if !StateRendered.Terminal() || StateRendered.Failed() {
		t.Error("rendered is a terminal success")
	}
	for _, s := range []State{StateParseFailed, StateSessionInvalid, StateSubstringsInvalid, StateInternalFault} {
		if !s.Terminal() || !s.Failed() {
			t.Errorf("%s should be a terminal failure", s)
		}
	}
	for _, s := range []State{StateStart, StateParsed, StateSessionVerified, StateSubstringsVerified} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if State(99).String() != "unknown" {
		t.Error("unexpected name for out-of-range state")
	}
}
