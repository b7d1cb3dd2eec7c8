package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adhound/adhound/internal/types"
)

func testListing() types.Listing {
	price := 350.0
	return types.Listing{
		Source: "craigslist",
		Title:  "Trek FX 2 Hybrid Bike",
		Price:  &price,
		Link:   "https://austin.craigslist.org/bik/d/trek-fx/7812.html?foo=bar&baz=1",
	}
}

func TestStdoutNotifierKeepsHTMLCharacters(t *testing.T) {
	var buf bytes.Buffer
	n := NewStdoutNotifier(&NotifierConfig{})
	n.out = &buf

	if err := n.Notify(context.Background(), "alice", testListing()); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "?foo=bar&baz=1") {
		t.Errorf("link ampersand was escaped: %s", out)
	}
	if !strings.Contains(out, `"user": "alice"`) {
		t.Errorf("missing user in payload: %s", out)
	}
}

func TestFileNotifierAppendsPerUser(t *testing.T) {
	dir := t.TempDir()
	n, err := NewFileNotifier(&NotifierConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewFileNotifier: %v", err)
	}

	ctx := context.Background()
	if err := n.Notify(ctx, "alice", testListing()); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	second := testListing()
	second.Link = "https://austin.craigslist.org/bik/d/other/7813.html"
	if err := n.Notify(ctx, "alice", second); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if err := n.Notify(ctx, "bob", testListing()); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	aliceRaw, err := os.ReadFile(filepath.Join(dir, "alice.jsonl"))
	if err != nil {
		t.Fatalf("reading alice file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(aliceRaw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines for alice, got %d", len(lines))
	}
	var decoded notification
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line is not valid json: %v", err)
	}
	if decoded.User != "alice" || decoded.Listing.Title != "Trek FX 2 Hybrid Bike" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}

	if _, err := os.Stat(filepath.Join(dir, "bob.jsonl")); err != nil {
		t.Fatalf("bob file missing: %v", err)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding webhook body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(&NotifierConfig{Uri: srv.URL, User: "api", Password: "secret"})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}
	if err := n.Notify(context.Background(), "alice", testListing()); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected json content type, got %q", gotContentType)
	}
	if !strings.HasPrefix(gotAuth, "Basic ") {
		t.Errorf("expected basic auth header, got %q", gotAuth)
	}
	if gotBody.User != "alice" || gotBody.Listing.Source != "craigslist" {
		t.Errorf("unexpected webhook payload: %+v", gotBody)
	}
}

func TestWebhookNotifierReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(&NotifierConfig{Uri: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}
	if err := n.Notify(context.Background(), "alice", testListing()); err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}

type failingNotifier struct{ err error }

func (f *failingNotifier) Notify(ctx context.Context, user string, listing types.Listing) error {
	return f.err
}

type countingNotifier struct{ calls int }

func (c *countingNotifier) Notify(ctx context.Context, user string, listing types.Listing) error {
	c.calls++
	return nil
}

func TestFanoutNotifierDeliversToAll(t *testing.T) {
	boom := errors.New("boom")
	counting := &countingNotifier{}
	n := NewFanoutNotifier(&failingNotifier{err: boom}, counting)

	err := n.Notify(context.Background(), "alice", testListing())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to carry boom, got %v", err)
	}
	if counting.calls != 1 {
		t.Fatalf("second notifier not reached, calls=%d", counting.calls)
	}
}

func TestNewNotifier(t *testing.T) {
	if _, err := NewNotifier(&NotifierConfig{Type: "nats"}); err == nil {
		t.Fatal("expected error for unknown notifier type")
	}
	n, err := NewNotifier(&NotifierConfig{})
	if err != nil {
		t.Fatalf("default notifier: %v", err)
	}
	if _, ok := n.(*StdoutNotifier); !ok {
		t.Fatalf("expected stdout notifier by default, got %T", n)
	}
}
