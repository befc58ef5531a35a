package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eternisai/push-relay/internal/config"
)

type fakeDeactivator struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (f *fakeDeactivator) DeactivateToken(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tokens = append(f.tokens, token)
	return nil
}

func (f *fakeDeactivator) deactivated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// newTokenEndpoint serves a valid exchange so dispatcher tests can focus on
// delivery behavior.
func newTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"dispatch-token","expires_in":3600}`)
	}))
}

func decodeSend(t *testing.T, r *http.Request) *Message {
	t.Helper()
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("failed to decode send request: %v", err)
		return &Message{}
	}
	return req.Message
}

func newDispatcher(t *testing.T, fcmURL string, deactivator TokenDeactivator, batchSize int) *Dispatcher {
	t.Helper()
	account, _ := testServiceAccount(t)
	tokenSrv := newTokenEndpoint(t)
	t.Cleanup(tokenSrv.Close)

	ex := NewExchanger(account, tokenSrv.URL, tokenSrv.Client(), testLogger())
	return NewDispatcher(account, ex, deactivator, http.DefaultClient, testLogger(), fcmURL, batchSize)
}

func testMessage() *Message {
	return BuildMessage("Hi", "There", nil, config.DefaultDeliveryHints())
}

func TestDispatcherDeactivatesDeadTokens(t *testing.T) {
	tokens := []string{
		"token-alive-1-0123456789abcdef",
		"token-alive-2-0123456789abcdef",
		"token-dead-gone-0123456789abcdef",
		"token-alive-3-0123456789abcdef",
		"token-alive-4-0123456789abcdef",
	}
	dead := tokens[2]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msg := decodeSend(t, r)
		if r.Header.Get("Authorization") != "Bearer dispatch-token" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if msg.Token == dead {
			w.WriteHeader(http.StatusGone)
			fmt.Fprint(w, `{"error":{"status":"UNREGISTERED"}}`)
			return
		}
		fmt.Fprint(w, `{"name":"projects/test-project/messages/1"}`)
	}))
	defer srv.Close()

	deactivator := &fakeDeactivator{}
	d := newDispatcher(t, srv.URL, deactivator, 10)

	results, err := d.SendToTokens(context.Background(), testMessage(), tokens)
	if err != nil {
		t.Fatalf("SendToTokens returned error: %v", err)
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	if successful != 4 || len(results)-successful != 1 {
		t.Errorf("successful=%d failed=%d, want 4/1", successful, len(results)-successful)
	}

	failure := results[2]
	if failure.Success {
		t.Fatal("dead token reported as success")
	}
	if failure.Status != http.StatusGone {
		t.Errorf("status = %d, want 410", failure.Status)
	}
	if failure.TokenPreview != dead[:20] {
		t.Errorf("token_preview = %q, want %q", failure.TokenPreview, dead[:20])
	}
	if strings.Contains(failure.Error, dead) {
		t.Error("failure message leaks the full token")
	}

	if got := deactivator.deactivated(); len(got) != 1 || got[0] != dead {
		t.Errorf("deactivated tokens = %v, want [%s]", got, dead)
	}
}

func TestDispatcherDeactivationFailureKeepsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"status":"NOT_FOUND"}}`)
	}))
	defer srv.Close()

	deactivator := &fakeDeactivator{err: fmt.Errorf("store unavailable")}
	d := newDispatcher(t, srv.URL, deactivator, 10)

	results, err := d.SendToTokens(context.Background(), testMessage(), []string{"some-device-token-0123456789"})
	if err != nil {
		t.Fatalf("SendToTokens returned error: %v", err)
	}
	if len(results) != 1 || results[0].Success {
		t.Fatalf("results = %+v, want one failure", results)
	}
	if results[0].Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", results[0].Status)
	}
}

func TestDispatcherBatchesSequentially(t *testing.T) {
	const (
		total     = 25
		batchSize = 10
	)

	var (
		inflight atomic.Int32
		maxSeen  atomic.Int32
		served   atomic.Int32
	)
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inflight.Add(1)
		for {
			prev := maxSeen.Load()
			if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		<-release
		inflight.Add(-1)
		served.Add(1)
		fmt.Fprint(w, `{"name":"projects/test-project/messages/1"}`)
	}))
	defer srv.Close()

	tokens := make([]string, total)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("batch-test-token-%02d-0123456789", i)
	}

	d := newDispatcher(t, srv.URL, &fakeDeactivator{}, batchSize)

	done := make(chan []SendResult, 1)
	go func() {
		results, err := d.SendToTokens(context.Background(), testMessage(), tokens)
		if err != nil {
			t.Errorf("SendToTokens returned error: %v", err)
		}
		done <- results
	}()

	waitInflight := func(want int32) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for inflight.Load() != want {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %d in-flight sends, have %d", want, inflight.Load())
			}
			time.Sleep(time.Millisecond)
		}
	}

	// Three sequential waves: 10, 10, 5. Each wave must be fully in flight
	// before we let it finish.
	for _, wave := range []int{10, 10, 5} {
		waitInflight(int32(wave))
		for i := 0; i < wave; i++ {
			release <- struct{}{}
		}
	}

	results := <-done
	if len(results) != total {
		t.Fatalf("got %d results, want %d", len(results), total)
	}
	for i, r := range results {
		if !r.Success {
			t.Errorf("result %d failed: %+v", i, r)
		}
	}
	if got := served.Load(); got != total {
		t.Errorf("server handled %d requests, want %d", got, total)
	}
	if got := maxSeen.Load(); got != batchSize {
		t.Errorf("max in-flight sends = %d, want %d", got, batchSize)
	}
}

func TestDispatcherTopic(t *testing.T) {
	var (
		hits atomic.Int32
		got  atomic.Value
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		got.Store(decodeSend(t, r))
		fmt.Fprint(w, `{"name":"projects/test-project/messages/topic-1"}`)
	}))
	defer srv.Close()

	deactivator := &fakeDeactivator{}
	d := newDispatcher(t, srv.URL, deactivator, 10)

	result, err := d.SendToTopic(context.Background(), testMessage(), "news")
	if err != nil {
		t.Fatalf("SendToTopic returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("topic send failed: %+v", result)
	}

	if hits.Load() != 1 {
		t.Errorf("send endpoint hit %d times, want 1", hits.Load())
	}

	msg := got.Load().(*Message)
	if msg.Topic != "news" {
		t.Errorf("topic = %q, want %q", msg.Topic, "news")
	}
	if msg.Token != "" {
		t.Errorf("token should be empty on topic sends, got %q", msg.Token)
	}
	if len(deactivator.deactivated()) != 0 {
		t.Error("topic path must never deactivate tokens")
	}
}

func TestDispatcherExchangeFailureAborts(t *testing.T) {
	var fcmHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fcmHits.Add(1)
	}))
	defer srv.Close()

	account, _ := testServiceAccount(t)
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "oauth backend down")
	}))
	defer tokenSrv.Close()

	ex := NewExchanger(account, tokenSrv.URL, tokenSrv.Client(), testLogger())
	d := NewDispatcher(account, ex, &fakeDeactivator{}, http.DefaultClient, testLogger(), srv.URL, 10)

	if _, err := d.SendToTokens(context.Background(), testMessage(), []string{"a-token"}); err == nil {
		t.Fatal("expected error when exchange fails")
	}
	if fcmHits.Load() != 0 {
		t.Errorf("send endpoint hit %d times despite failed exchange, want 0", fcmHits.Load())
	}
}
