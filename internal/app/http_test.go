package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mybeatfi/api/internal/realtime"
	"mybeatfi/api/internal/store"
)

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var response map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, response
}

func tokenFor(t *testing.T, svc *Service, fs *fakeStore, userID string) string {
	t.Helper()
	profile, err := fs.GetProfile(context.Background(), userID)
	if err != nil {
		t.Fatalf("profile %s: %v", userID, err)
	}
	session, err := svc.issueSession(context.Background(), profile)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session.Token
}

func TestHealthEndpoint(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	server := NewHTTPServer(svc, "*")

	rr, response := doJSON(t, server.Handler(), http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	server := NewHTTPServer(svc, "*")

	rr, response := doJSON(t, server.Handler(), http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if status, exists := response["status"]; !exists || status != "ready" {
		t.Errorf("expected status=ready, got %v", status)
	}
	checks, ok := response["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks object, got %v", response["checks"])
	}
	dbCheck, ok := checks["database"].(map[string]any)
	if !ok || dbCheck["status"] != "ok" {
		t.Errorf("expected database status=ok, got %v", checks["database"])
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	fs := newFakeStore()
	fs.pingFn = func(context.Context) error {
		return errors.New("connection refused")
	}
	server := NewHTTPServer(newTestService(fs, Options{}), "*")

	rr, response := doJSON(t, server.Handler(), http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
	if ok := response["ok"]; ok != false {
		t.Errorf("expected ok=false, got %v", ok)
	}
	checks := response["checks"].(map[string]any)
	dbCheck := checks["database"].(map[string]any)
	if dbCheck["error"] != "connection refused" {
		t.Errorf("expected error message, got %v", dbCheck["error"])
	}
}

func TestAuthSignUpVerifySignIn(t *testing.T) {
	fs := newFakeStore()
	handler := NewHTTPServer(newTestService(fs, Options{}), "*").Handler()

	rr, signup := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "New@Example.com",
		"password":    "correct-horse",
		"displayName": "Nia",
		"accountType": "producer",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	token, _ := signup["devVerificationToken"].(string)
	if token == "" {
		t.Fatalf("expected dev verification token without SMTP, got %v", signup)
	}

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email": "new@example.com", "password": "correct-horse", "displayName": "Nia",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", rr.Code)
	}

	credentials := map[string]any{"email": "new@example.com", "password": "correct-horse"}
	rr, body := doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", credentials)
	if rr.Code != http.StatusForbidden || body["code"] != "EMAIL_NOT_VERIFIED" {
		t.Fatalf("expected EMAIL_NOT_VERIFIED, got %d %v", rr.Code, body)
	}

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/auth/verify-email", "", map[string]any{"token": token})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected verify 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr, body = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{"email": "new@example.com", "password": "wrong-password"})
	if rr.Code != http.StatusUnauthorized || body["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("expected INVALID_CREDENTIALS, got %d %v", rr.Code, body)
	}

	rr, body = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", credentials)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected signin 200, got %d: %s", rr.Code, rr.Body.String())
	}
	access, _ := body["accessToken"].(string)
	if access == "" || body["role"] != "producer" {
		t.Fatalf("unexpected session payload %v", body)
	}

	rr, body = doJSON(t, handler, http.MethodGet, "/api/session", access, nil)
	if rr.Code != http.StatusOK || body["authenticated"] != true || body["userName"] != "Nia" {
		t.Fatalf("unexpected session %d %v", rr.Code, body)
	}

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/session/logout", access, map[string]any{})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rr.Code)
	}
	rr, body = doJSON(t, handler, http.MethodGet, "/api/session", access, nil)
	if body["authenticated"] != false {
		t.Fatalf("expected revoked token to be unauthenticated, got %v", body)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	handler := NewHTTPServer(newTestService(newFakeStore(), Options{}), "*").Handler()

	for _, path := range []string{"/api/proposals", "/api/catalog", "/api/discounts", "/api/custom-sync-requests", "/api/search?q=x"} {
		rr, body := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized || body["code"] != "UNAUTHORIZED" {
			t.Errorf("%s: expected 401 UNAUTHORIZED, got %d %v", path, rr.Code, body)
		}
	}

	rr, _ := doJSON(t, handler, http.MethodGet, "/api/proposals", "not-a-jwt", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a malformed token, got %d", rr.Code)
	}
}

func TestNegotiationOverHTTP(t *testing.T) {
	fs := newFakeStore()
	fs.seedProposal(store.Proposal{SyncFee: 500, PaymentTerms: "net30"})
	svc := newTestService(fs, Options{})
	handler := NewHTTPServer(svc, "*").Handler()
	producer := tokenFor(t, svc, fs, "producer-1")
	client := tokenFor(t, svc, fs, "client-1")

	rr, body := doJSON(t, handler, http.MethodPost, "/api/proposals/proposal-1/negotiations", producer, map[string]any{"counterOffer": 450})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if body["negotiationStatus"] != "negotiating" {
		t.Fatalf("unexpected send response %v", body)
	}

	rr, body = doJSON(t, handler, http.MethodGet, "/api/proposals/proposal-1", client, nil)
	if rr.Code != http.StatusOK || body["awaitingMyResponse"] != true || body["myRole"] != "client" {
		t.Fatalf("unexpected detail %d %v", rr.Code, body)
	}

	rr, body = doJSON(t, handler, http.MethodPost, "/api/proposals/proposal-1/accept-negotiation", client, map[string]any{"acceptAmount": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body["finalized"] != false {
		t.Fatalf("expected partial acceptance, got %v", body)
	}

	rr, body = doJSON(t, handler, http.MethodPost, "/api/proposals/proposal-1/accept-negotiation", client, map[string]any{"acceptAmount": true})
	if rr.Code != http.StatusConflict || body["code"] != CodeNoPendingCounter {
		t.Fatalf("expected NO_PENDING_COUNTER, got %d %v", rr.Code, body)
	}

	rr, body = doJSON(t, handler, http.MethodGet, "/api/proposals/proposal-1/negotiations", producer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if messages, _ := body["messages"].([]any); len(messages) != 2 {
		t.Fatalf("expected two messages, got %v", body["messages"])
	}

	rr, body = doJSON(t, handler, http.MethodPost, "/api/proposals/proposal-1/finalize", client, nil)
	if rr.Code != http.StatusConflict || body["code"] != CodeNotReadyForPayment {
		t.Fatalf("expected NOT_READY_FOR_PAYMENT, got %d %v", rr.Code, body)
	}
}

func TestHTTPErrorShapes(t *testing.T) {
	fs := newFakeStore()
	fs.seedProposal(store.Proposal{SyncFee: 500})
	fs.profiles["admin-1"] = store.Profile{ID: "admin-1", DisplayName: "Ada Admin", AccountType: "admin", IsEmailVerified: true}
	svc := newTestService(fs, Options{})
	handler := NewHTTPServer(svc, "*").Handler()
	admin := tokenFor(t, svc, fs, "admin-1")
	client := tokenFor(t, svc, fs, "client-1")

	rr, body := doJSON(t, handler, http.MethodGet, "/api/proposals/missing", client, nil)
	if rr.Code != http.StatusNotFound || body["code"] != "NOT_FOUND" {
		t.Fatalf("expected 404, got %d %v", rr.Code, body)
	}

	rr, body = doJSON(t, handler, http.MethodPost, "/api/catalog/genres", admin, map[string]any{"display_name": ""})
	if rr.Code != http.StatusUnprocessableEntity || body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected 422, got %d %v", rr.Code, body)
	}
	details, _ := body["details"].(map[string]any)
	fields, _ := details["fields"].(map[string]any)
	if fields["display_name"] == nil {
		t.Fatalf("expected display_name field error, got %v", body["details"])
	}

	rr, body = doJSON(t, handler, http.MethodPost, "/api/catalog/genres", client, map[string]any{"display_name": "Jazz"})
	if rr.Code != http.StatusForbidden || body["code"] != "FORBIDDEN" {
		t.Fatalf("expected 403, got %d %v", rr.Code, body)
	}

	rr, body = doJSON(t, handler, http.MethodPost, "/api/catalog/genres", admin, map[string]any{"display_name": "Hip Hop"})
	if rr.Code != http.StatusCreated || body["name"] != "hip_hop" {
		t.Fatalf("expected created hip_hop, got %d %v", rr.Code, body)
	}
	rr, body = doJSON(t, handler, http.MethodPost, "/api/catalog/genres", admin, map[string]any{"display_name": "hip hop"})
	if rr.Code != http.StatusConflict || body["code"] != "DUPLICATE" {
		t.Fatalf("expected duplicate, got %d %v", rr.Code, body)
	}

	rr, body = doJSON(t, handler, http.MethodGet, "/api/catalog", client, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if entities, _ := body["entities"].([]any); len(entities) != 4 {
		t.Fatalf("expected four catalog entities, got %v", body["entities"])
	}

	req := httptest.NewRequest(http.MethodPost, "/api/proposals/proposal-1/negotiations", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+client)
	bad := httptest.NewRecorder()
	handler.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", bad.Code)
	}
}

func TestProposalEventsStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fs := newFakeStore()
	fs.seedProposal(store.Proposal{SyncFee: 500})
	svc := newTestService(fs, Options{Events: realtime.NewHub(client)})
	srv := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/proposals/proposal-1/events?access_token="+tokenFor(t, svc, fs, "client-1"), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %s", ct)
	}

	if _, err := svc.SendMessage(context.Background(), producerSession, "proposal-1", MessageInput{Message: "Hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: "+realtime.EventMessage {
			if !scanner.Scan() {
				break
			}
			var event realtime.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(scanner.Text(), "data: ")), &event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if event.ProposalID != "proposal-1" || event.ActorID != "producer-1" {
				t.Fatalf("unexpected event %+v", event)
			}
			return
		}
	}
	t.Fatalf("stream ended without a message event: %v", scanner.Err())
}

func TestProposalEventsWithoutHub(t *testing.T) {
	fs := newFakeStore()
	fs.seedProposal(store.Proposal{SyncFee: 500})
	svc := newTestService(fs, Options{})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, body := doJSON(t, handler, http.MethodGet, "/api/proposals/proposal-1/events", tokenFor(t, svc, fs, "client-1"), nil)
	if rr.Code != http.StatusServiceUnavailable || body["code"] != "REALTIME_UNAVAILABLE" {
		t.Fatalf("expected REALTIME_UNAVAILABLE, got %d %v", rr.Code, body)
	}
}
