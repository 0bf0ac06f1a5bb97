package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/splitbook/splitbook/internal/auth"
	"github.com/splitbook/splitbook/internal/changefeed"
	"github.com/splitbook/splitbook/internal/service"
	"github.com/splitbook/splitbook/internal/storage/sqlite"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	feed := changefeed.NewMemory()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	server := NewServer(
		auth.NewPasswordAuthenticator(store),
		jwtManager,
		service.NewGroupService(store, feed),
		service.NewReconcileService(store, feed),
	)
	return server.Router([]string{"http://localhost:3000"})
}

// do issues a JSON request against the router and decodes the response
// body into a generic map.
func do(t *testing.T, r *gin.Engine, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, decoded
}

// registerUser registers a user and returns their token and ID.
func registerUser(t *testing.T, r *gin.Engine, email, name string) (token, id string) {
	t.Helper()
	code, resp := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": email, "displayName": name, "password": "correct horse",
	})
	if code != http.StatusCreated {
		t.Fatalf("register %s returned %d: %v", email, code, resp)
	}
	user := resp["user"].(map[string]any)
	return resp["token"].(string), user["id"].(string)
}

func TestRegisterLoginFlow(t *testing.T) {
	r := newTestRouter(t)
	registerUser(t, r, "alice@example.com", "Alice")

	code, resp := do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "correct horse",
	})
	if code != http.StatusOK {
		t.Fatalf("login returned %d: %v", code, resp)
	}
	if resp["token"] == "" {
		t.Error("login response missing token")
	}

	code, _ = do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "wrong horse",
	})
	if code != http.StatusUnauthorized {
		t.Errorf("bad login returned %d, want %d", code, http.StatusUnauthorized)
	}

	code, _ = do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "alice@example.com", "displayName": "Imposter", "password": "correct horse",
	})
	if code != http.StatusConflict {
		t.Errorf("duplicate register returned %d, want %d", code, http.StatusConflict)
	}
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t)

	code, _ := do(t, r, http.MethodGet, "/api/v1/groups", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("no token returned %d, want %d", code, http.StatusUnauthorized)
	}
	code, _ = do(t, r, http.MethodGet, "/api/v1/groups", "not-a-token", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("bad token returned %d, want %d", code, http.StatusUnauthorized)
	}
}

func TestGroupAndTransactionFlow(t *testing.T) {
	r := newTestRouter(t)
	aliceToken, aliceID := registerUser(t, r, "alice@example.com", "Alice")
	bobToken, bobID := registerUser(t, r, "bob@example.com", "Bob")

	code, resp := do(t, r, http.MethodPost, "/api/v1/groups", aliceToken, gin.H{
		"name": "Trip", "kind": "shared",
	})
	if code != http.StatusCreated {
		t.Fatalf("create group returned %d: %v", code, resp)
	}
	groupID := resp["id"].(string)

	code, resp = do(t, r, http.MethodPost, "/api/v1/groups/"+groupID+"/members", aliceToken, gin.H{
		"email": "bob@example.com",
	})
	if code != http.StatusOK {
		t.Fatalf("add member returned %d: %v", code, resp)
	}

	// Bob, not a creator but a member, can see the group.
	code, _ = do(t, r, http.MethodGet, "/api/v1/groups/"+groupID, bobToken, nil)
	if code != http.StatusOK {
		t.Errorf("get group as member returned %d, want %d", code, http.StatusOK)
	}

	txnPath := fmt.Sprintf("/api/v1/groups/%s/transactions", groupID)
	code, resp = do(t, r, http.MethodPost, txnPath, aliceToken, gin.H{
		"kind":           "expense",
		"amount":         "100.00",
		"description":    "dinner",
		"payerId":        aliceID,
		"participantIds": []string{aliceID, bobID},
	})
	if code != http.StatusCreated {
		t.Fatalf("submit expense returned %d: %v", code, resp)
	}

	code, resp = do(t, r, http.MethodGet, "/api/v1/groups/"+groupID+"/balances", aliceToken, nil)
	if code != http.StatusOK {
		t.Fatalf("balances returned %d: %v", code, resp)
	}
	balances := resp["balances"].(map[string]any)
	if balances[aliceID] != "50" {
		t.Errorf("alice balance = %v, want 50", balances[aliceID])
	}
	if balances[bobID] != "-50" {
		t.Errorf("bob balance = %v, want -50", balances[bobID])
	}
}

func TestLoanConfirmationFlow(t *testing.T) {
	r := newTestRouter(t)
	aliceToken, aliceID := registerUser(t, r, "alice@example.com", "Alice")
	bobToken, bobID := registerUser(t, r, "bob@example.com", "Bob")

	_, resp := do(t, r, http.MethodPost, "/api/v1/groups", aliceToken, gin.H{
		"name": "Trip", "kind": "shared",
	})
	groupID := resp["id"].(string)
	do(t, r, http.MethodPost, "/api/v1/groups/"+groupID+"/members", aliceToken, gin.H{"email": "bob@example.com"})

	txnPath := fmt.Sprintf("/api/v1/groups/%s/transactions", groupID)
	code, resp := do(t, r, http.MethodPost, txnPath, aliceToken, gin.H{
		"kind": "loan", "amount": "40", "lenderId": aliceID, "borrowerId": bobID,
	})
	if code != http.StatusCreated {
		t.Fatalf("submit loan returned %d: %v", code, resp)
	}
	txnID := resp["id"].(string)
	if resp["status"] != "pending" {
		t.Errorf("loan status = %v, want pending", resp["status"])
	}

	// The initiator cannot accept their own proposal.
	code, _ = do(t, r, http.MethodPost, txnPath+"/"+txnID+"/accept", aliceToken, nil)
	if code != http.StatusForbidden {
		t.Errorf("self-accept returned %d, want %d", code, http.StatusForbidden)
	}

	code, resp = do(t, r, http.MethodPost, txnPath+"/"+txnID+"/accept", bobToken, nil)
	if code != http.StatusOK {
		t.Fatalf("accept returned %d: %v", code, resp)
	}
	if resp["status"] != "completed" {
		t.Errorf("accepted status = %v, want completed", resp["status"])
	}

	// Re-accepting a settled transaction conflicts.
	code, _ = do(t, r, http.MethodPost, txnPath+"/"+txnID+"/accept", bobToken, nil)
	if code != http.StatusConflict {
		t.Errorf("double accept returned %d, want %d", code, http.StatusConflict)
	}
}

func TestReportFilterValidation(t *testing.T) {
	r := newTestRouter(t)
	token, _ := registerUser(t, r, "alice@example.com", "Alice")
	_, resp := do(t, r, http.MethodPost, "/api/v1/groups", token, gin.H{"name": "Trip", "kind": "shared"})
	groupID := resp["id"].(string)

	code, _ := do(t, r, http.MethodGet, "/api/v1/groups/"+groupID+"/report?kinds=transfer", token, nil)
	if code != http.StatusBadRequest {
		t.Errorf("unknown kind returned %d, want %d", code, http.StatusBadRequest)
	}
	code, _ = do(t, r, http.MethodGet, "/api/v1/groups/"+groupID+"/report?from=yesterday", token, nil)
	if code != http.StatusBadRequest {
		t.Errorf("bad timestamp returned %d, want %d", code, http.StatusBadRequest)
	}
	code, _ = do(t, r, http.MethodGet, "/api/v1/groups/"+groupID+"/report?kinds=expense,loan&archived=false", token, nil)
	if code != http.StatusOK {
		t.Errorf("valid filter returned %d, want %d", code, http.StatusOK)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	code, resp := do(t, r, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK || resp["status"] != "ok" {
		t.Errorf("health = %d %v, want 200 ok", code, resp)
	}
}
