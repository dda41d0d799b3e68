package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmit_Success(t *testing.T) {
	var gotAuth, gotIdem string
	var gotSub Submission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/listings" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotSub); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{ItemID: "it-1", AccountID: "acct-1", ListingURL: "https://m/it-1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", 5*time.Second)
	res, err := c.Submit(context.Background(), Submission{SKU: "PC-0001", Title: "t", Price: 9.5, CategoryID: 914})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.ItemID != "it-1" || res.ListingURL != "https://m/it-1" {
		t.Fatalf("result = %+v", res)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotIdem != "PC-0001" {
		t.Fatalf("Idempotency-Key = %q", gotIdem)
	}
	if gotSub.SKU != "PC-0001" || gotSub.CategoryID != 914 {
		t.Fatalf("submission = %+v", gotSub)
	}
}

func TestSubmit_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      string
		wantRetryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", CodeRateLimited, true},
		{"auth expired", http.StatusUnauthorized, "token expired", CodeAuthExpired, true},
		{"server error", http.StatusBadGateway, "upstream down", CodeServerError, true},
		{"coded rejection", http.StatusUnprocessableEntity, `{"code":"category_not_leaf","message":"pick a leaf"}`, CodeCategoryNotLeaf, false},
		{"uncoded rejection", http.StatusBadRequest, "malformed", CodeValidationRejected, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, "secret", 5*time.Second)
			_, err := c.Submit(context.Background(), Submission{SKU: "PC-0001"})
			apiErr, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("err = %v, want APIError", err)
			}
			if apiErr.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", apiErr.Code, tc.wantCode)
			}
			if apiErr.Retryable() != tc.wantRetryable {
				t.Fatalf("Retryable = %v, want %v", apiErr.Retryable(), tc.wantRetryable)
			}
		})
	}
}

func TestSubmit_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewHTTPClient(srv.URL, "secret", time.Second)
	_, err := c.Submit(context.Background(), Submission{SKU: "PC-0001"})
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != CodeNetwork || !apiErr.Retryable() {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestIsLeaf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/categories/914":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 914, "leaf": true})
		case "/categories/260":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 260, "leaf": false})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", 5*time.Second)
	ctx := context.Background()

	leaf, err := c.IsLeaf(ctx, 914)
	if err != nil || !leaf {
		t.Fatalf("IsLeaf(914) = %v, %v", leaf, err)
	}
	leaf, err = c.IsLeaf(ctx, 260)
	if err != nil || leaf {
		t.Fatalf("IsLeaf(260) = %v, %v", leaf, err)
	}

	_, err = c.IsLeaf(ctx, 999)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
}
