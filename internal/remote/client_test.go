package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stockpile-dev/stockpile/internal/model"
)

// TestInsert_SendsIdempotencyKey tests that creates carry the dedup header
func TestInsert_SendsIdempotencyKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/products" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")

		var p model.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		p.ID = "42"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&p)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	created, err := client.Insert(context.Background(), &model.Product{ID: "local-a", Name: "Widget"}, "key-1")
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	if gotKey != "key-1" {
		t.Errorf("Idempotency-Key = %q, want 'key-1'", gotKey)
	}
	if created.ID != "42" {
		t.Errorf("Server id = %q, want '42'", created.ID)
	}
	if created.Name != "Widget" {
		t.Errorf("Name = %q, want 'Widget'", created.Name)
	}
}

// TestDo_RejectionError tests classification of non-2xx responses
func TestDo_RejectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_sku","message":"sku already taken"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Insert(context.Background(), &model.Product{Name: "Widget"}, "")
	if err == nil {
		t.Fatal("Insert() should fail on 422")
	}

	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("Error = %T, want *RejectionError", err)
	}
	if rej.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, want 422", rej.StatusCode)
	}
	if rej.Code != "invalid_sku" {
		t.Errorf("Code = %q, want 'invalid_sku'", rej.Code)
	}
	if rej.Message != "sku already taken" {
		t.Errorf("Message = %q, want server message", rej.Message)
	}
	if !IsRejection(err) {
		t.Error("IsRejection() = false, want true")
	}
	if IsNetwork(err) {
		t.Error("IsNetwork() = true for a rejection")
	}
}

// TestDo_NetworkError tests classification of transport failures
func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(srv.URL)
	err := client.Ping(context.Background())
	if err == nil {
		t.Fatal("Ping() against closed server should fail")
	}

	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("Error = %T, want *NetworkError", err)
	}
	if !IsNetwork(err) {
		t.Error("IsNetwork() = false, want true")
	}
	if IsRejection(err) {
		t.Error("IsRejection() = true for a transport failure")
	}
}

// TestDelete_NotFoundIsSuccess tests the gone-either-way rule
func TestDelete_NotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.Delete(context.Background(), "42"); err != nil {
		t.Errorf("Delete() on 404 failed: %v", err)
	}
}

// TestDelete_OtherRejection tests that non-404 rejections still surface
func TestDelete_OtherRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Delete(context.Background(), "42")
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.StatusCode != http.StatusForbidden {
		t.Errorf("Delete() error = %v, want 403 rejection", err)
	}
}

// TestUpdate_PathEscaping tests id placement in the URL
func TestUpdate_PathEscaping(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(&model.Product{ID: "42", Name: "Widget"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if _, err := client.Update(context.Background(), "42", &model.Product{ID: "42", Name: "Widget"}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if gotPath != "/api/products/42" {
		t.Errorf("Path = %q, want '/api/products/42'", gotPath)
	}
}

// TestListByCategory tests the category query parameter
func TestListByCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("category"); got != "tools" {
			t.Errorf("category = %q, want 'tools'", got)
		}
		_ = json.NewEncoder(w).Encode([]*model.Product{{ID: "42", Name: "Anvil"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	products, err := client.ListByCategory(context.Background(), "tools")
	if err != nil {
		t.Fatalf("ListByCategory() failed: %v", err)
	}
	if len(products) != 1 || products[0].ID != "42" {
		t.Errorf("ListByCategory() = %v, want [42]", products)
	}
}
