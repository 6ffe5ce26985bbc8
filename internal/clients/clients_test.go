package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCustomerClientExists(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers/CUST12345678":
			w.WriteHeader(http.StatusOK)
		case "/customers/CUSTMISSING1":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewCustomerClient(srv.URL)
	ctx := context.Background()

	exists, err := client.Exists(ctx, "CUST12345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("expected customer to exist")
	}

	exists, err = client.Exists(ctx, "CUSTMISSING1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Fatal("expected customer to be missing")
	}

	if _, err := client.Exists(ctx, "CUSTBROKEN00"); err == nil {
		t.Fatal("expected error for unexpected status")
	}
}

func TestProductClientGet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/p-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"p-1","name":"Keyboard","price":49.99,"stock":12}`))
		case "/products/p-missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewProductClient(srv.URL)
	ctx := context.Background()

	info, found, err := client.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected product to exist")
	}
	if info.Name != "Keyboard" || info.Price != 49.99 || info.Stock != 12 {
		t.Fatalf("unexpected product %+v", info)
	}

	_, found, err = client.Get(ctx, "p-missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected product to be missing")
	}

	if _, _, err := client.Get(ctx, "p-broken"); err == nil {
		t.Fatal("expected error for unexpected status")
	}
}
