package erp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsBearerTokenAndDecodesCustomers(t *testing.T) {
	var seenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/customers" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		seenAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"currentCode":"C1","title":"Acme","balance":150.5}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	customers, err := client.FetchCustomers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenAuth != "Bearer secret-token" {
		t.Fatalf("unexpected authorization header %q", seenAuth)
	}
	if len(customers) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(customers))
	}
	if customers[0].CurrentCode != "C1" || customers[0].Title != "Acme" || customers[0].Balance != 150.5 {
		t.Fatalf("unexpected customer %+v", customers[0])
	}
}

func TestClientPassesInvoiceDirection(t *testing.T) {
	var seenDirections []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/invoices" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		seenDirections = append(seenDirections, r.URL.Query().Get("direction"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if _, err := client.FetchIncomingInvoices(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.FetchOutgoingInvoices(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seenDirections) != 2 || seenDirections[0] != "incoming" || seenDirections[1] != "outgoing" {
		t.Fatalf("unexpected directions %v", seenDirections)
	}
}

func TestClientSurfacesErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if _, err := client.FetchOffers(context.Background()); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestClientHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, "")
	if _, err := client.FetchWarehouses(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
