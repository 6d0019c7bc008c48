package bank

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestClient points both the API and the token endpoint at the test
// server; the handler below answers the client-credentials exchange.
func newTestClient(server *httptest.Server) *Client {
	return NewClient(server.URL, server.URL+"/oauth/token", "client-id", "client-secret", "app-key")
}

func tokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":600}`)
}

func TestQueryBatchStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenHandler(w, r)
			return
		}
		if r.URL.Path != "/lotes-pagamentos/100/solicitacao" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer token header, got %q", got)
		}
		if got := r.Header.Get("gw-dev-app-key"); got != "app-key" {
			t.Errorf("expected app key header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"estadoRequisicao": 6,
			"quantidadeLancamentosValidos": 2,
			"valorLancamentosValidos": 1500.50,
			"lancamentos": [
				{"identificadorPagamento": "pay-1", "estadoPagamento": "PAGO"},
				{"identificadorPagamento": "pay-2", "estadoPagamento": "Pendente"}
			]
		}`)
	}))
	defer server.Close()

	client := newTestClient(server)

	status, err := client.QueryBatchStatus(context.Background(), "100", "acc-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status.StateCode == nil || *status.StateCode != 6 {
		t.Fatalf("expected state code 6, got %v", status.StateCode)
	}
	if status.ValidCount != 2 {
		t.Errorf("expected 2 valid items, got %d", status.ValidCount)
	}
	if status.ValidAmount != 1500.50 {
		t.Errorf("expected valid amount 1500.50, got %f", status.ValidAmount)
	}
	if len(status.Items) != 2 || status.Items[0].PaymentIdentifier != "pay-1" || status.Items[1].State != "Pendente" {
		t.Errorf("unexpected items: %+v", status.Items)
	}
}

func TestQueryBatchStatus_MissingStateCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"quantidadeLancamentosValidos": 0}`)
	}))
	defer server.Close()

	client := newTestClient(server)

	status, err := client.QueryBatchStatus(context.Background(), "100", "acc-1")
	if err != nil {
		t.Fatalf("expected no error for a payload without a state code, got %v", err)
	}
	if status.StateCode != nil {
		t.Errorf("expected nil state code, got %d", *status.StateCode)
	}
}

func TestQueryItemStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenHandler(w, r)
			return
		}
		if r.URL.Path != "/pagamentos/pay-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"estadoPagamento": "PAGO", "dataPagamento": "2026-03-10"}`)
	}))
	defer server.Close()

	client := newTestClient(server)

	status, err := client.QueryItemStatus(context.Background(), "pay-1", "acc-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status.State != "PAGO" {
		t.Errorf("expected state PAGO, got %s", status.State)
	}
	if status.PaidAt == nil {
		t.Fatal("expected paid_at to be parsed")
	}
	if status.PaidAt.Format("2006-01-02") != "2026-03-10" {
		t.Errorf("expected paid_at 2026-03-10, got %s", status.PaidAt)
	}
}

func TestQueryItemStatus_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenHandler(w, r)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server)

	_, err := client.QueryItemStatus(context.Background(), "pay-1", "acc-1")
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
