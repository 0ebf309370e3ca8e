package directory

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testServiceAccountKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	raw, err := json.Marshal(map[string]string{
		"client_email": "directory@test.iam.example.com",
		"private_key":  string(pemKey),
	})
	if err != nil {
		t.Fatalf("marshal service account: %v", err)
	}
	return string(raw)
}

func TestSheetsRowsByHeader(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected token method %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("unexpected grant type %q", got)
		}
		assertion := r.Form.Get("assertion")
		if strings.Count(assertion, ".") != 2 {
			t.Errorf("assertion is not a three-part JWT: %q", assertion)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"test-token","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	valuesSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization %q", got)
		}
		if !strings.Contains(r.URL.Path, "/sheet-1/values/") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"values":[["num","name","permit"],["K1234","First Member","1"],["K5678","Second Member"]]}`))
	}))
	defer valuesSrv.Close()

	client, err := NewSheetsClient(testServiceAccountKey(t), "sheet-1",
		WithBaseURL(valuesSrv.URL),
		WithTokenURL(tokenSrv.URL),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	rows, err := client.RowsByHeader(context.Background(), "main!A1:K100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["name"] != "First Member" || !rows[0].Permitted() {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	// Short rows leave trailing columns unset.
	if _, ok := rows[1]["permit"]; ok {
		t.Errorf("expected missing permit cell, got %v", rows[1])
	}
}

func TestNewSheetsClientRejectsBadKey(t *testing.T) {
	if _, err := NewSheetsClient("not json", "sheet-1"); err == nil {
		t.Error("expected error for invalid key JSON")
	}
	if _, err := NewSheetsClient(`{"client_email":"a@b","private_key":"not pem"}`, "sheet-1"); err == nil {
		t.Error("expected error for invalid PEM")
	}
}
