package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func writeServiceAccountKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "sa.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path, key
}

func testConfig(t *testing.T) (Config, *rsa.PrivateKey) {
	t.Helper()
	path, key := writeServiceAccountKey(t)
	return Config{
		IssuerID:            "3388000000012345",
		ClassSuffix:         "loyalty",
		ServiceAccountEmail: "sync@test-project.iam.gserviceaccount.com",
		PrivateKeyPath:      path,
	}, key
}

func TestNewClientConfigValidation(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}

	cfg, _ := testConfig(t)
	cfg.PrivateKeyPath = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := NewClient(cfg); !errors.Is(err, ErrSigningKeyInvalid) {
		t.Fatalf("err = %v, want ErrSigningKeyInvalid", err)
	}
}

func TestBuildObjectRendersSnapshot(t *testing.T) {
	cfg, _ := testConfig(t)
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	object, err := client.BuildObject(ObjectInput{
		Serial:             "card-0001",
		DisplayName:        "Ana López",
		Phone:              "5512345678",
		PlanLabel:          "Tarjeta de Lealtad",
		CounterLabel:       "Sellos",
		CounterValue:       "3/10",
		HexBackgroundColor: "#EC407A",
		Active:             true,
	})
	if err != nil {
		t.Fatalf("build object: %v", err)
	}

	if object["id"] != "3388000000012345.card-0001" {
		t.Fatalf("id = %v", object["id"])
	}
	if object["classId"] != "3388000000012345.loyalty" {
		t.Fatalf("classId = %v", object["classId"])
	}
	if object["state"] != "ACTIVE" {
		t.Fatalf("state = %v", object["state"])
	}
	points, ok := object["loyaltyPoints"].(map[string]interface{})
	if !ok {
		t.Fatal("missing loyaltyPoints")
	}
	balance := points["balance"].(map[string]interface{})
	if balance["string"] != "3/10" {
		t.Fatalf("balance = %v", balance["string"])
	}

	inactive, err := client.BuildObject(ObjectInput{Serial: "card-0002"})
	if err != nil {
		t.Fatalf("build inactive: %v", err)
	}
	if inactive["state"] != "INACTIVE" {
		t.Fatalf("state = %v", inactive["state"])
	}
}

func TestSaveURLSignsWalletJWT(t *testing.T) {
	cfg, key := testConfig(t)
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	saveURL, err := client.SaveURL("card-0001")
	if err != nil {
		t.Fatalf("save url: %v", err)
	}
	if !strings.HasPrefix(saveURL, "https://pay.google.com/gp/v/save/") {
		t.Fatalf("unexpected url prefix: %s", saveURL)
	}

	raw := strings.TrimPrefix(saveURL, "https://pay.google.com/gp/v/save/")
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("parse jwt: %v", err)
	}
	if claims["aud"] != "google" || claims["typ"] != "savetowallet" {
		t.Fatalf("claims = %v", claims)
	}
	payload, ok := claims["payload"].(map[string]interface{})
	if !ok {
		t.Fatal("missing payload claim")
	}
	objects := payload["loyaltyObjects"].([]interface{})
	first := objects[0].(map[string]interface{})
	if first["id"] != "3388000000012345.card-0001" {
		t.Fatalf("object id = %v", first["id"])
	}
}

func newWalletAPIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGetObjectNotFound(t *testing.T) {
	server := newWalletAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	cfg, _ := testConfig(t)
	cfg.APIBaseURL = server.URL
	cfg.TokenURL = server.URL + "/token"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.GetObject(context.Background(), client.ObjectID("card-0404")); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestInsertAndPatchObject(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]interface{}
	server := newWalletAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "ok"})
	})
	cfg, _ := testConfig(t)
	cfg.APIBaseURL = server.URL
	cfg.TokenURL = server.URL + "/token"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	object, err := client.BuildObject(ObjectInput{Serial: "card-0001", Active: true})
	if err != nil {
		t.Fatalf("build object: %v", err)
	}
	if err := client.InsertObject(context.Background(), object); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/loyaltyObject" {
		t.Fatalf("insert hit %s %s", gotMethod, gotPath)
	}
	if gotBody["id"] != "3388000000012345.card-0001" {
		t.Fatalf("insert body id = %v", gotBody["id"])
	}

	if err := client.PatchObject(context.Background(), client.ObjectID("card-0001"), object); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/loyaltyObject/3388000000012345.card-0001" {
		t.Fatalf("patch hit %s %s", gotMethod, gotPath)
	}
}
