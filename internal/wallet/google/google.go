// Package google maintains hosted loyalty objects in the Google Wallet API
// and issues signed save-to-wallet links.
package google

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrConfigInvalid     = errors.New("google wallet config invalid")
	ErrSigningKeyInvalid = errors.New("google wallet signing key invalid")
	ErrRequestFailed     = errors.New("google wallet request failed")
	ErrResponseInvalid   = errors.New("google wallet response invalid")
	ErrObjectNotFound    = errors.New("google wallet object not found")
)

const (
	defaultAPIBaseURL = "https://walletobjects.googleapis.com/walletobjects/v1"
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	defaultSaveURL    = "https://pay.google.com/gp/v/save/"
	walletScope       = "https://www.googleapis.com/auth/wallet_object.issuer"
	defaultTimeout    = 12 * time.Second
)

// Config Google Wallet issuer configuration.
type Config struct {
	IssuerID            string `json:"issuer_id"`
	ClassSuffix         string `json:"class_suffix"`
	ServiceAccountEmail string `json:"service_account_email"`
	PrivateKeyPath      string `json:"private_key_path"`
	APIBaseURL          string `json:"api_base_url"`
	TokenURL            string `json:"token_url"`
}

// ObjectInput is the card snapshot plus plan presentation rendered into a
// loyalty object.
type ObjectInput struct {
	Serial             string
	DisplayName        string
	Phone              string
	PlanLabel          string
	CounterLabel       string
	CounterValue       string
	HexBackgroundColor string
	Active             bool
}

// Client talks to the Google Wallet REST API with a service-account key.
type Client struct {
	cfg        Config
	signKey    *rsa.PrivateKey
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// ValidateConfig checks the static configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.IssuerID) == "" {
		return fmt.Errorf("%w: issuer_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClassSuffix) == "" {
		return fmt.Errorf("%w: class_suffix is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ServiceAccountEmail) == "" {
		return fmt.Errorf("%w: service_account_email is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
		return fmt.Errorf("%w: private_key_path is required", ErrConfigInvalid)
	}
	return nil
}

// NewClient loads and parses the service-account key. An unreadable key fails
// here so serving starts with a working signer or not at all.
func NewClient(cfg Config) (*Client, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	key, err := loadRSAKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningKeyInvalid, err)
	}
	return &Client{
		cfg:        cfg,
		signKey:    key,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// ObjectID derives the hosted object id for a card serial.
func (c *Client) ObjectID(serial string) string {
	return fmt.Sprintf("%s.%s", c.cfg.IssuerID, sanitizeIDPart(serial))
}

// ClassID returns the loyalty class id shared by every card.
func (c *Client) ClassID() string {
	return fmt.Sprintf("%s.%s", c.cfg.IssuerID, sanitizeIDPart(c.cfg.ClassSuffix))
}

// BuildObject renders the loyalty object payload for one card snapshot. Pure;
// the same snapshot always yields the same payload.
func (c *Client) BuildObject(input ObjectInput) (map[string]interface{}, error) {
	serial := strings.TrimSpace(input.Serial)
	if serial == "" {
		return nil, fmt.Errorf("%w: serial is required", ErrConfigInvalid)
	}
	state := "ACTIVE"
	if !input.Active {
		state = "INACTIVE"
	}
	object := map[string]interface{}{
		"id":          c.ObjectID(serial),
		"classId":     c.ClassID(),
		"state":       state,
		"accountId":   strings.TrimSpace(input.Phone),
		"accountName": strings.TrimSpace(input.DisplayName),
		"barcode": map[string]interface{}{
			"type":  "QR_CODE",
			"value": serial,
		},
	}
	if color := strings.TrimSpace(input.HexBackgroundColor); color != "" {
		object["hexBackgroundColor"] = color
	}
	if label := strings.TrimSpace(input.CounterLabel); label != "" {
		object["loyaltyPoints"] = map[string]interface{}{
			"label": label,
			"balance": map[string]interface{}{
				"string": strings.TrimSpace(input.CounterValue),
			},
		}
	}
	if plan := strings.TrimSpace(input.PlanLabel); plan != "" {
		object["textModulesData"] = []map[string]interface{}{
			{
				"id":     "plan",
				"header": "Plan",
				"body":   plan,
			},
		}
	}
	return object, nil
}

// SaveURL signs a save-to-wallet JWT embedding the object reference and
// returns the add-to-Google-Wallet link.
func (c *Client) SaveURL(serial string) (string, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return "", fmt.Errorf("%w: serial is required", ErrConfigInvalid)
	}
	claims := jwt.MapClaims{
		"iss": c.cfg.ServiceAccountEmail,
		"aud": "google",
		"typ": "savetowallet",
		"iat": time.Now().Unix(),
		"payload": map[string]interface{}{
			"loyaltyObjects": []map[string]interface{}{
				{"id": c.ObjectID(serial)},
			},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("%w: sign save jwt: %v", ErrSigningKeyInvalid, err)
	}
	return defaultSaveURL + signed, nil
}

// GetObject fetches a hosted loyalty object. A 404 maps to ErrObjectNotFound
// so callers can branch insert-vs-patch on it.
func (c *Client) GetObject(ctx context.Context, objectID string) (map[string]interface{}, error) {
	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		return nil, fmt.Errorf("%w: object id is required", ErrConfigInvalid)
	}
	body, status, err := c.doJSON(ctx, http.MethodGet, "/loyaltyObject/"+url.PathEscape(objectID), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrObjectNotFound
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: get object status %d", ErrResponseInvalid, status)
	}
	return decodeRawMap(body)
}

// InsertObject creates a hosted loyalty object.
func (c *Client) InsertObject(ctx context.Context, object map[string]interface{}) error {
	if len(object) == 0 {
		return fmt.Errorf("%w: object is empty", ErrConfigInvalid)
	}
	body, status, err := c.doJSON(ctx, http.MethodPost, "/loyaltyObject", object)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: insert object status %d: %s", ErrResponseInvalid, status, truncate(body))
	}
	return nil
}

// PatchObject updates a hosted loyalty object in place.
func (c *Client) PatchObject(ctx context.Context, objectID string, object map[string]interface{}) error {
	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		return fmt.Errorf("%w: object id is required", ErrConfigInvalid)
	}
	if len(object) == 0 {
		return fmt.Errorf("%w: object is empty", ErrConfigInvalid)
	}
	body, status, err := c.doJSON(ctx, http.MethodPatch, "/loyaltyObject/"+url.PathEscape(objectID), object)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: patch object status %d: %s", ErrResponseInvalid, status, truncate(body))
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload map[string]interface{}) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	token, err := c.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: marshal payload: %v", ErrRequestFailed, err)
		}
		reqBody = bytes.NewReader(data)
	}
	endpoint := strings.TrimRight(c.cfg.APIBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

// token returns a cached service-account access token, refreshing it through
// the OAuth JWT-bearer grant when close to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.cfg.ServiceAccountEmail,
		"scope": walletScope,
		"aud":   c.cfg.TokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("%w: sign token assertion: %v", ErrSigningKeyInvalid, err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read token response failed", ErrResponseInvalid)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token exchange status %d", ErrResponseInvalid, resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode token response failed", ErrResponseInvalid)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", fmt.Errorf("%w: empty access token", ErrResponseInvalid)
	}
	ttl := parsed.ExpiresIn
	if ttl <= 0 {
		ttl = 3600
	}
	c.accessToken = parsed.AccessToken
	c.tokenExpiry = now.Add(time.Duration(ttl) * time.Second)
	return c.accessToken, nil
}

func (c *Config) normalize() {
	c.IssuerID = strings.TrimSpace(c.IssuerID)
	c.ClassSuffix = strings.TrimSpace(c.ClassSuffix)
	c.ServiceAccountEmail = strings.TrimSpace(c.ServiceAccountEmail)
	c.PrivateKeyPath = strings.TrimSpace(c.PrivateKeyPath)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
}

// sanitizeIDPart keeps the charset Google accepts in object ids.
func sanitizeIDPart(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func loadRSAKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no pem block found")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an rsa key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max])
}
