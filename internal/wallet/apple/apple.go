// Package apple builds signed .pkpass bundles for Apple Wallet. Passes are
// rebuilt from the card snapshot on every request; nothing is stored.
package apple

import (
	"archive/zip"
	"bytes"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.mozilla.org/pkcs7"
)

var (
	ErrConfigInvalid       = errors.New("apple wallet config invalid")
	ErrCertificatesMissing = errors.New("apple wallet certificates missing")
	ErrSigningFailed       = errors.New("apple wallet signing failed")
)

// Config Apple Wallet pass signing configuration.
type Config struct {
	PassTypeIdentifier string `json:"pass_type_identifier"`
	TeamIdentifier     string `json:"team_identifier"`
	OrganizationName   string `json:"organization_name"`
	CertificatePath    string `json:"certificate_path"`
	PrivateKeyPath     string `json:"private_key_path"`
	WWDRPath           string `json:"wwdr_path"`
	AssetsDir          string `json:"assets_dir"`
}

// PassInput is the card snapshot plus plan presentation rendered into a pass.
type PassInput struct {
	Serial          string
	DisplayName     string
	Phone           string
	PlanLabel       string
	CounterLabel    string
	CounterValue    string
	BackgroundColor string
	ForegroundColor string
	StatusText      string
}

// Builder signs pass bundles with a pre-loaded certificate chain.
type Builder struct {
	cfg       Config
	signCert  *x509.Certificate
	signKey   interface{}
	wwdrCert  *x509.Certificate
	assetsDir string
}

// ValidateConfig checks the static configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.PassTypeIdentifier) == "" {
		return fmt.Errorf("%w: pass_type_identifier is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.TeamIdentifier) == "" {
		return fmt.Errorf("%w: team_identifier is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.OrganizationName) == "" {
		return fmt.Errorf("%w: organization_name is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.CertificatePath) == "" || strings.TrimSpace(cfg.PrivateKeyPath) == "" || strings.TrimSpace(cfg.WWDRPath) == "" {
		return fmt.Errorf("%w: certificate, key and wwdr paths are required", ErrConfigInvalid)
	}
	return nil
}

// NewBuilder loads the signing material. Missing or unparsable certificates
// fail here so that serving starts with a working signer or not at all.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	signCert, err := loadCertificate(cfg.CertificatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: pass certificate: %v", ErrCertificatesMissing, err)
	}
	signKey, err := loadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: pass private key: %v", ErrCertificatesMissing, err)
	}
	wwdrCert, err := loadCertificate(cfg.WWDRPath)
	if err != nil {
		return nil, fmt.Errorf("%w: wwdr certificate: %v", ErrCertificatesMissing, err)
	}
	return &Builder{
		cfg:       cfg,
		signCert:  signCert,
		signKey:   signKey,
		wwdrCert:  wwdrCert,
		assetsDir: strings.TrimSpace(cfg.AssetsDir),
	}, nil
}

// Build renders and signs a complete .pkpass bundle for one card snapshot.
func (b *Builder) Build(input PassInput) ([]byte, error) {
	serial := strings.TrimSpace(input.Serial)
	if serial == "" {
		return nil, fmt.Errorf("%w: serial is required", ErrConfigInvalid)
	}

	files := map[string][]byte{}
	passJSON, err := b.renderPassJSON(input)
	if err != nil {
		return nil, err
	}
	files["pass.json"] = passJSON

	assets, err := loadAssets(b.assetsDir)
	if err != nil {
		return nil, err
	}
	for name, data := range assets {
		files[name] = data
	}

	manifest, err := renderManifest(files)
	if err != nil {
		return nil, err
	}
	files["manifest.json"] = manifest

	signature, err := b.sign(manifest)
	if err != nil {
		return nil, err
	}
	files["signature"] = signature

	return zipBundle(files)
}

func (b *Builder) renderPassJSON(input PassInput) ([]byte, error) {
	headerFields := []map[string]interface{}{}
	if input.CounterLabel != "" {
		headerFields = append(headerFields, map[string]interface{}{
			"key":   "counter",
			"label": input.CounterLabel,
			"value": input.CounterValue,
		})
	}
	primaryFields := []map[string]interface{}{
		{
			"key":   "member",
			"label": "Cliente",
			"value": strings.TrimSpace(input.DisplayName),
		},
	}
	secondaryFields := []map[string]interface{}{
		{
			"key":   "phone",
			"label": "Teléfono",
			"value": strings.TrimSpace(input.Phone),
		},
	}
	if status := strings.TrimSpace(input.StatusText); status != "" {
		secondaryFields = append(secondaryFields, map[string]interface{}{
			"key":   "status",
			"label": "Estado",
			"value": status,
		})
	}

	pass := map[string]interface{}{
		"formatVersion":      1,
		"passTypeIdentifier": b.cfg.PassTypeIdentifier,
		"teamIdentifier":     b.cfg.TeamIdentifier,
		"organizationName":   b.cfg.OrganizationName,
		"serialNumber":       strings.TrimSpace(input.Serial),
		"description":        strings.TrimSpace(input.PlanLabel),
		"logoText":           b.cfg.OrganizationName,
		"backgroundColor":    strings.TrimSpace(input.BackgroundColor),
		"foregroundColor":    strings.TrimSpace(input.ForegroundColor),
		"barcodes": []map[string]interface{}{
			{
				"format":          "PKBarcodeFormatQR",
				"message":         strings.TrimSpace(input.Serial),
				"messageEncoding": "iso-8859-1",
			},
		},
		"storeCard": map[string]interface{}{
			"headerFields":    headerFields,
			"primaryFields":   primaryFields,
			"secondaryFields": secondaryFields,
		},
	}
	data, err := json.Marshal(pass)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal pass.json: %v", ErrSigningFailed, err)
	}
	return data, nil
}

func (b *Builder) sign(manifest []byte) ([]byte, error) {
	signed, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	if err := signed.AddSignerChain(b.signCert, b.signKey, []*x509.Certificate{b.wwdrCert}, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	signed.Detach()
	signature, err := signed.Finish()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return signature, nil
}

// renderManifest maps every bundled file to its SHA-1 hex digest.
func renderManifest(files map[string][]byte) ([]byte, error) {
	digests := make(map[string]string, len(files))
	for name, data := range files {
		sum := sha1.Sum(data)
		digests[name] = hex.EncodeToString(sum[:])
	}
	data, err := json.Marshal(digests)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal manifest: %v", ErrSigningFailed, err)
	}
	return data, nil
}

func zipBundle(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("%w: zip entry %s: %v", ErrSigningFailed, name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, fmt.Errorf("%w: zip write %s: %v", ErrSigningFailed, name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: zip close: %v", ErrSigningFailed, err)
	}
	return buf.Bytes(), nil
}

// loadAssets reads image files from the configured directory. The directory
// is optional; a missing one yields an image-less pass.
func loadAssets(dir string) (map[string][]byte, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read assets dir: %v", ErrSigningFailed, err)
	}
	assets := map[string][]byte{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".png") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: read asset %s: %v", ErrSigningFailed, name, err)
		}
		assets[name] = data
	}
	return assets, nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		// DER fallback for certificates exported without PEM armor.
		return x509.ParseCertificate(data)
	}
	return x509.ParseCertificate(block.Bytes)
}

func loadPrivateKey(path string) (interface{}, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no pem block found")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}
