// Package wallet provides the signing identity of a bank service: an RSA key
// pair, a derived address, and RSA-PSS signatures over transaction ids.
package wallet

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
)

const keyBits = 2048

// Wallet holds a bank's RSA key pair.
type Wallet struct {
	priv *rsa.PrivateKey
}

// Generate creates a wallet with a fresh key pair.
func Generate() (*Wallet, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Wallet{priv: priv}, nil
}

// Load reads a PKCS#1 PEM private key from path. An empty path yields a
// freshly generated wallet, matching the behavior of banks started without
// provisioned keys.
func Load(path string) (*Wallet, error) {
	if path == "" {
		return Generate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("key file %s: no PEM block", path)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Wallet{priv: priv}, nil
}

// Save writes the private key to path as PKCS#1 PEM.
func (w *Wallet) Save(path string) error {
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(w.priv),
	}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// Sign hashes msg with SHA-256 and signs with RSA-PSS. The signature is
// returned hex-encoded so it can travel in JSON.
func (w *Wallet) Sign(msg string) (string, error) {
	hashed := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, w.priv, crypto.SHA256, hashed[:], nil)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify checks a hex signature produced by Sign against pub.
func Verify(pub *rsa.PublicKey, msg, hexSig string) error {
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	hashed := sha256.Sum256([]byte(msg))
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, nil); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return nil
}

// PublicKey returns the wallet's public key.
func (w *Wallet) PublicKey() *rsa.PublicKey {
	return &w.priv.PublicKey
}

// PublicKeyPEM returns the public key as a PKIX PEM string.
func (w *Wallet) PublicKeyPEM() string {
	der, err := x509.MarshalPKIXPublicKey(&w.priv.PublicKey)
	if err != nil {
		return ""
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// Address derives a stable short identifier from the public key: the first
// 20 bytes of the SHA-256 of its DER encoding, 0x-prefixed.
func (w *Wallet) Address() string {
	der, err := x509.MarshalPKIXPublicKey(&w.priv.PublicKey)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(der)
	return "0x" + hex.EncodeToString(sum[:20])
}

// ParsePublicKeyPEM is the inverse of PublicKeyPEM.
func ParsePublicKeyPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("no PEM block")
	}
	ifc, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := ifc.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return pub, nil
}
