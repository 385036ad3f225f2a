package security

import (
	"crypto/ecdh"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
)

// KeyRing holds signing and decryption key material by alias. PMode
// security sections reference entries through their CertificateAlias.
type KeyRing struct {
	mu       sync.RWMutex
	certs    map[string]*x509.Certificate
	rsaKeys  map[string]*rsa.PrivateKey
	ecdhKeys map[string]*ecdh.PrivateKey
	ecdhPubs map[string]*ecdh.PublicKey
	trusted  []*x509.Certificate
}

// NewKeyRing creates an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{
		certs:    make(map[string]*x509.Certificate),
		rsaKeys:  make(map[string]*rsa.PrivateKey),
		ecdhKeys: make(map[string]*ecdh.PrivateKey),
		ecdhPubs: make(map[string]*ecdh.PublicKey),
	}
}

// AddCertificate registers a certificate under an alias.
func (k *KeyRing) AddCertificate(alias string, cert *x509.Certificate) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.certs[alias] = cert
}

// AddRSAKey registers an RSA signing key and its certificate.
func (k *KeyRing) AddRSAKey(alias string, key *rsa.PrivateKey, cert *x509.Certificate) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rsaKeys[alias] = key
	if cert != nil {
		k.certs[alias] = cert
	}
}

// AddX25519Key registers an X25519 decryption key.
func (k *KeyRing) AddX25519Key(alias string, key *ecdh.PrivateKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ecdhKeys[alias] = key
}

// AddX25519Peer registers a peer's X25519 public key for outbound
// encryption.
func (k *KeyRing) AddX25519Peer(alias string, pub *ecdh.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ecdhPubs[alias] = pub
}

// AddTrusted registers a certificate accepted for inbound signature
// validation.
func (k *KeyRing) AddTrusted(cert *x509.Certificate) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.trusted = append(k.trusted, cert)
}

// Certificate returns the certificate for an alias.
func (k *KeyRing) Certificate(alias string) (*x509.Certificate, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	cert, ok := k.certs[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificate, alias)
	}
	return cert, nil
}

// RSAKey returns the RSA private key for an alias.
func (k *KeyRing) RSAKey(alias string) (*rsa.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.rsaKeys[alias]
	if !ok {
		return nil, fmt.Errorf("no RSA key for alias %s", alias)
	}
	return key, nil
}

// X25519Key returns the X25519 private key for an alias. When exactly
// one key is registered, any alias resolves to it; the EncryptedKey of
// an inbound message does not name the recipient alias.
func (k *KeyRing) X25519Key(alias string) (*ecdh.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if key, ok := k.ecdhKeys[alias]; ok {
		return key, nil
	}
	if len(k.ecdhKeys) == 1 {
		for _, key := range k.ecdhKeys {
			return key, nil
		}
	}
	return nil, fmt.Errorf("no X25519 key for alias %s", alias)
}

// X25519Peer returns the peer public key for an alias, consulting
// registered public keys first and certificates carrying an X25519
// subject key second.
func (k *KeyRing) X25519Peer(alias string) (*ecdh.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pub, ok := k.ecdhPubs[alias]; ok {
		return pub, nil
	}
	if cert, ok := k.certs[alias]; ok {
		if pub, ok := cert.PublicKey.(*ecdh.PublicKey); ok {
			return pub, nil
		}
	}
	return nil, fmt.Errorf("no X25519 public key for alias %s", alias)
}

// Trusted returns the certificates accepted for inbound signatures.
func (k *KeyRing) Trusted() []*x509.Certificate {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*x509.Certificate, len(k.trusted))
	copy(out, k.trusted)
	return out
}

// LoadCertificatePEM parses the first CERTIFICATE block in a PEM file.
func LoadCertificatePEM(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate %s: %w", path, err)
	}
	return ParseCertificatePEM(data)
}

// ParseCertificatePEM parses the first CERTIFICATE block in PEM data.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
	return nil, fmt.Errorf("no certificate block in PEM data")
}

// LoadRSAKeyPEM parses an RSA private key from a PEM file, accepting
// both PKCS#1 and PKCS#8 encodings.
func LoadRSAKeyPEM(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key %s is not RSA", path)
	}
	return key, nil
}

// LoadX25519KeyPEM parses a PKCS#8 X25519 private key from a PEM file.
func LoadX25519KeyPEM(path string) (*ecdh.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", path, err)
	}
	key, ok := parsed.(*ecdh.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key %s is not X25519", path)
	}
	return key, nil
}
