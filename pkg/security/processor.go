package security

import (
	"context"
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
)

// WSSProcessor is the production Processor. Key material comes from a
// KeyRing; signing uses signedxml, payload encryption the xmlenc
// X25519 profile.
type WSSProcessor struct {
	Keys *KeyRing
	// HKDFInfo overrides the HKDF context string. Empty means
	// DefaultHKDFInfo.
	HKDFInfo []byte
}

// NewWSSProcessor creates a WSSProcessor over the given key ring.
func NewWSSProcessor(keys *KeyRing) *WSSProcessor {
	return &WSSProcessor{Keys: keys}
}

func (p *WSSProcessor) hkdfInfo() []byte {
	if len(p.HKDFInfo) > 0 {
		return p.HKDFInfo
	}
	return DefaultHKDFInfo
}

// Sign implements Processor.
func (p *WSSProcessor) Sign(_ context.Context, doc *etree.Document, atts []*mime.Attachment, cfg *pmode.SignConfig) (*etree.Document, error) {
	if cfg == nil {
		return doc, nil
	}
	key, err := p.Keys.RSAKey(cfg.CertificateAlias)
	if err != nil {
		return nil, err
	}
	cert, err := p.Keys.Certificate(cfg.CertificateAlias)
	if err != nil {
		return nil, err
	}
	return signEnvelope(doc, atts, cfg, key, cert)
}

// Encrypt implements Processor.
func (p *WSSProcessor) Encrypt(_ context.Context, doc *etree.Document, atts []*mime.Attachment, cfg *pmode.EncryptionConfig) (*etree.Document, []*mime.Attachment, error) {
	if cfg == nil || len(atts) == 0 {
		return doc, atts, nil
	}
	recipient, err := p.Keys.X25519Peer(cfg.CertificateAlias)
	if err != nil {
		return nil, nil, err
	}

	root := doc.Root()
	if root == nil {
		return nil, nil, fmt.Errorf("envelope has no root element")
	}
	ensureSecurityNamespaces(root)
	header := childByLocal(root, "Header")
	if header == nil {
		return nil, nil, fmt.Errorf("envelope has no Header")
	}
	security := childByLocal(header, "Security")
	if security == nil {
		security = header.CreateElement("wsse:Security")
		security.CreateAttr(mustUnderstandAttr(root), mustUnderstandValue(root))
	}

	encrypted, err := encryptAttachments(security, atts, recipient, p.hkdfInfo())
	if err != nil {
		return nil, nil, err
	}
	return doc, encrypted, nil
}

// VerifyAndDecrypt implements Processor.
func (p *WSSProcessor) VerifyAndDecrypt(_ context.Context, doc *etree.Document, atts []*mime.Attachment) (*InboundResult, error) {
	result := &InboundResult{Doc: doc, Attachments: atts}

	root := doc.Root()
	if root == nil {
		return result, nil
	}
	header := childByLocal(root, "Header")
	if header == nil {
		return result, nil
	}
	security := childByLocal(header, "Security")
	if security == nil {
		return result, nil
	}

	if hasSignature(security) {
		cert, refs, err := verifyEnvelope(doc, p.Keys.Trusted())
		if err != nil {
			return nil, err
		}
		result.SignatureVerified = true
		result.SignerCert = cert
		result.SignedReferences = refs
	}

	if ekElem := findEncryptedKey(security); ekElem != nil {
		encKey, err := parseEncryptedKey(ekElem)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		priv, err := p.Keys.X25519Key("")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		decrypted, err := decryptAttachments(encKey, priv, atts, p.hkdfInfo())
		if err != nil {
			return nil, err
		}
		result.Attachments = decrypted
		result.Decrypted = true
	}

	return result, nil
}
