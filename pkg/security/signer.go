package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"

	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
)

// Canonicalization and token profile URIs used in the Security header.
const (
	algoExcC14N = "http://www.w3.org/2001/10/xml-exc-c14n#"

	bstEncodingBase64 = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
	bstValueX509v3    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-x509-token-profile-1.0#X509v3"

	swaContentTransform = "http://docs.oasis-open.org/wss/oasis-wss-SwAProfile-1.1#Attachment-Content-Signature-Transform"
)

// signEnvelope adds a wsse:Security header to doc and signs the
// timestamp, body, messaging header and each attachment. The document
// tree is mutated in place and the signed serialization is returned.
func signEnvelope(doc *etree.Document, atts []*mime.Attachment, cfg *pmode.SignConfig, key *rsa.PrivateKey, cert *x509.Certificate) (*etree.Document, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("envelope has no root element")
	}
	ensureSecurityNamespaces(root)

	header := childByLocal(root, "Header")
	if header == nil {
		return nil, fmt.Errorf("envelope has no Header")
	}
	body := childByLocal(root, "Body")
	if body == nil {
		return nil, fmt.Errorf("envelope has no Body")
	}

	security := childByLocal(header, "Security")
	if security == nil {
		security = header.CreateElement("wsse:Security")
		security.CreateAttr(mustUnderstandAttr(root), mustUnderstandValue(root))
	}

	bstID := "X509-" + randomID()
	bst := security.CreateElement("wsse:BinarySecurityToken")
	bst.CreateAttr("wsu:Id", bstID)
	bst.CreateAttr("EncodingType", bstEncodingBase64)
	bst.CreateAttr("ValueType", bstValueX509v3)
	bst.SetText(base64.StdEncoding.EncodeToString(cert.Raw))

	timestampID := "TS-" + randomID()
	timestamp := security.CreateElement("wsu:Timestamp")
	timestamp.CreateAttr("wsu:Id", timestampID)
	now := time.Now().UTC()
	timestamp.CreateElement("wsu:Created").SetText(now.Format("2006-01-02T15:04:05.000Z"))
	timestamp.CreateElement("wsu:Expires").SetText(now.Add(5 * time.Minute).Format("2006-01-02T15:04:05.000Z"))

	bodyID := getOrCreateWsuID(body, "id-")

	messaging := childByLocal(header, "Messaging")
	var messagingID string
	if messaging != nil {
		messagingID = getOrCreateWsuID(messaging, "id-")
	}

	digestURI := digestAlgorithmURI(cfg.HashFunction)

	sig := security.CreateElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", message.NsDS)

	signedInfo := sig.CreateElement("ds:SignedInfo")
	c14n := signedInfo.CreateElement("ds:CanonicalizationMethod")
	c14n.CreateAttr("Algorithm", algoExcC14N)
	sigMethod := signedInfo.CreateElement("ds:SignatureMethod")
	sigMethod.CreateAttr("Algorithm", string(cfg.Algorithm))

	addElementReference(signedInfo, timestampID, digestURI)
	addElementReference(signedInfo, bodyID, digestURI)
	if messagingID != "" {
		addElementReference(signedInfo, messagingID, digestURI)
	}
	for _, att := range atts {
		if err := addAttachmentReference(signedInfo, att, cfg.HashFunction, digestURI); err != nil {
			return nil, err
		}
	}

	sig.CreateElement("ds:SignatureValue").SetText("placeholder")

	keyInfo := sig.CreateElement("ds:KeyInfo")
	str := keyInfo.CreateElement("wsse:SecurityTokenReference")
	ref := str.CreateElement("wsse:Reference")
	ref.CreateAttr("URI", "#"+bstID)
	ref.CreateAttr("ValueType", bstValueX509v3)

	xmlStr, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("serializing envelope for signing: %w", err)
	}

	signer, err := signedxml.NewSigner(xmlStr)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	signer.SetReferenceIDAttribute("wsu:Id")

	signedXML, err := signer.Sign(key)
	if err != nil {
		return nil, fmt.Errorf("signing envelope: %w", err)
	}

	out := etree.NewDocument()
	if err := out.ReadFromString(signedXML); err != nil {
		return nil, fmt.Errorf("parsing signed envelope: %w", err)
	}
	return out, nil
}

// verifyEnvelope validates the signature of doc against the trusted
// certificates and returns the matching certificate plus copies of the
// validated ds:Reference elements.
func verifyEnvelope(doc *etree.Document, trusted []*x509.Certificate) (*x509.Certificate, []*etree.Element, error) {
	xmlStr, err := doc.WriteToString()
	if err != nil {
		return nil, nil, fmt.Errorf("serializing envelope for verification: %w", err)
	}

	validator, err := signedxml.NewValidator(xmlStr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	for _, cert := range trusted {
		validator.Certificates = append(validator.Certificates, *cert)
	}
	validator.SetReferenceIDAttribute("wsu:Id")

	if _, err := validator.ValidateReferences(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	signerCert := matchSignerCert(doc, trusted)
	return signerCert, collectSignedReferences(doc), nil
}

// matchSignerCert picks the trusted certificate whose raw bytes match
// the BinarySecurityToken of the envelope, falling back to the first
// trusted certificate.
func matchSignerCert(doc *etree.Document, trusted []*x509.Certificate) *x509.Certificate {
	if len(trusted) == 0 {
		return nil
	}
	for _, bst := range doc.FindElements("//*") {
		if bst.Tag != "BinarySecurityToken" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(bst.Text())
		if err != nil {
			continue
		}
		for _, cert := range trusted {
			if string(cert.Raw) == string(raw) {
				return cert
			}
		}
	}
	return trusted[0]
}

// collectSignedReferences copies the ds:Reference elements of the first
// signature in the document.
func collectSignedReferences(doc *etree.Document) []*etree.Element {
	var refs []*etree.Element
	for _, el := range doc.FindElements("//*") {
		if el.Tag == "Reference" && el.NamespaceURI() == message.NsDS {
			refs = append(refs, el.Copy())
		}
	}
	return refs
}

// hasSignature reports whether the Security header of doc carries a
// ds:Signature.
func hasSignature(security *etree.Element) bool {
	return security != nil && childByLocal(security, "Signature") != nil
}

func addElementReference(signedInfo *etree.Element, id, digestURI string) {
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "#"+id)
	transforms := ref.CreateElement("ds:Transforms")
	transform := transforms.CreateElement("ds:Transform")
	transform.CreateAttr("Algorithm", algoExcC14N)
	dm := ref.CreateElement("ds:DigestMethod")
	dm.CreateAttr("Algorithm", digestURI)
	ref.CreateElement("ds:DigestValue").SetText("placeholder")
}

func addAttachmentReference(signedInfo *etree.Element, att *mime.Attachment, hash pmode.HashAlgorithm, digestURI string) error {
	data, err := att.Bytes()
	if err != nil {
		return fmt.Errorf("reading attachment %s for signing: %w", att.ContentID, err)
	}
	digest, err := attachmentDigest(data, hash)
	if err != nil {
		return err
	}

	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "cid:"+att.ContentID)
	transforms := ref.CreateElement("ds:Transforms")
	transform := transforms.CreateElement("ds:Transform")
	transform.CreateAttr("Algorithm", swaContentTransform)
	dm := ref.CreateElement("ds:DigestMethod")
	dm.CreateAttr("Algorithm", digestURI)
	ref.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))
	return nil
}

func attachmentDigest(data []byte, hash pmode.HashAlgorithm) ([]byte, error) {
	switch hash {
	case pmode.HashSHA384:
		sum := sha512.Sum384(data)
		return sum[:], nil
	case pmode.HashSHA512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		sum := sha256.Sum256(data)
		return sum[:], nil
	}
}

func digestAlgorithmURI(hash pmode.HashAlgorithm) string {
	if hash == "" {
		return string(pmode.HashSHA256)
	}
	return string(hash)
}

func ensureSecurityNamespaces(root *etree.Element) {
	if root.SelectAttr("xmlns:wsu") == nil {
		root.CreateAttr("xmlns:wsu", message.NsWSU)
	}
	if root.SelectAttr("xmlns:wsse") == nil {
		root.CreateAttr("xmlns:wsse", message.NsWSSE)
	}
}

// mustUnderstandAttr returns the qualified mustUnderstand attribute
// name matching the envelope's SOAP namespace prefix.
func mustUnderstandAttr(root *etree.Element) string {
	prefix := root.Space
	if prefix == "" {
		return "mustUnderstand"
	}
	return prefix + ":mustUnderstand"
}

func mustUnderstandValue(root *etree.Element) string {
	if root.NamespaceURI() == message.NsSOAP11 {
		return "1"
	}
	return "true"
}

func getOrCreateWsuID(elem *etree.Element, prefix string) string {
	for _, attr := range elem.Attr {
		if attr.Key == "Id" && (attr.Space == "wsu" || attr.NamespaceURI() == message.NsWSU) {
			return attr.Value
		}
	}
	id := prefix + randomID()
	elem.CreateAttr("wsu:Id", id)
	return id
}

func childByLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}

// randomID generates hex IDs to avoid characters XPointer dislikes.
func randomID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
