package security

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml/xmlenc"

	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
)

// DefaultHKDFInfo is the HKDF context string of the EU eDelivery AS4
// 2.0 profile.
var DefaultHKDFInfo = []byte("EU eDelivery AS4 2.0")

const contentTypeOctetStream = "application/octet-stream"

// encryptAttachments encrypts each attachment with a fresh CEK wrapped
// for the recipient via X25519 key agreement, appends the resulting
// xenc:EncryptedKey to the Security header and returns the replacement
// attachments.
func encryptAttachments(security *etree.Element, atts []*mime.Attachment, recipient *ecdh.PublicKey, hkdfInfo []byte) ([]*mime.Attachment, error) {
	if len(atts) == 0 {
		return atts, nil
	}

	keySize := xmlenc.KeySize(xmlenc.AlgorithmAES128GCM)
	cek := make([]byte, keySize)
	if _, err := rand.Read(cek); err != nil {
		return nil, fmt.Errorf("generating content encryption key: %w", err)
	}

	hkdfParams := xmlenc.DefaultHKDFParams(hkdfInfo)
	keyAgreement, err := xmlenc.NewX25519KeyAgreement(recipient, hkdfParams)
	if err != nil {
		return nil, fmt.Errorf("creating key agreement: %w", err)
	}

	wrapAlgorithm := xmlenc.KeyWrapAlgorithmForContentAlgorithm(xmlenc.AlgorithmAES128GCM)
	encKey, err := keyAgreement.WrapKey(cek, wrapAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("wrapping content encryption key: %w", err)
	}

	out := make([]*mime.Attachment, len(atts))
	refs := make([]xmlenc.DataReference, len(atts))
	for i, att := range atts {
		data, err := att.Bytes()
		if err != nil {
			return nil, fmt.Errorf("reading attachment %s: %w", att.ContentID, err)
		}
		// AESGCMEncrypt prepends the nonce to the ciphertext.
		ciphertext, err := xmlenc.AESGCMEncrypt(cek, data, nil)
		if err != nil {
			return nil, fmt.Errorf("encrypting attachment %s: %w", att.ContentID, err)
		}
		out[i] = &mime.Attachment{
			ContentID:        att.ContentID,
			ContentType:      contentTypeOctetStream,
			TransferEncoding: "binary",
			Source:           mime.BytesSource(ciphertext),
		}
		refs[i] = xmlenc.DataReference{URI: "cid:" + att.ContentID}
	}
	encKey.ReferenceList = refs

	security.AddChild(encryptedKeyToElement(encKey, "EK-"+randomID()))
	return out, nil
}

// decryptAttachments unwraps the CEK from the parsed EncryptedKey and
// decrypts each attachment in place of its ciphertext.
func decryptAttachments(encKey *xmlenc.EncryptedKey, priv *ecdh.PrivateKey, atts []*mime.Attachment, hkdfInfo []byte) ([]*mime.Attachment, error) {
	am := agreementMethodOf(encKey)
	if am == nil || am.OriginatorKeyInfo == nil || am.OriginatorKeyInfo.KeyValue == nil ||
		am.OriginatorKeyInfo.KeyValue.ECKeyValue == nil {
		return nil, fmt.Errorf("%w: EncryptedKey missing ephemeral public key", ErrDecryptionFailed)
	}

	ephemeral, err := xmlenc.ParseX25519PublicKey(am.OriginatorKeyInfo.KeyValue.ECKeyValue.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing ephemeral key: %v", ErrDecryptionFailed, err)
	}

	hkdfParams := xmlenc.DefaultHKDFParams(hkdfInfo)
	if am.KeyDerivationMethod != nil && am.KeyDerivationMethod.HKDFParams != nil {
		hkdfParams = am.KeyDerivationMethod.HKDFParams
	}

	keyAgreement := xmlenc.NewX25519KeyAgreementForDecrypt(priv, ephemeral, hkdfParams)
	cek, err := keyAgreement.UnwrapKey(encKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapping content encryption key: %v", ErrDecryptionFailed, err)
	}

	out := make([]*mime.Attachment, len(atts))
	for i, att := range atts {
		ciphertext, err := att.Bytes()
		if err != nil {
			return nil, fmt.Errorf("reading attachment %s: %w", att.ContentID, err)
		}
		plaintext, err := xmlenc.AESGCMDecrypt(cek, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: attachment %s: %v", ErrDecryptionFailed, att.ContentID, err)
		}
		out[i] = &mime.Attachment{
			ContentID:        att.ContentID,
			ContentType:      att.ContentType,
			TransferEncoding: att.TransferEncoding,
			Headers:          att.Headers,
			Source:           mime.BytesSource(plaintext),
		}
	}
	return out, nil
}

func agreementMethodOf(encKey *xmlenc.EncryptedKey) *xmlenc.AgreementMethod {
	if encKey == nil || encKey.KeyInfo == nil {
		return nil
	}
	return encKey.KeyInfo.AgreementMethod
}

// findEncryptedKey locates the xenc:EncryptedKey child of a Security
// header, or nil.
func findEncryptedKey(security *etree.Element) *etree.Element {
	if security == nil {
		return nil
	}
	return childByLocal(security, "EncryptedKey")
}

// parseEncryptedKey reads the subset of the xenc:EncryptedKey structure
// the X25519 profile produces.
func parseEncryptedKey(elem *etree.Element) (*xmlenc.EncryptedKey, error) {
	ek := &xmlenc.EncryptedKey{}

	if em := childByLocal(elem, "EncryptionMethod"); em != nil {
		ek.EncryptionMethod = &xmlenc.EncryptionMethod{
			Algorithm: em.SelectAttrValue("Algorithm", ""),
		}
	}

	if ki := childByLocal(elem, "KeyInfo"); ki != nil {
		ek.KeyInfo = &xmlenc.KeyInfo{}
		if am := childByLocal(ki, "AgreementMethod"); am != nil {
			ek.KeyInfo.AgreementMethod = parseAgreementMethod(am)
		}
	}

	cd := childByLocal(elem, "CipherData")
	if cd == nil {
		return nil, fmt.Errorf("EncryptedKey has no CipherData")
	}
	cv := childByLocal(cd, "CipherValue")
	if cv == nil {
		return nil, fmt.Errorf("EncryptedKey has no CipherValue")
	}
	cipherValue, err := base64.StdEncoding.DecodeString(cv.Text())
	if err != nil {
		return nil, fmt.Errorf("decoding CipherValue: %w", err)
	}
	ek.CipherData = &xmlenc.CipherData{CipherValue: cipherValue}

	return ek, nil
}

func parseAgreementMethod(am *etree.Element) *xmlenc.AgreementMethod {
	out := &xmlenc.AgreementMethod{
		Algorithm: am.SelectAttrValue("Algorithm", ""),
	}

	if kdm := childByLocal(am, "KeyDerivationMethod"); kdm != nil {
		out.KeyDerivationMethod = &xmlenc.KeyDerivationMethod{
			Algorithm: kdm.SelectAttrValue("Algorithm", ""),
		}
		if hp := childByLocal(kdm, "HKDFParams"); hp != nil {
			out.KeyDerivationMethod.HKDFParams = parseHKDFParams(hp)
		}
	}

	if oki := childByLocal(am, "OriginatorKeyInfo"); oki != nil {
		out.OriginatorKeyInfo = parseKeyValueInfo(oki)
	}
	return out
}

func parseHKDFParams(hp *etree.Element) *xmlenc.HKDFParams {
	params := &xmlenc.HKDFParams{}
	if prf := childByLocal(hp, "PRF"); prf != nil {
		params.PRF = prf.SelectAttrValue("Algorithm", "")
	}
	if salt := childByLocal(hp, "Salt"); salt != nil {
		if spec := childByLocal(salt, "Specified"); spec != nil {
			if b, err := base64.StdEncoding.DecodeString(spec.Text()); err == nil {
				params.Salt = b
			}
		}
	}
	if info := childByLocal(hp, "Info"); info != nil {
		if b, err := base64.StdEncoding.DecodeString(info.Text()); err == nil {
			params.Info = b
		}
	}
	if kl := childByLocal(hp, "KeyLength"); kl != nil {
		if n, err := strconv.Atoi(kl.Text()); err == nil {
			params.KeyLength = n
		}
	}
	return params
}

func parseKeyValueInfo(parent *etree.Element) *xmlenc.KeyInfo {
	ki := &xmlenc.KeyInfo{}
	kv := childByLocal(parent, "KeyValue")
	if kv == nil {
		return ki
	}
	ki.KeyValue = &xmlenc.KeyValue{}
	ec := childByLocal(kv, "ECKeyValue")
	if ec == nil {
		return ki
	}
	value := &xmlenc.ECKeyValue{}
	if nc := childByLocal(ec, "NamedCurve"); nc != nil {
		value.NamedCurve = nc.SelectAttrValue("URI", "")
	}
	if pk := childByLocal(ec, "PublicKey"); pk != nil {
		if b, err := base64.StdEncoding.DecodeString(pk.Text()); err == nil {
			value.PublicKey = b
		}
	}
	ki.KeyValue.ECKeyValue = value
	return ki
}

// encryptedKeyToElement renders an xmlenc.EncryptedKey as the element
// appended to the Security header.
func encryptedKeyToElement(ek *xmlenc.EncryptedKey, id string) *etree.Element {
	elem := etree.NewElement("xenc:EncryptedKey")
	elem.CreateAttr("xmlns:xenc", message.NsXENC)
	elem.CreateAttr("xmlns:xenc11", "http://www.w3.org/2009/xmlenc11#")
	elem.CreateAttr("xmlns:dsig-more", "http://www.w3.org/2021/04/xmldsig-more#")
	elem.CreateAttr("xmlns:dsig11", "http://www.w3.org/2009/xmldsig11#")
	elem.CreateAttr("Id", id)

	if ek.EncryptionMethod != nil {
		em := elem.CreateElement("xenc:EncryptionMethod")
		em.CreateAttr("Algorithm", ek.EncryptionMethod.Algorithm)
	}

	if ek.KeyInfo != nil && ek.KeyInfo.AgreementMethod != nil {
		am := ek.KeyInfo.AgreementMethod
		ki := elem.CreateElement("ds:KeyInfo")
		ki.CreateAttr("xmlns:ds", message.NsDS)
		amElem := ki.CreateElement("xenc:AgreementMethod")
		amElem.CreateAttr("Algorithm", am.Algorithm)

		if kdm := am.KeyDerivationMethod; kdm != nil {
			kdmElem := amElem.CreateElement("xenc11:KeyDerivationMethod")
			kdmElem.CreateAttr("Algorithm", kdm.Algorithm)
			if hp := kdm.HKDFParams; hp != nil {
				hpElem := kdmElem.CreateElement("dsig-more:HKDFParams")
				if hp.PRF != "" {
					hpElem.CreateElement("dsig-more:PRF").CreateAttr("Algorithm", hp.PRF)
				}
				if hp.Salt != nil {
					salt := hpElem.CreateElement("dsig-more:Salt")
					salt.CreateElement("dsig-more:Specified").SetText(base64.StdEncoding.EncodeToString(hp.Salt))
				}
				if hp.Info != nil {
					hpElem.CreateElement("dsig-more:Info").SetText(base64.StdEncoding.EncodeToString(hp.Info))
				}
				if hp.KeyLength > 0 {
					hpElem.CreateElement("dsig-more:KeyLength").SetText(strconv.Itoa(hp.KeyLength))
				}
			}
		}

		writeKeyValueInfo(amElem, "xenc:OriginatorKeyInfo", am.OriginatorKeyInfo)
		writeKeyValueInfo(amElem, "xenc:RecipientKeyInfo", am.RecipientKeyInfo)
	}

	if ek.CipherData != nil && ek.CipherData.CipherValue != nil {
		cd := elem.CreateElement("xenc:CipherData")
		cd.CreateElement("xenc:CipherValue").SetText(base64.StdEncoding.EncodeToString(ek.CipherData.CipherValue))
	}

	if len(ek.ReferenceList) > 0 {
		rl := elem.CreateElement("xenc:ReferenceList")
		for _, ref := range ek.ReferenceList {
			rl.CreateElement("xenc:DataReference").CreateAttr("URI", ref.URI)
		}
	}

	return elem
}

func writeKeyValueInfo(parent *etree.Element, name string, ki *xmlenc.KeyInfo) {
	if ki == nil || ki.KeyValue == nil || ki.KeyValue.ECKeyValue == nil {
		return
	}
	info := parent.CreateElement(name)
	kv := info.CreateElement("ds:KeyValue")
	ec := kv.CreateElement("dsig11:ECKeyValue")
	ec.CreateElement("dsig11:NamedCurve").CreateAttr("URI", ki.KeyValue.ECKeyValue.NamedCurve)
	ec.CreateElement("dsig11:PublicKey").SetText(base64.StdEncoding.EncodeToString(ki.KeyValue.ECKeyValue.PublicKey))
}
