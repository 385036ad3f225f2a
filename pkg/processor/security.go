package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/security"
)

// HeaderSecurity is the header element name the security processor
// registers under.
const HeaderSecurity = "Security"

// SecurityProcessor verifies the signature and decrypts payloads via
// the security processing library. It must run after the messaging
// processor so the resolved leg's security settings are available.
type SecurityProcessor struct {
	Processor security.Processor
}

// NewSecurityProcessor creates the security header processor.
func NewSecurityProcessor(p security.Processor) *SecurityProcessor {
	return &SecurityProcessor{Processor: p}
}

// Process implements HeaderProcessor.
func (p *SecurityProcessor) Process(ctx context.Context, _ *etree.Element, st *State) (ebms.List, error) {
	res, err := p.Processor.VerifyAndDecrypt(ctx, st.Doc, st.Attachments)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrVerificationFailed):
			return ebms.List{ebms.FailedAuthentication(err.Error()).WithRef(st.MessageID)}, nil
		case errors.Is(err, security.ErrDecryptionFailed):
			return ebms.List{ebms.FailedDecryption(err.Error()).WithRef(st.MessageID)}, nil
		default:
			return nil, fmt.Errorf("security processing: %w", err)
		}
	}

	st.SignatureVerified = res.SignatureVerified
	st.UsedCertificate = res.SignerCert
	st.SignedReferences = res.SignedReferences
	if res.Decrypted {
		st.Decrypted = true
		st.DecryptedDoc = res.Doc
		st.DecryptedAttachments = res.Attachments
	}

	if st.Leg.SignConfigured() && !res.SignatureVerified {
		return ebms.List{ebms.FailedAuthentication("message is not signed but the processing mode requires a signature").WithRef(st.MessageID)}, nil
	}

	return nil, nil
}

var (
	_ HeaderProcessor = (*SecurityProcessor)(nil)
	_ HeaderProcessor = (*MessagingProcessor)(nil)
)
