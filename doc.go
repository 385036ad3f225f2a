// Copyright (c) 2026 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package as4msh implements the receiving side of an AS4 (ebMS3) Message
Service Handler.

# Overview

The module accepts inbound AS4 transport payloads (plain SOAP or MIME
multipart/related), runs them through an ordered SOAP-header-processor
chain (messaging extraction, WS-Security verification and decryption),
validates them against the resolved Processing Mode, detects duplicates,
decompresses attachments, dispatches to registered business handlers and
builds the protocol response: a signed receipt, an ebMS error signal, a
reversed user message for synchronous two-way exchanges, or no content.

# Package Structure

	github.com/sirosfoundation/go-as4-msh/pkg/message     - ebMS3 envelope model, extraction and reversal
	github.com/sirosfoundation/go-as4-msh/pkg/mime        - transport framing and MIME packaging
	github.com/sirosfoundation/go-as4-msh/pkg/pmode       - Processing Mode configuration and resolution
	github.com/sirosfoundation/go-as4-msh/pkg/ebms        - the ebMS error taxonomy
	github.com/sirosfoundation/go-as4-msh/pkg/processor   - header-processor chain and message state
	github.com/sirosfoundation/go-as4-msh/pkg/security    - WS-Security signing, verification, decryption
	github.com/sirosfoundation/go-as4-msh/pkg/compression - AS4 payload (de)compression
	github.com/sirosfoundation/go-as4-msh/pkg/reliability - duplicate detection
	github.com/sirosfoundation/go-as4-msh/pkg/dispatch    - business handler dispatch and async worker pool
	github.com/sirosfoundation/go-as4-msh/pkg/response    - the response-construction state machine
	github.com/sirosfoundation/go-as4-msh/pkg/transport   - HTTPS client for asynchronous legs
	github.com/sirosfoundation/go-as4-msh/pkg/msh         - the inbound receiving pipeline

# Specifications

  - OASIS AS4 Profile of ebMS 3.0 Version 1.0
  - OASIS ebXML Messaging Services v3.0
  - WS-Security 1.1.1
  - XML Signature Syntax and Processing
  - XML Encryption Syntax and Processing

# Interoperability

The receiving pipeline is built to accept messages produced by phase4,
Domibus and Holodeck B2B.

# License

BSD-2-Clause License
*/
package as4msh
