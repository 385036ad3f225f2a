package processor

import (
	"context"
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
)

// HeaderProcessor owns one SOAP header element. Protocol violations go
// into the returned error list; a non-nil error is fatal to the request
// (bad request or internal failure) and produces no Error signal.
type HeaderProcessor interface {
	Process(ctx context.Context, el *etree.Element, st *State) (ebms.List, error)
}

// HeaderProcessorFunc adapts a function to HeaderProcessor.
type HeaderProcessorFunc func(ctx context.Context, el *etree.Element, st *State) (ebms.List, error)

func (f HeaderProcessorFunc) Process(ctx context.Context, el *etree.Element, st *State) (ebms.List, error) {
	return f(ctx, el, st)
}

type registration struct {
	name      string
	processor HeaderProcessor
}

// Registry maps header element names to processors. Execution order is
// registration order; a processor runs only when its element is present
// in the document.
type Registry struct {
	ordered []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a processor for a header element local name. Later
// registrations for the same name replace earlier ones in place.
func (r *Registry) Register(name string, p HeaderProcessor) {
	for i, reg := range r.ordered {
		if reg.name == name {
			r.ordered[i].processor = p
			return
		}
	}
	r.ordered = append(r.ordered, registration{name: name, processor: p})
}

// ProcessHeaders runs the registered processors against the SOAP header
// of st.Doc in registration order. A non-empty error list from any
// processor stops the chain and is returned. After a clean run, any
// header element flagged mustUnderstand that no processor handled is a
// bad request.
func (r *Registry) ProcessHeaders(ctx context.Context, st *State) (ebms.List, error) {
	header := soapHeader(st.Doc)
	if header == nil {
		return nil, fmt.Errorf("%w: envelope has no Header", ebms.ErrBadRequest)
	}

	processed := make(map[*etree.Element]bool)

	for _, reg := range r.ordered {
		el := childByTag(header, reg.name)
		if el == nil {
			continue
		}
		errs, err := reg.processor.Process(ctx, el, st)
		if err != nil {
			return nil, err
		}
		if !errs.Empty() {
			return errs, nil
		}
		processed[el] = true
	}

	for _, el := range header.ChildElements() {
		if mustUnderstand(el) && !processed[el] {
			return nil, fmt.Errorf("%w: mustUnderstand header %s not understood", ebms.ErrBadRequest, el.Tag)
		}
	}

	st.HeaderProcessed = true
	return nil, nil
}

func soapHeader(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	return childByTag(root, "Header")
}

func childByTag(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

// mustUnderstand reports whether the element carries a SOAP
// mustUnderstand flag, in either the 1.1 ("1") or 1.2 ("true") form.
func mustUnderstand(el *etree.Element) bool {
	for _, attr := range el.Attr {
		if attr.Key == "mustUnderstand" && (attr.Value == "1" || attr.Value == "true") {
			return true
		}
	}
	return false
}
