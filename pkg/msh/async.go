package msh

import (
	"github.com/sirosfoundation/go-as4-msh/pkg/message"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
)

// AsyncTask is the subset of request state that crosses into the worker
// pool on asynchronous legs. The raw request document stays with the
// HTTP handler; the task carries the identifiers, the resolved contract,
// the extracted message and the restored attachment sources, which it
// owns until released.
type AsyncTask struct {
	SOAPVersion       message.SOAPVersion
	MessageID         string
	ProfileID         string
	Messaging         *message.Messaging
	PMode             *pmode.ProcessingMode
	Leg               *pmode.Leg
	LegNumber         int
	Attachments       []*mime.Attachment
	SignatureVerified bool
}

func newAsyncTask(st *processor.State) *AsyncTask {
	return &AsyncTask{
		SOAPVersion:       st.SOAPVersion,
		MessageID:         st.MessageID,
		ProfileID:         st.ProfileID,
		Messaging:         st.Messaging,
		PMode:             st.PMode,
		Leg:               st.Leg,
		LegNumber:         st.LegNumber,
		Attachments:       st.EffectiveAttachments(),
		SignatureVerified: st.SignatureVerified,
	}
}

// state rebuilds the worker-side processing state from the copied
// subset. It never aliases the request document.
func (t *AsyncTask) state() *processor.State {
	return &processor.State{
		SOAPVersion:       t.SOAPVersion,
		MessageID:         t.MessageID,
		ProfileID:         t.ProfileID,
		Messaging:         t.Messaging,
		PMode:             t.PMode,
		Leg:               t.Leg,
		LegNumber:         t.LegNumber,
		Attachments:       t.Attachments,
		SignatureVerified: t.SignatureVerified,
		CompressionModes:  map[string]string{},
		HeaderProcessed:   true,
	}
}
