package telephony

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go/client"

	"github.com/birddigital/callmanager/pkg/manager"
)

// ============================================
// CALL WEBHOOK HANDLERS
// HTTP endpoints the provider calls back into
// ============================================

// Route paths served by RegisterRoutes
const (
	StatusPath = "/api/telephony/calls/status"
	AnswerPath = "/api/telephony/calls/answer"
	ActivePath = "/api/telephony/calls/active"
	EventsPath = "/api/telephony/events"
)

// CallTracker receives status reports. *manager.Manager satisfies it.
type CallTracker interface {
	ReportStatus(number string, report manager.StatusReport, data interface{})
	ListActiveOrPendingRetry() []string
}

// CallHandlers serves the provider's webhooks for a CallTracker
type CallHandlers struct {
	tracker CallTracker
	script  string
	voice   string
	events  http.Handler

	validator *client.RequestValidator
	publicURL *url.URL

	log logrus.FieldLogger
}

// Option configures CallHandlers
type Option func(*CallHandlers)

// WithAnswerScript sets the text spoken when a call is answered
func WithAnswerScript(script, voice string) Option {
	return func(h *CallHandlers) {
		h.script = script
		h.voice = voice
	}
}

// WithSignatureValidation rejects webhooks without a valid X-Twilio-Signature.
// publicURL is the base URL the provider was given for callbacks.
func WithSignatureValidation(authToken string, publicURL *url.URL) Option {
	return func(h *CallHandlers) {
		v := client.NewRequestValidator(authToken)
		h.validator = &v
		u := *publicURL
		u.User = nil
		h.publicURL = &u
	}
}

// WithEventStream serves events on EventsPath
func WithEventStream(events http.Handler) Option {
	return func(h *CallHandlers) { h.events = events }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(h *CallHandlers) { h.log = log }
}

// NewCallHandlers creates webhook handlers reporting into tracker
func NewCallHandlers(tracker CallTracker, opts ...Option) *CallHandlers {
	h := &CallHandlers{
		tracker: tracker,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithField("component", "call-handlers")
	return h
}

// StatusCallbackPath returns the status callback reference for number. The
// number travels in the query so reports stay attributable when dry-run
// redirects the call elsewhere.
func StatusCallbackPath(number string) string {
	return StatusPath + "?" + url.Values{"number": {number}}.Encode()
}

// ============================================
// VOICE DOCUMENT
// ============================================

// VoiceResponse is the LaML/TwiML document returned for answered calls
type VoiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     *Say     `xml:"Say,omitempty"`
	Hangup  *Hangup  `xml:"Hangup"`
}

// Say represents the <Say> verb
type Say struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

// Hangup represents the <Hangup> verb
type Hangup struct{}

// ============================================
// HTTP HANDLERS
// ============================================

// HandleCallStatus applies a provider status callback
func (h *CallHandlers) HandleCallStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(w, r) {
		return
	}

	callSID := r.PostFormValue("CallSid")
	callStatus := r.PostFormValue("CallStatus")
	if callSID == "" {
		h.log.Warn("missing CallSid in status callback")
		http.Error(w, "Missing CallSid", http.StatusBadRequest)
		return
	}

	number := r.URL.Query().Get("number")
	if number == "" {
		number = r.PostFormValue("To")
	}

	h.log.WithFields(logrus.Fields{
		"number":   number,
		"call_sid": callSID,
		"status":   callStatus,
	}).Debug("call status callback")

	h.tracker.ReportStatus(number, manager.StatusReport{CallSID: callSID, CallStatus: callStatus}, r.PostForm)
	w.WriteHeader(http.StatusNoContent)
}

// HandleAnswer returns the voice document for an answered call
func (h *CallHandlers) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(w, r) {
		return
	}

	doc := VoiceResponse{Hangup: &Hangup{}}
	if h.script != "" {
		doc.Say = &Say{Voice: h.voice, Text: h.script}
	}

	output, err := xml.Marshal(doc)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal voice document")
		http.Error(w, "Failed to generate response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(output)

	h.log.WithField("call_sid", r.FormValue("CallSid")).Debug("returned voice document")
}

// HandleActive lists the numbers the tracker is still managing
func (h *CallHandlers) HandleActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string][]string{"numbers": h.tracker.ListActiveOrPendingRetry()}); err != nil {
		h.log.WithError(err).Warn("failed to write active numbers")
	}
}

// authorized validates the request signature when validation is enabled. It
// writes the error response itself.
func (h *CallHandlers) authorized(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Malformed form", http.StatusBadRequest)
		return false
	}
	if h.validator == nil {
		return true
	}

	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}

	ref, err := url.Parse(r.URL.RequestURI())
	if err != nil {
		http.Error(w, "Bad request URI", http.StatusBadRequest)
		return false
	}
	signed := h.publicURL.ResolveReference(ref).String()

	if !h.validator.Validate(signed, params, r.Header.Get("X-Twilio-Signature")) {
		h.log.WithField("url", signed).Warn("rejected webhook with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return false
	}
	return true
}

// ============================================
// ROUTE REGISTRATION
// ============================================

// RegisterRoutes registers all call handler routes
func (h *CallHandlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(StatusPath, h.HandleCallStatus)
	mux.HandleFunc(AnswerPath, h.HandleAnswer)
	mux.HandleFunc(ActivePath, h.HandleActive)

	if h.events != nil {
		mux.Handle(EventsPath, h.events)
	}

	h.log.Info("registered call handler routes")
}
