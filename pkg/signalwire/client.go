package signalwire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/birddigital/callmanager/pkg/provider"
)

var _ provider.Provider = (*Client)(nil)

// Client is a SignalWire LaML API client. The LaML API is wire compatible
// with Twilio's 2010-04-01 REST API, so the same client can talk to either.
type Client struct {
	projectID  string
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logrus.FieldLogger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API root, e.g. https://api.twilio.com/2010-04-01
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit paces outgoing requests to rps requests per second.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a new SignalWire API client
func NewClient(projectID, token, space string, opts ...Option) *Client {
	c := &Client{
		projectID: projectID,
		token:     token,
		baseURL:   fmt.Sprintf("https://%s/api/laml/2010-04-01", space),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateCall initiates an outbound call
func (c *Client) CreateCall(ctx context.Context, params provider.CallParams) (*provider.Call, error) {
	reqURL := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.projectID)

	var call provider.Call
	if err := c.do(ctx, http.MethodPost, reqURL, callForm(params), &call); err != nil {
		return nil, eris.Wrapf(err, "failed to create call to %s", params.To)
	}

	c.log.WithFields(logrus.Fields{"call_sid": call.SID, "to": call.To}).Debug("call created")
	return &call, nil
}

// FetchCall retrieves call details
func (c *Client) FetchCall(ctx context.Context, callSID string) (*provider.Call, error) {
	reqURL := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.projectID, callSID)

	var call provider.Call
	if err := c.do(ctx, http.MethodGet, reqURL, nil, &call); err != nil {
		return nil, eris.Wrapf(err, "failed to fetch call %s", callSID)
	}
	return &call, nil
}

// UpdateCall modifies an in-flight call; Status "completed" hangs it up
func (c *Client) UpdateCall(ctx context.Context, callSID string, changes provider.CallUpdate) (*provider.Call, error) {
	reqURL := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.projectID, callSID)

	formData := url.Values{}
	setIf(formData, "Status", changes.Status)
	setIf(formData, "Url", changes.URL)
	setIf(formData, "Method", changes.Method)
	setIf(formData, "StatusCallback", changes.StatusCallback)

	var call provider.Call
	if err := c.do(ctx, http.MethodPost, reqURL, formData, &call); err != nil {
		return nil, eris.Wrapf(err, "failed to update call %s", callSID)
	}
	return &call, nil
}

// SendMessage sends a text message
func (c *Client) SendMessage(ctx context.Context, params provider.MessageParams) (*provider.Message, error) {
	reqURL := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.projectID)

	formData := url.Values{}
	setIf(formData, "From", params.From)
	formData.Set("To", params.To)
	formData.Set("Body", params.Body)
	setIf(formData, "StatusCallback", params.StatusCallback)
	setIf(formData, "MessagingServiceSid", params.MessagingServiceSID)
	for k, v := range params.Extra {
		formData.Set(k, v)
	}

	var msg provider.Message
	if err := c.do(ctx, http.MethodPost, reqURL, formData, &msg); err != nil {
		return nil, eris.Wrapf(err, "failed to send message to %s", params.To)
	}
	return &msg, nil
}

// ValidateConfiguration checks if the client is properly configured
func (c *Client) ValidateConfiguration() error {
	if c.projectID == "" {
		return eris.New("project ID not configured")
	}
	if c.token == "" {
		return eris.New("auth token not configured")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, reqURL string, form url.Values, out interface{}) error {
	if err := c.ValidateConfiguration(); err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limiter")
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return eris.Wrap(err, "failed to create request")
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.projectID, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &provider.APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		// error bodies are JSON when the API produced them, plain text from proxies
		_ = json.Unmarshal(respBody, apiErr)
		return eris.Wrap(apiErr, "API rejected request")
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "failed to decode response")
	}
	return nil
}

// callForm encodes call parameters the way the LaML API expects them
func callForm(params provider.CallParams) url.Values {
	formData := url.Values{}
	setIf(formData, "From", params.From)
	formData.Set("To", params.To)
	formData.Set("Url", params.URL)
	setIf(formData, "Method", params.Method)

	if params.StatusCallback != "" {
		formData.Set("StatusCallback", params.StatusCallback)
		setIf(formData, "StatusCallbackMethod", params.StatusCallbackMethod)
		for _, ev := range params.StatusCallbackEvent {
			formData.Add("StatusCallbackEvent", ev)
		}
	}

	if params.Timeout > 0 {
		formData.Set("Timeout", strconv.Itoa(params.Timeout))
	}
	if params.Record {
		formData.Set("Record", "true")
	}
	setIf(formData, "MachineDetection", params.MachineDetection)

	for k, v := range params.Extra {
		formData.Set(k, v)
	}
	return formData
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
