package signalwire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/birddigital/callmanager/pkg/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("PJ123", "secret", "example.signalwire.com", WithBaseURL(srv.URL))
}

func TestCreateCall(t *testing.T) {
	var got *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA123","to":"+15551231234","status":"queued"}`))
	})

	call, err := client.CreateCall(context.Background(), provider.CallParams{
		From:                "+15550000000",
		To:                  "+15551231234",
		URL:                 "http://example.com/answer",
		StatusCallback:      "http://example.com/status",
		StatusCallbackEvent: []string{"initiated", "completed"},
		Timeout:             20,
		Record:              true,
		Extra:               map[string]string{"Trim": "trim-silence"},
	})
	require.NoError(t, err)
	require.Equal(t, "CA123", call.SID)
	require.Equal(t, "queued", call.Status)

	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "/Accounts/PJ123/Calls.json", got.URL.Path)
	user, pass, ok := got.BasicAuth()
	require.True(t, ok)
	require.Equal(t, "PJ123", user)
	require.Equal(t, "secret", pass)

	require.Equal(t, "+15551231234", got.PostForm.Get("To"))
	require.Equal(t, "+15550000000", got.PostForm.Get("From"))
	require.Equal(t, "http://example.com/answer", got.PostForm.Get("Url"))
	require.Equal(t, "http://example.com/status", got.PostForm.Get("StatusCallback"))
	require.Equal(t, []string{"initiated", "completed"}, got.PostForm["StatusCallbackEvent"])
	require.Equal(t, "20", got.PostForm.Get("Timeout"))
	require.Equal(t, "true", got.PostForm.Get("Record"))
	require.Equal(t, "trim-silence", got.PostForm.Get("Trim"))
}

func TestCreateCallAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	})

	_, err := client.CreateCall(context.Background(), provider.CallParams{To: "nope", URL: "http://example.com"})
	require.Error(t, err)

	var apiErr *provider.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, 21211, apiErr.Code)
	require.Equal(t, "Invalid 'To' Phone Number", apiErr.Message)
}

func TestFetchCall(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/Accounts/PJ123/Calls/CA999.json", r.URL.Path)
		w.Write([]byte(`{"sid":"CA999","status":"in-progress","start_time":"Tue, 31 Aug 2010 20:36:28 +0000","end_time":null}`))
	})

	call, err := client.FetchCall(context.Background(), "CA999")
	require.NoError(t, err)
	require.Equal(t, "in-progress", call.Status)
	require.True(t, time.Date(2010, 8, 31, 20, 36, 28, 0, time.UTC).Equal(call.StartTime.Time))
	require.True(t, call.EndTime.IsZero())
}

func TestUpdateCall(t *testing.T) {
	var form map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "/Accounts/PJ123/Calls/CA999.json", r.URL.Path)
		form = r.PostForm
		w.Write([]byte(`{"sid":"CA999","status":"completed","start_time":"Tue, 31 Aug 2010 20:36:28 +0000","end_time":"Tue, 31 Aug 2010 20:37:01 +0000"}`))
	})

	call, err := client.UpdateCall(context.Background(), "CA999", provider.CallUpdate{Status: "completed"})
	require.NoError(t, err)
	require.Equal(t, "completed", call.Status)
	require.Equal(t, 33*time.Second, call.EndTime.Sub(call.StartTime.Time))
	require.Equal(t, map[string][]string{"Status": {"completed"}}, form)
}

func TestSendMessage(t *testing.T) {
	var form map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "/Accounts/PJ123/Messages.json", r.URL.Path)
		form = r.PostForm
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM1","to":"+15551231234","body":"hi"}`))
	})

	msg, err := client.SendMessage(context.Background(), provider.MessageParams{
		From: "+15550000000",
		To:   "+15551231234",
		Body: "hi",
	})
	require.NoError(t, err)
	require.Equal(t, "SM1", msg.SID)
	require.Equal(t, "hi", form["Body"][0])
	require.Equal(t, "+15550000000", form["From"][0])
	_, hasCallback := form["StatusCallback"]
	require.False(t, hasCallback)
}

func TestMissingCredentials(t *testing.T) {
	client := NewClient("", "", "example.signalwire.com")

	_, err := client.FetchCall(context.Background(), "CA1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "project ID not configured")
}

func TestRateLimitHonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sid":"CA1"}`))
	})
	WithRateLimit(0.001)(client)

	// the first request consumes the only token
	_, err := client.FetchCall(context.Background(), "CA1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.FetchCall(ctx, "CA1")
	require.Error(t, err)
}
