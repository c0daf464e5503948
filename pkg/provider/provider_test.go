package provider

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallParamsWithDefaults(t *testing.T) {
	defaults := CallParams{
		From:    "+15550000000",
		Method:  "POST",
		Timeout: 30,
		Extra:   map[string]string{"Trim": "trim-silence", "Foo": "default"},
	}

	tests := []struct {
		name   string
		params CallParams
		want   CallParams
	}{
		{
			name:   "defaults fill empty fields",
			params: CallParams{To: "1231231234", URL: "/status"},
			want: CallParams{
				From:    "+15550000000",
				To:      "1231231234",
				URL:     "/status",
				Method:  "POST",
				Timeout: 30,
				Extra:   map[string]string{"Trim": "trim-silence", "Foo": "default"},
			},
		},
		{
			name: "explicit values win",
			params: CallParams{
				From:    "+15551111111",
				Method:  "GET",
				Timeout: 10,
				Extra:   map[string]string{"Foo": "bar"},
			},
			want: CallParams{
				From:    "+15551111111",
				Method:  "GET",
				Timeout: 10,
				Extra:   map[string]string{"Trim": "trim-silence", "Foo": "bar"},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.params.WithDefaults(defaults))
		})
	}
}

func TestMessageParamsWithDefaults(t *testing.T) {
	got := MessageParams{Body: "hello"}.WithDefaults(MessageParams{From: "+15550000000", Body: "ignored"})
	require.Equal(t, "+15550000000", got.From)
	require.Equal(t, "hello", got.Body)
	require.Nil(t, got.Extra)
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 400, Message: "The 'To' number is not valid"}
	require.Equal(t, "provider API error (400): The 'To' number is not valid", err.Error())

	err = &APIError{StatusCode: 502, Body: "bad gateway"}
	require.Equal(t, "provider API error (502): bad gateway", err.Error())
}

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "rfc2822", in: `"Tue, 31 Aug 2010 20:36:28 +0000"`, want: time.Date(2010, 8, 31, 20, 36, 28, 0, time.UTC)},
		{name: "rfc3339", in: `"2010-08-31T20:36:28Z"`, want: time.Date(2010, 8, 31, 20, 36, 28, 0, time.UTC)},
		{name: "null", in: `null`},
		{name: "empty", in: `""`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			require.True(t, tt.want.Equal(ts.Time), ts.Time.String())
		})
	}

	var ts Timestamp
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestCallDecodesProviderDates(t *testing.T) {
	var call Call
	require.NoError(t, json.Unmarshal([]byte(`{"sid":"CA1","start_time":"Tue, 31 Aug 2010 20:36:28 +0000","end_time":null}`), &call))
	require.Equal(t, 2010, call.StartTime.Year())
	require.True(t, call.EndTime.IsZero())

	out, err := json.Marshal(call)
	require.NoError(t, err)
	require.Contains(t, string(out), `"start_time":"2010-08-31T20:36:28Z"`)
	require.Contains(t, string(out), `"end_time":null`)
}
