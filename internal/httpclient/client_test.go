package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeGirum/face-recognition/internal/errors"
)

func newMockedClient(t *testing.T, cfg *Config) (*Client, *httpmock.MockTransport) {
	t.Helper()
	client := New(cfg)
	mock := httpmock.NewMockTransport()
	client.HTTPClient().Transport = mock
	t.Cleanup(client.Close)
	return client, mock
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	client := New(nil)
	assert.Equal(t, DefaultTimeout, client.defaultTimeout)
	assert.Equal(t, defaultUserAgent, client.userAgent)

	client = New(&Config{DefaultTimeout: 5 * time.Second, UserAgent: "test/1.0"})
	assert.Equal(t, 5*time.Second, client.defaultTimeout)
	assert.Equal(t, "test/1.0", client.userAgent)
}

func TestPostJSON(t *testing.T) {
	t.Parallel()

	client, mock := newMockedClient(t, nil)
	mock.RegisterResponder(http.MethodPost, "http://engine/v1/echo",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, defaultUserAgent, req.Header.Get("User-Agent"))
			var in map[string]string
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"echo": in["value"]})
		})

	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, client.PostJSON(t.Context(), "http://engine/v1/echo", map[string]string{"value": "hi"}, &out))
	assert.Equal(t, "hi", out.Echo)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestPostJSONErrorStatus(t *testing.T) {
	t.Parallel()

	client, mock := newMockedClient(t, &Config{Component: "analysis"})
	mock.RegisterResponder(http.MethodPost, "http://engine/v1/fail",
		httpmock.NewStringResponder(http.StatusInternalServerError, "model crashed\n"))

	err := client.PostJSON(t.Context(), "http://engine/v1/fail", struct{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "model crashed")
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "analysis", ee.GetComponent())
}

func TestPostJSONBadBody(t *testing.T) {
	t.Parallel()

	client, mock := newMockedClient(t, nil)
	mock.RegisterResponder(http.MethodPost, "http://engine/v1/garbage",
		httpmock.NewStringResponder(http.StatusOK, "not json"))

	var out map[string]any
	err := client.PostJSON(t.Context(), "http://engine/v1/garbage", nil, &out)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
}

func TestPostJSONTimeout(t *testing.T) {
	t.Parallel()

	client, mock := newMockedClient(t, &Config{DefaultTimeout: 20 * time.Millisecond})
	mock.RegisterResponder(http.MethodPost, "http://engine/v1/slow",
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	err := client.PostJSON(t.Context(), "http://engine/v1/slow", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
}

func TestPostJSONCancelled(t *testing.T) {
	t.Parallel()

	client, mock := newMockedClient(t, nil)
	mock.RegisterResponder(http.MethodPost, "http://engine/v1/slow",
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := client.PostJSON(ctx, "http://engine/v1/slow", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}
