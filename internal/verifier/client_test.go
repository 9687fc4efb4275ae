package verifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(Config{BaseURL: "https://verifier.test/api/", APIKey: "k", Timeout: 2 * time.Second})
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestVerify_Success(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://verifier.test/api/verify-slip",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer k", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(200,
				`{"success":true,"data":{"amount":1500.50,"transRef":" 0123ABC "}}`), nil
		})

	res, err := c.Verify(context.Background(), []byte("img"), "slip.png")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(150050), res.AmountCents)
	assert.Equal(t, "0123ABC", res.Reference)
	assert.NotEmpty(t, res.Payload)
}

func TestVerify_RejectedSlipIsNotAnError(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://verifier.test/api/verify-slip",
		httpmock.NewStringResponder(400, `{"success":false,"code":1012,"message":"slip not found"}`))

	res, err := c.Verify(context.Background(), []byte("img"), "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "slip not found", res.Message)
}

func TestVerify_ServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://verifier.test/api/verify-slip",
		httpmock.NewStringResponder(503, `upstream down`))

	_, err := c.Verify(context.Background(), []byte("img"), "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestVerify_TransportErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://verifier.test/api/verify-slip",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := c.Verify(context.Background(), []byte("img"), "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestVerify_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://verifier.test/api/verify-slip",
		httpmock.NewStringResponder(502, `bad gateway`))

	for i := 0; i < 5; i++ {
		_, err := c.Verify(context.Background(), []byte("img"), "")
		require.ErrorIs(t, err, ErrUnavailable)
	}
	calls := httpmock.GetTotalCallCount()

	_, err := c.Verify(context.Background(), []byte("img"), "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, calls, httpmock.GetTotalCallCount(), "open circuit must not reach the provider")
}

func TestVerify_CallerCancellationDoesNotTripBreaker(t *testing.T) {
	var (
		hits atomic.Int32
		slow atomic.Bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if slow.Load() {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"amount":500,"transRef":"R1"}}`))
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, err := c.Verify(cancelled, []byte("img"), "")
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Zero(t, hits.Load())

	// The guest's request deadline passes while the provider is still working.
	slow.Store(true)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := c.Verify(ctx, []byte("img"), "")
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.NotErrorIs(t, err, ErrUnavailable)
	}
	slow.Store(false)

	before := hits.Load()
	res, err := c.Verify(context.Background(), []byte("img"), "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(50000), res.AmountCents)
	assert.Equal(t, before+1, hits.Load(), "healthy call must reach the provider")
}
