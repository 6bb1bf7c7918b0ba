package gokea

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lovi-cloud/keagw/kea"
	"github.com/lovi-cloud/keagw/kea/keatest"
)

func newTestTransport(t *testing.T, agent *keatest.Agent) *transport {
	t.Helper()
	srv := httptest.NewServer(agent.Handler())
	t.Cleanup(srv.Close)
	return newTransport(srv.URL, "", "", 2*time.Second, zaptest.NewLogger(t))
}

func TestSendSuccess(t *testing.T) {
	tr := newTestTransport(t, keatest.New())

	res, err := tr.send(context.Background(), "version-get", nil)
	require.NoError(t, err)
	assert.False(t, res.Unsupported)

	var args struct {
		Extended string `json:"extended"`
	}
	require.NoError(t, json.Unmarshal(res.Arguments, &args))
	assert.Equal(t, "2.4.1", args.Extended)
}

func TestSendUnsupportedByResultCode(t *testing.T) {
	agent := keatest.New()
	agent.MarkUnsupported("lease4-get-all")
	tr := newTestTransport(t, agent)

	res, err := tr.send(context.Background(), "lease4-get-all", map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, res.Unsupported)
}

func TestSendUnsupportedByErrorText(t *testing.T) {
	agent := keatest.New()
	agent.Script("reservation-add", keatest.Response{
		Result: 1,
		Text:   "Forward command failed: 'reservation-add' command not found",
	})
	tr := newTestTransport(t, agent)

	res, err := tr.send(context.Background(), "reservation-add", nil)
	require.NoError(t, err)
	assert.True(t, res.Unsupported)
}

func TestSendDomainError(t *testing.T) {
	agent := keatest.New()
	agent.Script("reservation-add", keatest.Response{
		Result: 1,
		Text:   "unable to add duplicate host reservation",
	})
	tr := newTestTransport(t, agent)

	_, err := tr.send(context.Background(), "reservation-add", nil)
	var cmdErr *kea.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.Code)
	assert.Equal(t, "unable to add duplicate host reservation", cmdErr.Text)
}

func TestSendMalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": 0}`))
	}))
	t.Cleanup(srv.Close)
	tr := newTransport(srv.URL, "", "", 2*time.Second, zaptest.NewLogger(t))

	_, err := tr.send(context.Background(), "version-get", nil)
	var protoErr *kea.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestSendRetriesReadOnlyCommands(t *testing.T) {
	agent := keatest.New()
	agent.PushStatus(http.StatusServiceUnavailable)
	agent.PushStatus(http.StatusBadGateway)
	tr := newTestTransport(t, agent)

	res, err := tr.send(context.Background(), "config-get", nil)
	require.NoError(t, err)
	assert.False(t, res.Unsupported)
	assert.Equal(t, 1, agent.CallCount("config-get"))
}

func TestSendDoesNotRetryMutations(t *testing.T) {
	agent := keatest.New()
	agent.PushStatus(http.StatusServiceUnavailable)
	tr := newTestTransport(t, agent)

	_, err := tr.send(context.Background(), "reservation-add", nil)
	var transportErr *kea.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 0, agent.CallCount("reservation-add"))
}

func TestSendTransportError(t *testing.T) {
	tr := newTransport("http://127.0.0.1:1", "", "", 500*time.Millisecond, zaptest.NewLogger(t))

	_, err := tr.send(context.Background(), "reservation-add", nil)
	var transportErr *kea.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestSendBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"result": 0, "text": "ok"}]`))
	}))
	t.Cleanup(srv.Close)
	tr := newTransport(srv.URL, "operator", "hunter2", 2*time.Second, zaptest.NewLogger(t))

	_, err := tr.send(context.Background(), "version-get", nil)
	require.NoError(t, err)
	assert.Equal(t, "operator", gotUser)
	assert.Equal(t, "hunter2", gotPass)
}
