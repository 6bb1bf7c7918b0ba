package gokea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lovi-cloud/keagw/kea"
)

const serviceDHCP4 = "dhcp4"

const (
	maxAttempts   = 3
	retryBackoff  = 250 * time.Millisecond
	maxBodyLength = 32 << 20
)

// readOnlyCommands are safe to retry; every command travels over POST, so
// idempotence is a property of the command, not the HTTP verb.
var readOnlyCommands = map[string]bool{
	"version-get":     true,
	"config-get":      true,
	"lease4-get-all":  true,
	"lease4-get-page": true,
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type commandEnvelope struct {
	Command   string      `json:"command"`
	Service   []string    `json:"service"`
	Arguments interface{} `json:"arguments,omitempty"`
}

type responseEnvelope struct {
	Result    int             `json:"result"`
	Text      string          `json:"text"`
	Arguments json.RawMessage `json:"arguments"`
}

// Backend result codes. 0 is success and 2 means the command is not
// recognized; any other non-zero value is a domain failure.
const (
	resultSuccess     = 0
	resultUnsupported = 2
)

// commandResult is one classified round trip. Unsupported is ordinary data
// rather than an error so dispatch tiering stays a plain conditional.
type commandResult struct {
	Unsupported bool
	Text        string
	Arguments   json.RawMessage
}

type transport struct {
	url      string
	username string
	password string
	client   *http.Client
	logger   *zap.Logger
}

func newTransport(url, username, password string, timeout time.Duration, logger *zap.Logger) *transport {
	return &transport{
		url:      strings.TrimRight(url, "/"),
		username: username,
		password: password,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// send posts one command envelope to the control agent and classifies the
// response. A *kea.TransportError, *kea.ProtocolError or *kea.CommandError
// is returned for failures; an unsupported command is not an error.
func (t *transport) send(ctx context.Context, command string, arguments interface{}) (*commandResult, error) {
	payload, err := json.Marshal(commandEnvelope{
		Command:   command,
		Service:   []string{serviceDHCP4},
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s arguments: %w", command, err)
	}

	t.logger.Debug("sending command to kea", zap.String("command", command))

	body, err := t.roundTrip(ctx, command, payload)
	if err != nil {
		commandsTotal.WithLabelValues(command, "transport_error").Inc()
		return nil, err
	}

	var envelopes []responseEnvelope
	if err := json.Unmarshal(body, &envelopes); err != nil || len(envelopes) == 0 {
		t.logger.Error("unexpected control agent response",
			zap.String("command", command), zap.ByteString("body", body))
		commandsTotal.WithLabelValues(command, "protocol_error").Inc()
		return nil, &kea.ProtocolError{Reason: "response is not a result envelope list", Body: body}
	}

	env := envelopes[0]
	t.logger.Debug("kea response",
		zap.String("command", command), zap.Int("result", env.Result), zap.String("text", env.Text))

	switch {
	case env.Result == resultSuccess:
		commandsTotal.WithLabelValues(command, "ok").Inc()
		return &commandResult{Text: env.Text, Arguments: env.Arguments}, nil
	case env.Result == resultUnsupported:
		commandsTotal.WithLabelValues(command, "unsupported").Inc()
		return &commandResult{Unsupported: true, Text: env.Text}, nil
	case looksUnsupported(env.Text):
		// Secondary heuristic for backends that report an unknown command
		// with a generic error code. A legitimate domain error containing
		// one of these phrases is misclassified here; kept as-is.
		t.logger.Info("command appears unsupported based on error text",
			zap.String("command", command), zap.String("text", env.Text))
		commandsTotal.WithLabelValues(command, "unsupported").Inc()
		return &commandResult{Unsupported: true, Text: env.Text}, nil
	default:
		commandsTotal.WithLabelValues(command, "command_error").Inc()
		return nil, &kea.CommandError{Command: command, Code: env.Result, Text: env.Text}
	}
}

func (t *transport) roundTrip(ctx context.Context, command string, payload []byte) ([]byte, error) {
	attempts := 1
	if readOnlyCommands[command] {
		attempts = maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			retriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, &kea.TransportError{Err: ctx.Err()}
			case <-time.After(retryBackoff * time.Duration(attempt-1)):
			}
		}

		body, retryable, err := t.once(ctx, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		t.logger.Warn("kea request failed, retrying",
			zap.String("command", command), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, &kea.TransportError{Err: lastErr}
}

func (t *transport) once(ctx context.Context, payload []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.username != "" && t.password != "" {
		req.SetBasicAuth(t.username, t.password)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyLength))
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retryableStatus[resp.StatusCode], fmt.Errorf("control agent returned status %d", resp.StatusCode)
	}
	return body, false, nil
}

func looksUnsupported(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "not supported") || strings.Contains(lower, "command not found")
}
