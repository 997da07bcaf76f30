package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const retryBackoff = 200 * time.Millisecond

type ackBody struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Challenge string `json:"challenge"`
}

// sender posts deliveries to a single webhook URL.
type sender struct {
	client  *http.Client
	url     string
	retries int
}

func newSender(cfg *Config) *sender {
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return &sender{
		client:  &http.Client{Timeout: cfg.Timeout},
		url:     cfg.BaseURL + cfg.Route,
		retries: retries,
	}
}

// send posts d, retrying while the gate answers 503, and classifies the
// final reply.
func (s *sender) send(ctx context.Context, d Delivery) Result {
	payload, err := json.Marshal(d.Body)
	if err != nil {
		return Result{Delivery: d, Outcome: OutcomeFailed, Detail: err.Error()}
	}

	res := Result{Delivery: d}
	for res.Attempts < s.retries {
		res.Attempts++
		status, body, err := s.post(ctx, payload)
		if err != nil {
			res.Outcome, res.Detail = OutcomeFailed, err.Error()
			return res
		}
		res.Status = status
		if status == http.StatusServiceUnavailable {
			res.Outcome, res.Detail = OutcomeFailed, "gate kept answering 503"
			select {
			case <-ctx.Done():
				return res
			case <-time.After(retryBackoff * time.Duration(res.Attempts)):
			}
			continue
		}
		res.Outcome, res.Detail = check(d, status, body)
		if res.Outcome == OutcomeOK && res.Attempts > 1 {
			res.Outcome = OutcomeRetried
		}
		return res
	}
	return res
}

func (s *sender) post(ctx context.Context, payload []byte) (int, ackBody, error) {
	var ack ackBody
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return 0, ack, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, ack, fmt.Errorf("post delivery: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, ack, fmt.Errorf("read reply: %w", err)
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		return resp.StatusCode, ack, fmt.Errorf("reply is not JSON: %q", raw)
	}
	return resp.StatusCode, ack, nil
}

// check compares a reply with what the delivery expects.
func check(d Delivery, status int, body ackBody) (Outcome, string) {
	if status != http.StatusOK {
		return OutcomeViolation, fmt.Sprintf("status %d: %s", status, body.Message)
	}
	switch d.Expect {
	case ExpectChallenge:
		if body.Challenge != d.Challenge {
			return OutcomeViolation, fmt.Sprintf("challenge echoed as %q", body.Challenge)
		}
	case ExpectAck:
		if body.Status != "success" {
			return OutcomeViolation, fmt.Sprintf("status field %q", body.Status)
		}
	}
	return OutcomeOK, ""
}

// checkHealth verifies the gate is up.
func checkHealth(ctx context.Context, cfg *Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/health", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: cfg.Timeout}).Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check answered %d", resp.StatusCode)
	}
	return nil
}
