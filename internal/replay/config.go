// Package replay sends synthetic webhook deliveries to a running gate and
// checks every reply against the acknowledgement contract.
package replay

import "time"

// Config holds configuration for a replay run.
type Config struct {
	BaseURL    string        // Base URL of the gate
	Route      string        // Webhook path, static or with credentials
	NumEvents  int           // Distinct events to generate
	DupEvery   int           // Resend every n-th event; 0 disables duplicates
	Anonymous  int           // Events sent without any id
	Workers    int           // Concurrent senders
	Retries    int           // Attempts per delivery on 503
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Where the generated deliveries are saved; empty skips
	Verbose    bool          // Log every delivery
}

// Expect is the reply a delivery must receive.
type Expect string

// Expectations.
const (
	ExpectChallenge Expect = "challenge"
	ExpectAck       Expect = "ack"
)

// Delivery is one request body and the reply it must get.
type Delivery struct {
	Label     string         `json:"label"`
	EventID   string         `json:"event_id,omitempty"`
	Challenge string         `json:"challenge,omitempty"`
	Expect    Expect         `json:"expect"`
	Body      map[string]any `json:"body"`
}

// Outcome classifies a delivery after it was sent.
type Outcome string

// Outcomes.
const (
	OutcomeOK        Outcome = "ok"
	OutcomeRetried   Outcome = "retried"
	OutcomeViolation Outcome = "violation"
	OutcomeFailed    Outcome = "failed"
)

// Result is the observed reply to one delivery.
type Result struct {
	Delivery Delivery
	Outcome  Outcome
	Status   int
	Attempts int
	Detail   string
}

// Stats summarises a run.
type Stats struct {
	Generated  int
	Sent       int
	OK         int
	Retried    int
	Violations int
	Failed     int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
