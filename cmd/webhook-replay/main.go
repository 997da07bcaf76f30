// Command webhook-replay sends synthetic deliveries to a running larkgate and
// checks that every reply follows the acknowledgement contract.
package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/larkgate/internal/replay"
)

const (
	defaultNumEvents = 200
	defaultDupEvery  = 5
	defaultAnonymous = 3
	defaultRetries   = 3
	defaultWorkers   = 2 // multiplier for runtime.NumCPU()
	defaultTimeout   = 10 * time.Second
	runTimeout       = 5 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "Base URL of the gate")
		route     = flag.String("route", "/feishu/webhook", "Webhook path, e.g. /feishu/webhook/{agent}-{key}-{secret}/{app}-{secret}")
		numEvents = flag.Int("events", defaultNumEvents, "Distinct events to send")
		dupEvery  = flag.Int("dup-every", defaultDupEvery, "Resend every n-th event; 0 disables")
		anonymous = flag.Int("anonymous", defaultAnonymous, "Events sent without an id")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent senders")
		retries   = flag.Int("retries", defaultRetries, "Attempts per delivery while the gate answers 503")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		output    = flag.String("output", "", "Save generated deliveries to this JSON file")
		logFile   = flag.String("log", "", "Also write logs to this file")
		verbose   = flag.Bool("verbose", false, "Log every delivery")
	)
	flag.Parse()

	closeLog, err := replay.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	_, _, err = replay.Run(ctx, &replay.Config{
		BaseURL:    *baseURL,
		Route:      *route,
		NumEvents:  *numEvents,
		DupEvery:   *dupEvery,
		Anonymous:  *anonymous,
		Workers:    *workers,
		Retries:    *retries,
		Timeout:    *timeout,
		OutputFile: *output,
		Verbose:    *verbose,
	})
	if err != nil {
		os.Stderr.WriteString("replay failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
