// Command fake-engine serves a local stand-in for the Gemini
// generateContent API so the dictation pipeline can be exercised
// without network access or an API key.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "Listen address")
	fail := flag.String("fail", "", "Simulated failure: overloaded, ratelimit, unauthorized or empty")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	apiKey := flag.String("api-key", "", "Required API key (any key when empty)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	switch *fail {
	case failNone, failOverloaded, failRateLimit, failUnauthorized, failEmpty:
	default:
		logger.Error("Unknown failure mode", slog.String("fail", *fail))
		os.Exit(2)
	}

	e := &engine{logger: logger, fail: *fail, delay: *delay, apiKey: *apiKey}

	logger.Info("Fake transcription engine starting",
		slog.String("address", *addr),
		slog.String("fail", *fail),
		slog.Duration("delay", *delay))
	logger.Info("Point transcription.endpoint at http://" + *addr)

	server := &http.Server{
		Addr:        *addr,
		Handler:     e.routes(),
		ReadTimeout: 30 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
