// Standalone mock target server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pingmatrix serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/pingmatrix/example/mock"
)

func main() {
	addr := ":9999"
	if v := os.Getenv("MOCK_ADDR"); v != "" {
		addr = v
	}

	fmt.Printf("Mock target server starting on %s\n", addr)
	fmt.Println("Routes: /fast /slow?ms=N /status/{code} /flaky /down")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := http.ListenAndServe(addr, mock.NewHandler(logger)); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
