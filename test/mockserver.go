// Command mockserver stands in for the legacy BookStack system during local
// development. Every request is answered with a JSON echo of what arrived,
// so forwarded traffic can be checked by eye or with curl.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"

	"github.com/zeek-r/bookflow-gateway/internal/logger"
)

type echo struct {
	Server string              `json:"server"`
	Method string              `json:"method"`
	Path   string              `json:"path"`
	Query  string              `json:"query,omitempty"`
	Host   string              `json:"host"`
	Header map[string][]string `json:"headers"`
	Body   string              `json:"body,omitempty"`
}

func main() {
	port := flag.Int("port", 8081, "Port to listen on")
	serverName := flag.String("name", "legacy", "Server name")
	status := flag.Int("status", http.StatusOK, "Status code to answer with")
	flag.Parse()

	logger.Initialize(logger.Config{Level: logger.LevelDebug, Format: logger.FormatPretty, Service: "legacy-mock"})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(io.LimitReader(r.Body, 64<<10))

		logger.InfoWithFields("Legacy request", map[string]interface{}{
			"server":  *serverName,
			"method":  r.Method,
			"path":    r.URL.Path,
			"query":   r.URL.RawQuery,
			"headers": r.Header,
		})

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Served-By", *serverName)
		w.WriteHeader(*status)
		json.NewEncoder(w).Encode(echo{
			Server: *serverName,
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Host:   r.Host,
			Header: r.Header,
			Body:   string(body),
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	logger.InfoWithFields("Starting mock legacy server", map[string]interface{}{
		"name": *serverName,
		"addr": addr,
	})
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Error("Server failed", err)
	}
}
