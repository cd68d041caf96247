package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"market-stream/src/logger"

	"github.com/gorilla/websocket"
)

// mockfeed serves synthetic market data over the push protocol for local runs.
func main() {
	port := flag.Int("port", 8000, "listen port")
	interval := flag.Duration("interval", time.Second, "update interval per subscribed pair")
	token := flag.String("token", "", "required token query parameter (empty accepts any)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	appLogger := logger.NewLogger(nil, "mockfeed")

	f := &feed{
		logger:   appLogger,
		gen:      newGenerator(*seed),
		interval: *interval,
		token:    *token,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	mux := http.NewServeMux()
	mux.Handle("/ws/realtime/", f)

	addr := fmt.Sprintf(":%d", *port)
	appLogger.Info("Mock feed listening on ws://localhost%s/ws/realtime/", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		appLogger.Critical("Mock feed failed: %v", err)
	}
}
