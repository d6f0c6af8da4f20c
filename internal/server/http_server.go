// Package server constructs and starts the HTTP service with production
// timeouts.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for handler with conservative timeouts.
// gorilla clears the deadlines on upgraded connections.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer blocks serving until the server stops.
func StartServer(server *http.Server) error {
	slog.Info("http.listening", "addr", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer drains in-flight requests until timeout elapses.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("http.shutdown_failed", "err", err)
		return err
	}
	slog.Info("http.shutdown_complete")
	return nil
}

// LANAddress returns the address other machines on the network use to reach
// this host. No packet is sent; dialing UDP only selects a route.
func LANAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
