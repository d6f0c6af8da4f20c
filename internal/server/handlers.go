// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the chat page.
package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/lanchat/internal/nickname"
)

// NicknameCookie keeps a browser's nickname across reloads.
const NicknameCookie = "nickname"

//go:embed web/index.html
var webFS embed.FS

var chatPage = template.Must(template.ParseFS(webFS, "web/index.html"))

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades GET requests and hands the connection to hub.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("http.upgrade_failed", "addr", r.RemoteAddr, "err", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if !hub.Register(client) {
			hub.log.Warn("http.hub_stopped", "addr", r.RemoteAddr)
			_ = conn.Close()
		}
	}
}

// HealthHandler reports that the process is serving.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "LAN chat server is running!")
}

// ChatPageHandler serves the chat page. The nickname cookie is reused when
// present and generated otherwise.
func ChatPageHandler(w http.ResponseWriter, r *http.Request) {
	nick := ""
	if cookie, err := r.Cookie(NicknameCookie); err == nil {
		nick = cookie.Value
	}
	if nick == "" {
		nick = nickname.Generate()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     NicknameCookie,
		Value:    nick,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chatPage.Execute(w, struct{ Nickname string }{nick}); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
