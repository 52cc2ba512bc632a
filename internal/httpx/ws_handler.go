package httpx

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// single-location deployment on a trusted LAN
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *PosHandler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.Hub.Register <- conn
	defer func() { h.Hub.Unregister <- conn }()

	for {
		// keep-alive loop; clients only listen
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
