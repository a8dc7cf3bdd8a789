package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/lottery_layer/internal/app/events"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are enforced by the CORS middleware configuration.
	CheckOrigin: func(*http.Request) bool { return true },
}

// stream pushes notifications to a websocket client. ?replay=n sends the n
// most recent notifications first, oldest first. ?type= filters by type.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	replay, _ := strconv.Atoi(r.URL.Query().Get("replay"))
	typ := events.Type(r.URL.Query().Get("type"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	keep := func(n events.Notification) bool { return typ == "" || n.Type == typ }
	queue := make(chan events.Notification, streamBuffer)
	unsubscribe := h.app.Events.SubscribeFiltered(keep, func(n events.Notification) {
		select {
		case queue <- n:
		default:
			h.log.WithField("remote", r.RemoteAddr).Warn("slow websocket client, dropping notification")
		}
	})
	defer unsubscribe()

	if replay > 0 {
		var recent []events.Notification
		if typ == "" {
			recent = h.app.Events.Recent(replay)
		} else {
			recent = h.app.Events.RecentByType(typ, replay)
		}
		for i := len(recent) - 1; i >= 0; i-- {
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(recent[i]); err != nil {
				return
			}
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case n := <-queue:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
