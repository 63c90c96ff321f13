package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mediabridge/sfu/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// roomEvents streams registry changes for one room over a websocket. Slow
// readers lose events rather than stall the registry.
func (h *handlers) roomEvents(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	if _, err := h.orch.RoomStatus(roomID); err != nil {
		respondError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}

	events, cancel := h.orch.Feed.Subscribe(roomID)
	defer cancel()

	go func() {
		defer cancel()
		for ev := range events {
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("module", "adapters.http").Str("room", string(roomID)).Msg("event feed write")
				return
			}
		}
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	}()

	// Read loop only detects the peer going away.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	cancel()
	_ = ws.Close()
}
