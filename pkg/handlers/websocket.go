package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chat-playback-engine/pkg/models"
	"chat-playback-engine/pkg/playback"
	"chat-playback-engine/pkg/viewport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	updateBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Demo widgets are embedded on arbitrary marketing origins.
		return true
	},
}

// Message types on the stream.
const (
	MessageSnapshot   = "snapshot"
	MessageLocalInput = "local_input"
	MessageScroll     = "scroll"
	MessageResize     = "resize"
)

// ServerMessage is sent to stream clients.
type ServerMessage struct {
	Type       string                  `json:"type"`
	Slot       string                  `json:"slot,omitempty"`
	NoScenario bool                    `json:"no_scenario,omitempty"`
	Snapshot   *models.Snapshot        `json:"snapshot,omitempty"`
	LocalInput *models.LocalInputEvent `json:"local_input,omitempty"`
	Top        *float64                `json:"top,omitempty"`
}

// ClientMessage is received from stream clients. Scroll messages carry the
// viewport geometry; resize messages carry one item's rendered height.
type ClientMessage struct {
	Type           string  `json:"type"`
	ScrollTop      float64 `json:"scroll_top"`
	ViewportHeight float64 `json:"viewport_height"`
	ContentHeight  float64 `json:"content_height"`
	TurnID         string  `json:"turn_id"`
	Height         float64 `json:"height"`
}

// Stream upgrades to a websocket that pushes snapshots of one slot. Each
// connection gets its own viewport follower fed by the client's geometry.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	host, ok := h.host(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).WithField("slot", host.Slot()).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	m := h.service.Metrics()
	m.WebsocketClients.Inc()
	defer m.WebsocketClients.Dec()

	logger := h.logger.WithFields(logrus.Fields{
		"slot":   host.Slot(),
		"remote": r.RemoteAddr,
	})
	logger.Debug("Stream client connected")

	updates, unsubscribe := host.Subscribe(updateBuffer)
	defer unsubscribe()

	scrolls := make(chan float64, 8)
	follower := viewport.New(h.service.Clock(), h.service.Config().Viewport(), viewport.ScrollFunc(func(top float64) {
		select {
		case scrolls <- top:
		default:
		}
	}), m)
	defer follower.Stop()

	done := make(chan struct{})
	go h.readLoop(conn, follower, logger, done)

	if _, playing := host.Snapshot(); !playing {
		if err := writeMessage(conn, ServerMessage{Type: MessageSnapshot, Slot: host.Slot(), NoScenario: true}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var sessionID string
	for {
		var msg ServerMessage
		select {
		case <-done:
			logger.Debug("Stream client disconnected")
			return
		case u, open := <-updates:
			if !open {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "slot closed"))
				return
			}
			msg = h.updateMessage(host, u, follower, &sessionID)
		case top := <-scrolls:
			msg = ServerMessage{Type: MessageScroll, Slot: host.Slot(), Top: &top}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		if err := writeMessage(conn, msg); err != nil {
			logger.WithError(err).Debug("Stream write failed")
			return
		}
	}
}

func (h *Handler) updateMessage(host *playback.Host, u playback.Update, follower *viewport.Follower, sessionID *string) ServerMessage {
	if u.LocalInput != nil {
		return ServerMessage{Type: MessageLocalInput, Slot: host.Slot(), LocalInput: u.LocalInput}
	}
	if u.NoScenario {
		*sessionID = ""
		return ServerMessage{Type: MessageSnapshot, Slot: host.Slot(), NoScenario: true}
	}
	// A new session is a new transcript: start following from the top again.
	if u.Snapshot.SessionID != *sessionID {
		*sessionID = u.Snapshot.SessionID
		follower.Reset()
	}
	return ServerMessage{Type: MessageSnapshot, Slot: host.Slot(), Snapshot: u.Snapshot}
}

func (h *Handler) readLoop(conn *websocket.Conn, follower *viewport.Follower, logger *logrus.Entry, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("Stream read failed")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WithError(err).Debug("Ignoring malformed stream message")
			continue
		}

		switch msg.Type {
		case MessageScroll:
			follower.OnScroll(viewport.Geometry{
				ScrollTop:      msg.ScrollTop,
				ViewportHeight: msg.ViewportHeight,
				ContentHeight:  msg.ContentHeight,
			})
		case MessageResize:
			if msg.TurnID == "" {
				follower.OnContentResize(msg.ContentHeight)
			} else {
				follower.OnItemResize(msg.TurnID, msg.Height, msg.ContentHeight)
			}
		default:
			logger.WithField("type", msg.Type).Debug("Ignoring unknown stream message")
		}
	}
}

func writeMessage(conn *websocket.Conn, msg ServerMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
