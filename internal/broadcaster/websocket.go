// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
websocket.go - WebSocket Transport for Snapshot Subscribers

One goroutine pair per connection: the write pump drains the subscriber
queue and the read pump exists only to notice the peer going away. While
no snapshot arrives within the keep-alive interval the write pump emits a
websocket ping; a delivered snapshot resets the timer.
*/

package broadcaster

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/playtally/playtally/internal/logging"
)

const (
	// DefaultKeepAlive is the heartbeat interval while no snapshots flow.
	DefaultKeepAlive = 15 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
)

// WSHandler upgrades HTTP requests into snapshot subscriptions.
type WSHandler struct {
	hub       *Hub
	keepAlive time.Duration
	upgrader  websocket.Upgrader
}

// NewWSHandler creates the websocket endpoint handler.
// keepAlive <= 0 uses DefaultKeepAlive.
func NewWSHandler(hub *Hub, keepAlive time.Duration) *WSHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &WSHandler{
		hub:       hub,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboard and server share an origin; cross-origin use
			// sits behind the operator's proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection, registers a subscriber and runs the
// connection pumps until either side goes away.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe()

	go h.writePump(conn, sub)
	go h.readPump(conn, sub)
}

// writePump delivers snapshots and heartbeats to the peer. Exits on any
// write failure or when the hub closes the subscriber channel.
func (h *WSHandler) writePump(conn *websocket.Conn, sub *Subscriber) {
	keepAlive := time.NewTimer(h.keepAlive)
	defer func() {
		keepAlive.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case snapshot, ok := <-sub.ch:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Hub closed the subscription.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(snapshot); err != nil {
				logging.Debug().Err(err).Msg("websocket snapshot write failed")
				return
			}

			// A delivered snapshot resets the heartbeat timer.
			if !keepAlive.Stop() {
				select {
				case <-keepAlive.C:
				default:
				}
			}
			keepAlive.Reset(h.keepAlive)

		case <-keepAlive.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			keepAlive.Reset(h.keepAlive)
		}
	}
}

// readPump discards inbound frames and unregisters the subscriber when
// the peer disconnects. Any disconnect path funnels through Unregister.
func (h *WSHandler) readPump(conn *websocket.Conn, sub *Subscriber) {
	defer func() {
		h.hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}
	}
}
