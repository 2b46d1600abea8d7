package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/handlers/userctx"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/service/notifier"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handlePaymentStream pushes status changes of the order to websocket client
// Current status goes first so reconnecting clients never miss a terminal event
func handlePaymentStream(payments paymentService, hub subscriber, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		orderID := chi.URLParam(r, "orderId")

		// Authorize before upgrade so the client gets a regular error response
		if _, err := payments.GetForUser(r.Context(), user, orderID); err != nil {
			renderError(w, err, l, "stream payment")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			l.Warn("Failed to upgrade connection", "orderId", orderID, "error", err)
			return
		}
		defer conn.Close() // nolint:errcheck

		// Subscribe before the snapshot: status published in between is delivered twice, never lost
		sub := hub.Subscribe(orderID)
		defer sub.Close()

		p, err := payments.GetForUser(r.Context(), user, orderID)
		if err != nil {
			l.Error("Failed to load payment snapshot", "orderId", orderID, "error", err)
			return
		}

		snapshot := notifier.EventFor(orderID, p.Status)
		if err := writeEvent(conn, snapshot); err != nil || p.Status.IsTerminal() {
			closeStream(conn)
			return
		}

		// Reader detects client going away
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case e, ok := <-sub.Events():
				if !ok {
					closeStream(conn)
					return
				}
				if err := writeEvent(conn, e); err != nil {
					l.Debug("Status stream write failed", "orderId", orderID, "error", err)
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-gone:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, e notifier.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}

func closeStream(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
}
