package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
)

func drain(t *testing.T, s *Subscription) []Event {
	t.Helper()

	var events []Event
	timeout := time.After(time.Second)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("subscription was not closed in time")
		}
	}
}

func TestHub(t *testing.T) {
	t.Run("terminal status closes subscription", func(t *testing.T) {
		h := NewHub(logger.NewNoOpLogger())
		s := h.Subscribe("ORD1")

		h.Publish("ORD1", models.PaymentPending)
		h.Publish("ORD1", models.PaymentCompleted)

		events := drain(t, s)
		require.Equal(t, []Event{
			{Type: EventStatus, Data: StatusData{OrderID: "ORD1", Status: models.PaymentPending}},
			{Type: EventComplete, Data: StatusData{OrderID: "ORD1", Status: models.PaymentCompleted}},
		}, events)
		require.Zero(t, h.Subscribers("ORD1"))
	})

	t.Run("failure is an error event", func(t *testing.T) {
		h := NewHub(logger.NewNoOpLogger())
		s := h.Subscribe("ORD1")

		h.Publish("ORD1", models.PaymentCancelled)

		events := drain(t, s)
		require.Len(t, events, 1)
		require.Equal(t, EventError, events[0].Type)
	})

	t.Run("other orders are not notified", func(t *testing.T) {
		h := NewHub(logger.NewNoOpLogger())
		s := h.Subscribe("ORD1")
		defer s.Close()

		h.Publish("ORD2", models.PaymentCompleted)

		select {
		case e := <-s.Events():
			t.Fatalf("unexpected event %v", e)
		default:
		}
		require.Equal(t, 1, h.Subscribers("ORD1"))
	})

	t.Run("ceiling closes with timeout event", func(t *testing.T) {
		h := NewHub(logger.NewNoOpLogger(), WithCeiling(20*time.Millisecond))
		s := h.Subscribe("ORD1")

		events := drain(t, s)

		require.Equal(t, []Event{{Type: EventTimeout, Data: StatusData{OrderID: "ORD1"}}}, events)
		require.Zero(t, h.Subscribers("ORD1"))
	})

	t.Run("publish never blocks on slow subscriber", func(t *testing.T) {
		h := NewHub(logger.NewNoOpLogger())
		s := h.Subscribe("ORD1")
		defer s.Close()

		done := make(chan struct{})
		go func() {
			for range bufferSize * 4 {
				h.Publish("ORD1", models.PaymentPending)
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked")
		}
	})

	t.Run("terminal event survives full buffer", func(t *testing.T) {
		h := NewHub(logger.NewNoOpLogger())
		s := h.Subscribe("ORD1")

		for range bufferSize {
			h.Publish("ORD1", models.PaymentPending)
		}
		h.Publish("ORD1", models.PaymentCompleted)

		events := drain(t, s)
		require.Len(t, events, bufferSize)
		last := events[len(events)-1]
		require.Equal(t, EventComplete, last.Type)
		require.Equal(t, models.PaymentCompleted, last.Data.Status)
	})

	t.Run("timeout event survives full buffer", func(t *testing.T) {
		h := NewHub(logger.NewNoOpLogger(), WithCeiling(50*time.Millisecond))
		s := h.Subscribe("ORD1")

		for range bufferSize {
			h.Publish("ORD1", models.PaymentPending)
		}
		time.Sleep(100 * time.Millisecond)

		events := drain(t, s)
		require.Equal(t, EventTimeout, events[len(events)-1].Type)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		h := NewHub(logger.NewNoOpLogger())
		s := h.Subscribe("ORD1")

		s.Close()
		s.Close()
		h.Publish("ORD1", models.PaymentCompleted)

		require.Empty(t, drain(t, s))
		require.Zero(t, h.Subscribers("ORD1"))
	})
}
