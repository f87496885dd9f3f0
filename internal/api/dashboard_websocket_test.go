package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/observability/internal/alert"
	"github.com/pennywise/observability/internal/clock"
	"github.com/pennywise/observability/internal/events"
)

func TestDashboardWebSocket_StreamsBusEvents(t *testing.T) {
	throttle := alert.NewThrottle(clock.Fake(time.Now()), alert.DefaultPolicy, nil)
	ws := NewDashboardWebSocket(throttle)
	go ws.Run()
	defer ws.Shutdown()

	bus := events.NewEventBus()
	ws.Attach(bus)

	r := gin.New()
	r.GET("/stream", ws.HandleConnection)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var initial DashboardEvent
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "throttle.snapshot", initial.Type)

	require.Eventually(t, func() bool { return ws.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	bus.PublishIngested("evt-1", "ui_error", true)

	for {
		var msg DashboardEvent
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == string(events.EventIngested) {
			data := msg.Data.(map[string]interface{})
			assert.Equal(t, "evt-1", data["event_id"])
			break
		}
	}
}
