package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuth(token string) (string, error) {
	if strings.HasPrefix(token, "valid-") {
		return strings.TrimPrefix(token, "valid-"), nil
	}
	return "", errors.New("bad token")
}

func startServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", NewHandler(hub, testAuth, nil).HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	_, srv := startServer(t)

	resp, err := http.Get(srv.URL + "/ws?token=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOrganizationBroadcastSkipsActor(t *testing.T) {
	hub, srv := startServer(t)
	watcher := dial(t, srv, "token=valid-op-2&organizationId=org-1")
	actor := dial(t, srv, "token=valid-op-1&organizationId=org-1")

	require.Eventually(t, func() bool { return hub.GetRoomClients(OrganizationRoom("org-1")) == 2 },
		2*time.Second, 10*time.Millisecond)

	org := &models.Organization{ID: "org-1", Name: "Acme Traders"}
	NewBroadcaster(hub).BroadcastOrganization(MessageOrganizationUpdated, org, "op-1", map[string]interface{}{"message": "saved"})

	msg := readMessage(t, watcher)
	assert.Equal(t, MessageOrganizationUpdated, msg.Type)
	assert.Equal(t, "org-1", msg.Payload["organizationId"])
	assert.Equal(t, "saved", msg.Payload["message"])
	assert.Equal(t, "Acme Traders", msg.Payload["organization"].(map[string]interface{})["name"])

	actor.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := actor.ReadMessage()
	assert.Error(t, err)
}

func TestClientJoinAndAck(t *testing.T) {
	hub, srv := startServer(t)
	conn := dial(t, srv, "token=valid-op-1")

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "join", Room: "org-7"}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "join", Room: "user:someone-else"}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "join", Room: OrganizationRoom("org-7")}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageAck, msg.Type)
	assert.Equal(t, "org:org-7", msg.Payload["room"])
	assert.Equal(t, 1, hub.GetRoomClients("org:org-7"))
	assert.Zero(t, hub.GetRoomClients("user:someone-else"))
}
