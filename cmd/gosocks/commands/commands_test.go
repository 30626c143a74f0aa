package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	gosocks "github.com/gosocks/gosocks-go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireFrame struct {
	Action string `json:"action"`
	Name   string `json:"name"`
	Event  string `json:"event"`
	Data   string `json:"data"`
}

// newTestServer starts a gosocks server stub. Every frame it receives is
// recorded and passed to reply, which may answer on conn.
func newTestServer(t *testing.T, reply func(conn *websocket.Conn, f wireFrame)) (string, <-chan wireFrame) {
	t.Helper()

	frames := make(chan wireFrame, 100)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bearer") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f wireFrame
			if err := json.Unmarshal(msg, &f); err != nil {
				return
			}
			frames <- f
			if reply != nil {
				reply(conn, f)
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", frames
}

func nextFrame(t *testing.T, frames <-chan wireFrame) wireFrame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for frame")
		return wireFrame{}
	}
}

// syncBuffer is a bytes.Buffer safe for the read loop and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestListen(t *testing.T) {
	joins := 0
	url, _ := newTestServer(t, func(conn *websocket.Conn, f wireFrame) {
		switch f.Action {
		case "join_channel":
			joins++
			conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(
				`{"action":"send_message","name":%q,"event":"greeting","data":"{\"n\":1}"}`, f.Name)))
		case "join_channel_private":
			joins++
			conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(
				`{"action":"member_added","name":%q,"event":"member_added","sender":{"id":"u1"}}+{"action":"send_message","name":%q,"event":"plain","data":"hello"}`,
				f.Name, f.Name)))
		}
		if joins == 2 {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		}
	})

	var out syncBuffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := listen(ctx, &out, clientConfig{AuthKey: "test-key", URL: url}, []string{"room1", "private-room2"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var events []printedEvent
	for _, line := range lines {
		var ev printedEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}

	assert.Equal(t, "room1", events[0].Channel)
	assert.Equal(t, "greeting", events[0].Event)
	assert.JSONEq(t, `{"n":1}`, string(events[0].Data))

	assert.Equal(t, "member_added", events[1].Action)
	assert.Equal(t, "u1", events[1].Sender)

	assert.Equal(t, "private-room2", events[2].Channel)
	assert.JSONEq(t, `"hello"`, string(events[2].Data))
}

func TestListen_AbnormalClose(t *testing.T) {
	url, _ := newTestServer(t, func(conn *websocket.Conn, f wireFrame) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "maintenance"),
			time.Now().Add(time.Second))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := listen(ctx, &syncBuffer{}, clientConfig{AuthKey: "test-key", URL: url}, []string{"room1"})
	require.Error(t, err)

	var closeErr *gosocks.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, gosocks.StatusGoingAway, closeErr.Code)
	assert.Equal(t, "maintenance", closeErr.Reason)
}

func TestListen_Unauthorized(t *testing.T) {
	url, _ := newTestServer(t, nil)

	err := listen(context.Background(), &syncBuffer{}, clientConfig{AuthKey: "wrong", URL: url}, []string{"room1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gosocks.ErrUnexpectedResponse)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestSend(t *testing.T) {
	url, frames := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := send(ctx, clientConfig{AuthKey: "test-key", URL: url}, "private-room", "chat", `{"text":"hi"}`)
	require.NoError(t, err)

	join := nextFrame(t, frames)
	assert.Equal(t, "join_channel_private", join.Action)
	assert.Equal(t, "private-room", join.Name)

	msg := nextFrame(t, frames)
	assert.Equal(t, "send_message", msg.Action)
	assert.Equal(t, "private-room", msg.Name)
	assert.Equal(t, "chat", msg.Event)
	assert.Equal(t, `{"text":"hi"}`, msg.Data)
}

func TestSend_DefaultEvent(t *testing.T) {
	url, frames := newTestServer(t, nil)

	err := send(context.Background(), clientConfig{AuthKey: "test-key", URL: url}, "private-room", "", "plain")
	require.NoError(t, err)

	nextFrame(t, frames)
	msg := nextFrame(t, frames)
	assert.Equal(t, "send_message", msg.Event)
	assert.Equal(t, "plain", msg.Data)
}

func TestSend_PublicChannel(t *testing.T) {
	err := send(context.Background(), clientConfig{AuthKey: "test-key", URL: "ws://127.0.0.1:1/ws"}, "room1", "", "x")

	var policyErr *gosocks.PolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, "room1", policyErr.Channel)
}

func TestSetupViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	config := `host = "localhost:8080"
tls = false
channels = ["room1", "private-room2"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gosocks.toml"), []byte(config), 0o600))
	t.Setenv("GOSOCKS_AUTH_KEY", "env-key")
	t.Setenv("GOSOCKS_RECONNECT", "true")

	require.NoError(t, setupViper(dir))

	cfg, err := loadClientConfig()
	require.NoError(t, err)
	assert.Equal(t, clientConfig{
		AuthKey:   "env-key",
		Host:      "localhost:8080",
		TLS:       false,
		Reconnect: true,
	}, cfg)
	assert.Equal(t, []string{"room1", "private-room2"}, viper.GetStringSlice("channels"))
}

func TestSetupViper_NoConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, setupViper(t.TempDir()))
	assert.Equal(t, gosocks.DefaultHost, viper.GetString("host"))
	assert.True(t, viper.GetBool("tls"))

	_, err := loadClientConfig()
	assert.Error(t, err, "missing auth key")
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs([]string{"--config", t.TempDir(), "version"})
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetArgs(nil)
	})

	require.NoError(t, RootCmd.Execute())
	assert.Equal(t, "gosocks version unset\n", out.String())
}
