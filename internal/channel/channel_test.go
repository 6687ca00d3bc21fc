package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseOrPassthrough(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Response
	}{
		{"object", `{"ok":true,"n":1}`, Response{"ok": true, "n": float64(1)}},
		{"plaintext", "OK", Response{"response": "OK"}},
		{"empty", "", Response{"response": ""}},
		{"array", `[1,2]`, Response{"response": []any{float64(1), float64(2)}}},
		{"string", `"done"`, Response{"response": "done"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOrPassthrough([]byte(tt.body)))
		})
	}
}

func TestMailClient_SendPlaintext(t *testing.T) {
	var gotPath, gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	client := NewMailClient(srv.URL, time.Second, zap.NewNop())
	resp, err := client.Send(context.Background(), "abc123", json.RawMessage(`{"to":"nurse@example.com"}`))
	require.NoError(t, err)

	assert.Equal(t, Response{"response": "OK"}, resp)
	assert.Equal(t, "/abc123/exec", gotPath)
	assert.Contains(t, gotType, "application/json")
	assert.JSONEq(t, `{"to":"nurse@example.com"}`, gotBody)
}

func TestMailClient_NonSuccessStatusIsPassedThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"denied"}`))
	}))
	defer srv.Close()

	client := NewMailClient(srv.URL, time.Second, zap.NewNop())
	resp, err := client.Send(context.Background(), "abc", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "denied", resp["error"])
}

func TestMailClient_TimeoutIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewMailClient(srv.URL, 50*time.Millisecond, zap.NewNop())
	_, err := client.Send(context.Background(), "abc", json.RawMessage(`{}`))
	require.Error(t, err)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "mail", upstream.Channel)
}

func TestMailClient_NoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewMailClient(srv.URL, time.Second, zap.NewNop())
	_, err := client.Send(context.Background(), "abc", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMailClient_InvalidRequest(t *testing.T) {
	client := NewMailClient("http://127.0.0.1:1", time.Second, zap.NewNop())

	_, err := client.Send(context.Background(), "", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = client.Send(context.Background(), "abc", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMailClient_DefaultURL(t *testing.T) {
	client := NewMailClient("", 0, zap.NewNop())
	assert.Equal(t, "https://script.google.com/macros/s/XYZ/exec", client.URLFor("XYZ"))
}

func TestTelegramClient_SendPhoto(t *testing.T) {
	type captured struct {
		path, chatID, caption, filename, fileType string
		image                                      []byte
	}
	var got captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		got.path = r.URL.Path
		got.chatID = r.FormValue("chat_id")
		got.caption = r.FormValue("caption")
		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		got.filename = header.Filename
		got.fileType = header.Header.Get("Content-Type")
		got.image, _ = io.ReadAll(file)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer srv.Close()

	client := NewTelegramClient(srv.URL, time.Second, zap.NewNop())
	resp, err := client.SendPhoto(context.Background(), PhotoRequest{
		BotPath:  "bot123:ABC",
		ChatID:   "-1001",
		Caption:  "Paciente fuera de la cama",
		Image:    []byte{0xff, 0xd8, 0xff},
		MimeType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "/bot123:ABC/sendPhoto", got.path)
	assert.Equal(t, "-1001", got.chatID)
	assert.Equal(t, "Paciente fuera de la cama", got.caption)
	assert.Equal(t, "evidence", got.filename)
	assert.Equal(t, "image/jpeg", got.fileType)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, got.image)
}

func TestTelegramClient_DefaultMimeType(t *testing.T) {
	var fileType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("photo")
		require.NoError(t, err)
		fileType = header.Header.Get("Content-Type")
		_, _ = w.Write([]byte("sent"))
	}))
	defer srv.Close()

	client := NewTelegramClient(srv.URL, time.Second, zap.NewNop())
	resp, err := client.SendPhoto(context.Background(), PhotoRequest{
		BotPath: "bot1", ChatID: "1", Caption: "c", Image: []byte("img"),
	})
	require.NoError(t, err)
	assert.Equal(t, Response{"response": "sent"}, resp)
	assert.Equal(t, "application/octet-stream", fileType)
}

func TestTelegramClient_ValidationHappensBeforeNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := NewTelegramClient(srv.URL, time.Second, zap.NewNop())
	valid := PhotoRequest{BotPath: "bot1", ChatID: "1", Caption: "c", Image: []byte("img")}

	cases := map[string]func(r *PhotoRequest){
		"no image":   func(r *PhotoRequest) { r.Image = nil },
		"no id":      func(r *PhotoRequest) { r.BotPath = "" },
		"no chat id": func(r *PhotoRequest) { r.ChatID = "" },
		"no caption": func(r *PhotoRequest) { r.Caption = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			_, err := client.SendPhoto(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestTelegramClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	client := NewTelegramClient(addr, time.Second, zap.NewNop())
	_, err := client.SendPhoto(context.Background(), PhotoRequest{
		BotPath: "bot1", ChatID: "1", Caption: "c", Image: []byte("img"),
	})
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "telegram", upstream.Channel)
}
