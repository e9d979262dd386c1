package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWebhookDeliversAlert(t *testing.T) {
	received := make(chan Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received <- alert
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	wh.Notify(context.Background(), Alert{
		Check:    "challenge",
		Severity: SeverityCritical,
		ChainID:  1,
		Subject:  "0xdead",
		Message:  "bonded root was never committed",
	})

	select {
	case alert := <-received:
		require.Equal(t, "challenge", alert.Check)
		require.Equal(t, SeverityCritical, alert.Severity)
		require.False(t, alert.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("alert was not delivered")
	}
}

func TestWebhookFailuresDoNotPanic(t *testing.T) {
	wh := NewWebhook("http://127.0.0.1:0", 100*time.Millisecond)
	wh.Notify(context.Background(), Alert{Check: "settlement", Subject: "0x01"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	wh = NewWebhook(srv.URL, time.Second)
	wh.Notify(context.Background(), Alert{Check: "settlement", Subject: "0x01"})
}
