package sms

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendPath, r.URL.Path)
		assert.Equal(t, "k-1", r.Header.Get("apiKey"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+254712345678", r.PostForm.Get("to"))
		assert.Equal(t, "MNETIFI", r.PostForm.Get("from"))
		_, _ = w.Write([]byte(`{"SMSMessageData":{"Message":"Sent to 1/1","Recipients":[{"number":"+254712345678","status":"Success","messageId":"ATX-1"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	id, err := c.Send(t.Context(), Account{Username: "kilimani", APIKey: "k-1", SenderID: "MNETIFI"}, "254712345678", "Paid KES 50")
	require.NoError(t, err)
	assert.Equal(t, "ATX-1", id)
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"SMSMessageData":{"Message":"Sent to 0/1","Recipients":[{"number":"+254712345678","status":"InsufficientBalance"}]}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, zap.NewNop()).Send(t.Context(), Account{Username: "u", APIKey: "k"}, "254712345678", "hi")
	assert.ErrorContains(t, err, "InsufficientBalance")
}
