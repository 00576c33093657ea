package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResendSend(t *testing.T) {
	var got resendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	c := NewResend("re_test", "EatAuthentically <hello@example.com>", srv.URL+"/")
	id, err := c.Send(context.Background(), Message{
		To:         "farm@example.com",
		TemplateID: "tmpl-1",
		Variables:  map[string]string{"claimLink": "https://x/join-and-claim?token=t"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_123", id)

	assert.Equal(t, []string{"farm@example.com"}, got.To)
	assert.Equal(t, "tmpl-1", got.Template.ID)
	assert.Equal(t, "https://x/join-and-claim?token=t", got.Template.Variables["claimLink"])
}

func TestResendSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"template not found"}`))
	}))
	defer srv.Close()

	c := NewResend("re_test", "from@example.com", srv.URL)
	_, err := c.Send(context.Background(), Message{To: "a@example.com", TemplateID: "missing"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "template not found", apiErr.Message)
}

func TestResendSendValidates(t *testing.T) {
	c := NewResend("re_test", "from@example.com", "http://unused")
	_, err := c.Send(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
}

func TestLogSender(t *testing.T) {
	s := &LogSender{Log: zap.NewNop()}
	a, err := s.Send(context.Background(), Message{To: "a@example.com", TemplateID: "t"})
	require.NoError(t, err)
	b, err := s.Send(context.Background(), Message{To: "a@example.com", TemplateID: "t"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
