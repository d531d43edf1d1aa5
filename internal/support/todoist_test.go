package support

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itam-api/internal/models"
)

func TestPriority(t *testing.T) {
	assert.Equal(t, 1, Priority("Low"))
	assert.Equal(t, 2, Priority("Medium"))
	assert.Equal(t, 3, Priority("High"))
	assert.Equal(t, 1, Priority(""))
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "screen flickers", Description("", "screen flickers"))
	assert.Equal(t, "**Related Asset:** MBP14-3\n\nscreen flickers", Description("MBP14-3", "screen flickers"))
}

func TestCreateTask(t *testing.T) {
	var got taskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"8001","url":"https://todoist.com/showTask?id=8001"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", "42")
	res, err := c.CreateTask(context.Background(), models.SupportTicketRequest{
		Subject: "Laptop broken", Description: "won't boot", Priority: "High", Asset: "MBP14-3",
	})
	require.NoError(t, err)
	assert.Equal(t, "8001", res.TaskID)
	assert.Equal(t, "https://todoist.com/showTask?id=8001", res.URL)

	assert.Equal(t, "Laptop broken", got.Content)
	assert.Equal(t, "**Related Asset:** MBP14-3\n\nwon't boot", got.Description)
	assert.Equal(t, "42", got.ProjectID)
	assert.Equal(t, 3, got.Priority)
	assert.Equal(t, []string{"support-ticket"}, got.Labels)
}

func TestCreateTaskUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"project not accessible"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok", "42").CreateTask(context.Background(),
		models.SupportTicketRequest{Subject: "s", Description: "d"})
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusForbidden, upstream.Status)
	assert.Equal(t, "project not accessible", upstream.Message)
}

func TestCreateTaskNotConfigured(t *testing.T) {
	_, err := NewClient("http://unused", "", "42").CreateTask(context.Background(), models.SupportTicketRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	var nilClient *Client
	assert.False(t, nilClient.Configured())
}
