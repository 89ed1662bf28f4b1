package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/assistant/config"
)

func TestBuild_WithoutCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Port:         8080,
		PollTimeout:  time.Minute,
		PollInterval: time.Second,
	}
	logger := newLogger(&bytes.Buffer{}, false)

	a, err := build(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.close()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[{"role":"user","content":"Olá"}]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "OPENAI_API_KEY")

	req = httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	rec = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false).Info("hello", "k", "v")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "production logs are JSON")

	buf.Reset()
	logger := newLogger(&buf, true)
	logger.Debug("hello")
	assert.Contains(t, buf.String(), "level=DEBUG")
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}
