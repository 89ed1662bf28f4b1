package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/chat"
)

const headerFallback = "X-Assistant-Fallback"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []chatMessage `json:"messages"`
	UseSimpleModel bool          `json:"useSimpleModel"`
	UserID         string        `json:"userId"`
}

type startRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// toChatRequest picks the newest non-empty user message as the turn to answer;
// earlier user messages become prior turns, newest first.
func (r chatRequest) toChatRequest() (chat.Request, bool) {
	var turns []string
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Role != assistant.RoleUser {
			continue
		}
		if content := strings.TrimSpace(m.Content); content != "" {
			turns = append(turns, content)
		}
	}
	if len(turns) == 0 {
		return chat.Request{}, false
	}
	return chat.Request{
		UserID:         strings.TrimSpace(r.UserID),
		Message:        turns[0],
		PriorTurns:     turns[1:],
		UseSimpleModel: r.UseSimpleModel,
	}, true
}

// handleChat answers synchronously with a text/plain body.
// POST /api/chat
func (s *Server) handleChat(c *gin.Context) {
	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req, ok := body.toChatRequest()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no user message found"})
		return
	}

	reply, err := s.opts.Chat.HandleMessage(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer reply.Body.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	if reply.Fallback {
		c.Header(headerFallback, "true")
	}
	c.Status(http.StatusOK)

	w := c.Writer
	buf := make([]byte, 4096)
	for {
		n, err := reply.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.logger.Warn("client went away during stream", "error", werr)
				return
			}
			w.Flush()
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// Headers are already sent; the truncated body is all the client gets.
			s.logger.Error("reply stream failed", "error", err)
			return
		}
	}
}

// handleChatStart starts a run and returns its identifiers.
// POST /api/chat/start
func (s *Server) handleChatStart(c *gin.Context) {
	var body startRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.opts.Chat.Start(c.Request.Context(), chat.Request{
		UserID:  strings.TrimSpace(body.UserID),
		Message: body.Message,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type runDetails struct {
	StartedAt    *int64 `json:"started_at"`
	CompletedAt  *int64 `json:"completed_at"`
	HasError     bool   `json:"has_error"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// handleChatStatus reports a run's status once.
// GET /api/chat/status?threadId=&runId=
func (s *Server) handleChatStatus(c *gin.Context) {
	status, err := s.opts.Chat.Status(c.Request.Context(), c.Query("threadId"), c.Query("runId"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	details := runDetails{
		HasError:     status.ErrorCode != "" || status.ErrorMessage != "",
		ErrorCode:    status.ErrorCode,
		ErrorMessage: status.ErrorMessage,
	}
	if status.StartedAt != nil {
		ts := status.StartedAt.Unix()
		details.StartedAt = &ts
	}
	if status.CompletedAt != nil {
		ts := status.CompletedAt.Unix()
		details.CompletedAt = &ts
	}
	c.JSON(http.StatusOK, gin.H{"status": status.Status, "details": details})
}

// handleChatResult returns the reply of a finished run.
// GET /api/chat/result?threadId=[&runId=]
func (s *Server) handleChatResult(c *gin.Context) {
	reply, err := s.opts.Chat.Result(c.Request.Context(), c.Query("threadId"), c.Query("runId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": reply.Text, "fallback": reply.Fallback})
}
