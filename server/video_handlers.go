package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/supabase"
)

// listVideos lists a portfolio table.
// GET /api/videos?table=videos
func (s *Server) listVideos(c *gin.Context) {
	videos, err := s.opts.Videos.ListVideos(c.Request.Context(), c.Query("table"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if videos == nil {
		videos = []supabase.Video{}
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// createVideo adds a video.
// POST /api/admin/videos
func (s *Server) createVideo(c *gin.Context) {
	var video supabase.Video
	if err := c.ShouldBindJSON(&video); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	video.ID = 0
	video.Title = strings.TrimSpace(video.Title)
	video.VideoURL = strings.TrimSpace(video.VideoURL)
	if video.Title == "" {
		s.writeError(c, &assistant.ValidationError{Field: "title", Reason: "is required"})
		return
	}
	if video.VideoURL == "" {
		s.writeError(c, &assistant.ValidationError{Field: "video_url", Reason: "is required"})
		return
	}

	stored, err := s.opts.Videos.InsertVideo(c.Request.Context(), &video)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// updateVideo applies a partial update.
// PATCH /api/admin/videos/:id
func (s *Server) updateVideo(c *gin.Context) {
	id, ok := s.videoID(c)
	if !ok {
		return
	}
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	stored, err := s.opts.Videos.UpdateVideo(c.Request.Context(), id, fields)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// deleteVideo removes a video.
// DELETE /api/admin/videos/:id
func (s *Server) deleteVideo(c *gin.Context) {
	id, ok := s.videoID(c)
	if !ok {
		return
	}
	if err := s.opts.Videos.DeleteVideo(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) videoID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(c, &assistant.ValidationError{Field: "id", Reason: "must be a positive integer"})
		return 0, false
	}
	return id, true
}
