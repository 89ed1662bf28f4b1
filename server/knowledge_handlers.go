package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/creastat/assistant/knowledge"
	"github.com/creastat/assistant/vectorstore"
)

// addKnowledge stores and indexes a knowledge-base entry.
// POST /api/admin/knowledge
func (s *Server) addKnowledge(c *gin.Context) {
	var entry knowledge.Entry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	stored, err := s.opts.Knowledge.Add(c.Request.Context(), entry)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// searchKnowledge lets admins check what the assistant would retrieve.
// GET /api/admin/knowledge/search?q=&limit=
func (s *Server) searchKnowledge(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	results, err := s.opts.Knowledge.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if results == nil {
		results = []vectorstore.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
