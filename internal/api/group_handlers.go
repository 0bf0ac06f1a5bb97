package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/splitbook/splitbook/internal/models"
)

type createGroupRequest struct {
	Name string           `json:"name" binding:"required"`
	Kind models.GroupKind `json:"kind" binding:"required"`
}

func (s *Server) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := s.groups.Create(c.Request.Context(), userID(c), req.Name, req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (s *Server) listGroups(c *gin.Context) {
	groups, err := s.groups.List(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) getGroup(c *gin.Context) {
	group, err := s.groups.Get(c.Request.Context(), c.Param("groupId"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (s *Server) renameGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.groups.Rename(c.Request.Context(), c.Param("groupId"), userID(c), req.Name); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteGroup(c *gin.Context) {
	if err := s.groups.Delete(c.Request.Context(), c.Param("groupId"), userID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addMember(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := s.groups.AddMember(c.Request.Context(), c.Param("groupId"), userID(c), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (s *Server) removeMember(c *gin.Context) {
	if err := s.groups.RemoveMember(c.Request.Context(), c.Param("groupId"), userID(c), c.Param("memberId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
