package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/agent"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/pipeline"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document/service"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/middleware"
)

// Processor runs one correction.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*correction.Result, error)
}

// Handler serves the document and correction API. Every route expects
// middleware.AuthMiddleware to have set the owner and role.
type Handler struct {
	docs   *service.Service
	proc   Processor
	agents *agent.Registry
}

func New(docs *service.Service, proc Processor, agents *agent.Registry) *Handler {
	return &Handler{docs: docs, proc: proc, agents: agents}
}

// RegisterDocumentRoutes mounts the API on r. process gets extra middleware
// (rate limiting) on the correction route only.
func RegisterDocumentRoutes(r gin.IRouter, h *Handler, process ...gin.HandlerFunc) {
	r.GET("/api/documents", h.list)
	r.POST("/api/documents", h.create)
	r.POST("/api/documents/save", h.save)
	r.GET("/api/documents/:id", h.get)
	r.PUT("/api/documents/:id", h.update)
	r.DELETE("/api/documents/:id", h.delete)
	r.POST("/api/documents/:id/archive", h.archive)
	r.GET("/api/documents/:id/history", h.history)
	r.GET("/api/stats", h.stats)
	r.GET("/api/agents", h.listAgents)
	r.POST("/api/process-text", append(process, h.processText)...)
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, correction.ErrEmptyInput),
		errors.Is(err, correction.ErrUnknownAgent),
		errors.Is(err, document.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, document.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, document.ErrInvalidState),
		errors.Is(err, document.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, correction.ErrExternalService):
		status = http.StatusBadGateway
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func (h *Handler) list(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	p, err := h.docs.List(c.Request.Context(), middleware.Owner(c), page, perPage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) create(c *gin.Context) {
	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Agent   string `json:"agent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Agent != "" {
		if _, ok := h.agents.Get(req.Agent); !ok {
			writeError(c, correction.ErrUnknownAgent)
			return
		}
	}
	d, err := h.docs.Create(c.Request.Context(), middleware.Owner(c), req.Title, req.Content, req.Agent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) get(c *gin.Context) {
	d, err := h.docs.Get(c.Request.Context(), middleware.Owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) update(c *gin.Context) {
	var req struct {
		Title     *string `json:"title"`
		Content   *string `json:"content"`
		Status    *string `json:"status"`
		IfVersion *int64  `json:"ifVersion"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := document.Patch{Title: req.Title, Content: req.Content, IfVersion: req.IfVersion}
	if req.Status != nil {
		s := document.Status(*req.Status)
		p.Status = &s
	}
	d, err := h.docs.Update(c.Request.Context(), middleware.Owner(c), c.Param("id"), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.docs.Delete(c.Request.Context(), middleware.Owner(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) save(c *gin.Context) {
	var req struct {
		ID               string  `json:"id"`
		Title            string  `json:"title"`
		Content          string  `json:"content"`
		CorrectedContent *string `json:"corrected_content"`
		AgentUsed        string  `json:"agent_used"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.docs.Save(c.Request.Context(), middleware.Owner(c), service.SaveRequest{
		ID:               req.ID,
		Title:            req.Title,
		Content:          req.Content,
		CorrectedContent: req.CorrectedContent,
		AgentUsed:        req.AgentUsed,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) archive(c *gin.Context) {
	d, key, err := h.docs.Archive(c.Request.Context(), middleware.Owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := gin.H{"document": d}
	if key != "" {
		out["archive_key"] = key
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) history(c *gin.Context) {
	rows, err := h.docs.History(c.Request.Context(), middleware.Owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []*document.CorrectionHistory{}
	}
	c.JSON(http.StatusOK, gin.H{"history": rows})
}

func (h *Handler) stats(c *gin.Context) {
	s, err := h.docs.Stats(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type agentView struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Model       string `json:"model"`
}

func (h *Handler) listAgents(c *gin.Context) {
	out := []agentView{}
	for _, p := range h.agents.Available(middleware.Role(c)) {
		out = append(out, agentView{Key: p.Key, Name: p.Name, Description: p.Description, Model: p.Model})
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

func (h *Handler) processText(c *gin.Context) {
	var req struct {
		Texte      string `json:"texte"`
		Text       string `json:"text"`
		Agent      string `json:"agent"`
		DocumentID string `json:"document_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input := req.Texte
	if input == "" {
		input = req.Text
	}
	res, err := h.proc.Process(c.Request.Context(), pipeline.Request{
		Owner:      middleware.Owner(c),
		Role:       middleware.Role(c),
		Input:      input,
		Agent:      req.Agent,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
