package rules

import (
	"encoding/json"
	"errors"
	"strconv"

	"go_niceurl/internal/httpx"
	"go_niceurl/internal/model"
	"go_niceurl/internal/rulestore"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// Validator checks a rule before it is stored
type Validator interface {
	Validate(m *model.URLRule) error
}

// Handler URL规则管理handler
type Handler struct {
	service   *rulestore.Service
	validator Validator
}

// NewHandler 创建handler实例
func NewHandler(service *rulestore.Service, validator Validator) *Handler {
	return &Handler{service: service, validator: validator}
}

// RuleRequest 创建/更新规则请求
type RuleRequest struct {
	ID            int             `json:"id"`
	Type          string          `json:"type"`
	Pattern       string          `json:"pattern" binding:"required"`
	Readable      string          `json:"readable" binding:"required"`
	Template      string          `json:"template" binding:"required"`
	ForwardParams json.RawMessage `json:"forwardParams"`
	InverseParams json.RawMessage `json:"inverseParams"`
	Enabled       *bool           `json:"enabled"`
	Priority      float64         `json:"priority"`
}

func (r *RuleRequest) toModel() *model.URLRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	m := &model.URLRule{
		Type:          r.Type,
		Pattern:       r.Pattern,
		Readable:      r.Readable,
		Template:      r.Template,
		ForwardParams: datatypes.JSON(r.ForwardParams),
		InverseParams: datatypes.JSON(r.InverseParams),
		Enabled:       enabled,
		Priority:      r.Priority,
	}
	m.ID = r.ID
	if len(m.ForwardParams) == 0 {
		m.ForwardParams = datatypes.JSON("[]")
	}
	if len(m.InverseParams) == 0 {
		m.InverseParams = datatypes.JSON("[]")
	}
	return m
}

// List URL规则列表
// GET /api/v1/rules
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "15"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 15
	}

	items, total, err := h.service.Store().List(c.Request.Context(), page, pageSize)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list url rules", err))
		return
	}

	httpx.OKItems(c, items, total, page, pageSize)
}

// Create 创建URL规则
// POST /api/v1/rules/create
func (h *Handler) Create(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("invalid request"))
		return
	}

	m := req.toModel()
	m.ID = 0
	if err := h.validator.Validate(m); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	if err := h.service.Create(c.Request.Context(), m); err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create url rule", err))
		return
	}

	httpx.OK(c, gin.H{"item": m})
}

// Update 更新URL规则
// POST /api/v1/rules/update
func (h *Handler) Update(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID <= 0 {
		httpx.FailErr(c, httpx.ErrParamMissing("invalid request"))
		return
	}

	m := req.toModel()
	if err := h.validator.Validate(m); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	if err := h.service.Update(c.Request.Context(), m); err != nil {
		if errors.Is(err, rulestore.ErrRuleNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("url rule not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to update url rule", err))
		return
	}

	httpx.OK(c, nil)
}

// ToggleRequest 启用/禁用请求
type ToggleRequest struct {
	ID      int  `json:"id" binding:"required"`
	Enabled bool `json:"enabled"`
}

// Toggle 启用/禁用URL规则
// POST /api/v1/rules/toggle
func (h *Handler) Toggle(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("invalid request"))
		return
	}

	if err := h.service.SetEnabled(c.Request.Context(), req.ID, req.Enabled); err != nil {
		if errors.Is(err, rulestore.ErrRuleNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("url rule not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to toggle url rule", err))
		return
	}

	httpx.OK(c, nil)
}

// DeleteRequest 删除URL规则请求
type DeleteRequest struct {
	IDs []int `json:"ids" binding:"required,min=1"`
}

// Delete 删除URL规则，同时清理该规则产生的缓存
// POST /api/v1/rules/delete
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("invalid request"))
		return
	}

	deleted, err := h.service.Delete(c.Request.Context(), req.IDs)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete url rules", err))
		return
	}

	httpx.OK(c, gin.H{"deleted": deleted})
}
