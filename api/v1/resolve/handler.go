package resolve

import (
	"context"
	"errors"
	"net/http"

	"go_niceurl/internal/httpx"
	"go_niceurl/internal/urlrouter"

	"github.com/gin-gonic/gin"
)

// Resolver is the part of the url router the public endpoints use
type Resolver interface {
	Convert(ctx context.Context, path string) (string, error)
	InvertAll(ctx context.Context, urls []string) map[string]string
}

// Settings are the switches the public endpoints honour
type Settings struct {
	Enabled          bool
	InversionEnabled bool
	Debug            bool
	DefaultURL       string
}

// Handler serves nice url resolution and link rewriting
type Handler struct {
	resolver Resolver
	settings Settings
}

// NewHandler 创建handler实例
func NewHandler(resolver Resolver, settings Settings) *Handler {
	return &Handler{resolver: resolver, settings: settings}
}

// maxInvertBatch caps the links accepted by one rewrite request
const maxInvertBatch = 500

// Dispatch redirects a nice path to its internal url.
// GET /r?qs=course/intro-to-cs/syllabus
func (h *Handler) Dispatch(c *gin.Context) {
	qs := c.Query("qs")

	if h.settings.Enabled && qs != "" {
		target, err := h.resolver.Convert(c.Request.Context(), qs)
		if err == nil {
			c.Redirect(http.StatusFound, target)
			return
		}
		h.logFailure(c, qs, err)
	}

	if h.settings.Debug {
		httpx.FailErr(c, httpx.ErrRouteNotFound(qs))
		return
	}
	c.Redirect(http.StatusFound, h.settings.DefaultURL)
}

// Resolve returns the internal url of a nice path without redirecting.
// GET /api/v1/resolve?qs=...
func (h *Handler) Resolve(c *gin.Context) {
	qs := c.Query("qs")
	if qs == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("parameter 'qs' is required"))
		return
	}
	if !h.settings.Enabled {
		httpx.FailErr(c, httpx.ErrRouteNotFound(qs))
		return
	}

	target, err := h.resolver.Convert(c.Request.Context(), qs)
	if err != nil {
		h.logFailure(c, qs, err)
		httpx.FailErr(c, httpx.ErrRouteNotFound(qs))
		return
	}

	httpx.OK(c, gin.H{"url": target})
}

// InvertRequest 链接反转请求
type InvertRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

// Invert maps internal links to nice urls. Links that cannot be inverted are
// omitted from the result.
// POST /api/v1/links/invert
func (h *Handler) Invert(c *gin.Context) {
	var req InvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("invalid request"))
		return
	}
	if len(req.URLs) > maxInvertBatch {
		httpx.FailErr(c, httpx.ErrParamInvalid("too many urls"))
		return
	}

	items := map[string]string{}
	if h.settings.Enabled && h.settings.InversionEnabled {
		items = h.resolver.InvertAll(c.Request.Context(), req.URLs)
	}

	httpx.OK(c, gin.H{"items": items})
}

// logFailure records why a conversion failed. Only failures other than "not
// found" are worth an error line.
func (h *Handler) logFailure(c *gin.Context, qs string, err error) {
	logger := httpx.Logger(c).WithField("qs", qs)
	if errors.Is(err, urlrouter.ErrNotFound) {
		logger.WithError(err).Debug("nice url not resolved")
		return
	}
	logger.WithError(err).Error("nice url resolution failed")
}
