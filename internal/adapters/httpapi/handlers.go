package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smartloan/internal/core"
	"smartloan/pkg/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Key   string `json:"key,omitempty"`
	Group string `json:"group,omitempty"`
}

// ApplyRequest is the body of PUT /v1/sessions/:id/parameters/:key. Raw is
// parsed with the parameter's type and takes precedence over Value.
type ApplyRequest struct {
	Value json.RawMessage `json:"value"`
	Raw   string          `json:"raw"`
	Actor string          `json:"actor" binding:"required"`
}

// ResetRequest is the body of POST /v1/sessions/:id/reset.
type ResetRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// MutationResponse reports the outcome of an apply or reset. Changed is false
// for a no-op, which appends no audit entry.
type MutationResponse struct {
	Changed bool               `json:"changed"`
	Entry   *domain.AuditEntry `json:"entry,omitempty"`
}

// ExportResponse carries the archive location.
type ExportResponse struct {
	Location string `json:"location"`
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "catalog": h.svc.Catalog().Name})
}

// HandleCatalog handles GET /v1/catalog.
func (h *Handlers) HandleCatalog(c *gin.Context) {
	cat := h.svc.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"name":       cat.Name,
		"categories": core.GroupByCategory(cat.Parameters),
		"rules":      ruleCount(cat),
	})
}

// HandleListSessions handles GET /v1/sessions.
func (h *Handlers) HandleListSessions(c *gin.Context) {
	ids, err := h.svc.Sessions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

// HandleParameters handles GET /v1/sessions/:id/parameters.
func (h *Handlers) HandleParameters(c *gin.Context) {
	params, err := h.svc.Parameters(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, core.GroupByCategory(params))
}

// HandleValues handles GET /v1/sessions/:id/values.
func (h *Handlers) HandleValues(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// HandleApply handles PUT /v1/sessions/:id/parameters/:key.
func (h *Handlers) HandleApply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	ctx := c.Request.Context()
	sessionID, key := c.Param("id"), c.Param("key")

	var (
		entry domain.AuditEntry
		err   error
	)
	switch {
	case req.Raw != "":
		entry, err = h.svc.ApplyString(ctx, sessionID, key, req.Raw, req.Actor)
	case len(req.Value) > 0:
		var v domain.Value
		if jsonErr := json.Unmarshal(req.Value, &v); jsonErr != nil {
			err = domain.InvalidValueError(key, jsonErr)
			break
		}
		entry, err = h.svc.Apply(ctx, sessionID, key, v, req.Actor)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "value or raw required", Code: "INVALID_REQUEST"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mutationResponse(entry))
}

// HandleReset handles POST /v1/sessions/:id/reset.
func (h *Handlers) HandleReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	entry, err := h.svc.ResetToDefaults(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mutationResponse(entry))
}

// HandleAudit handles GET /v1/sessions/:id/audit.
func (h *Handlers) HandleAudit(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		entries []domain.AuditEntry
		err     error
	)
	if raw, ok := c.GetQuery("limit"); ok {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer", Code: "INVALID_REQUEST"})
			return
		}
		entries, err = h.svc.Recent(ctx, c.Param("id"), n)
	} else {
		entries, err = h.svc.Audit(ctx, c.Param("id"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// HandleExport handles POST /v1/sessions/:id/audit/export.
func (h *Handlers) HandleExport(c *gin.Context) {
	loc, err := h.svc.ExportAudit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ExportResponse{Location: loc})
}

// HandleDeleteSession handles DELETE /v1/sessions/:id.
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func mutationResponse(entry domain.AuditEntry) MutationResponse {
	if entry.Empty() {
		return MutationResponse{}
	}
	return MutationResponse{Changed: true, Entry: &entry}
}

// StatusFor maps a service error to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.KindUnknownKey:
		return http.StatusNotFound, string(domain.KindUnknownKey)
	case domain.KindImmutable:
		return http.StatusForbidden, string(domain.KindImmutable)
	case domain.KindInvalidValue:
		return http.StatusUnprocessableEntity, string(domain.KindInvalidValue)
	case domain.KindViolatesGroupInvariant:
		return http.StatusConflict, string(domain.KindViolatesGroupInvariant)
	case domain.KindCascadeDidNotConverge:
		return http.StatusInternalServerError, string(domain.KindCascadeDidNotConverge)
	}
	if errors.Is(err, core.ErrExportNotConfigured) {
		return http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, code := StatusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}
	var merr *domain.MutationError
	if errors.As(err, &merr) {
		resp.Key, resp.Group = merr.Key, merr.Group
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, resp)
}

func ruleCount(cat domain.Catalog) int {
	if cat.Rules == nil {
		return 0
	}
	return cat.Rules.Len()
}
