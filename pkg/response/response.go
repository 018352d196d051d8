package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
	"github.com/noah-isme/uni-enroll-api/pkg/middleware/requestid"
)

// Meta carries per-response facts outside the payload, such as already_paid on a replayed payment.
type Meta map[string]interface{}

// Envelope is the body of every JSON response. Exactly one of Data and Error is set.
type Envelope struct {
	Data       interface{}        `json:"data,omitempty"`
	Error      *appErrors.Error   `json:"error,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
	Meta       Meta               `json:"meta,omitempty"`
}

// JSON writes data with optional pagination. Meta maps are merged left to right and the
// request id is added so clients can quote it when reporting a problem.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...Meta) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Pagination: pagination, Meta: mergeMeta(c, meta)})
}

// Created responds with 201.
func Created(c *gin.Context, data interface{}, meta ...Meta) {
	JSON(c, http.StatusCreated, data, nil, meta...)
}

// Error writes err as a typed error envelope and attaches it to the gin context for the access log.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	_ = c.Error(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr, Meta: mergeMeta(c, nil)})
}

// Attachment sends a rendered receipt or export as a download.
func Attachment(c *gin.Context, contentType, filename string, body []byte) {
	noStore(c)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, body)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Enrollment and payment state changes on every write, so nothing is cacheable.
func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func mergeMeta(c *gin.Context, metas []Meta) Meta {
	var out Meta
	for _, m := range metas {
		for k, v := range m {
			if out == nil {
				out = Meta{}
			}
			out[k] = v
		}
	}
	if id := requestid.Value(c); id != "" {
		if out == nil {
			out = Meta{}
		}
		out["request_id"] = id
	}
	return out
}
