package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
)

type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes err as an error envelope. The status comes from the
// error's code; retryable errors carry a Retry-After header.
func RespondError(c *gin.Context, err error, retryAfter time.Duration) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)
	retryable := apperr.IsRetryable(err)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if retryable && retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{Message: msg, Code: string(code), Retryable: retryable},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
