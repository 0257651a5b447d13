package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/console"
	"ebdconsole.org/internal/dashboard"
	"ebdconsole.org/internal/obs"
	"ebdconsole.org/internal/queue"
	"ebdconsole.org/internal/reference"
	"ebdconsole.org/internal/report"
)

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func errBadRequest(msg string) error { return badRequest{msg: msg} }

// retryable is implemented by fetch errors that carry a user-facing message.
type retryable interface {
	Message() string
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var bad badRequest
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrInvalidToken), errors.Is(err, access.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrIncompleteIdentity),
		errors.Is(err, access.ErrForbidden),
		errors.Is(err, dashboard.ErrNarrowOutsideScope):
		return http.StatusForbidden
	case errors.Is(err, console.ErrPresentationNotFound), errors.Is(err, report.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, report.ErrInvalidRange),
		errors.Is(err, report.ErrInvalidMetric),
		errors.Is(err, console.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrInvalidReorder),
		errors.Is(err, queue.ErrNotActive),
		errors.Is(err, queue.ErrNotExcluded),
		errors.Is(err, queue.ErrSyntheticItem),
		errors.Is(err, console.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, reference.ErrTransientFetch), errors.Is(err, report.ErrTransientFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure renders err. Scope failures carry no data at all; fetch
// failures carry the retry message.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := map[string]any{"error": err.Error()}
	switch code {
	case http.StatusForbidden:
		body["data"] = nil
	case http.StatusBadGateway:
		var m retryable
		if errors.As(err, &m) {
			body["error"] = m.Message()
		}
		body["retryable"] = true
	case http.StatusInternalServerError:
		obs.Error("request_failed", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		body["error"] = "internal error"
	}
	writeJSON(w, code, body)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+": failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
