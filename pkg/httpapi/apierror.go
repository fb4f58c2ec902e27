// Package httpapi is the tenant-scoped HTTP surface of spec §6.1: company
// onboarding, document ingestion, and the run lifecycle. Error responses
// follow RFC 7807, adapted from the teacher's pkg/api/apierror.go.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (p *ProblemDetail) Error() string { return fmt.Sprintf("%s: %s", p.Title, p.Detail) }

// WriteError writes an RFC 7807 problem response.
func WriteError(w http.ResponseWriter, r *http.Request, status int, title, detail, reason string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://compliance.example/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Reason:   reason,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// kindStatus maps the taxonomy of spec §7 to an HTTP status code.
func kindStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindEmptyPlan, domain.KindEmptyCorpus:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthz:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindIntegrity:
		return http.StatusUnprocessableEntity
	case domain.KindDependency, domain.KindProviderSchema, domain.KindTimeout:
		return http.StatusBadGateway
	case domain.KindCancelled:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// WriteFromError inspects err for a domain.KindError and writes the
// matching RFC 7807 response, falling back to 500 for unclassified
// errors — handlers must never leak a bare Go error string as detail
// for an unclassified failure.
func WriteFromError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	if kind == "" {
		WriteError(w, r, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred", "")
		return
	}
	WriteError(w, r, kindStatus(kind), string(kind), err.Error(), domain.ReasonOf(err))
}
