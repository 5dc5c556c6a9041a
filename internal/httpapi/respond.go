package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ent0n29/postcraft/internal/apperr"
)

// envelope is the body shape of every JSON API response.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

var (
	errEmptyBody = errors.New("empty body")
	errInternal  = apperr.Internal("httpapi", errors.New("unhandled"))
)

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondOK(w http.ResponseWriter, status int, message string, data any) {
	respondJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// respondError maps err to a status and a client-safe message. Upstream
// error text never reaches the body.
func respondError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	env := envelope{Success: false, Message: apperr.PublicMessage(err)}
	if e, ok := apperr.As(err); ok && kind == apperr.KindValidation {
		env.Errors = e.Fields
	}
	respondJSON(w, apperr.HTTPStatus(kind), env)
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}
