package httputil

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// ParseBody decodes the request body into dest. JSON and form-encoded
// bodies are accepted equivalently; form values are coerced to numbers
// and booleans where they parse as such, so `program_id=3` and
// `{"program_id": 3}` land identically.
func ParseBody(r *http.Request, dest interface{}) error {
	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		var err error
		mediaType, _, err = mime.ParseMediaType(ct)
		if err != nil {
			return fmt.Errorf("invalid content type: %w", err)
		}
	}

	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
		fields := make(map[string]interface{}, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) == 0 {
				continue
			}
			fields[key] = coerceFormValue(values[0])
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
		if err := json.Unmarshal(encoded, dest); err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// coerceFormValue maps a form string onto the JSON value it reads as
func coerceFormValue(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}

// ParseBodyOrError decodes the body and writes a 400 response on failure
func ParseBodyOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseBody(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParsePathInt64 extracts and parses an int64 path parameter
func ParsePathInt64(r *http.Request, key string) (int64, error) {
	vars := mux.Vars(r)
	str := vars[key]
	if str == "" {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %s", key, str)
	}
	return val, nil
}

// ParsePathInt64OrError extracts an int64 path parameter and writes a 400
// response on failure
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	val, err := ParsePathInt64(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return val, true
}

// ParseQueryInt64 extracts and parses an int64 query parameter
func ParseQueryInt64(r *http.Request, key string, defaultVal int64) (int64, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}
