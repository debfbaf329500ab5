package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

// ParseJSON decodes a JSON object from the request body into dest. An empty
// body decodes to the zero value.
func ParseJSON(r *http.Request, dest interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(dest); err != nil {
		return fmt.Errorf("JSON decode of request body failed on %s; "+
			"please ensure all requests are of type application/json: %w", r.URL.Path, err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes a 400 error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// PathVar extracts a string path parameter registered with gorilla/mux
func PathVar(r *http.Request, key string) (string, error) {
	v := mux.Vars(r)[key]
	if v == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return v, nil
}
