package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/services"
)

// uploadField is the multipart field carrying the ledger file.
const uploadField = "ledger"

// ParseHousehold reads dependents, children and elderly from query values.
// Missing values count as zero.
func ParseHousehold(query url.Values) (analysis.Household, error) {
	var h analysis.Household
	fields := []struct {
		key string
		dst *int
	}{
		{"dependents", &h.Dependents},
		{"children", &h.Children},
		{"elderly", &h.Elderly},
	}
	for _, f := range fields {
		v := strings.TrimSpace(query.Get(f.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return analysis.Household{}, fmt.Errorf("%w: %s must be a non-negative integer", services.ErrInvalidRequest, f.key)
		}
		*f.dst = n
	}
	return h, nil
}

// readUpload extracts the ledger file name and content. Multipart requests
// carry the file in the "ledger" field; any other body is the file itself and
// its name comes from ?name=.
func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return "", nil, err
			}
			return "", nil, fmt.Errorf("%w: multipart field %q is required", services.ErrInvalidRequest, uploadField)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, fmt.Errorf("read upload: %w", err)
		}
		return cleanFileName(header.Filename), data, nil
	}

	name := cleanFileName(r.URL.Query().Get("name"))
	if name == "" {
		return "", nil, fmt.Errorf("%w: name query parameter is required for raw uploads", services.ErrInvalidRequest)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return name, data, nil
}

// cleanFileName keeps only the base name of a client-supplied path.
func cleanFileName(name string) string {
	name = sanitizeInput(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// decodeJSON reads a JSON object body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: malformed JSON body", services.ErrInvalidRequest)
	}
	return nil
}

// parseFeedbackID parses the {id} path value of a feedback job.
func parseFeedbackID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: feedback id must be a positive integer", services.ErrInvalidRequest)
	}
	return id, nil
}
