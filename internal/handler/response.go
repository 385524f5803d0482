package handler

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"coopvote/internal/domain"
	"coopvote/internal/middleware"
	"coopvote/pkg/errors"
	"coopvote/pkg/logger"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps err onto its HTTP shape. Internal failures are logged at error.
func respondError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	appErr := errors.FromDomain(err)
	entry := log.WithError(err).WithField("path", r.URL.Path)
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	errors.WriteJSON(w, appErr, middleware.RequestIDFromContext(r.Context()))
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.NewValidationError("request body is required", nil)
		}
		return errors.NewValidationError("invalid request body", map[string]interface{}{"reason": err.Error()})
	}
	return nil
}

func generateETag(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf(`"%x"`, hash)
}

// parsePage reads limit and offset from the query string. Range checks are left
// to domain.Page.Normalize.
func parsePage(r *http.Request) (domain.Page, error) {
	var page domain.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Page{}, errors.NewValidationError(name+" must be an integer", nil)
		}
		*dst = n
	}
	return page, nil
}

// pagedBody is the envelope of paged listings
func pagedBody(key string, items interface{}, count, total int, page domain.Page) map[string]interface{} {
	limit := page.Limit
	if limit == 0 {
		limit = domain.DefaultPageLimit
	}
	return map[string]interface{}{
		key:      items,
		"count":  count,
		"total":  total,
		"limit":  limit,
		"offset": page.Offset,
	}
}
