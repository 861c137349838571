package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/docimport/internal/core"
	"github.com/JonMunkholm/docimport/internal/schema"
)

// importPayload is the wire form of core.Request. Data stays raw so a
// non-list value is reported as a missing field rather than a decode error.
type importPayload struct {
	Collection string              `json:"collection"`
	Data       json.RawMessage     `json:"data"`
	Settings   core.ImportSettings `json:"settings"`
}

// CollectionSummary describes one importable collection.
type CollectionSummary struct {
	Slug   string `json:"slug"`
	Label  string `json:"label"`
	Upload bool   `json:"upload"`
}

// CollectionFields is the response for the fields endpoint.
type CollectionFields struct {
	Collection string             `json:"collection"`
	Fields     []schema.FieldInfo `json:"fields"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImport runs one import. Row failures still answer 200; the status
// reflects only whether the run itself happened.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodySize)

	var payload importPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, core.FailedResult("Invalid import payload",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		writeJSON(w, http.StatusBadRequest, core.FailedResult("Invalid import payload",
			"request body is not valid JSON: "+err.Error()))
		return
	}

	req := core.Request{
		Collection: payload.Collection,
		Data:       decodeRows(payload.Data),
		Settings:   payload.Settings,
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Submit(ctx, req)
	if err != nil {
		status := importErrorStatus(err)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "30")
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("import failed",
				"collection", req.Collection,
				"error", err,
				"code", core.MapError(err).Code,
			)
		}
		writeJSON(w, status, core.ResultForError(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// decodeRows returns nil unless raw is a JSON list of objects.
func decodeRows(raw json.RawMessage) []core.Row {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rows []core.Row
	if err := dec.Decode(&rows); err != nil {
		return nil
	}
	return rows
}

func importErrorStatus(err error) int {
	var verr *core.RequestValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	colls := s.service.Collections()
	out := make([]CollectionSummary, 0, len(colls))
	for _, c := range colls {
		out = append(out, CollectionSummary{Slug: c.Slug, Label: c.Label, Upload: c.Upload})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCollectionFields(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	coll, ok := s.service.Collection(slug)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w %q", core.ErrUnknownCollection, slug), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, CollectionFields{
		Collection: coll.Slug,
		Fields:     schema.ExtractFields(coll),
	})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.LimiterStatus())
}
