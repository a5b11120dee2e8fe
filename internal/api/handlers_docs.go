package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/parser"
)

// handleDocument returns the blocks of one document, or lists the URLs of
// a side when no url query parameter is given.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	side, err := blocks.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	store := s.orchestrator.Store(side)

	url := r.URL.Query().Get("url")
	if url == "" {
		limit := 200
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		urls := store.URLs()
		total := len(urls)
		if len(urls) > limit {
			urls = urls[:limit]
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"side":  side,
			"total": total,
			"urls":  urls,
		})
		return
	}

	doc := store.Get(url)
	if doc == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"side":        side,
		"url":         doc.URL,
		"fingerprint": doc.Fingerprint(),
		"blocks":      doc.Blocks,
	})
}

// handleExtract turns an uploaded HTML, Markdown or text file into blocks
// with standoff annotations, without adding them to any store.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	p, err := parser.ForFile(filename)
	if err != nil {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	bs, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if bs == nil {
		bs = []blocks.Block{}
	}
	doc := &blocks.Document{URL: r.FormValue("url"), Blocks: bs}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"filename":    filename,
		"url":         doc.URL,
		"fingerprint": doc.Fingerprint(),
		"blocks":      doc.Blocks,
	})
}
