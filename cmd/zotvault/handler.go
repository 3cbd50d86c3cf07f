package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/gorilla/mux"
	"github.com/je4/zotvault/pkg/export"
	"github.com/je4/zotvault/pkg/picker"
	"github.com/je4/zotvault/pkg/zotero"
	"github.com/op/go-logging"
)

type Handlers struct {
	exp    *export.Exporter
	logger *logging.Logger
}

// NewHandler never asks, ambiguous requests are answered with the candidates.
func NewHandler(exp *export.Exporter, logger *logging.Logger) *Handlers {
	return &Handlers{
		exp:    exp.WithChooser(picker.Strict{}),
		logger: logger,
	}
}

func (handlers *Handlers) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/items", handlers.makeItemsHandler()).Methods("GET")
	router.HandleFunc("/items/{key}/markdown", handlers.makeMarkdownHandler()).Methods("GET")
	router.HandleFunc("/export/{key}", handlers.makeExportKeyHandler()).Methods("POST")
	router.HandleFunc("/export", handlers.makeExportDOIHandler()).Methods("POST").Queries("doi", "{doi}")
	return router
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (handlers *Handlers) respondWithExportError(w http.ResponseWriter, err error) {
	var amb *picker.AmbiguousError
	switch {
	case errors.As(err, &amb):
		respondWithJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      err.Error(),
			"candidates": amb.Options,
		})
		return
	case errors.Is(err, export.ErrNoMatch), errors.Is(err, export.ErrNoNote), errors.Is(err, zotero.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, export.ErrExists):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, zotero.ErrForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())
	default:
		handlers.logger.Errorf("request failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

type itemSummary struct {
	Key      string   `json:"key"`
	Version  int64    `json:"version"`
	ItemType string   `json:"itemType"`
	Title    string   `json:"title"`
	DOI      string   `json:"doi,omitempty"`
	Year     string   `json:"year,omitempty"`
	Authors  []string `json:"authors"`
	Tags     []string `json:"tags"`
}

func (handlers *Handlers) makeItemsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values := r.URL.Query()
		query := zotero.ItemQuery{
			Q:          values.Get("q"),
			QMode:      zotero.QMode(values.Get("qmode")),
			Tag:        values["tag"],
			ItemType:   values.Get("type"),
			Collection: values.Get("collection"),
		}
		if limitStr := values.Get("limit"); limitStr != "" {
			limit, err := strconv.ParseInt(limitStr, 10, 64)
			if err != nil || limit < 0 {
				respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %s", limitStr))
				return
			}
			query.Limit = limit
		}
		items, err := handlers.exp.Search(r.Context(), query)
		if err != nil {
			handlers.respondWithExportError(w, err)
			return
		}
		result := make([]itemSummary, 0, len(items))
		for _, item := range items {
			result = append(result, itemSummary{
				Key:      item.Key,
				Version:  item.Version,
				ItemType: item.Data.ItemType,
				Title:    item.GetTitle(),
				DOI:      item.GetDOI(),
				Year:     item.GetYear(),
				Authors:  item.GetCreators("author"),
				Tags:     item.GetTags(),
			})
		}
		respondWithJSON(w, http.StatusOK, result)
	}
}

func (handlers *Handlers) makeMarkdownHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.ToUpper(mux.Vars(r)["key"])
		item, err := handlers.exp.Lookup(r.Context(), key)
		if err != nil {
			handlers.respondWithExportError(w, err)
			return
		}
		doc, err := handlers.exp.Render(r.Context(), item)
		if err != nil {
			handlers.respondWithExportError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(doc.Content))
	}
}

func (handlers *Handlers) makeExportKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.ToUpper(mux.Vars(r)["key"])
		result, err := handlers.exp.ExportKey(r.Context(), key)
		if err != nil {
			handlers.respondWithExportError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, result)
	}
}

func (handlers *Handlers) makeExportDOIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doi := mux.Vars(r)["doi"]
		if strings.TrimSpace(doi) == "" {
			respondWithError(w, http.StatusBadRequest, "no doi")
			return
		}
		result, err := handlers.exp.ExportDOI(r.Context(), doi)
		if err != nil {
			handlers.respondWithExportError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, result)
	}
}
