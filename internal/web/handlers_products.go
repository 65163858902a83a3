package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mberg/product-importer/internal/catalog"
	"github.com/mberg/product-importer/internal/store"
)

type productRequest struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (p *productRequest) validate(requireSKU bool) string {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if requireSKU && p.SKU == "" {
		return "sku is required"
	}
	if p.Name == "" {
		return "name is required"
	}
	return ""
}

type productListResponse struct {
	Products []catalog.Product `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	params := store.ListParams{
		Search:   strings.TrimSpace(q.Get("search")),
		Page:     page,
		PageSize: pageSize,
	}

	products, total, err := s.products.List(r.Context(), params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 500 {
		params.PageSize = 50
	}
	writeJSON(w, http.StatusOK, productListResponse{
		Products: products,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(true); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	p := catalog.Product{SKU: req.SKU, Name: req.Name, Description: req.Description}
	if err := s.products.Create(r.Context(), &p); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.fireEvent(catalog.EventProductCreated, productEventData(p))
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "productID")
	if !ok {
		return
	}
	p, err := s.products.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "productID")
	if !ok {
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(false); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	p, err := s.products.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p.Name = req.Name
	p.Description = req.Description
	if err := s.products.Update(r.Context(), p); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.fireEvent(catalog.EventProductUpdated, productEventData(*p))
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "productID")
	if !ok {
		return
	}

	p, err := s.products.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.products.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.fireEvent(catalog.EventProductDeleted, productEventData(*p))
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (s *Server) handleBulkDeleteProducts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "ids is required")
		return
	}

	deleted, err := s.products.DeleteBulk(r.Context(), req.IDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.fireEvent(catalog.EventProductBulkDeleted, map[string]any{
		"deleted_count": deleted,
		"requested":     len(req.IDs),
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": deleted})
}

func (s *Server) handleDeleteAllProducts(w http.ResponseWriter, r *http.Request) {
	// Destructive, so require explicit confirmation.
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, r, http.StatusBadRequest, "pass confirm=true to delete all products")
		return
	}

	deleted, err := s.products.DeleteAll(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.fireEvent(catalog.EventProductBulkDeleted, map[string]any{
		"deleted_count": deleted,
		"all":           true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": deleted})
}

// fireEvent dispatches a webhook event without blocking the response.
func (s *Server) fireEvent(eventType string, data map[string]any) {
	if s.dispatcher == nil {
		return
	}
	go func() {
		results, err := s.dispatcher.Dispatch(context.Background(), eventType, data)
		if err != nil {
			return
		}
		for _, res := range results {
			outcome := "success"
			if !res.Success {
				outcome = "failure"
			}
			s.metrics.WebhookDeliveries.WithLabelValues(eventType, outcome).Inc()
		}
	}()
}

func productEventData(p catalog.Product) map[string]any {
	data := map[string]any{
		"id":   p.ID,
		"sku":  p.SKU,
		"name": p.Name,
	}
	if p.Description != nil {
		data["description"] = *p.Description
	}
	return data
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id < 1 {
		writeError(w, r, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}
