package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/greenshop/internal/model"
)

// productRequest is the body for product create and update. Nil fields are
// left unchanged on update.
type productRequest struct {
	Name                *string  `json:"name"`
	Description         *string  `json:"description"`
	Price               *float64 `json:"price"`
	Category            *string  `json:"category"`
	CarbonImpact        *float64 `json:"carbonImpact"`
	SustainabilityScore *float64 `json:"sustainabilityScore"`
	ImageURL            *string  `json:"imageUrl"`
	InStock             *bool    `json:"inStock"`
}

func (req productRequest) apply(p *model.Product) {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Category != nil {
		p.Category = model.ParseCategory(*req.Category)
	}
	if req.CarbonImpact != nil {
		p.CarbonImpact = *req.CarbonImpact
	}
	if req.SustainabilityScore != nil {
		p.SustainabilityScore = *req.SustainabilityScore
	}
	if req.ImageURL != nil {
		p.ImageURL = *req.ImageURL
	}
	if req.InStock != nil {
		p.InStock = *req.InStock
	}
}

func validateProduct(p model.Product) error {
	if errs := p.Validate(); len(errs) > 0 {
		return badRequest("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, badRequest("page must be a positive integer"))
			return
		}
		if n > math.MaxInt/s.pageSize {
			writeError(w, r, badRequest("page is out of range"))
			return
		}
		page = n
	}

	filter := model.ProductFilter{
		Limit:  s.pageSize,
		Offset: (page - 1) * s.pageSize,
	}
	if v := q.Get("category"); v != "" {
		filter.Category = model.ParseCategory(v)
		if filter.Category == model.CategoryUnknown {
			writeError(w, r, badRequest("unknown category %q", v))
			return
		}
	}
	if v := q.Get("minSustainability"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			writeError(w, r, badRequest("minSustainability must be a number"))
			return
		}
		filter.MinSustainability = f
	}

	products, total, err := s.store.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ProductPage{
		Products: products,
		Page:     page,
		Pages:    (total + s.pageSize - 1) / s.pageSize,
		Total:    total,
	})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := model.Product{InStock: true}
	req.apply(&p)
	if err := validateProduct(p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.CreateProduct(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.apply(p)
	if err := validateProduct(*p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.UpdateProduct(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "product removed"})
}
