package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/greenshop/internal/model"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

// cartView joins cart items with their current products. Items whose
// product has since been deleted are left out.
func (s *Server) cartView(ctx context.Context, c *model.Cart) (*model.CartView, error) {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	products, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &model.CartView{ID: c.ID, UserID: c.UserID, Items: []model.CartLine{}}
	for _, it := range c.Items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		view.Items = append(view.Items, model.CartLine{Product: p, Quantity: it.Quantity})
		view.TotalAmount += p.Price * float64(it.Quantity)
	}
	return view, nil
}

func (s *Server) writeCart(w http.ResponseWriter, r *http.Request, c *model.Cart) {
	view, err := s.cartView(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCart(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeCart(w, r, c)
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if req.ProductID == "" || qty < 1 {
		writeError(w, r, badRequest("productId and a quantity of at least 1 are required"))
		return
	}

	p, err := s.store.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !p.InStock {
		writeError(w, r, badRequest("product %s is out of stock", p.ID))
		return
	}

	c, err := s.store.GetCart(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.Set(p.ID, qty)
	if err := s.store.SaveCart(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeCart(w, r, c)
}

func (s *Server) handleUpdateCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == "" || req.Quantity == nil {
		writeError(w, r, badRequest("productId and quantity are required"))
		return
	}
	s.setCartItem(w, r, req.ProductID, *req.Quantity)
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	s.setCartItem(w, r, chi.URLParam(r, "productId"), 0)
}

// setCartItem changes the quantity of an item already in the cart. A
// quantity <= 0 removes it.
func (s *Server) setCartItem(w http.ResponseWriter, r *http.Request, productID string, qty int) {
	c, err := s.store.GetCart(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !c.Contains(productID) {
		writeError(w, r, notFound("item %s not found in cart", productID))
		return
	}
	c.Set(productID, qty)
	if err := s.store.SaveCart(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeCart(w, r, c)
}
