package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/greenshop/internal/model"
)

type orderRequest struct {
	// Items defaults to the caller's cart when omitted.
	Items           []model.CartItem      `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID := claimsFrom(r).UserID

	items := req.Items
	if items == nil {
		c, err := s.store.GetCart(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		items = c.Items
	}
	if len(items) == 0 {
		writeError(w, r, badRequest("no order items"))
		return
	}
	if !req.ShippingAddress.Complete() {
		writeError(w, r, badRequest("a complete shipping address is required"))
		return
	}

	lines, err := s.snapshotLines(r, items)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o := &model.Order{
		UserID:          userID,
		Items:           lines,
		Status:          model.OrderStatusPending,
		ShippingAddress: req.ShippingAddress,
	}
	if err := s.store.CreateOrder(r.Context(), o); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// snapshotLines captures each product's current price and sustainability
// figures onto the order lines.
func (s *Server) snapshotLines(r *http.Request, items []model.CartItem) ([]model.OrderLine, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		if it.ProductID == "" || it.Quantity < 1 {
			return nil, badRequest("each item needs a productId and a quantity of at least 1")
		}
		ids[i] = it.ProductID
	}

	products, err := s.store.GetProducts(r.Context(), ids)
	if err != nil {
		return nil, err
	}

	lines := make([]model.OrderLine, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, notFound("product %s not found", it.ProductID)
		}
		if !p.InStock {
			return nil, badRequest("product %s is out of stock", p.ID)
		}
		lines = append(lines, model.OrderLine{
			ProductID:           p.ID,
			Name:                p.Name,
			Quantity:            it.Quantity,
			Price:               p.Price,
			Category:            p.Category,
			CarbonImpact:        p.CarbonImpact,
			SustainabilityScore: p.SustainabilityScore,
		})
	}
	return lines, nil
}

func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrders(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	claims := claimsFrom(r)
	if o.UserID != claims.UserID && !claims.IsAdmin() {
		writeError(w, r, forbidden("not authorized to view this order"))
		return
	}
	writeJSON(w, http.StatusOK, o)
}
