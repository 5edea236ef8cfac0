// Package marketplacetest runs an in-memory marketplace backend for tests.
package marketplacetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Product struct {
	Ref          int64
	SellerID     int64
	SellerName   string
	Name         string
	Manufacturer string
	UnitPrice    domain.Money
}

type Option struct {
	ID   int64
	Name string
	Cost domain.Money
	Etd  string
}

type cartItem struct {
	id         int64
	productRef int64
	quantity   int
}

type Order struct {
	SnapshotID string
	ItemIDs    []int64
	Delivery   map[int64]int64
}

// Server fakes the marketplace REST API. All methods are safe for concurrent use.
type Server struct {
	mu sync.Mutex

	srv   *httptest.Server
	token string

	products      map[int64]Product
	items         []cartItem
	nextItemID    int64
	options       map[int64][]Option
	failingSeller map[int64]bool
	address       *domain.Address
	snapshots     map[string][]int64
	orders        []Order
	orderErr      *fieldError
	calls         map[string]int
	deliveryGate  chan struct{}
}

type fieldError struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

func NewServer(token string) *Server {
	s := &Server{
		token:         token,
		products:      make(map[int64]Product),
		options:       make(map[int64][]Option),
		failingSeller: make(map[int64]bool),
		snapshots:     make(map[string][]int64),
		calls:         make(map[string]int),
		nextItemID:    100,
	}

	r := chi.NewRouter()
	r.Use(s.countCalls, s.authenticate)
	r.Get("/carts", s.getCart)
	r.Get("/carts/overview", s.getOverview)
	r.Put("/carts", s.updateCart)
	r.Delete("/carts/{id}", s.deleteCartItem)
	r.Post("/carts/checkout", s.createCheckout)
	r.Get("/carts/checkout/delivery", s.getDelivery)
	r.Post("/carts/checkout/order", s.submitOrder)
	r.Get("/addresses/user", s.getAddresses)
	r.Get("/pharmacies/{id}", s.getPharmacy)

	s.srv = httptest.NewServer(r)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

func (s *Server) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.Ref] = p
}

// PutInCart places a product line in the cart and returns its cart item id.
func (s *Server) PutInCart(productRef int64, quantity int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItemID++
	s.items = append(s.items, cartItem{id: s.nextItemID, productRef: productRef, quantity: quantity})
	return s.nextItemID
}

func (s *Server) SetDeliveryOptions(sellerID int64, options ...Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options[sellerID] = options
}

func (s *Server) FailDelivery(sellerID int64, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failingSeller[sellerID] = fail
}

// HoldDelivery makes delivery quote requests block until the returned func is called.
func (s *Server) HoldDelivery() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.deliveryGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.deliveryGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *Server) SetAddress(a *domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = a
}

// RejectOrders makes order submission fail with the given field error; an empty field clears it.
func (s *Server) RejectOrders(field, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field == "" {
		s.orderErr = nil
		return
	}
	s.orderErr = &fieldError{Field: field, Detail: detail}
}

func (s *Server) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Calls reports how often "METHOD /path" was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) Quantity(cartItemID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.id == cartItemID {
			return item.quantity, true
		}
	}
	return 0, false
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "token", "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetToken changes the accepted bearer token, invalidating the old one.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

type groupJSON struct {
	PharmacyID   int64      `json:"pharmacy_id"`
	PharmacyName string     `json:"pharmacy_name"`
	Items        []itemJSON `json:"items"`
}

type itemJSON struct {
	CartItemID        int64  `json:"cart_item_id"`
	PharmacyProductID int64  `json:"pharmacy_product_id"`
	Name              string `json:"name"`
	Manufacturer      string `json:"manufacturer"`
	Quantity          int    `json:"quantity"`
	Subtotal          string `json:"subtotal"`
}

// groupLocked must be called with s.mu held.
func (s *Server) groupLocked(filter func(cartItem) bool) []groupJSON {
	var groups []groupJSON
	index := make(map[int64]int)
	for _, item := range s.items {
		if !filter(item) {
			continue
		}
		p := s.products[item.productRef]
		i, ok := index[p.SellerID]
		if !ok {
			i = len(groups)
			index[p.SellerID] = i
			groups = append(groups, groupJSON{PharmacyID: p.SellerID, PharmacyName: p.SellerName})
		}
		groups[i].Items = append(groups[i].Items, itemJSON{
			CartItemID:        item.id,
			PharmacyProductID: item.productRef,
			Name:              p.Name,
			Manufacturer:      p.Manufacturer,
			Quantity:          item.quantity,
			Subtotal:          (p.UnitPrice * domain.Money(item.quantity)).String(),
		})
	}
	return groups
}

func (s *Server) getCart(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	groups := s.groupLocked(func(cartItem) bool { return true })
	s.mu.Unlock()
	writeData(w, "get cart success", groups)
}

func (s *Server) getOverview(w http.ResponseWriter, _ *http.Request) {
	type overview struct {
		CartItemID        int64 `json:"cart_item_id"`
		PharmacyProductID int64 `json:"pharmacy_product_id"`
		Quantity          int   `json:"quantity"`
	}
	s.mu.Lock()
	out := make([]overview, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, overview{CartItemID: item.id, PharmacyProductID: item.productRef, Quantity: item.quantity})
	}
	s.mu.Unlock()
	writeData(w, "get cart overview success", out)
}

func (s *Server) updateCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PharmacyProductID int64 `json:"pharmacy_product_id"`
		Quantity          int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PharmacyProductID == 0 || req.Quantity == 0 {
		writeError(w, http.StatusBadRequest, "cart", "invalid request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[req.PharmacyProductID]; !ok {
		writeError(w, http.StatusBadRequest, "pharmacy_product_id", "product not found")
		return
	}
	for i := range s.items {
		if s.items[i].productRef != req.PharmacyProductID {
			continue
		}
		if s.items[i].quantity+req.Quantity < 1 {
			writeError(w, http.StatusBadRequest, "quantity", "quantity must be at least 1")
			return
		}
		s.items[i].quantity += req.Quantity
		writeData(w, "update cart success", nil)
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "quantity", "quantity must be at least 1")
		return
	}
	s.nextItemID++
	s.items = append(s.items, cartItem{id: s.nextItemID, productRef: req.PharmacyProductID, quantity: req.Quantity})
	writeData(w, "add to cart success", nil)
}

func (s *Server) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id", "invalid id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.id == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			writeData(w, "delete cart item success", nil)
			return
		}
	}
	writeError(w, http.StatusBadRequest, "cart", "product not exists in cart")
}

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids", "ids is required")
		return
	}
	wanted := make(map[int64]bool, len(req.IDs))
	for _, id := range req.IDs {
		wanted[id] = true
	}

	s.mu.Lock()
	groups := s.groupLocked(func(item cartItem) bool { return wanted[item.id] })
	id := uuid.NewString()
	var ids []int64
	for _, g := range groups {
		for _, item := range g.Items {
			ids = append(ids, item.CartItemID)
		}
	}
	if len(ids) > 0 {
		s.snapshots[id] = ids
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "cart", "product not exists in cart")
		return
	}
	writeData(w, "get selected cart items success", map[string]any{"id": id, "data": groups})
}

func (s *Server) getDelivery(w http.ResponseWriter, r *http.Request) {
	sellerID, err := strconv.ParseInt(r.URL.Query().Get("pharmacy_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ongkir", "id is empty")
		return
	}

	s.mu.Lock()
	gate := s.deliveryGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failingSeller[sellerID] {
		writeError(w, http.StatusInternalServerError, "server", "rajaongkir timeout")
		return
	}
	type optionJSON struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Cost string `json:"cost"`
		Etd  string `json:"etd"`
	}
	out := make([]optionJSON, 0, len(s.options[sellerID]))
	for _, o := range s.options[sellerID] {
		out = append(out, optionJSON{ID: o.ID, Name: o.Name, Cost: o.Cost.String(), Etd: o.Etd})
	}
	writeData(w, "get delivery success!", out)
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDCart           string `json:"id_cart"`
		ListDeliveryData []struct {
			PharmacyID int64 `json:"pharmacy_id"`
			DeliveryID int64 `json:"delivery_id"`
		} `json:"delivery_data_list"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "checkout", "invalid request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderErr != nil {
		status := http.StatusBadRequest
		if s.orderErr.Field == "server" {
			status = http.StatusInternalServerError
		}
		writeError(w, status, s.orderErr.Field, s.orderErr.Detail)
		return
	}
	ids, ok := s.snapshots[req.IDCart]
	if !ok {
		writeError(w, http.StatusBadRequest, "id_cart", "checkout not found")
		return
	}

	delivery := make(map[int64]int64, len(req.ListDeliveryData))
	for _, d := range req.ListDeliveryData {
		if d.DeliveryID == 0 {
			writeError(w, http.StatusBadRequest, "delivery", "invalid delivery data")
			return
		}
		delivery[d.PharmacyID] = d.DeliveryID
	}

	purchased := make(map[int64]bool, len(ids))
	for _, id := range ids {
		purchased[id] = true
	}
	kept := s.items[:0]
	for _, item := range s.items {
		if !purchased[item.id] {
			kept = append(kept, item)
		}
	}
	s.items = kept
	delete(s.snapshots, req.IDCart)

	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	s.orders = append(s.orders, Order{SnapshotID: req.IDCart, ItemIDs: sorted, Delivery: delivery})
	writeData(w, fmt.Sprintf("checkout success, order %s", strings.SplitN(req.IDCart, "-", 2)[0]), nil)
}

func (s *Server) getAddresses(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Address{}
	if s.address != nil {
		out = append(out, *s.address)
	}
	writeData(w, "get user addresses success", out)
}

func (s *Server) getPharmacy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id", "invalid id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.SellerID == id {
			writeData(w, "get pharmacy success", map[string]any{"id": id, "name": p.SellerName})
			return
		}
	}
	writeError(w, http.StatusBadRequest, "pharmacy", "pharmacy not found")
}

func writeData(w http.ResponseWriter, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": message, "data": data})
}

func writeError(w http.ResponseWriter, status int, field, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": []fieldError{{Field: field, Detail: detail}}})
}
