// Package memory implements the remote data gateway in process memory. It
// backs tests and the offline/demo mode where no DATABASE_URL is set.
package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/gateway"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productOrder    []string
	tagsByProduct   map[string][]string
	relations       map[string]map[string]string
	orders          []domain.Order
	settings        *domain.SiteSettings
	nextSettingsID  int64
	discountsByID   map[string]domain.DiscountCode
	reviews         []domain.Review
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		tagsByProduct:   make(map[string][]string),
		relations:       make(map[string]map[string]string),
		orders:          make([]domain.Order, 0, 32),
		nextSettingsID:  1,
		discountsByID:   make(map[string]domain.DiscountCode),
		reviews:         make([]domain.Review, 0, 32),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store pre-populated with a small catalog, an active
// discount code, and the seed admin account, for demo mode and tests.
func NewSeeded() *Store {
	s := New()

	products := []domain.Product{
		{Name: "Sidr Honey 500g", Price: 180, Stock: 24, Category: "Honey", Description: "Raw Sidr honey from mountain apiaries.", Image: "/img/sidr.jpg", IsBestSeller: true, SalesCount: 87},
		{Name: "Acacia Honey 250g", Price: 95, SalePrice: 79, Stock: 40, Category: "Honey", Description: "Light floral acacia honey.", Image: "/img/acacia.jpg", SalesCount: 41},
		{Name: "Beekeeper Starter Kit", Price: 650, Stock: 6, Category: "Equipment", Description: "Hive tool, smoker and protective gloves.", Image: "/img/kit.jpg", SalesCount: 12},
		{Name: "Honey Dipper", Price: 25, Stock: 120, Category: "Accessories", Description: "Olive wood honey dipper.", Image: "/img/dipper.jpg", SalesCount: 203,
			Options: []domain.ProductOption{{Name: "Size", Values: []string{"Small", "Large"}}}},
		{Name: "Royal Jelly 100g", Price: 240, Stock: 0, Category: "Honey", Description: "Fresh royal jelly, refrigerated.", Image: "/img/jelly.jpg", SalesCount: 9},
	}
	for _, p := range products {
		p.ID = uuid.NewString()
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}

	s.discountsByID["seed-disc-1"] = domain.DiscountCode{
		ID:         "seed-disc-1",
		Code:       "WELCOME10",
		Percentage: 10,
		ExpiryDate: "2030-01-01",
		IsActive:   true,
	}

	s.usersByUsername["admin"] = seedAdmin()
	return s
}

// seedAdmin builds the initial admin account for demo mode. The password is
// read from SEED_ADMIN_PASSWORD; if unset a dev default is used with a
// warning. Production deployments use the postgres gateway's user table.
func seedAdmin() domain.UserAccount {
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("[memory-gateway] WARNING: using default dev admin credentials. Set SEED_ADMIN_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-gateway] failed to hash seed password: %v", err)
	}
	return domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		if p, ok := s.products[id]; ok {
			products = append(products, cloneProduct(p))
		}
	}
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	copied := cloneProduct(p)
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 0 || product.Stock < 0 {
		return nil, gateway.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	product.Category = gateway.NormalizeCategory(product.Category)
	s.products[product.ID] = product
	s.productOrder = append([]string{product.ID}, s.productOrder...)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, updates domain.ProductUpdate) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	applyUpdate(&p, updates)
	s.products[id] = p
	updated := cloneProduct(p)
	return &updated, nil
}

func applyUpdate(p *domain.Product, u domain.ProductUpdate) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.SalePrice != nil {
		p.SalePrice = *u.SalePrice
	}
	if u.IsBestSeller != nil {
		p.IsBestSeller = *u.IsBestSeller
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Image != nil {
		p.Image = *u.Image
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Options != nil {
		p.Options = slices.Clone(*u.Options)
	}
	if u.SKU != nil {
		p.SKU = *u.SKU
	}
	if u.Barcode != nil {
		p.Barcode = *u.Barcode
	}
	if u.SEOTitle != nil {
		p.SEOTitle = *u.SEOTitle
	}
	if u.SEODescription != nil {
		p.SEODescription = *u.SEODescription
	}
	if u.Tags != nil {
		p.Tags = slices.Clone(*u.Tags)
	}
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return gateway.ErrNotFound
	}
	delete(s.products, id)
	delete(s.tagsByProduct, id)
	delete(s.relations, id)
	s.productOrder = slices.DeleteFunc(s.productOrder, func(pid string) bool { return pid == id })
	return nil
}

func (s *Store) SetProductTags(_ context.Context, productID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return gateway.ErrNotFound
	}

	cleaned := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		cleaned = append(cleaned, tag)
	}
	s.tagsByProduct[productID] = cleaned
	return nil
}

func (s *Store) ListProductTags(_ context.Context, productID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.tagsByProduct[productID]), nil
}

func (s *Store) AddRelatedProduct(_ context.Context, productID string, relatedID string, relationType string) error {
	if relationType != domain.RelationManual && relationType != domain.RelationAuto {
		return gateway.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return gateway.ErrNotFound
	}
	if _, ok := s.relations[productID]; !ok {
		s.relations[productID] = make(map[string]string)
	}
	s.relations[productID][relatedID] = relationType
	return nil
}

func (s *Store) RemoveRelatedProduct(_ context.Context, productID string, relatedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.relations[productID], relatedID)
	return nil
}

func (s *Store) ListRelatedProducts(_ context.Context, productID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	related := make([]domain.Product, 0, len(s.relations[productID]))
	for relatedID := range s.relations[productID] {
		if p, ok := s.products[relatedID]; ok {
			related = append(related, cloneProduct(p))
		}
	}
	slices.SortFunc(related, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return related, nil
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, cloneOrder(o))
	}
	return orders, nil
}

func (s *Store) CreateOrderWithStock(_ context.Context, order domain.Order, stockByProduct map[string]int) error {
	if order.ID == "" || len(order.Items) == 0 {
		return gateway.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orders {
		if existing.ID == order.ID {
			return gateway.ErrInvalid
		}
	}
	s.orders = append([]domain.Order{cloneOrder(order)}, s.orders...)

	for productID, stock := range stockByProduct {
		p, ok := s.products[productID]
		if !ok {
			continue
		}
		if stock < 0 {
			stock = 0
		}
		p.Stock = stock
		p.SalesCount++
		s.products[productID] = p
	}
	return nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders[i].Status = status
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (s *Store) MarkOrderRated(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders[i].IsRated = true
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (s *Store) FetchSettings(_ context.Context) (*domain.SiteSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, gateway.ErrNotFound
	}
	copied := *s.settings
	return &copied, nil
}

func (s *Store) UpdateSettings(_ context.Context, id int64, settings domain.SiteSettings) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil || s.settings.RemoteID != id {
		return 0, nil
	}
	settings.RemoteID = id
	s.settings = &settings
	return 1, nil
}

func (s *Store) InsertSettings(_ context.Context, settings domain.SiteSettings) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.RemoteID = s.nextSettingsID
	s.nextSettingsID++
	s.settings = &settings
	return settings.RemoteID, nil
}

func (s *Store) ListDiscountCodes(_ context.Context) ([]domain.DiscountCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]domain.DiscountCode, 0, len(s.discountsByID))
	for _, code := range s.discountsByID {
		codes = append(codes, code)
	}
	slices.SortFunc(codes, func(a, b domain.DiscountCode) int {
		return strings.Compare(a.Code, b.Code)
	})
	return codes, nil
}

func (s *Store) CreateDiscountCode(_ context.Context, code domain.DiscountCode) (*domain.DiscountCode, error) {
	if strings.TrimSpace(code.Code) == "" || code.Percentage < 0 || code.Percentage > 100 {
		return nil, gateway.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	s.discountsByID[code.ID] = code
	created := code
	return &created, nil
}

func (s *Store) DeleteDiscountCode(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discountsByID[id]; !ok {
		return gateway.ErrNotFound
	}
	delete(s.discountsByID, id)
	return nil
}

func (s *Store) ListReviews(_ context.Context) ([]domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reviews := make([]domain.Review, len(s.reviews))
	copy(reviews, s.reviews)
	return reviews, nil
}

func (s *Store) CreateReview(_ context.Context, review domain.Review) error {
	if review.ProductID == "" || review.Rating < 1 || review.Rating > 5 {
		return gateway.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reviews = append(s.reviews, review)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return gateway.ErrInvalid
	}
	if _, exists := s.usersByUsername[username]; exists {
		return gateway.ErrInvalid
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "admin"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return gateway.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Options = slices.Clone(src.Options)
	dup.Tags = slices.Clone(src.Tags)
	return dup
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	items := make([]domain.CartItem, len(src.Items))
	for i, item := range src.Items {
		items[i] = item
		items[i].Product = cloneProduct(item.Product)
		if item.SelectedOptions != nil {
			opts := make(map[string]string, len(item.SelectedOptions))
			for k, v := range item.SelectedOptions {
				opts[k] = v
			}
			items[i].SelectedOptions = opts
		}
	}
	dup.Items = items
	return dup
}
