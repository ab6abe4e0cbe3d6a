// Package postgres implements the remote gateway against the hosted
// relational store. Column names are snake_case; structured fields such as
// product options and order line items are stored as jsonb.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/gateway"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `
	id, name, price, sale_price, is_best_seller, stock, description, image,
	category, sales_count, options, sku, barcode, seo_title, seo_description
`

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gateway.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 0 || product.Stock < 0 {
		return nil, gateway.ErrInvalid
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	product.Category = gateway.NormalizeCategory(product.Category)

	optionsRaw, err := json.Marshal(product.Options)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, price, sale_price, is_best_seller, stock, description,
			image, category, sales_count, options, sku, barcode, seo_title,
			seo_description, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
	`, product.ID, product.Name, product.Price, product.SalePrice,
		product.IsBestSeller, product.Stock, product.Description, product.Image,
		product.Category, product.SalesCount, optionsRaw, product.SKU,
		product.Barcode, product.SEOTitle, product.SEODescription)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, gateway.ErrInvalid
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, updates domain.ProductUpdate) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gateway.ErrNotFound
		}
		return nil, err
	}

	applyUpdate(&p, updates)

	optionsRaw, err := json.Marshal(p.Options)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, sale_price = $4, is_best_seller = $5,
			stock = $6, description = $7, image = $8, category = $9,
			options = $10, sku = $11, barcode = $12, seo_title = $13,
			seo_description = $14, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.Price, p.SalePrice, p.IsBestSeller, p.Stock,
		p.Description, p.Image, p.Category, optionsRaw, p.SKU, p.Barcode,
		p.SEOTitle, p.SEODescription)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
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
		p.Options = *u.Options
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
		p.Tags = *u.Tags
	}
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

// SetProductTags replaces the product's tag set: the join rows are wiped and
// re-inserted, and tag names are upserted into the shared tags table.
func (s *Store) SetProductTags(ctx context.Context, productID string, tags []string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM product_tags WHERE product_id = $1
	`, productID); err != nil {
		return err
	}

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		var tagID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tags (name)
			VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, tag).Scan(&tagID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_tags (product_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, productID, tagID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListProductTags(ctx context.Context, productID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name
		FROM product_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.product_id = $1
		ORDER BY t.name
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make([]string, 0, 8)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *Store) AddRelatedProduct(ctx context.Context, productID string, relatedID string, relationType string) error {
	if relationType != domain.RelationManual && relationType != domain.RelationAuto {
		return gateway.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_relations (product_id, related_product_id, relation_type, created_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (product_id, related_product_id)
		DO UPDATE SET relation_type = EXCLUDED.relation_type
	`, productID, relatedID, relationType)
	return err
}

func (s *Store) RemoveRelatedProduct(ctx context.Context, productID string, relatedID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM product_relations
		WHERE product_id = $1 AND related_product_id = $2
	`, productID, relatedID)
	return err
}

func (s *Store) ListRelatedProducts(ctx context.Context, productID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+qualifyProductColumns("p")+`
		FROM product_relations pr
		JOIN products p ON p.id = pr.related_product_id
		WHERE pr.product_id = $1
		ORDER BY p.name
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	related := make([]domain.Product, 0, 8)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		related = append(related, p)
	}
	return related, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, items, total, discount_applied, order_date, status, is_rated,
			customer_name, customer_phone, customer_phone2, customer_address,
			customer_city, customer_email
		FROM orders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		var o domain.Order
		var itemsRaw []byte
		if err := rows.Scan(&o.ID, &itemsRaw, &o.Total, &o.DiscountApplied,
			&o.Date, &o.Status, &o.IsRated, &o.Customer.Name,
			&o.Customer.Phone, &o.Customer.Phone2, &o.Customer.Address,
			&o.Customer.City, &o.Customer.Email); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CreateOrderWithStock records the order and applies the absolute stock
// values per product in a single transaction, so a failed insert never
// leaves stock half-adjusted.
func (s *Store) CreateOrderWithStock(ctx context.Context, order domain.Order, stockByProduct map[string]int) error {
	if order.ID == "" || len(order.Items) == 0 {
		return gateway.ErrInvalid
	}

	itemsRaw, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, items, total, discount_applied, order_date, status, is_rated,
			customer_name, customer_phone, customer_phone2, customer_address,
			customer_city, customer_email, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
	`, order.ID, itemsRaw, order.Total, order.DiscountApplied, order.Date,
		order.Status, order.IsRated, order.Customer.Name, order.Customer.Phone,
		order.Customer.Phone2, order.Customer.Address, order.Customer.City,
		order.Customer.Email)
	if err != nil {
		if isUniqueViolation(err) {
			return gateway.ErrInvalid
		}
		return err
	}

	for productID, stock := range stockByProduct {
		if stock < 0 {
			stock = 0
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = $2, sales_count = sales_count + 1, updated_at = now()
			WHERE id = $1
		`, productID, stock); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1
	`, orderID, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

func (s *Store) MarkOrderRated(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET is_rated = true WHERE id = $1
	`, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

func (s *Store) FetchSettings(ctx context.Context) (*domain.SiteSettings, error) {
	var settings domain.SiteSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_name, logo_text, logo_url, primary_color,
			secondary_color, currency, background_image, background_opacity,
			banner_badge, banner_title, banner_description, banner_button_text
		FROM site_settings
		ORDER BY id
		LIMIT 1
	`).Scan(&settings.RemoteID, &settings.StoreName, &settings.LogoText,
		&settings.LogoURL, &settings.PrimaryColor, &settings.SecondaryColor,
		&settings.Currency, &settings.BackgroundImage,
		&settings.BackgroundOpacity, &settings.BannerBadge,
		&settings.BannerTitle, &settings.BannerDescription,
		&settings.BannerButtonText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gateway.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) UpdateSettings(ctx context.Context, id int64, settings domain.SiteSettings) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE site_settings
		SET store_name = $2, logo_text = $3, logo_url = $4, primary_color = $5,
			secondary_color = $6, currency = $7, background_image = $8,
			background_opacity = $9, banner_badge = $10, banner_title = $11,
			banner_description = $12, banner_button_text = $13, updated_at = now()
		WHERE id = $1
	`, id, settings.StoreName, settings.LogoText, settings.LogoURL,
		settings.PrimaryColor, settings.SecondaryColor, settings.Currency,
		settings.BackgroundImage, settings.BackgroundOpacity,
		settings.BannerBadge, settings.BannerTitle, settings.BannerDescription,
		settings.BannerButtonText)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) InsertSettings(ctx context.Context, settings domain.SiteSettings) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO site_settings (
			store_name, logo_text, logo_url, primary_color, secondary_color,
			currency, background_image, background_opacity, banner_badge,
			banner_title, banner_description, banner_button_text, created_at,
			updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
		RETURNING id
	`, settings.StoreName, settings.LogoText, settings.LogoURL,
		settings.PrimaryColor, settings.SecondaryColor, settings.Currency,
		settings.BackgroundImage, settings.BackgroundOpacity,
		settings.BannerBadge, settings.BannerTitle, settings.BannerDescription,
		settings.BannerButtonText).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) ListDiscountCodes(ctx context.Context) ([]domain.DiscountCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, percentage, expiry_date, is_active
		FROM discount_codes
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]domain.DiscountCode, 0, 16)
	for rows.Next() {
		var code domain.DiscountCode
		if err := rows.Scan(&code.ID, &code.Code, &code.Percentage,
			&code.ExpiryDate, &code.IsActive); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *Store) CreateDiscountCode(ctx context.Context, code domain.DiscountCode) (*domain.DiscountCode, error) {
	if strings.TrimSpace(code.Code) == "" || code.Percentage < 0 || code.Percentage > 100 {
		return nil, gateway.ErrInvalid
	}
	if code.ID == "" {
		code.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discount_codes (id, code, percentage, expiry_date, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, code.ID, code.Code, code.Percentage, code.ExpiryDate, code.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, gateway.ErrInvalid
		}
		return nil, err
	}

	created := code
	return &created, nil
}

func (s *Store) DeleteDiscountCode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM discount_codes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

func (s *Store) ListReviews(ctx context.Context) ([]domain.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, order_id, customer_name, rating, comment, review_date
		FROM reviews
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0, 64)
	for rows.Next() {
		var r domain.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.OrderID, &r.CustomerName,
			&r.Rating, &r.Comment, &r.Date); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

func (s *Store) CreateReview(ctx context.Context, review domain.Review) error {
	if review.ProductID == "" || review.Rating < 1 || review.Rating > 5 {
		return gateway.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, product_id, order_id, customer_name, rating, comment, review_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, review.ID, review.ProductID, review.OrderID, review.CustomerName,
		review.Rating, review.Comment, review.Date)
	if isUniqueViolation(err) {
		return gateway.ErrInvalid
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return gateway.ErrInvalid
	}
	role := user.Role
	if role == "" {
		role = "admin"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,now())
	`, username, user.Password, role)
	if isUniqueViolation(err) {
		return gateway.ErrInvalid
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role,
			&user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var optionsRaw []byte
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.SalePrice, &p.IsBestSeller,
		&p.Stock, &p.Description, &p.Image, &p.Category, &p.SalesCount,
		&optionsRaw, &p.SKU, &p.Barcode, &p.SEOTitle, &p.SEODescription)
	if err != nil {
		return domain.Product{}, err
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &p.Options); err != nil {
			return domain.Product{}, err
		}
	}
	return p, nil
}

func qualifyProductColumns(alias string) string {
	cols := strings.Split(productColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
