package domain

import "time"

// ProductOption describes one selectable variant axis, e.g. "Color" with
// values ["Red", "Blue"].
type ProductOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          float64         `json:"price"`
	SalePrice      float64         `json:"sale_price,omitempty"`
	IsBestSeller   bool            `json:"is_best_seller,omitempty"`
	Stock          int             `json:"stock"`
	Description    string          `json:"description"`
	Image          string          `json:"image"`
	Category       string          `json:"category"`
	SalesCount     int             `json:"sales_count"`
	Options        []ProductOption `json:"options,omitempty"`
	SKU            string          `json:"sku,omitempty"`
	Barcode        string          `json:"barcode,omitempty"`
	SEOTitle       string          `json:"seo_title,omitempty"`
	SEODescription string          `json:"seo_description,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
}

// EffectivePrice is the price a cart line captures at add time: the sale
// price when one is set below the list price, otherwise the list price.
func (p Product) EffectivePrice() float64 {
	if p.SalePrice > 0 && p.SalePrice < p.Price {
		return p.SalePrice
	}
	return p.Price
}

// ProductUpdate carries a partial product edit. Nil fields are left
// untouched by the gateway.
type ProductUpdate struct {
	Name           *string          `json:"name,omitempty"`
	Price          *float64         `json:"price,omitempty"`
	SalePrice      *float64         `json:"sale_price,omitempty"`
	IsBestSeller   *bool            `json:"is_best_seller,omitempty"`
	Stock          *int             `json:"stock,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Image          *string          `json:"image,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Options        *[]ProductOption `json:"options,omitempty"`
	SKU            *string          `json:"sku,omitempty"`
	Barcode        *string          `json:"barcode,omitempty"`
	SEOTitle       *string          `json:"seo_title,omitempty"`
	SEODescription *string          `json:"seo_description,omitempty"`
	Tags           *[]string        `json:"tags,omitempty"`
}

// CartItem is a product snapshot taken at add-to-cart time. Price is the
// effective price when the line was created; later product edits do not
// retroactively change it. Stock is the snapshot used for the client-side
// quantity ceiling.
type CartItem struct {
	Product
	Quantity        int               `json:"quantity"`
	CartItemID      string            `json:"cart_item_id"`
	SelectedOptions map[string]string `json:"selected_options,omitempty"`
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Phone2  string `json:"phone2,omitempty"`
	Address string `json:"address"`
	City    string `json:"city"`
	Email   string `json:"email,omitempty"`
}

type Order struct {
	ID              string     `json:"id"`
	Items           []CartItem `json:"items"`
	Total           float64    `json:"total"`
	DiscountApplied int        `json:"discount_applied"`
	Date            string     `json:"date"`
	Status          string     `json:"status"`
	Customer        Customer   `json:"customer"`
	IsRated         bool       `json:"is_rated,omitempty"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusReturned  = "returned"
)

// DiscountCode gates a percentage discount. ExpiryDate is stored and shown
// in the admin dashboard but is not compared against the clock when a code
// is applied; only IsActive and an exact case-sensitive code match gate
// applicability.
type DiscountCode struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Percentage int    `json:"percentage"`
	ExpiryDate string `json:"expiry_date"`
	IsActive   bool   `json:"is_active"`
}

type Review struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	OrderID      string `json:"order_id"`
	CustomerName string `json:"customer_name"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment,omitempty"`
	Date         string `json:"date"`
}

// SiteSettings is a singleton record. RemoteID is the identity of the row
// backing it in the remote store, captured during hydration or after the
// first successful insert; zero means no remote row is known yet.
type SiteSettings struct {
	RemoteID          int64  `json:"-"`
	StoreName         string `json:"store_name"`
	LogoText          string `json:"logo_text"`
	LogoURL           string `json:"logo_url,omitempty"`
	PrimaryColor      string `json:"primary_color"`
	SecondaryColor    string `json:"secondary_color"`
	Currency          string `json:"currency"`
	BackgroundImage   string `json:"background_image,omitempty"`
	BackgroundOpacity int    `json:"background_opacity"`
	BannerBadge       string `json:"banner_badge,omitempty"`
	BannerTitle       string `json:"banner_title,omitempty"`
	BannerDescription string `json:"banner_description,omitempty"`
	BannerButtonText  string `json:"banner_button_text,omitempty"`
}

// DefaultSettings returns the seed settings used before any record has been
// saved locally or remotely.
func DefaultSettings() SiteSettings {
	return SiteSettings{
		StoreName:         "Hive Store",
		LogoText:          "H",
		PrimaryColor:      "#0d9488",
		SecondaryColor:    "#111827",
		Currency:          "SAR",
		BackgroundOpacity: 40,
		BannerBadge:       "New arrivals",
		BannerTitle:       "Exclusive offers",
		BannerDescription: "Quality products at competitive prices. Shop now and enjoy the discounts.",
		BannerButtonText:  "Browse products",
	}
}

// RelationManual and RelationAuto classify related-product links: manual
// links are curated by the admin, auto links come from the catalog tooling.
const (
	RelationManual = "manual"
	RelationAuto   = "auto"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
