package domain

import "time"

// Product a digital product (social media account batch) listed in the
// storefront catalog. StockQty mirrors the count of available items and is
// maintained inside the same transaction that sells them.
type Product struct {
	ID              int64     `json:"id,string" form:"id"`
	PlatformName    string    `gorm:"index" json:"platform_name" form:"platform_name"`
	Category        string    `gorm:"index" json:"category" form:"category"`
	PriceCents      int64     `json:"price_cents" form:"price_cents"`
	Description     string    `gorm:"size:4000" json:"description" form:"description"`
	StockQty        int       `json:"stock_qty"`
	ImportantNotice string    `gorm:"size:2000" json:"important_notice" form:"important_notice"`
	DataFormat      string    `gorm:"size:512" json:"data_format" form:"data_format"`
	Featured        bool      `gorm:"index" json:"featured" form:"featured"`
	Status          string    `json:"status" form:"status"` // enabled/disabled
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Product) TableName() string {
	return "mkt_product"
}

const (
	ItemAvailable = "available"
	ItemSold      = "sold"
)

// ProductItem one deliverable credential line belonging to a product.
// Selling marks it sold and stamps the order that claimed it.
type ProductItem struct {
	ID        int64     `json:"id,string"`
	ProductID int64     `gorm:"index" json:"product_id,string"`
	Payload   string    `gorm:"size:4000" json:"payload"`
	Status    string    `gorm:"index" json:"status"`
	OrderID   int64     `gorm:"index" json:"order_id,string"`
	SoldAt    time.Time `json:"sold_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ProductItem) TableName() string {
	return "mkt_product_item"
}
