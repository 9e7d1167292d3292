package domain

import "time"

// CouponCodeLen coupon codes are exactly 15 characters; anything else
// bypasses lookup and prices the full amount.
const CouponCodeLen = 15

const (
	CouponActive   = "active"
	CouponUsed     = "used"
	CouponExpired  = "expired"
	CouponDisabled = "disabled"
)

// Coupon a single-use percentage discount. The used flip happens as a
// conditional update inside the checkout transaction, so concurrent
// redemptions cannot both win.
type Coupon struct {
	ID              int64     `json:"id,string" form:"id"`
	Code            string    `gorm:"uniqueIndex;size:32" json:"code" form:"code"`
	DiscountPercent int       `json:"discount_percent" form:"discount_percent"`
	Status          string    `gorm:"index" json:"status" form:"status"`
	ValidFrom       time.Time `json:"valid_from" form:"valid_from"`
	ValidUntil      time.Time `json:"valid_until" form:"valid_until"`
	UsedBy          int64     `json:"used_by,string"`
	UsedAt          time.Time `json:"used_at"`
	Remark          string    `json:"remark" form:"remark"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Coupon) TableName() string {
	return "mkt_coupon"
}
