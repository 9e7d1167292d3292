package domain

import "time"

const (
	OrderPaid      = "paid"
	OrderDelivered = "delivered"
	OrderRefunded  = "refunded"
)

// Order a completed purchase. Orders are only ever written inside the
// checkout transaction, together with their payment and wallet movement.
type Order struct {
	ID          int64     `json:"id,string" form:"id"`
	UserID      int64     `gorm:"index" json:"user_id,string"`
	ProductID   int64     `gorm:"index" json:"product_id,string"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitCents   int64     `json:"unit_cents"`
	AmountCents int64     `json:"amount_cents"`
	CouponCode  string    `json:"coupon_code"`
	Status      string    `gorm:"index" json:"status"`
	DeliveredAt time.Time `json:"delivered_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Order) TableName() string {
	return "mkt_order"
}

const (
	PayDirCredit = "credit"
	PayDirDebit  = "debit"

	PayMethodWallet = "wallet"
	PayMethodCard   = "card"
	PayMethodCrypto = "crypto"

	PaySucceeded = "succeeded"
	PayPending   = "pending"
	PayFailed    = "failed"
)

// Payment ledger record for every money movement, wallet or gateway.
type Payment struct {
	ID          int64     `json:"id,string" form:"id"`
	UserID      int64     `gorm:"index" json:"user_id,string"`
	OrderID     int64     `gorm:"index" json:"order_id,string"`
	AmountCents int64     `json:"amount_cents"`
	Direction   string    `json:"direction"` // credit/debit
	Method      string    `json:"method"`    // wallet/card/crypto
	Gateway     string    `json:"gateway"`
	Status      string    `gorm:"index" json:"status"`
	Reference   string    `gorm:"index;size:128" json:"reference"`
	Remark      string    `json:"remark"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Payment) TableName() string {
	return "mkt_payment"
}

const (
	IntentPending   = "pending"
	IntentSucceeded = "succeeded"
	IntentFailed    = "failed"
	IntentExpired   = "expired"

	IntentAddFunds = "add_funds"
	IntentPurchase = "purchase"
)

// PaymentIntent server-issued pending payment descriptor. The idempotency
// key is handed to the client before the gateway redirect and resolved by a
// single confirm call afterwards; the reconciler sweeps intents the client
// never came back for.
type PaymentIntent struct {
	ID             int64     `json:"id,string"`
	UserID         int64     `gorm:"index" json:"user_id,string"`
	IdempotencyKey string    `gorm:"uniqueIndex;size:64" json:"idempotency_key"`
	Purpose        string    `json:"purpose"` // add_funds/purchase
	AmountCents    int64     `json:"amount_cents"`
	Gateway        string    `json:"gateway"`
	GatewayRef     string    `gorm:"index;size:128" json:"gateway_ref"`
	Status         string    `gorm:"index" json:"status"`
	Payload        string    `gorm:"size:4000" json:"payload"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName Specify table name
func (PaymentIntent) TableName() string {
	return "mkt_payment_intent"
}

// WalletTransaction immutable wallet ledger line. BalanceAfter is captured
// inside the transaction that moved the balance.
type WalletTransaction struct {
	ID           int64     `json:"id,string"`
	UserID       int64     `gorm:"index" json:"user_id,string"`
	AmountCents  int64     `json:"amount_cents"`
	Direction    string    `json:"direction"`
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `gorm:"index;size:128" json:"reference"`
	Remark       string    `json:"remark"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName Specify table name
func (WalletTransaction) TableName() string {
	return "mkt_wallet_transaction"
}
