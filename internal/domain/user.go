package domain

import "time"

// User storefront customer account with an internal wallet balance
type User struct {
	ID            int64     `json:"id,string" form:"id"`
	Name          string    `json:"name" form:"name"`
	Email         string    `gorm:"uniqueIndex" json:"email" form:"email"`
	Password      string    `json:"-" form:"password"`
	Status        string    `json:"status" form:"status"`    // enabled/disabled
	WalletBalance int64     `json:"wallet_balance"`          // cents
	Remark        string    `json:"remark" form:"remark"`
	LastLogin     time.Time `json:"last_login"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName Specify table name
func (User) TableName() string {
	return "mkt_user"
}

// UserSession server-authoritative storefront session
type UserSession struct {
	ID        int64     `json:"id,string"`
	UserID    int64     `gorm:"index" json:"user_id,string"`
	Token     string    `gorm:"uniqueIndex;size:128" json:"-"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName Specify table name
func (UserSession) TableName() string {
	return "mkt_user_session"
}

// PasswordReset one-shot emailed reset code
type PasswordReset struct {
	ID        int64     `json:"id,string"`
	UserID    int64     `gorm:"index" json:"user_id,string"`
	Code      string    `gorm:"index;size:64" json:"-"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName Specify table name
func (PasswordReset) TableName() string {
	return "mkt_password_reset"
}
