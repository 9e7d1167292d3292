package domain

import "time"

const (
	TicketOpen   = "open"
	TicketClosed = "closed"

	SenderUser  = "user"
	SenderAdmin = "admin"
)

// Ticket a support conversation opened by a customer. Closed tickets stay
// readable but accept no further user messages.
type Ticket struct {
	ID        int64     `json:"id,string" form:"id"`
	UserID    int64     `gorm:"index" json:"user_id,string"`
	AdminID   int64     `gorm:"index" json:"admin_id,string"`
	Subject   string    `json:"subject" form:"subject"`
	Category  string    `gorm:"index" json:"category" form:"category"`
	Status    string    `gorm:"index" json:"status" form:"status"`
	ClosedAt  time.Time `json:"closed_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Ticket) TableName() string {
	return "mkt_ticket"
}

// TicketMessage one chat line. Seen flips when the opposite party reads.
type TicketMessage struct {
	ID        int64     `json:"id,string"`
	TicketID  int64     `gorm:"index" json:"ticket_id,string"`
	Sender    string    `gorm:"index" json:"sender"` // user/admin
	SenderID  int64     `json:"sender_id,string"`
	Content   string    `gorm:"size:8000" json:"content"`
	Seen      bool      `gorm:"index" json:"seen"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName Specify table name
func (TicketMessage) TableName() string {
	return "mkt_ticket_message"
}

// Attachment an uploaded file, linked to a message when the message lands.
// Unlinked rows past their grace period are swept with their files.
type Attachment struct {
	ID          int64     `json:"id,string"`
	TicketID    int64     `gorm:"index" json:"ticket_id,string"`
	MessageID   int64     `gorm:"index" json:"message_id,string"`
	UserID      int64     `json:"user_id,string"`
	FileName    string    `json:"file_name"`
	StoredName  string    `gorm:"size:256" json:"-"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName Specify table name
func (Attachment) TableName() string {
	return "mkt_attachment"
}
