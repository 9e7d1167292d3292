package support

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/accstore/accstore/internal/app"
	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/pkg/common"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketClosed   = errors.New("ticket closed")
	ErrEmptyContent   = errors.New("subject and message are required")
)

const messageTopic = "ticket.message"

// Service implements ticket chat: messages with attachments, seen tracking,
// unread counts, and an EventBus feed that backs the SSE stream.
type Service struct {
	app app.AppContext
	bus EventBus.Bus

	mu      sync.Mutex
	nextSub int64
	streams map[int64]map[int64]chan *domain.TicketMessage
}

func NewService(a app.AppContext) *Service {
	s := &Service{
		app:     a,
		bus:     EventBus.New(),
		streams: make(map[int64]map[int64]chan *domain.TicketMessage),
	}
	if err := s.bus.Subscribe(messageTopic, s.fanOut); err != nil {
		zap.L().Error("failed to subscribe message fan-out", zap.Error(err))
	}
	return s
}

// CreateTicket opens a ticket with its first message. Empty subject or
// message creates nothing at all.
func (s *Service) CreateTicket(ctx context.Context, userID int64, subject, category, content string, attachmentIDs []int64) (*domain.Ticket, error) {
	subject = strings.TrimSpace(subject)
	content = strings.TrimSpace(content)
	if subject == "" || content == "" {
		return nil, ErrEmptyContent
	}

	now := time.Now()
	ticket := &domain.Ticket{
		ID:        common.UUIDint64(),
		UserID:    userID,
		Subject:   subject,
		Category:  category,
		Status:    domain.TicketOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var first *domain.TicketMessage
	err := s.app.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ticket).Error; err != nil {
			return err
		}
		msg, err := s.appendMessage(tx, ticket, domain.SenderUser, userID, content, attachmentIDs)
		if err != nil {
			return err
		}
		first = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(first)
	return ticket, nil
}

// AddMessage appends a chat line to an open ticket. Attachment linking
// happens in the same transaction as the message row, so an upload is never
// referenced by a half-created message.
func (s *Service) AddMessage(ctx context.Context, ticketID int64, sender string, senderID int64, content string, attachmentIDs []int64) (*domain.TicketMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(attachmentIDs) == 0 {
		return nil, ErrEmptyContent
	}

	var ticket domain.Ticket
	if err := s.app.DB().WithContext(ctx).Where("id = ?", ticketID).First(&ticket).Error; err != nil {
		return nil, ErrTicketNotFound
	}
	if ticket.Status == domain.TicketClosed {
		return nil, ErrTicketClosed
	}

	var msg *domain.TicketMessage
	err := s.app.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.appendMessage(tx, &ticket, sender, senderID, content, attachmentIDs)
		if err != nil {
			return err
		}
		msg = m
		return tx.Model(&domain.Ticket{}).Where("id = ?", ticket.ID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(msg)
	return msg, nil
}

func (s *Service) appendMessage(tx *gorm.DB, ticket *domain.Ticket, sender string, senderID int64, content string, attachmentIDs []int64) (*domain.TicketMessage, error) {
	maxAtt := int(s.app.GetSettingsInt64Value("support", "MaxAttachmentsPerMessage"))
	if maxAtt <= 0 {
		maxAtt = 5
	}
	if len(attachmentIDs) > maxAtt {
		return nil, errors.Errorf("at most %d attachments per message", maxAtt)
	}

	msg := &domain.TicketMessage{
		ID:        common.UUIDint64(),
		TicketID:  ticket.ID,
		Sender:    sender,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := tx.Create(msg).Error; err != nil {
		return nil, err
	}

	if len(attachmentIDs) > 0 {
		res := tx.Model(&domain.Attachment{}).
			Where("id IN ? AND message_id = 0", attachmentIDs).
			Updates(map[string]interface{}{
				"message_id": msg.ID,
				"ticket_id":  ticket.ID,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected != int64(len(attachmentIDs)) {
			return nil, errors.New("attachment missing or already linked")
		}
	}
	return msg, nil
}

// Messages returns a ticket's messages, optionally only those after a known
// message ID (catch-up fetch for reconnecting stream clients).
func (s *Service) Messages(ctx context.Context, ticketID, afterID int64) ([]domain.TicketMessage, error) {
	q := s.app.DB().WithContext(ctx).Where("ticket_id = ?", ticketID)
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}
	var msgs []domain.TicketMessage
	err := q.Order("id ASC").Find(&msgs).Error
	return msgs, err
}

// MarkSeen flips every unseen message from the opposite party in one
// update.
func (s *Service) MarkSeen(ctx context.Context, ticketID int64, viewer string) (int64, error) {
	opposite := domain.SenderAdmin
	if viewer == domain.SenderAdmin {
		opposite = domain.SenderUser
	}
	res := s.app.DB().WithContext(ctx).
		Model(&domain.TicketMessage{}).
		Where("ticket_id = ? AND sender = ? AND seen = ?", ticketID, opposite, false).
		Update("seen", true)
	return res.RowsAffected, res.Error
}

// UnreadForUser counts unseen admin replies across the user's tickets.
func (s *Service) UnreadForUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.app.DB().WithContext(ctx).
		Model(&domain.TicketMessage{}).
		Joins("JOIN mkt_ticket ON mkt_ticket.id = mkt_ticket_message.ticket_id").
		Where("mkt_ticket.user_id = ? AND mkt_ticket_message.sender = ? AND mkt_ticket_message.seen = ?",
			userID, domain.SenderAdmin, false).
		Count(&count).Error
	return count, err
}

// UnreadForAdmin counts unseen user messages across all open tickets.
func (s *Service) UnreadForAdmin(ctx context.Context) (int64, error) {
	var count int64
	err := s.app.DB().WithContext(ctx).
		Model(&domain.TicketMessage{}).
		Where("sender = ? AND seen = ?", domain.SenderUser, false).
		Count(&count).Error
	return count, err
}

// CloseTicket transitions open -> closed; only admins call this.
func (s *Service) CloseTicket(ctx context.Context, ticketID, adminID int64) error {
	res := s.app.DB().WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ? AND status = ?", ticketID, domain.TicketOpen).
		Updates(map[string]interface{}{
			"status":     domain.TicketClosed,
			"admin_id":   adminID,
			"closed_at":  time.Now(),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// ReopenTicket transitions closed -> open.
func (s *Service) ReopenTicket(ctx context.Context, ticketID int64) error {
	res := s.app.DB().WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ? AND status = ?", ticketID, domain.TicketClosed).
		Updates(map[string]interface{}{
			"status":     domain.TicketOpen,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// AssignTicket sets the handling admin.
func (s *Service) AssignTicket(ctx context.Context, ticketID, adminID int64) error {
	return s.app.DB().WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ?", ticketID).
		Updates(map[string]interface{}{
			"admin_id":   adminID,
			"updated_at": time.Now(),
		}).Error
}

func (s *Service) publish(msg *domain.TicketMessage) {
	if msg == nil {
		return
	}
	s.bus.Publish(messageTopic, msg)
}

// fanOut delivers a published message to every live stream on its ticket.
// Sends happen under the registry lock so an unsubscribe can never close a
// channel mid-send.
func (s *Service) fanOut(msg *domain.TicketMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.streams[msg.TicketID] {
		select {
		case ch <- msg:
		default:
			zap.L().Debug("dropping message for slow stream subscriber",
				zap.Int64("ticket_id", msg.TicketID))
		}
	}
}

// Subscribe delivers new messages on a ticket to the returned channel until
// the unsubscribe func is called. Each subscription has its own registry
// entry, so several viewers can stream one ticket and leave independently.
// The channel is buffered; a subscriber that cannot keep up drops messages
// rather than blocking publishers.
func (s *Service) Subscribe(ticketID int64) (<-chan *domain.TicketMessage, func(), error) {
	ch := make(chan *domain.TicketMessage, 16)

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.streams[ticketID] == nil {
		s.streams[ticketID] = make(map[int64]chan *domain.TicketMessage)
	}
	s.streams[ticketID][id] = ch
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.streams[ticketID]
		if _, live := subs[id]; !live {
			return
		}
		delete(subs, id)
		if len(subs) == 0 {
			delete(s.streams, ticketID)
		}
		close(ch)
	}
	return ch, unsubscribe, nil
}
