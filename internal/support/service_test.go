package support

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/accstore/accstore/config"
	"github.com/accstore/accstore/internal/app"
	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/pkg/common"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", common.RandomHex(8))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	application := app.NewApplication(config.LoadConfig(""))
	application.OverrideDB(db)
	require.NoError(t, application.MigrateDB(false))
	return application
}

func TestCreateTicketRequiresSubjectAndContent(t *testing.T) {
	a := newTestApp(t)
	svc := NewService(a)

	for _, tc := range []struct{ subject, content string }{
		{"", "help me"},
		{"broken account", ""},
		{"  ", "   "},
	} {
		_, err := svc.CreateTicket(context.Background(), 1, tc.subject, "billing", tc.content, nil)
		assert.ErrorIs(t, err, ErrEmptyContent)
	}

	var tickets, messages int64
	a.DB().Model(&domain.Ticket{}).Count(&tickets)
	a.DB().Model(&domain.TicketMessage{}).Count(&messages)
	assert.Zero(t, tickets)
	assert.Zero(t, messages)
}

func TestCreateTicketWritesFirstMessage(t *testing.T) {
	a := newTestApp(t)
	svc := NewService(a)

	ticket, err := svc.CreateTicket(context.Background(), 42, "login broken", "account", "cannot log in", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketOpen, ticket.Status)

	msgs, err := svc.Messages(context.Background(), ticket.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.SenderUser, msgs[0].Sender)
	assert.Equal(t, "cannot log in", msgs[0].Content)
}

func TestAddMessageToClosedTicket(t *testing.T) {
	a := newTestApp(t)
	svc := NewService(a)

	ticket, err := svc.CreateTicket(context.Background(), 42, "subject", "other", "content", nil)
	require.NoError(t, err)
	require.NoError(t, svc.CloseTicket(context.Background(), ticket.ID, 1))

	_, err = svc.AddMessage(context.Background(), ticket.ID, domain.SenderUser, 42, "still broken", nil)
	assert.ErrorIs(t, err, ErrTicketClosed)

	require.NoError(t, svc.ReopenTicket(context.Background(), ticket.ID))
	_, err = svc.AddMessage(context.Background(), ticket.ID, domain.SenderUser, 42, "still broken", nil)
	assert.NoError(t, err)
}

func TestMarkSeenFlipsOppositeSenderOnly(t *testing.T) {
	a := newTestApp(t)
	svc := NewService(a)

	ticket, err := svc.CreateTicket(context.Background(), 42, "subject", "other", "content", nil)
	require.NoError(t, err)
	_, err = svc.AddMessage(context.Background(), ticket.ID, domain.SenderAdmin, 1, "we are looking into it", nil)
	require.NoError(t, err)
	_, err = svc.AddMessage(context.Background(), ticket.ID, domain.SenderAdmin, 1, "fixed now", nil)
	require.NoError(t, err)

	unread, err := svc.UnreadForUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	marked, err := svc.MarkSeen(context.Background(), ticket.ID, domain.SenderUser)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	unread, err = svc.UnreadForUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, unread)

	// the user's own message stays unseen for the admin side
	adminUnread, err := svc.UnreadForAdmin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), adminUnread)
}

func TestAttachmentLinkingIsAllOrNothing(t *testing.T) {
	a := newTestApp(t)
	svc := NewService(a)

	att := &domain.Attachment{
		ID:       common.UUIDint64(),
		UserID:   42,
		FileName: "screenshot.png",
	}
	require.NoError(t, a.DB().Create(att).Error)

	ticket, err := svc.CreateTicket(context.Background(), 42, "subject", "other", "content", []int64{att.ID})
	require.NoError(t, err)

	var linked domain.Attachment
	require.NoError(t, a.DB().First(&linked, att.ID).Error)
	assert.Equal(t, ticket.ID, linked.TicketID)
	assert.NotZero(t, linked.MessageID)

	// a second message cannot claim an already linked attachment
	_, err = svc.AddMessage(context.Background(), ticket.ID, domain.SenderUser, 42, "see attached", []int64{att.ID})
	assert.Error(t, err)
}

func TestSubscribeDeliversPublishedMessages(t *testing.T) {
	a := newTestApp(t)
	svc := NewService(a)

	ticket, err := svc.CreateTicket(context.Background(), 42, "subject", "other", "content", nil)
	require.NoError(t, err)

	ch, unsubscribe, err := svc.Subscribe(ticket.ID)
	require.NoError(t, err)
	defer unsubscribe()

	sent, err := svc.AddMessage(context.Background(), ticket.ID, domain.SenderAdmin, 1, "hello", nil)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "hello", got.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered to subscriber")
	}
}

func TestSubscribeRemainsLiveAfterPeerUnsubscribes(t *testing.T) {
	a := newTestApp(t)
	svc := NewService(a)

	ticket, err := svc.CreateTicket(context.Background(), 42, "subject", "other", "content", nil)
	require.NoError(t, err)

	ch1, unsub1, err := svc.Subscribe(ticket.ID)
	require.NoError(t, err)
	defer unsub1()

	_, unsub2, err := svc.Subscribe(ticket.ID)
	require.NoError(t, err)

	// the second viewer leaves; the first must keep receiving and posting
	// must not be disturbed by the departed subscriber
	unsub2()
	unsub2()

	sent, err := svc.AddMessage(context.Background(), ticket.ID, domain.SenderAdmin, 1, "still here", nil)
	require.NoError(t, err)

	select {
	case got := <-ch1:
		assert.Equal(t, sent.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("remaining subscriber received nothing")
	}
}

func TestCloseTicketTwiceFails(t *testing.T) {
	a := newTestApp(t)
	svc := NewService(a)

	ticket, err := svc.CreateTicket(context.Background(), 42, "subject", "other", "content", nil)
	require.NoError(t, err)

	require.NoError(t, svc.CloseTicket(context.Background(), ticket.ID, 1))
	assert.ErrorIs(t, svc.CloseTicket(context.Background(), ticket.ID, 1), ErrTicketNotFound)
}
