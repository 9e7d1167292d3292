package storeapi

import (
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/support"
	"github.com/accstore/accstore/internal/webserver"
)

var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

func registerTicketRoutes() {
	webserver.StorePOST("/tickets", createTicket)
	webserver.StoreGET("/tickets", listMyTickets)
	webserver.StoreGET("/tickets/:id", getMyTicket)
	webserver.StorePOST("/tickets/:id/messages", addTicketMessage)
	webserver.StoreGET("/tickets/:id/messages", listTicketMessages)
	webserver.StorePOST("/tickets/:id/seen", markTicketSeen)
	webserver.StoreGET("/tickets/:id/stream", streamTicket)
	webserver.StoreGET("/support/unread", unreadCount)
}

type createTicketPayload struct {
	Subject       string  `json:"subject"`
	Category      string  `json:"category"`
	Content       string  `json:"content"`
	AttachmentIDs []int64 `json:"attachment_ids"`
}

func createTicket(c echo.Context) error {
	var payload createTicketPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse ticket", err.Error())
	}
	user := webserver.CurrentUser(c)

	ticket, err := supportSvc.CreateTicket(c.Request().Context(), user.ID,
		payload.Subject, payload.Category, payload.Content, payload.AttachmentIDs)
	if errors.Is(err, support.ErrEmptyContent) {
		return fail(c, http.StatusBadRequest, "EMPTY_CONTENT", "Subject and message are required", nil)
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create ticket", err.Error())
	}
	return ok(c, ticket)
}

func listMyTickets(c echo.Context) error {
	user := webserver.CurrentUser(c)
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.Ticket{}).Where("user_id = ?", user.ID)
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query tickets", err.Error())
	}
	var rows []domain.Ticket
	if err := db.Order("updated_at DESC").Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query tickets", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

func ownTicket(c echo.Context) (*domain.Ticket, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	user := webserver.CurrentUser(c)

	var ticket domain.Ticket
	err = GetDB(c).Where("id = ? AND user_id = ?", id, user.ID).First(&ticket).Error
	if err != nil {
		return nil, fail(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}
	return &ticket, nil
}

func getMyTicket(c echo.Context) error {
	ticket, errResp := ownTicket(c)
	if ticket == nil {
		return errResp
	}
	messages, err := supportSvc.Messages(c.Request().Context(), ticket.ID, 0)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages", err.Error())
	}
	var attachments []domain.Attachment
	GetDB(c).Where("ticket_id = ?", ticket.ID).Find(&attachments)

	return ok(c, map[string]interface{}{
		"ticket":      ticket,
		"messages":    messages,
		"attachments": attachments,
	})
}

type ticketMessagePayload struct {
	Content       string  `json:"content"`
	AttachmentIDs []int64 `json:"attachment_ids"`
}

func addTicketMessage(c echo.Context) error {
	ticket, errResp := ownTicket(c)
	if ticket == nil {
		return errResp
	}
	var payload ticketMessagePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse message", err.Error())
	}
	user := webserver.CurrentUser(c)

	msg, err := supportSvc.AddMessage(c.Request().Context(), ticket.ID,
		domain.SenderUser, user.ID, payload.Content, payload.AttachmentIDs)
	switch {
	case errors.Is(err, support.ErrTicketClosed):
		return fail(c, http.StatusConflict, "TICKET_CLOSED", "Ticket is closed", nil)
	case errors.Is(err, support.ErrEmptyContent):
		return fail(c, http.StatusBadRequest, "EMPTY_CONTENT", "Message content is required", nil)
	case err != nil:
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to send message", err.Error())
	}
	return ok(c, msg)
}

func listTicketMessages(c echo.Context) error {
	ticket, errResp := ownTicket(c)
	if ticket == nil {
		return errResp
	}
	after := cast.ToInt64(c.QueryParam("after"))
	messages, err := supportSvc.Messages(c.Request().Context(), ticket.ID, after)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages", err.Error())
	}
	return ok(c, messages)
}

func markTicketSeen(c echo.Context) error {
	ticket, errResp := ownTicket(c)
	if ticket == nil {
		return errResp
	}
	seen, err := supportSvc.MarkSeen(c.Request().Context(), ticket.ID, domain.SenderUser)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to mark messages seen", err.Error())
	}
	return ok(c, map[string]interface{}{"marked": seen})
}

// streamTicket pushes new messages over server-sent events until the client
// disconnects.
func streamTicket(c echo.Context) error {
	ticket, errResp := ownTicket(c)
	if ticket == nil {
		return errResp
	}

	ch, unsubscribe, err := supportSvc.Subscribe(ticket.ID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "STREAM_ERROR", "Failed to subscribe", err.Error())
	}
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, open := <-ch:
			if !open {
				return nil
			}
			data, err := jsonx.MarshalToString(msg)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: message\ndata: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func unreadCount(c echo.Context) error {
	user := webserver.CurrentUser(c)
	count, err := supportSvc.UnreadForUser(c.Request().Context(), user.ID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count unread messages", err.Error())
	}
	return ok(c, map[string]interface{}{"unread": count})
}
