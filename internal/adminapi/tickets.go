package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/support"
	"github.com/accstore/accstore/internal/webserver"
)

func registerTicketRoutes() {
	webserver.ApiGET("/support/tickets", listTickets)
	webserver.ApiGET("/support/tickets/:id", getTicket)
	webserver.ApiPOST("/support/tickets/:id/messages", adminReplyTicket)
	webserver.ApiPOST("/support/tickets/:id/seen", adminMarkTicketSeen)
	webserver.ApiPOST("/support/tickets/:id/close", closeTicket)
	webserver.ApiPOST("/support/tickets/:id/reopen", reopenTicket)
	webserver.ApiPOST("/support/tickets/:id/assign", assignTicket)
	webserver.ApiDELETE("/support/tickets/:id", deleteTicket)
	webserver.ApiGET("/support/unread", adminUnreadCount)
}

func listTickets(c echo.Context) error {
	page, perPage := parsePagination(c)

	db := GetDB(c).Model(&domain.Ticket{})
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if category := c.QueryParam("category"); category != "" {
		db = db.Where("category = ?", category)
	}
	if userID := c.QueryParam("user_id"); userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		db = db.Where("LOWER(subject) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	order := webserver.SortOrder(c, map[string]string{
		"id":         "id",
		"updated_at": "updated_at",
		"created_at": "created_at",
	})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query tickets", err.Error())
	}
	var rows []domain.Ticket
	if err := db.Order(order).Offset((page-1)*perPage).Limit(perPage).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query tickets", err.Error())
	}
	return paged(c, rows, total, page, perPage)
}

func getTicket(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	var ticket domain.Ticket
	if err := GetDB(c).Where("id = ?", id).First(&ticket).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}

	messages, err := supportSvc.Messages(c.Request().Context(), id, 0)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query messages", err.Error())
	}
	var attachments []domain.Attachment
	GetDB(c).Where("ticket_id = ?", id).Find(&attachments)

	return ok(c, map[string]interface{}{
		"ticket":      ticket,
		"messages":    messages,
		"attachments": attachments,
	})
}

type adminReplyPayload struct {
	Content       string  `json:"content"`
	AttachmentIDs []int64 `json:"attachment_ids"`
}

func adminReplyTicket(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	var payload adminReplyPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse message", err.Error())
	}

	opr := webserver.CurrentOpr(c)
	var oprID int64
	if opr != nil {
		oprID = opr.OprID
	}

	msg, err := supportSvc.AddMessage(c.Request().Context(), id, domain.SenderAdmin, oprID, payload.Content, payload.AttachmentIDs)
	switch {
	case errors.Is(err, support.ErrTicketNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	case errors.Is(err, support.ErrTicketClosed):
		return fail(c, http.StatusConflict, "TICKET_CLOSED", "Ticket is closed", nil)
	case errors.Is(err, support.ErrEmptyContent):
		return fail(c, http.StatusBadRequest, "EMPTY_MESSAGE", "Message content is required", nil)
	case err != nil:
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to send message", err.Error())
	}
	return ok(c, msg)
}

func adminMarkTicketSeen(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	seen, err := supportSvc.MarkSeen(c.Request().Context(), id, domain.SenderAdmin)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to mark messages seen", err.Error())
	}
	return ok(c, map[string]interface{}{"marked": seen})
}

func closeTicket(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	opr := webserver.CurrentOpr(c)
	var oprID int64
	if opr != nil {
		oprID = opr.OprID
	}
	if err := supportSvc.CloseTicket(c.Request().Context(), id, oprID); err != nil {
		return fail(c, http.StatusConflict, "CLOSE_FAILED", "Ticket is not open", nil)
	}
	auditLog(c, oprName(c), "ticket_close", fmt.Sprintf("ticket %d closed", id))
	return ok(c, nil)
}

func reopenTicket(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	if err := supportSvc.ReopenTicket(c.Request().Context(), id); err != nil {
		return fail(c, http.StatusConflict, "REOPEN_FAILED", "Ticket is not closed", nil)
	}
	auditLog(c, oprName(c), "ticket_reopen", fmt.Sprintf("ticket %d reopened", id))
	return ok(c, nil)
}

type assignPayload struct {
	AdminID int64 `json:"admin_id,string"`
}

func assignTicket(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	var payload assignPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse assignment", err.Error())
	}
	adminID := payload.AdminID
	if adminID == 0 {
		if opr := webserver.CurrentOpr(c); opr != nil {
			adminID = opr.OprID
		}
	}
	if err := supportSvc.AssignTicket(c.Request().Context(), id, adminID); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to assign ticket", err.Error())
	}
	return ok(c, nil)
}

func deleteTicket(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	db := GetDB(c)
	db.Where("ticket_id = ?", id).Delete(&domain.Attachment{})
	db.Where("ticket_id = ?", id).Delete(&domain.TicketMessage{})
	if err := db.Where("id = ?", id).Delete(&domain.Ticket{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete ticket", err.Error())
	}
	auditLog(c, oprName(c), "ticket_delete", fmt.Sprintf("ticket %d deleted", id))
	return ok(c, nil)
}

func adminUnreadCount(c echo.Context) error {
	count, err := supportSvc.UnreadForAdmin(context.Background())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count unread messages", err.Error())
	}
	return ok(c, map[string]interface{}{"unread": count})
}
