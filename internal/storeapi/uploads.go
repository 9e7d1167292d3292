package storeapi

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/random"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

var allowedUploadExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
	".txt":  true,
	".log":  true,
	".zip":  true,
}

func registerUploadRoutes() {
	webserver.StorePOST("/uploads", uploadAttachment)
	webserver.StoreDELETE("/uploads/:id", deleteAttachment)
}

// uploadAttachment accepts one multipart file and creates an unlinked
// attachment row. The row binds to a message when the message is posted;
// unlinked rows past the grace period are swept by the cleanup job.
func uploadAttachment(c echo.Context) error {
	user := webserver.CurrentUser(c)
	appCtx := GetAppContext(c)
	cfg := appCtx.Config()

	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "A file field is required", nil)
	}

	maxBytes := int64(cfg.Web.MaxUploadMB) * 1024 * 1024
	if maxBytes > 0 && fh.Size > maxBytes {
		return fail(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit", nil)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedUploadExt[ext] {
		return fail(c, http.StatusBadRequest, "FILE_TYPE_NOT_ALLOWED", "This file type is not accepted", nil)
	}

	src, err := fh.Open()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to read upload", err.Error())
	}
	defer src.Close()

	storedName := random.String(8, random.Lowercase, random.Numeric) + ext
	destPath := filepath.Join(cfg.AbsUploadDir(), storedName)
	dst, err := os.Create(destPath)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to store upload", err.Error())
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(destPath)
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to store upload", err.Error())
	}

	att := domain.Attachment{
		ID:          common.UUIDint64(),
		UserID:      user.ID,
		FileName:    filepath.Base(fh.Filename),
		StoredName:  storedName,
		Size:        fh.Size,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		URL:         "/uploads/" + storedName,
		CreatedAt:   time.Now(),
	}
	if err := GetDB(c).Create(&att).Error; err != nil {
		os.Remove(destPath)
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to record upload", err.Error())
	}
	return ok(c, att)
}

// deleteAttachment removes an upload that has not yet been linked to a
// message.
func deleteAttachment(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid attachment ID", nil)
	}
	user := webserver.CurrentUser(c)

	var att domain.Attachment
	err = GetDB(c).Where("id = ? AND user_id = ? AND message_id = 0", id, user.ID).First(&att).Error
	if err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Attachment not found", nil)
	}

	if err := GetDB(c).Delete(&att).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete attachment", err.Error())
	}
	if att.StoredName != "" {
		os.Remove(filepath.Join(GetAppContext(c).Config().AbsUploadDir(), att.StoredName))
	}
	return ok(c, nil)
}
