package archive

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/altafino/order-mail-extractor/internal/utility/u_io"
)

// PlaceholderOrderNumber stands in for the order number until a human
// renames the folder.
const PlaceholderOrderNumber = "ORDER_VAR"

// MimeToExt maps MIME types to file extensions
var MimeToExt = map[string]string{
	"application/pdf":          ".pdf",
	"application/msword":       ".doc",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/tiff":       ".tiff",
	"text/plain":       ".txt",
	"text/html":        ".html",
	"text/csv":         ".csv",
	"text/xml":         ".xml",
	"application/zip":  ".zip",
	"application/json": ".json",
}

// CustomerName derives a customer name from a raw From header: the display
// name when present, otherwise the local part of the address.
func CustomerName(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return "Unknown"
	}

	if addr, err := mail.ParseAddress(from); err == nil {
		if name := strings.TrimSpace(addr.Name); name != "" {
			return name
		}
		from = addr.Address
	}

	if at := strings.Index(from, "@"); at > 0 {
		return strings.Trim(from[:at], "<>\" ")
	}
	return strings.Trim(from, "<>\" ")
}

// SanitizeFolderPart replaces every character outside [A-Za-z0-9_-] with '_'
func SanitizeFolderPart(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, s)
}

// FolderName builds customer_YYYY-MM-DD_orderNumber. Two emails from the
// same customer on the same day without an order number share a folder.
func FolderName(customer string, date time.Time, orderNumber string) string {
	if strings.TrimSpace(orderNumber) == "" {
		orderNumber = PlaceholderOrderNumber
	}
	if date.IsZero() {
		date = time.Now()
	}

	return fmt.Sprintf("%s_%s_%s",
		SanitizeFolderPart(customer),
		date.UTC().Format("2006-01-02"),
		SanitizeFolderPart(orderNumber),
	)
}

// attachmentName sanitizes an attachment filename and makes it unique
// within one archive folder.
func attachmentName(filename, contentType string, index int, used map[string]bool) string {
	name := u_io.CleanFilename(filepath.Base(filename))
	name = strings.Trim(name, ". ")

	if name == "" {
		ext := ".bin"
		if e, ok := MimeToExt[strings.ToLower(contentType)]; ok {
			ext = e
		}
		name = fmt.Sprintf("attachment_%d%s", index+1, ext)
	}

	// Reserved for the archive's own files
	switch strings.ToLower(name) {
	case "email.html", "email.json", "parsed_order_data.json", "parsed_estimate_data.json":
		name = "attachment_" + name
	}

	candidate := name
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; used[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
	used[strings.ToLower(candidate)] = true

	return candidate
}
