package parser

import (
	"fmt"
	"net/mail"
	"strings"
)

// ParseEmailAddress parses an email address string into name and address components
func ParseEmailAddress(emailStr string) (name, address string) {
	emailStr = strings.TrimSpace(emailStr)
	if emailStr == "" {
		return "", ""
	}

	addr, err := mail.ParseAddress(emailStr)
	if err != nil {
		// If parsing fails, try to extract just the email part
		if start := strings.Index(emailStr, "<"); start != -1 {
			if end := strings.Index(emailStr[start:], ">"); end != -1 {
				address = emailStr[start+1 : start+end]
				name = strings.Trim(strings.TrimSpace(emailStr[:start]), `"`)
				return name, strings.TrimSpace(address)
			}
		}

		// If still no success, just return the original string as address
		return "", emailStr
	}

	return addr.Name, addr.Address
}

// SenderEmail returns the lowercase address of a raw From header
func SenderEmail(from string) string {
	_, address := ParseEmailAddress(from)
	return strings.ToLower(strings.TrimSpace(address))
}

// FormatEmailAddress formats name and address into a standard email address string
func FormatEmailAddress(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

func formatAddressList(list []*mail.Address) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		if a == nil {
			continue
		}
		parts = append(parts, FormatEmailAddress(a.Name, a.Address))
	}
	return strings.Join(parts, ", ")
}
