package extractor

import (
	"strings"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/utility/u_string"
)

const itemSchema = `"items": [
    {
      "description": "string",
      "quantity": number,
      "unitPrice": number,
      "totalPrice": number,
      "specification": "string"
    }
  ],
  "totalAmount": number,
  "currency": "string",`

const orderSchema = `{
  "customerName": "string",
  "customerEmail": "string",
  "customerPhone": "string",
  "customerCompany": "string",
  "customerAddress": "string",
  "orderNumber": "string",
  ` + itemSchema + `
  "dueDate": "YYYY-MM-DD",
  "rushOrder": boolean,
  "deliveryAddress": "string"
}`

const estimateSchema = `{
  "customerName": "string",
  "customerEmail": "string",
  "customerPhone": "string",
  "customerCompany": "string",
  "customerAddress": "string",
  "estimateNumber": "string",
  ` + itemSchema + `
  "projectDescription": "string",
  "validUntil": "YYYY-MM-DD",
  "notes": "string"
}`

// BuildPrompt embeds the schema of t and the email content
func BuildPrompt(email *models.Email, t models.ContentType) string {
	schema := estimateSchema
	kind := "estimate request"
	if t == models.TypeOrder {
		schema = orderSchema
		kind = "order"
	}

	var b strings.Builder
	b.WriteString("Extract the " + kind + " details from the email below.\n")
	b.WriteString("Reply with a single JSON object that follows this schema. ")
	b.WriteString("Leave out fields that are not mentioned and always include the items array.\n\n")
	b.WriteString(schema)
	b.WriteString("\n\nSubject: " + email.Subject + "\n")
	b.WriteString("From: " + email.From + "\n")
	b.WriteString("Body:\n" + u_string.Truncate(u_string.PlainText(email.Body), promptBodyLimit))
	return b.String()
}
