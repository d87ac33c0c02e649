package notify

import (
	"bytes"
	"html/template"
	"strings"

	"storefront/internal/models"
)

type statusCopy struct {
	Subject string
	Message string
	Color   template.CSS
}

var statusCopies = map[models.OrderStatus]statusCopy{
	models.OrderProcessing: {"Your order is being prepared", "Your payment is confirmed and we are preparing your order.", "#10b981"},
	models.OrderShipped:    {"Your order has shipped", "Good news! Your order is on its way.", "#3b82f6"},
	models.OrderDelivered:  {"Your order was delivered", "Your order has been delivered. We hope you enjoy it!", "#8b5cf6"},
	models.OrderCancelled:  {"Your order was cancelled", "Your order has been cancelled. Contact us if you have any questions.", "#ef4444"},
	models.OrderRefunded:   {"Your refund has been issued", "Your refund has been processed. Funds usually arrive within 5-10 business days.", "#f59e0b"},
}

func copyFor(status models.OrderStatus) statusCopy {
	if c, ok := statusCopies[status]; ok {
		return c
	}
	return statusCopy{"Your order was updated", "The status of your order has been updated.", "#6b7280"}
}

var funcs = template.FuncMap{
	"money": func(v interface{ StringFixed(int32) string }) string { return v.StringFixed(2) },
	"upper": strings.ToUpper,
	// The QR data URI is produced locally, never from user input.
	"dataURI": func(s string) template.URL { return template.URL(s) },
}

var receiptTmpl = template.Must(template.New("receipt").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Order #{{.Order.OrderNumber}}</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
	<h2 style="color: #333;">{{.StoreName}}: order #{{.Order.OrderNumber}}</h2>
	<p>Hello {{.Order.CustomerName}},</p>
	<p>Thank you for your order. Here is your receipt.</p>
	<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr style="background-color: #f0f0f0;">
				<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Product</th>
				<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Qty</th>
				<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Unit price</th>
				<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Total</th>
			</tr>
		</thead>
		<tbody>
		{{range .Order.Items}}
			<tr>
				<td style="padding: 10px; border: 1px solid #ddd;">{{.Title}}{{if .VariantName}} ({{.VariantName}}){{end}}</td>
				<td style="padding: 10px; border: 1px solid #ddd;">{{.Quantity}}</td>
				<td style="padding: 10px; border: 1px solid #ddd;">{{money .UnitPrice}} {{$.Currency}}</td>
				<td style="padding: 10px; border: 1px solid #ddd;">{{money .LineTotal}} {{$.Currency}}</td>
			</tr>
		{{end}}
		</tbody>
		<tfoot>
			<tr><td colspan="3" style="padding: 6px; text-align: right;">Subtotal</td><td>{{money .Order.Subtotal}} {{.Currency}}</td></tr>
			<tr><td colspan="3" style="padding: 6px; text-align: right;">Shipping</td><td>{{money .Order.ShippingFee}} {{.Currency}}</td></tr>
			{{if .Order.Discount.IsPositive}}<tr><td colspan="3" style="padding: 6px; text-align: right;">Discount{{if .Order.CouponCode}} ({{.Order.CouponCode}}){{end}}</td><td>-{{money .Order.Discount}} {{.Currency}}</td></tr>{{end}}
			<tr><td colspan="3" style="padding: 10px; text-align: right; font-weight: bold;">Total</td><td style="font-weight: bold;">{{money .Order.Total}} {{.Currency}}</td></tr>
		</tfoot>
	</table>
	{{if .BankTransfer}}
	<h3>Bank transfer</h3>
	<p>Please transfer {{money .Order.Total}} {{.Currency}} to {{.BankTransfer.Name}}, IBAN {{.BankTransfer.IBAN}}{{if .BankTransfer.BIC}}, BIC {{.BankTransfer.BIC}}{{end}}, reference <strong>{{.BankTransfer.Reference}}</strong>.</p>
	{{if .BankTransfer.QR}}<img src="{{dataURI .BankTransfer.QR}}" alt="SEPA QR code" width="200" height="200">{{end}}
	{{end}}
	<p style="margin-top: 30px; color: #555;">The {{.StoreName}} team</p>
</div>
</body>
</html>`))

var statusTmpl = template.Must(template.New("status").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Copy.Subject}}</title></head>
<body style="margin: 0; padding: 40px 20px; font-family: Arial, sans-serif; background-color: #f5f5f5;">
<div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 12px; padding: 30px;">
	<h1 style="margin: 0; color: #333; font-size: 24px;">{{.StoreName}}</h1>
	<div style="display: inline-block; margin: 20px 0; padding: 10px 20px; background-color: {{.Copy.Color}}; color: #ffffff; border-radius: 25px; font-weight: 600;">{{upper (print .Order.Status)}}</div>
	<p style="color: #333; font-size: 16px;">{{.Copy.Message}}</p>
	<p><strong>Order:</strong> #{{.Order.OrderNumber}}<br><strong>Total:</strong> {{money .Order.Total}} {{.Currency}}</p>
	{{with .Note}}<p style="color: #555;">{{.}}</p>{{end}}
</div>
</body>
</html>`))

type bankTransfer struct {
	Name      string
	IBAN      string
	BIC       string
	Reference string
	QR        string
}

type receiptData struct {
	StoreName    string
	Currency     string
	Order        *models.Order
	BankTransfer *bankTransfer
}

type statusData struct {
	StoreName string
	Currency  string
	Order     *models.Order
	Copy      statusCopy
	Note      string
}

func render(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
