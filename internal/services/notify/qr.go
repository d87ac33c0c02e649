package notify

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// SepaPayload builds an EPC069-12 credit transfer payload, the format banking
// apps read from a "scan to pay" QR code.
func SepaPayload(iban, bic, name, reference string, amount decimal.Decimal) (string, error) {
	iban = strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if iban == "" || name == "" {
		return "", errors.New("sepa qr: beneficiary name and IBAN are required")
	}
	if !amount.IsPositive() {
		return "", errors.New("sepa qr: amount must be positive")
	}
	if len(name) > 70 {
		name = name[:70]
	}
	if len(reference) > 140 {
		reference = reference[:140]
	}

	lines := []string{
		"BCD",
		"002",
		"1",
		"SCT",
		strings.ToUpper(bic),
		name,
		iban,
		"EUR" + amount.StringFixed(2),
		"",
		"",
		reference,
	}
	return strings.Join(lines, "\n"), nil
}

// SepaQR returns the payload as a PNG data URI ready for an <img src>.
func SepaQR(iban, bic, name, reference string, amount decimal.Decimal) (string, error) {
	payload, err := SepaPayload(iban, bic, name, reference, amount)
	if err != nil {
		return "", err
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("sepa qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
