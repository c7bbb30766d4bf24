package receipt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const remoteQRURL = "https://api.qrserver.com/v1/create-qr-code/?size=120x120&data="

// QRPayload is the verification content embedded in the receipt QR code.
// The field set is fixed; encoding/json keeps the key order stable.
type QRPayload struct {
	ReceiptNumber string          `json:"receiptNumber"`
	BookingID     string          `json:"bookingId"`
	PackageName   string          `json:"packageName"`
	Amount        decimal.Decimal `json:"amount"`
	FinalAmount   decimal.Decimal `json:"finalAmount"`
	Discount      decimal.Decimal `json:"discount"`
	CouponCode    string          `json:"couponCode"`
	Date          string          `json:"date"`
	UserID        string          `json:"userId"`
}

// Content serialises the payload. It never fails.
func (p QRPayload) Content() string {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%s|%s|%s", p.ReceiptNumber, p.BookingID, p.Date)
	}
	return string(b)
}

// QREncoder renders content into a PNG image
type QREncoder func(content string) ([]byte, error)

// PNGEncoder is the default encoder backed by go-qrcode
func PNGEncoder(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, 256)
}

// QRImageURL renders the payload as an inline PNG data URL. When encoding fails it
// returns a link to a remote QR renderer instead; it never returns an error.
func QRImageURL(p QRPayload, encode QREncoder) string {
	content := p.Content()
	if encode != nil {
		png, err := encode(content)
		if err == nil && len(png) > 0 {
			return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		}
	}
	return RemoteQRURL(content)
}

// RemoteQRURL builds the fallback renderer link for the given content
func RemoteQRURL(content string) string {
	return remoteQRURL + url.QueryEscape(content)
}
