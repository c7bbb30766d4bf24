package receipt

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"upgrade_checkout_echo/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var receiptTemplate = template.Must(template.ParseFS(templateFS, "templates/receipt.html"))

const (
	notSpecified       = "Not specified"
	defaultPackageName = "Safari Package"
	notAvailable       = "N/A"
	unknownItem        = "Unknown Item"
	freeBookingMethod  = "Coupon (100% discount)"

	DefaultPaymentMethod = "Credit Card (Stripe)"

	paymentDateLayout = "02 January 2006 at 15:04"
	bookingDateLayout = "02 January 2006"
	customerIDLength  = 10
)

// Variant selects the audience of a rendered receipt
type Variant int

const (
	VariantCustomer Variant = iota
	VariantAdmin
)

func (v Variant) String() string {
	if v == VariantAdmin {
		return "admin"
	}
	return "customer"
}

// Company holds the business details printed on every receipt
type Company struct {
	Name    string
	Initial string
	Tagline string
	Address string
	Email   string
	Phone   string
}

// DefaultCompany is the business the receipts are issued by
var DefaultCompany = Company{
	Name:    "KenyaOnABudget Safaris",
	Initial: "K",
	Tagline: "Kenya On Your Terms: Smart Or Grand We Make it Happen!",
	Address: "FARINGDON (SN7), SHELLINGFORD, FERNHAM ROAD, UNITED KINGDOM",
	Email:   "info@kenyaonabudgetsafaris.co.uk",
	Phone:   "+44 7376 642 148",
}

// Renderer assembles receipt documents. The zero value is not usable; use NewRenderer.
type Renderer struct {
	Prefix        string
	PaymentMethod string
	Company       Company
	Location      *time.Location
	Encode        QREncoder
	Now           func() time.Time
	tmpl          *template.Template
}

// NewRenderer creates a renderer with the default QR encoder and company details.
// paymentMethod is the label shown for paid (non-free) bookings.
func NewRenderer(prefix, paymentMethod string) *Renderer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}
	return &Renderer{
		Prefix:        prefix,
		PaymentMethod: paymentMethod,
		Company:       DefaultCompany,
		Location:      time.UTC,
		Encode:        PNGEncoder,
		Now:           time.Now,
		tmpl:          receiptTemplate,
	}
}

// Document is a rendered receipt
type Document struct {
	ReceiptNumber string
	Amounts       Amounts
	HTML          string
}

type itemRow struct {
	Title    string
	Quantity int64
	Price    string
}

type view struct {
	Admin         bool
	Company       Company
	ReceiptNumber string
	PaymentDate   string
	BookingDate   string
	PackageName   string
	PackageID     string
	CustomerName  string
	CustomerEmail string
	CustomerID    string
	Items         []itemRow
	Amounts       Amounts
	Original      string
	Discount      string
	Final         string
	DiscountLine  string
	ProcessingFee string
	PaymentMethod string
	QRImage       template.URL
	Year          int
}

// Render produces the customer copy of the receipt
func (r *Renderer) Render(b models.BookingData, items []models.ReceiptItem) (*Document, error) {
	return r.RenderFor(VariantCustomer, b, items)
}

// RenderFor produces the receipt for the given audience. Missing optional fields are
// replaced by defaults; only a template failure is returned, as a *models.RenderError.
func (r *Renderer) RenderFor(variant Variant, b models.BookingData, items []models.ReceiptItem) (doc *Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, &models.RenderError{Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	now := r.now()
	amounts := CalculateAmounts(b)
	receiptNumber := ResolveIdentifier([]string{b.BookingID, b.ReceiptNumber}, func() string {
		return NewReceiptCode(r.Prefix)
	})

	paymentDate := r.formatDate(b.PaymentDate, now, paymentDateLayout)
	v := view{
		Admin:         variant == VariantAdmin,
		Company:       r.Company,
		ReceiptNumber: receiptNumber,
		PaymentDate:   paymentDate,
		BookingDate:   r.formatDate(b.Timestamp, now, bookingDateLayout),
		PackageName:   orDefault(b.PackageName, defaultPackageName),
		PackageID:     orDefault(b.PackageID, notAvailable),
		CustomerName:  orDefault(b.CustomerName, notSpecified),
		CustomerEmail: orDefault(b.CustomerEmail, notSpecified),
		CustomerID:    customerID(b.UserID),
		Items:         rows(items),
		Amounts:       amounts,
		Original:      FormatMoney(amounts.Original),
		Discount:      FormatMoney(amounts.Discount),
		Final:         FormatMoney(amounts.Final),
		DiscountLine:  fmt.Sprintf("%s (%s%%)", FormatMoney(amounts.Discount), amounts.PercentageText()),
		ProcessingFee: FormatMoney(decimal.Zero),
		PaymentMethod: r.PaymentMethod,
		Year:          now.Year(),
	}
	if amounts.IsFreeBooking {
		v.PaymentMethod = freeBookingMethod
	}

	coupon := amounts.CouponCode
	if coupon == "" {
		coupon = "None"
	}
	v.QRImage = template.URL(QRImageURL(QRPayload{
		ReceiptNumber: receiptNumber,
		BookingID:     orDefault(b.BookingID, receiptNumber),
		PackageName:   b.PackageName,
		Amount:        amounts.Original,
		FinalAmount:   amounts.Final,
		Discount:      amounts.Discount,
		CouponCode:    coupon,
		Date:          paymentDate,
		UserID:        b.UserID,
	}, r.Encode))

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "receipt", v); err != nil {
		return nil, &models.RenderError{Err: err}
	}
	return &Document{ReceiptNumber: receiptNumber, Amounts: amounts, HTML: buf.String()}, nil
}

func (r *Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Renderer) formatDate(t, fallback time.Time, layout string) string {
	if t.IsZero() {
		t = fallback
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(layout)
}

func rows(items []models.ReceiptItem) []itemRow {
	out := make([]itemRow, 0, len(items))
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		out = append(out, itemRow{
			Title:    orDefault(it.Title, unknownItem),
			Quantity: qty,
			Price:    FormatMoney(it.Price),
		})
	}
	return out
}

func customerID(userID string) string {
	if userID == "" {
		return "Not available"
	}
	if r := []rune(userID); len(r) > customerIDLength {
		userID = string(r[:customerIDLength])
	}
	return userID + "..."
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
