package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return m.err
}

type fakeReceipts struct {
	mu   sync.Mutex
	objs map[string]string
}

func (r *fakeReceipts) Put(_ context.Context, key string, body []byte, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.objs == nil {
		r.objs = map[string]string{}
	}
	r.objs[key] = string(body)
	return nil
}

type staticSettings models.Settings

func (s staticSettings) Get(context.Context) (models.Settings, error) { return models.Settings(s), nil }

func testSettings() staticSettings {
	st := models.DefaultSettings()
	st.StoreName = "Corner Shop"
	st.BankAccountName = "Corner Shop SRL"
	st.BankIBAN = "BE71096123456769"
	st.BankBIC = "GKCCBEBB"
	return staticSettings(st)
}

func testOrder(method string) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		ID:            primitive.NewObjectID(),
		OrderNumber:   "314159",
		CustomerName:  "Grace <Hopper>",
		GuestEmail:    "grace@example.com",
		PaymentMethod: method,
		Items: []models.OrderItem{
			{Title: "Notebook", Quantity: 2, UnitPrice: decimal.RequireFromString("4.50")},
		},
		Subtotal:    decimal.RequireFromString("9.00"),
		ShippingFee: decimal.RequireFromString("3.00"),
		Discount:    decimal.RequireFromString("1.00"),
		CouponCode:  "HELLO",
		Total:       decimal.RequireFromString("11.00"),
		Status:      models.OrderPending,
		Timeline:    []models.TimelineEntry{{Status: models.OrderPending, Timestamp: now}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestOrderPlacedSendsMailAndArchivesReceipt(t *testing.T) {
	mailer := &fakeMailer{}
	receipts := &fakeReceipts{}
	svc := New(mailer, receipts, testSettings(), nil)

	svc.OrderPlaced(context.Background(), testOrder(models.PaymentMethodBankTransfer))
	svc.Wait()

	require.Len(t, mailer.sent, 1)
	m := mailer.sent[0]
	assert.Equal(t, "grace@example.com", m.to)
	assert.Contains(t, m.subject, "314159")
	assert.Contains(t, m.body, "BE71096123456769")
	assert.Contains(t, m.body, "ORDER-314159")
	assert.Contains(t, m.body, `src="data:image/png;base64,`)
	assert.Contains(t, m.body, "Grace &lt;Hopper&gt;")
	assert.Contains(t, m.body, "9.00 EUR")

	body, ok := receipts.objs[ReceiptKey("314159")]
	require.True(t, ok)
	assert.Equal(t, m.body, body)
}

func TestCardReceiptHasNoBankDetails(t *testing.T) {
	body, err := Receipt(testOrder(models.PaymentMethodCard), models.Settings(testSettings()))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "IBAN")
	assert.Contains(t, string(body), "-1.00 EUR")
}

func TestStatusChanged(t *testing.T) {
	mailer := &fakeMailer{}
	svc := New(mailer, nil, testSettings(), nil)

	o := testOrder(models.PaymentMethodCard)
	o.Status = models.OrderShipped
	o.Timeline = append(o.Timeline, models.TimelineEntry{Status: models.OrderShipped, Note: "Tracking 1Z999"})

	svc.StatusChanged(context.Background(), o)
	svc.Wait()

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Corner Shop: Your order has shipped", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].body, "SHIPPED")
	assert.Contains(t, mailer.sent[0].body, "Tracking 1Z999")
}

func TestMailerFailureIsSwallowed(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	svc := New(mailer, nil, testSettings(), nil)

	assert.NotPanics(t, func() {
		svc.OrderPlaced(context.Background(), testOrder(models.PaymentMethodCard))
		svc.Wait()
	})
	assert.Len(t, mailer.sent, 1)
}

func TestNoRecipientSkipsMail(t *testing.T) {
	mailer := &fakeMailer{}
	svc := New(mailer, nil, testSettings(), nil)

	o := testOrder(models.PaymentMethodCard)
	o.GuestEmail = ""
	svc.StatusChanged(context.Background(), o)
	svc.Wait()

	assert.Empty(t, mailer.sent)
}

func TestSepaPayload(t *testing.T) {
	payload, err := SepaPayload("be71 0961 2345 6769", "gkccbebb", "Corner Shop", "ORDER-1", decimal.RequireFromString("12.5"))
	require.NoError(t, err)

	lines := strings.Split(payload, "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "BCD", lines[0])
	assert.Equal(t, "GKCCBEBB", lines[4])
	assert.Equal(t, "BE71096123456769", lines[6])
	assert.Equal(t, "EUR12.50", lines[7])
	assert.Equal(t, "ORDER-1", lines[10])

	_, err = SepaPayload("", "", "x", "r", decimal.NewFromInt(1))
	assert.Error(t, err)
	_, err = SepaPayload("BE71096123456769", "", "x", "r", decimal.Zero)
	assert.Error(t, err)
}
