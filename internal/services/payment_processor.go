package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nipeshtamang/ebus-sub002/internal/config"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
	"github.com/sirupsen/logrus"
)

// ChargeRequest is what a processor needs to settle an order
type ChargeRequest struct {
	OrderID  uuid.UUID
	Amount   float64
	Currency string
	Method   models.PaymentMethod
}

// ChargeResult is the processor's verdict. A declined charge is not an error.
type ChargeResult struct {
	Approved      bool
	Reference     string
	FailureReason string
}

// PaymentProcessor settles and refunds payments
type PaymentProcessor interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, payment *models.Payment, amount float64) error
	Name() string
}

// OfflineProcessor accepts counter, bank and manual payments, which are
// settled before they reach the system
type OfflineProcessor struct{}

func (OfflineProcessor) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	return &ChargeResult{
		Approved:  true,
		Reference: fmt.Sprintf("%s-%s", req.Method, strings.ToUpper(req.OrderID.String()[:8])),
	}, nil
}

func (OfflineProcessor) Refund(context.Context, *models.Payment, float64) error { return nil }

func (OfflineProcessor) Name() string { return "offline" }

// ============================================================================
// ONLINE GATEWAY
// ============================================================================

// GatewayProcessor charges ESEWA, KHALTI and IPS_CONNECT payments through
// the configured aggregator
type GatewayProcessor struct {
	config config.PaymentConfig
	client *http.Client
	logger *logrus.Logger
}

// gatewayChargeRequest is the body sent to the aggregator.
// NOTE: merchantToken is never sent, it only seeds the check value.
type gatewayChargeRequest struct {
	MerchantKey   string `json:"merchantKey"`
	InvoiceID     string `json:"invoiceId"`
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currencyCode"`
	PaymentMethod string `json:"paymentMethod"`
	CheckValue    string `json:"checkValue"`
}

type gatewayRefundRequest struct {
	MerchantKey string `json:"merchantKey"`
	UID         string `json:"uid"`
	InvoiceID   string `json:"invoiceId"`
	Amount      string `json:"amount"`
	CheckValue  string `json:"checkValue"`
}

// gatewayResponse is the aggregator reply for charges and refunds
type gatewayResponse struct {
	Status  string `json:"status"` // "success", "failed" or "error"
	UID     string `json:"uid"`
	Message string `json:"message,omitempty"`
}

// NewGatewayProcessor creates a gateway client
func NewGatewayProcessor(cfg config.PaymentConfig, logger *logrus.Logger) *GatewayProcessor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayProcessor{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// IsConfigured returns true if merchant credentials and endpoint are set
func (g *GatewayProcessor) IsConfigured() bool {
	return g.config.GatewayURL != "" && g.config.MerchantKey != "" && g.config.MerchantToken != ""
}

func (g *GatewayProcessor) Name() string { return "gateway" }

// CheckValue signs a request:
// hash1 = SHA512(merchantToken) uppercase hex
// hash2 = SHA512("merchantKey|invoiceId|amount|currencyCode|hash1") uppercase hex
func (g *GatewayProcessor) CheckValue(invoiceID, amount, currencyCode string) string {
	hash1 := sha512.Sum512([]byte(g.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		g.config.MerchantKey,
		invoiceID,
		amount,
		currencyCode,
		hash1Hex,
	)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// Charge asks the aggregator to settle the order. Transport failures are
// errors; a decline comes back as an unapproved result.
func (g *GatewayProcessor) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if !g.IsConfigured() {
		return nil, fmt.Errorf("payment gateway not configured: missing merchant credentials")
	}

	invoiceID := req.OrderID.String()
	amount := fmt.Sprintf("%.2f", req.Amount)

	body := gatewayChargeRequest{
		MerchantKey:   g.config.MerchantKey,
		InvoiceID:     invoiceID,
		Amount:        amount,
		CurrencyCode:  req.Currency,
		PaymentMethod: string(req.Method),
		CheckValue:    g.CheckValue(invoiceID, amount, req.Currency),
	}

	g.logger.WithFields(logrus.Fields{
		"invoice_id":  invoiceID,
		"amount":      amount,
		"method":      req.Method,
		"environment": g.config.Environment,
	}).Info("Charging through payment gateway")

	resp, err := g.post(ctx, "/charges", body)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(resp.Status, "success") {
		reason := resp.Message
		if reason == "" {
			reason = fmt.Sprintf("gateway status %s", resp.Status)
		}
		return &ChargeResult{Approved: false, Reference: resp.UID, FailureReason: reason}, nil
	}

	if resp.UID == "" {
		return nil, fmt.Errorf("payment gateway approved without a transaction id")
	}
	return &ChargeResult{Approved: true, Reference: resp.UID}, nil
}

// Refund returns amount of a settled payment
func (g *GatewayProcessor) Refund(ctx context.Context, payment *models.Payment, amount float64) error {
	if !g.IsConfigured() {
		return fmt.Errorf("payment gateway not configured: missing merchant credentials")
	}
	if payment.ProcessorReference == nil {
		return fmt.Errorf("payment %s has no gateway reference", payment.ID)
	}

	invoiceID := payment.OrderID.String()
	formatted := fmt.Sprintf("%.2f", amount)

	resp, err := g.post(ctx, "/refunds", gatewayRefundRequest{
		MerchantKey: g.config.MerchantKey,
		UID:         *payment.ProcessorReference,
		InvoiceID:   invoiceID,
		Amount:      formatted,
		CheckValue:  g.CheckValue(invoiceID, formatted, payment.Currency),
	})
	if err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status, "success") {
		return fmt.Errorf("gateway refund rejected: %s", resp.Message)
	}
	return nil
}

func (g *GatewayProcessor) post(ctx context.Context, path string, payload interface{}) (*gatewayResponse, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(g.config.GatewayURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.WithError(err).WithField("endpoint", endpoint).Error("Failed to call payment gateway")
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"endpoint":    endpoint,
	}).Debug("Payment gateway response received")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &parsed, nil
}

// ============================================================================
// ROUTING
// ============================================================================

// ProcessorSet picks the processor for a payment method
type ProcessorSet struct {
	offline PaymentProcessor
	online  PaymentProcessor
}

// NewProcessorSet routes online gateway methods to online and everything
// else to offline. A nil online processor sends every method offline.
func NewProcessorSet(offline, online PaymentProcessor) *ProcessorSet {
	if online == nil {
		online = offline
	}
	return &ProcessorSet{offline: offline, online: online}
}

// For returns the processor responsible for method
func (p *ProcessorSet) For(method models.PaymentMethod) PaymentProcessor {
	if method.IsOnlineGateway() {
		return p.online
	}
	return p.offline
}
