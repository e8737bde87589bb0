package sms

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nipeshtamang/ebus-sub002/pkg/validator"
	"github.com/sirupsen/logrus"
)

// URLGateway sends SMS through a token authenticated HTTP GET API
// (token, from, to, text query parameters)
type URLGateway struct {
	apiURL string
	token  string
	sender string
	client *http.Client
	phones *validator.PhoneValidator
	logger *logrus.Logger
}

// NewURLGateway creates a new URL gateway instance
func NewURLGateway(apiURL, token, sender string, logger *logrus.Logger) *URLGateway {
	return &URLGateway{
		apiURL: apiURL,
		token:  token,
		sender: sender,
		client: &http.Client{Timeout: 30 * time.Second},
		phones: validator.NewPhoneValidator(),
		logger: logger,
	}
}

// Send sends message to phone via the provider's URL API
func (g *URLGateway) Send(phone, message string) (string, error) {
	to, err := g.phones.Validate(phone)
	if err != nil {
		return "", fmt.Errorf("invalid phone number: %w", err)
	}

	params := url.Values{}
	params.Add("token", g.token)
	params.Add("from", g.sender)
	params.Add("to", to)
	params.Add("text", message)

	fullURL := fmt.Sprintf("%s?%s", g.apiURL, params.Encode())

	resp, err := g.client.Get(fullURL)
	if err != nil {
		return "", fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read SMS response: %w", err)
	}
	responseStr := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("SMS API returned status %d: %s", resp.StatusCode, responseStr)
	}

	reference := fmt.Sprintf("%d", time.Now().UnixNano())
	g.logger.WithFields(logrus.Fields{
		"to":        maskPhone(to),
		"reference": reference,
	}).Info("SMS sent")

	return reference, nil
}

// GetName returns the name of this SMS gateway
func (g *URLGateway) GetName() string {
	return "URL Gateway"
}

// LogGateway writes messages to the log instead of sending them (dev mode)
type LogGateway struct {
	logger *logrus.Logger
}

// NewLogGateway creates a gateway that only logs
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// Send logs the message
func (g *LogGateway) Send(phone, message string) (string, error) {
	g.logger.WithFields(logrus.Fields{
		"to":      maskPhone(phone),
		"message": message,
	}).Info("SMS (dev mode, not sent)")
	return "dev", nil
}

// GetName returns the name of this SMS gateway
func (g *LogGateway) GetName() string {
	return "Log Gateway"
}

// maskPhone keeps the last three digits
func maskPhone(phone string) string {
	if len(phone) <= 3 {
		return phone
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}
