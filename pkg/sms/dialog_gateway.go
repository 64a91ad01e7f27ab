package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// DialogGateway sends SMS through the Dialog eSMS API v2 (token auth)
type DialogGateway struct {
	apiURL   string
	username string
	password string
	mask     string
	client   *http.Client

	tokenMutex  sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// DialogConfig holds configuration for Dialog SMS Gateway
type DialogConfig struct {
	APIURL   string
	Username string
	Password string
	Mask     string
}

// NewDialogGateway creates a new Dialog SMS Gateway client
func NewDialogGateway(config DialogConfig) *DialogGateway {
	return &DialogGateway{
		apiURL:   strings.TrimRight(config.APIURL, "/"),
		username: config.Username,
		password: config.Password,
		mask:     config.Mask,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // seconds
	ErrCode    string `json:"errCode"`
}

type smsRecipient struct {
	Mobile string `json:"mobile"`
}

type sendSMSRequest struct {
	MSISDN        []smsRecipient `json:"msisdn"`
	Message       string         `json:"message"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	TransactionID int64          `json:"transaction_id"`
	PaymentMethod int            `json:"payment_method"` // 0 = wallet
}

type sendSMSResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID   int     `json:"campaignId"`
		CampaignCost float64 `json:"campaignCost"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// SendMessage sends one text through the v2 API, logging in first when the
// cached token is missing or about to expire
func (d *DialogGateway) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	formattedPhone, err := FormatPhoneForDialog(phone)
	if err != nil {
		return 0, fmt.Errorf("failed to format phone number: %w", err)
	}

	token, err := d.ensureValidToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get access token: %w", err)
	}

	transactionID := time.Now().UnixMicro()
	payload := sendSMSRequest{
		MSISDN:        []smsRecipient{{Mobile: formattedPhone}},
		Message:       message,
		SourceAddress: d.mask,
		TransactionID: transactionID,
	}

	var resp sendSMSResponse
	if err := d.postJSON(ctx, "/sms", token, payload, &resp); err != nil {
		return 0, err
	}
	if resp.Status != "success" {
		return 0, fmt.Errorf("SMS sending failed: %s (error code: %s)", resp.Comment, resp.ErrCode)
	}
	return transactionID, nil
}

// GetName returns the name of this SMS gateway
func (d *DialogGateway) GetName() string {
	return "Dialog API v2 Gateway"
}

func (d *DialogGateway) ensureValidToken(ctx context.Context) (string, error) {
	d.tokenMutex.RLock()
	token, expiry := d.token, d.tokenExpiry
	d.tokenMutex.RUnlock()

	// Refresh 5 minutes early
	if token != "" && time.Now().Before(expiry.Add(-5*time.Minute)) {
		return token, nil
	}

	var resp loginResponse
	if err := d.postJSON(ctx, "/login", "", loginRequest{Username: d.username, Password: d.password}, &resp); err != nil {
		return "", err
	}
	if resp.Status != "success" {
		return "", fmt.Errorf("login failed: %s (error code: %s)", resp.Comment, resp.ErrCode)
	}

	d.tokenMutex.Lock()
	d.token = resp.Token
	d.tokenExpiry = time.Now().Add(time.Duration(resp.Expiration) * time.Second)
	d.tokenMutex.Unlock()

	return resp.Token, nil
}

func (d *DialogGateway) postJSON(ctx context.Context, path, token string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// FormatPhoneForDialog converts a Sri Lankan mobile number to Dialog's 9-digit format.
// Input: "0771234567", "94771234567" or "+94771234567". Output: "771234567".
func FormatPhoneForDialog(phone string) (string, error) {
	phone = nonDigits.ReplaceAllString(phone, "")

	if strings.HasPrefix(phone, "94") && len(phone) == 11 {
		phone = phone[2:]
	}
	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = phone[1:]
	}

	if len(phone) != 9 {
		return "", fmt.Errorf("invalid phone number length after formatting: %d digits (expected 9)", len(phone))
	}
	if !strings.HasPrefix(phone, "7") {
		return "", fmt.Errorf("invalid Sri Lankan mobile prefix: must start with 7")
	}
	return phone, nil
}
