package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const dialogURLCampaignEndpoint = "https://e-sms.dialog.lk/api/v1/message-via-url/create/url-campaign"

// DialogURLGateway sends SMS through Dialog's GET-based URL campaign API,
// authenticated with an esmsqk key instead of username and password
type DialogURLGateway struct {
	apiKey   string
	mask     string
	endpoint string
	client   *http.Client
}

// NewDialogURLGateway creates a new Dialog URL gateway instance
func NewDialogURLGateway(apiKey, mask string) *DialogURLGateway {
	return &DialogURLGateway{
		apiKey:   apiKey,
		mask:     mask,
		endpoint: dialogURLCampaignEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// SendMessage sends one text. Dialog answers "1" on success and an error id otherwise.
func (d *DialogURLGateway) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	formattedPhone, err := FormatPhoneForDialog(phone)
	if err != nil {
		return 0, fmt.Errorf("invalid phone number: %w", err)
	}

	params := url.Values{}
	params.Add("esmsqk", d.apiKey)
	params.Add("list", formattedPhone)
	params.Add("source_address", d.mask)
	params.Add("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create SMS request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read SMS response: %w", err)
	}
	result := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("SMS API returned status %d: %s", resp.StatusCode, result)
	}
	if result != "1" {
		return 0, fmt.Errorf("SMS sending failed with error code: %s", result)
	}
	return time.Now().Unix(), nil
}

// GetName returns the name of this SMS gateway
func (d *DialogURLGateway) GetName() string {
	return "Dialog URL Gateway"
}
