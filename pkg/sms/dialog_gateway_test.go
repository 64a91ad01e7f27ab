package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPhoneForDialog(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{"10-digit format with leading 0", "0771234567", "771234567", false},
		{"11-digit format with country code 94", "94771234567", "771234567", false},
		{"12-digit format with +94", "+94771234567", "771234567", false},
		{"Already 9-digit format", "771234567", "771234567", false},
		{"With spaces", "077 123 4567", "771234567", false},
		{"Landline prefix", "0112345678", "", true},
		{"International", "+12125550100", "", true},
		{"Too short", "07712", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := FormatPhoneForDialog(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDialogGateway_SendMessage(t *testing.T) {
	var logins int32
	var sent sendSMSRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			atomic.AddInt32(&logins, 1)
			_ = json.NewEncoder(w).Encode(loginResponse{Status: "success", Token: "tok", Expiration: 3600})
		case "/sms":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			_, _ = w.Write([]byte(`{"status":"success","data":{"campaignId":1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	gateway := NewDialogGateway(DialogConfig{APIURL: server.URL + "/", Username: "u", Password: "p", Mask: "Staylet"})

	id, err := gateway.SendMessage(context.Background(), "0771234567", "Your reference is K7Q2ZP")
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, "771234567", sent.MSISDN[0].Mobile)
	assert.Equal(t, "Staylet", sent.SourceAddress)

	_, err = gateway.SendMessage(context.Background(), "0771234567", "again")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins), "token should be reused")
}

func TestDialogURLGateway_SendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("esmsqk"))
		if r.URL.Query().Get("list") == "771234567" {
			_, _ = w.Write([]byte("1"))
			return
		}
		_, _ = w.Write([]byte("2001"))
	}))
	defer server.Close()

	gateway := NewDialogURLGateway("key", "Staylet")
	gateway.endpoint = server.URL

	_, err := gateway.SendMessage(context.Background(), "0771234567", "hello")
	assert.NoError(t, err)

	_, err = gateway.SendMessage(context.Background(), "0761234567", "hello")
	assert.ErrorContains(t, err, "2001")
}
