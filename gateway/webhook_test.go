package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

const webhookSecret = "whsec_test"

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(eventType string, metadata string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "%s",
		"type": "%s",
		"data": {
			"object": {
				"id": "in_1",
				"object": "invoice",
				"subscription": "sub_1",
				"customer": "cus_1",
				"amount_due": 2990,
				"currency": "usd",
				"metadata": %s
			}
		}
	}`, stripe.APIVersion, eventType, metadata))
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name         string
		eventType    string
		metadata     string
		expectedKind InvoiceEventKind
		expectedERP  string
	}{
		{
			name:         "payment succeeded",
			eventType:    "invoice.payment_succeeded",
			metadata:     `{"erp_invoice_code":"F200"}`,
			expectedKind: InvoicePaymentPassed,
			expectedERP:  "F200",
		},
		{
			name:         "invoice paid",
			eventType:    "invoice.paid",
			metadata:     `{"erp_invoice_code":"F200"}`,
			expectedKind: InvoicePaymentPassed,
			expectedERP:  "F200",
		},
		{
			name:         "payment failed",
			eventType:    "invoice.payment_failed",
			metadata:     `{"erp_invoice_code":"F201"}`,
			expectedKind: InvoicePaymentFailed,
			expectedERP:  "F201",
		},
		{
			name:         "finalized without erp code",
			eventType:    "invoice.finalized",
			metadata:     `{}`,
			expectedKind: InvoiceFinalized,
			expectedERP:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := eventPayload(tt.eventType, tt.metadata)
			evt, err := ParseWebhook(payload, signPayload(payload, webhookSecret), webhookSecret)
			require.NoError(t, err)

			assert.Equal(t, "evt_1", evt.EventID)
			assert.Equal(t, tt.expectedKind, evt.Kind)
			assert.Equal(t, "in_1", evt.Invoice.ID)
			assert.Equal(t, "sub_1", evt.Invoice.SubscriptionID)
			assert.Equal(t, tt.expectedERP, evt.ERPInvoiceCode())
		})
	}
}

func TestParseWebhookIgnored(t *testing.T) {
	payload := eventPayload("customer.created", `{}`)
	_, err := ParseWebhook(payload, signPayload(payload, webhookSecret), webhookSecret)
	assert.ErrorIs(t, err, ErrEventIgnored)
}

func TestParseWebhookBadSignature(t *testing.T) {
	payload := eventPayload("invoice.paid", `{}`)
	_, err := ParseWebhook(payload, signPayload(payload, "whsec_other"), webhookSecret)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEventIgnored)
}
