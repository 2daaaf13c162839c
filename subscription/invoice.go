package subscription

import (
	"context"
	"errors"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceLink records the ERP invoice created for a gateway invoice, written before the gateway invoice is tagged
type InvoiceLink struct {
	GatewayInvoiceID string    `json:"gatewayInvoiceId" gorm:"primaryKey"`
	ERPInvoiceID     string    `json:"erpInvoiceId"`
	SubscriptionID   string    `json:"subscriptionId" gorm:"index"`
	CreatedAt        time.Time `json:"createdAt"`
}

// LinkInvoice stores link, replacing an earlier link for the same gateway invoice
func (m *Manager) LinkInvoice(ctx context.Context, link *InvoiceLink) error {
	result := m.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(link)
	if result.Error != nil {
		m.Logger.Error("Unable to store invoice link in database",
			zap.String("GatewayInvoiceID", link.GatewayInvoiceID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot link invoice")
	}
	return nil
}

// GetInvoiceLink returns nil, nil if the gateway invoice was never linked
func (m *Manager) GetInvoiceLink(ctx context.Context, gatewayInvoiceID string) (*InvoiceLink, error) {
	if gatewayInvoiceID == "" {
		return nil, nil
	}
	var link InvoiceLink
	result := m.DB.WithContext(ctx).Where("gateway_invoice_id = ?", gatewayInvoiceID).First(&link)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get invoice link")
	}
	return &link, nil
}

// UnlinkInvoice forgets the link of a gateway invoice
func (m *Manager) UnlinkInvoice(ctx context.Context, gatewayInvoiceID string) error {
	result := m.DB.WithContext(ctx).Delete(&InvoiceLink{}, "gateway_invoice_id = ?", gatewayInvoiceID)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot unlink invoice")
	}
	return nil
}
