// Package domain contains the progressive billing ledger: mid-period
// invoices issued before the period closes, so the close-out bills only the
// remainder.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subdomain "github.com/smallbiznis/meterflow/internal/subscription/domain"
)

// ProgressiveInvoice is one mid-period billing row. Voided rows stay in
// place but no longer count toward the period's billed total.
type ProgressiveInvoice struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	SubscriptionID snowflake.ID `json:"subscription_id" gorm:"not null;index"`
	AmountCents    int64        `json:"amount_cents" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	IssuedAt       time.Time    `json:"issued_at" gorm:"not null;index"`
	VoidedAt       *time.Time   `json:"voided_at"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProgressiveInvoice) TableName() string { return "progressive_invoices" }

type Service interface {
	// IncrementalAmountDue is what a mid-period invoice issued now should
	// bill: projected usage minus what the period already billed, never
	// negative.
	IncrementalAmountDue(ctx context.Context, sub subdomain.Subscription, periodStart, periodEnd time.Time) (int64, error)
	// PeriodCredit is the non-voided amount already billed in the period,
	// credited against the closing invoice.
	PeriodCredit(ctx context.Context, sub subdomain.Subscription, periodStart, periodEnd time.Time) (int64, error)
	// RecordInvoice appends one billed row to the period's ledger.
	RecordInvoice(ctx context.Context, sub subdomain.Subscription, amountCents int64, currency string) (*ProgressiveInvoice, error)
	// VoidInvoice removes a row from the billed total without deleting it.
	VoidInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) error
}

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrInvalidAmount   = errors.New("invalid_amount")
)
