package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterflow/internal/clock"
	progressivedomain "github.com/smallbiznis/meterflow/internal/progressive/domain"
	subdomain "github.com/smallbiznis/meterflow/internal/subscription/domain"
	thresholddomain "github.com/smallbiznis/meterflow/internal/threshold/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Threshold thresholddomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	threshold thresholddomain.Service
}

func NewService(p ServiceParam) progressivedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("progressive.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		threshold: p.Threshold,
	}
}

func (s *Service) IncrementalAmountDue(ctx context.Context, sub subdomain.Subscription, periodStart, periodEnd time.Time) (int64, error) {
	projected, err := s.threshold.ProjectedAmount(ctx, sub, periodStart, periodEnd)
	if err != nil {
		return 0, err
	}
	billed, err := s.PeriodCredit(ctx, sub, periodStart, periodEnd)
	if err != nil {
		return 0, err
	}

	due := projected.Round(0).IntPart() - billed
	if due < 0 {
		due = 0
	}
	return due, nil
}

func (s *Service) PeriodCredit(ctx context.Context, sub subdomain.Subscription, periodStart, periodEnd time.Time) (int64, error) {
	var billed int64
	err := s.db.WithContext(ctx).
		Model(&progressivedomain.ProgressiveInvoice{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("org_id = ? AND subscription_id = ?", sub.OrgID, sub.ID).
		Where("issued_at >= ? AND issued_at < ?", periodStart, periodEnd).
		Where("voided_at IS NULL").
		Scan(&billed).Error
	if err != nil {
		return 0, err
	}
	return billed, nil
}

func (s *Service) RecordInvoice(ctx context.Context, sub subdomain.Subscription, amountCents int64, currency string) (*progressivedomain.ProgressiveInvoice, error) {
	if amountCents <= 0 {
		return nil, progressivedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	invoice := &progressivedomain.ProgressiveInvoice{
		ID:             s.genID.Generate(),
		OrgID:          sub.OrgID,
		SubscriptionID: sub.ID,
		AmountCents:    amountCents,
		Currency:       currency,
		IssuedAt:       now,
		CreatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) VoidInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) error {
	var invoice progressivedomain.ProgressiveInvoice
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, invoiceID).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return progressivedomain.ErrInvoiceNotFound
		}
		return err
	}
	if invoice.VoidedAt != nil {
		return nil
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).
		Model(&progressivedomain.ProgressiveInvoice{}).
		Where("org_id = ? AND id = ?", orgID, invoiceID).
		Update("voided_at", now).Error
}
