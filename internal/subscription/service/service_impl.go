// Package service reads subscription and plan configuration. This core never
// mutates subscriptions; lifecycle transitions belong to an external
// collaborator.
package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	subdomain "github.com/smallbiznis/meterflow/internal/subscription/domain"
	"github.com/smallbiznis/meterflow/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReaderParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Reader resolves subscriptions and plans by id or code.
type Reader interface {
	GetSubscription(ctx context.Context, orgID, id snowflake.ID) (*subdomain.Subscription, error)
	GetPlan(ctx context.Context, orgID, id snowflake.ID) (*subdomain.Plan, error)
	GetPlanByCode(ctx context.Context, orgID snowflake.ID, code string) (*subdomain.Plan, error)
	ListActiveSubscriptions(ctx context.Context, orgID snowflake.ID) ([]*subdomain.Subscription, error)
}

type reader struct {
	log *zap.Logger

	subs  repository.Repository[subdomain.Subscription]
	plans repository.Repository[subdomain.Plan]
}

func NewReader(p ReaderParam) Reader {
	return &reader{
		log: p.Log.Named("subscription.reader"),

		subs:  repository.ProvideStore[subdomain.Subscription](p.DB),
		plans: repository.ProvideStore[subdomain.Plan](p.DB),
	}
}

func (r *reader) GetSubscription(ctx context.Context, orgID, id snowflake.ID) (*subdomain.Subscription, error) {
	sub, err := r.subs.FindOne(ctx, &subdomain.Subscription{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subdomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (r *reader) GetPlan(ctx context.Context, orgID, id snowflake.ID) (*subdomain.Plan, error) {
	plan, err := r.plans.FindOne(ctx, &subdomain.Plan{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, subdomain.ErrPlanNotFound
	}
	return plan, nil
}

func (r *reader) GetPlanByCode(ctx context.Context, orgID snowflake.ID, code string) (*subdomain.Plan, error) {
	plan, err := r.plans.FindOne(ctx, &subdomain.Plan{OrgID: orgID, Code: strings.TrimSpace(code)})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, subdomain.ErrPlanNotFound
	}
	return plan, nil
}

func (r *reader) ListActiveSubscriptions(ctx context.Context, orgID snowflake.ID) ([]*subdomain.Subscription, error) {
	return r.subs.Find(ctx, &subdomain.Subscription{OrgID: orgID, Status: subdomain.StatusActive})
}
