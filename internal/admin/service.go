// Package admin holds the back-office operations that do not belong to a
// single feature package: user listing, account status changes and the
// audit trail.
package admin

import (
	"context"
	"strings"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"
)

type Users interface {
	List(ctx context.Context, limit, offset int) ([]model.User, error)
}

type AccountStatusSetter interface {
	SetStatus(ctx context.Context, actorID, accountID string, status types.AccountStatus) (model.Account, error)
}

type AuditTrail interface {
	ListForResource(ctx context.Context, resource, resourceID string, limit int) ([]model.AuditLog, error)
}

type Service struct {
	users    Users
	accounts AccountStatusSetter
	audit    AuditTrail
}

func NewService(users Users, accounts AccountStatusSetter, audit AuditTrail) *Service {
	return &Service{users: users, accounts: accounts, audit: audit}
}

func (s *Service) Users(ctx context.Context, page httputil.Page) ([]model.User, error) {
	return s.users.List(ctx, page.Limit, page.Offset)
}

func (s *Service) SetAccountStatus(ctx context.Context, actorID, accountID, status string) (model.Account, error) {
	st := types.AccountStatus(strings.ToLower(strings.TrimSpace(status)))
	switch st {
	case types.AccountStatusActive, types.AccountStatusSuspended, types.AccountStatusClosed:
	default:
		return model.Account{}, apperr.Validation("invalid status", map[string]string{"status": "must be one of: active suspended closed"})
	}
	return s.accounts.SetStatus(ctx, actorID, accountID, st)
}

// AuditTrail returns the newest entries recorded against one resource.
func (s *Service) AuditTrail(ctx context.Context, resource, resourceID string, limit int) ([]model.AuditLog, error) {
	resource = strings.TrimSpace(resource)
	resourceID = strings.TrimSpace(resourceID)
	fields := map[string]string{}
	if resource == "" {
		fields["resource"] = "required"
	}
	if resourceID == "" {
		fields["resource_id"] = "required"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid query", fields)
	}
	return s.audit.ListForResource(ctx, resource, resourceID, limit)
}
