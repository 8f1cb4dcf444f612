package kyc

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/notify"
	"lv-tradedesk/internal/types"

	"go.uber.org/zap"
)

type Repository interface {
	Insert(ctx context.Context, v model.KYCVerification) (model.KYCVerification, error)
	GetForUpdate(ctx context.Context, id string) (model.KYCVerification, error)
	Latest(ctx context.Context, userID string) (model.KYCVerification, error)
	ListByStatus(ctx context.Context, status types.KYCStatus, limit, offset int) ([]model.KYCVerification, error)
	Decide(ctx context.Context, id string, status types.KYCStatus, reviewerID, reason string) (model.KYCVerification, error)
}

// Users mirrors the latest decision onto the user record.
type Users interface {
	Get(ctx context.Context, id string) (model.User, error)
	SetKYCStatus(ctx context.Context, id string, status types.KYCStatus) error
}

var documentTypes = map[string]struct{}{
	"passport":       {},
	"national_id":    {},
	"driver_license": {},
}

var (
	countryPattern  = regexp.MustCompile(`^[A-Z]{2}$`)
	documentPattern = regexp.MustCompile(`^[A-Z0-9\-]{4,32}$`)
)

type Service struct {
	tx       db.Transactor
	store    Repository
	users    Users
	audit    audit.Auditor
	notifier notify.Notifier
	log      *zap.Logger
}

func NewService(tx db.Transactor, store Repository, users Users, auditor audit.Auditor, notifier notify.Notifier, log *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{tx: tx, store: store, users: users, audit: auditor, notifier: notifier, log: log}
}

type Submission struct {
	FullName       string `json:"full_name" validate:"required,min=2,max=128"`
	DocumentType   string `json:"document_type" validate:"required"`
	DocumentNumber string `json:"document_number" validate:"required"`
	Country        string `json:"country" validate:"required"`
}

func (sub *Submission) normalize() error {
	sub.FullName = strings.Join(strings.Fields(sub.FullName), " ")
	sub.DocumentType = strings.ToLower(strings.TrimSpace(sub.DocumentType))
	sub.DocumentNumber = strings.ToUpper(strings.TrimSpace(sub.DocumentNumber))
	sub.Country = strings.ToUpper(strings.TrimSpace(sub.Country))

	fields := map[string]string{}
	if len(sub.FullName) < 2 {
		fields["full_name"] = "is required"
	}
	if _, ok := documentTypes[sub.DocumentType]; !ok {
		fields["document_type"] = "must be one of: passport national_id driver_license"
	}
	if !documentPattern.MatchString(sub.DocumentNumber) {
		fields["document_number"] = "must be 4-32 letters, digits or dashes"
	}
	if !countryPattern.MatchString(sub.Country) {
		fields["country"] = "must be an ISO 3166 alpha-2 code"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid verification request", fields)
	}
	return nil
}

func (s *Service) Submit(ctx context.Context, userID string, sub Submission) (model.KYCVerification, error) {
	if err := sub.normalize(); err != nil {
		return model.KYCVerification{}, err
	}
	var out model.KYCVerification
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		switch u.KYCStatus {
		case types.KYCStatusApproved:
			return apperr.ErrKYCAlreadyApproved
		case types.KYCStatusPending:
			return apperr.ErrKYCAlreadyPending
		}
		out, err = s.store.Insert(ctx, model.KYCVerification{
			UserID:         userID,
			FullName:       sub.FullName,
			DocumentType:   sub.DocumentType,
			DocumentNumber: sub.DocumentNumber,
			Country:        sub.Country,
		})
		if err != nil {
			return err
		}
		if err := s.users.SetKYCStatus(ctx, userID, types.KYCStatusPending); err != nil {
			return fmt.Errorf("mirror kyc status: %w", err)
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: userID, Action: "kyc.submit", Resource: "kyc_verifications", ResourceID: out.ID,
			Changes: map[string]any{"document_type": out.DocumentType, "country": out.Country},
		})
	})
	if err != nil {
		return model.KYCVerification{}, err
	}
	s.notifier.Notify(ctx, notify.Event{Type: notify.EventKYCSubmitted, UserID: userID, Data: out})
	return out, nil
}

// Status returns the user's latest request, or NotFound when there is none.
func (s *Service) Status(ctx context.Context, userID string) (model.KYCVerification, error) {
	return s.store.Latest(ctx, userID)
}

func (s *Service) Approve(ctx context.Context, reviewerID, id string) (model.KYCVerification, error) {
	return s.decide(ctx, reviewerID, id, types.KYCStatusApproved, "")
}

func (s *Service) Reject(ctx context.Context, reviewerID, id, reason string) (model.KYCVerification, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.KYCVerification{}, apperr.Validation("rejection needs a reason", map[string]string{"reason": "is required"})
	}
	return s.decide(ctx, reviewerID, id, types.KYCStatusRejected, reason)
}

func (s *Service) decide(ctx context.Context, reviewerID, id string, status types.KYCStatus, reason string) (model.KYCVerification, error) {
	var out model.KYCVerification
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.store.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != types.KYCStatusPending {
			return apperr.ErrKYCNotPending
		}
		out, err = s.store.Decide(ctx, id, status, reviewerID, reason)
		if err != nil {
			return err
		}
		if err := s.users.SetKYCStatus(ctx, out.UserID, status); err != nil {
			return fmt.Errorf("mirror kyc status: %w", err)
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: reviewerID, Action: "kyc." + string(status), Resource: "kyc_verifications", ResourceID: id,
			Changes: map[string]any{"from": cur.Status, "to": status, "reason": reason},
		})
	})
	if err != nil {
		return model.KYCVerification{}, err
	}
	evt := notify.EventKYCApproved
	if status == types.KYCStatusRejected {
		evt = notify.EventKYCRejected
	}
	s.log.Info("kyc decided", zap.String("verification_id", id), zap.String("status", string(status)), zap.String("reviewer_id", reviewerID))
	s.notifier.Notify(ctx, notify.Event{Type: evt, UserID: out.UserID, Data: out})
	return out, nil
}

// Queue lists pending requests, oldest first.
func (s *Service) Queue(ctx context.Context, page httputil.Page) ([]model.KYCVerification, error) {
	return s.store.ListByStatus(ctx, types.KYCStatusPending, page.Limit, page.Offset)
}
