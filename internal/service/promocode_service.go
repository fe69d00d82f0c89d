package service

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"promo-code-service/internal/core/cache"
	"promo-code-service/internal/domain"
	"promo-code-service/pkg/utils"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const generatedCodeLen = 8

// PromoCodeService owns promo code records, eligibility evaluation,
// discount calculation, and usage recording. Lookups and derived booleans
// are memoized through the cache store with short TTLs; every cached value
// is a disposable projection of the database.
type PromoCodeService struct {
	repo  domain.PromoCodeRepository
	users domain.UserRepository
	cache cache.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewPromoCodeService(repo domain.PromoCodeRepository, users domain.UserRepository, c cache.Store, log *zap.Logger) *PromoCodeService {
	return &PromoCodeService{repo: repo, users: users, cache: c, log: log, now: time.Now}
}

// CreatePromoCodeInput carries the admin-supplied fields. Shape validation
// (types, ranges, formats) happens at binding; this service re-checks the
// rules that need the store.
type CreatePromoCodeInput struct {
	Code             string
	Type             string
	Value            float64
	ExpiryDate       *time.Time
	MaxUsages        *int
	MaxUsagesPerUser *int
	UserIDs          []string
}

// GenerateUniqueCode produces an 8-char uppercase alphanumeric code,
// retrying until it does not collide with an existing record. The code
// space is large relative to expected row counts, so the loop terminates
// quickly in practice; the unique index remains the final authority.
func (s *PromoCodeService) GenerateUniqueCode(ctx context.Context) (string, error) {
	for {
		code, err := randomCode(generatedCodeLen)
		if err != nil {
			return "", err
		}
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
}

func randomCode(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// Create validates and persists a new promo code with its restriction
// grants. Field-level problems come back as FieldErrors; the
// percentage-over-100 rule as a DomainError.
func (s *PromoCodeService) Create(ctx context.Context, in CreatePromoCodeInput, creatorID string) (*domain.PromoCode, error) {
	fieldErrs := FieldErrors{}

	if in.Code != "" {
		exists, err := s.repo.CodeExists(ctx, in.Code)
		if err != nil {
			return nil, err
		}
		if exists {
			fieldErrs.Add("code", "The code has already been taken.")
		}
	}
	validType := false
	for _, t := range domain.PromoTypes() {
		if in.Type == t {
			validType = true
			break
		}
	}
	if !validType {
		fieldErrs.Add("type", "The selected type is invalid.")
	}
	if in.Value < 0 {
		fieldErrs.Add("value", "The value must be at least 0.")
	}
	if in.ExpiryDate != nil && !in.ExpiryDate.After(s.now()) {
		fieldErrs.Add("expiry_date", "The expiry date must be a date after now.")
	}
	if in.MaxUsages != nil && *in.MaxUsages < 1 {
		fieldErrs.Add("max_usages", "The max usages must be at least 1.")
	}
	if in.MaxUsagesPerUser != nil && *in.MaxUsagesPerUser < 1 {
		fieldErrs.Add("max_usages_per_user", "The max usages per user must be at least 1.")
	}

	var grantUsers []domain.User
	if len(in.UserIDs) > 0 {
		found, err := s.users.ListByIDs(ctx, in.UserIDs)
		if err != nil {
			return nil, err
		}
		known := make(map[string]bool, len(found))
		for _, u := range found {
			known[u.ID] = true
		}
		for _, id := range in.UserIDs {
			if !known[id] {
				fieldErrs.Add("user_ids", "The selected user ids are invalid.")
				break
			}
		}
		grantUsers = found
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	if in.Type == domain.PromoTypePercentage && in.Value > 100 {
		return nil, &DomainError{Message: "Percentage value cannot exceed 100"}
	}

	code := in.Code
	if code == "" {
		var err error
		if code, err = s.GenerateUniqueCode(ctx); err != nil {
			return nil, err
		}
	}

	p := &domain.PromoCode{
		ID:               utils.NewID(),
		Code:             code,
		Type:             in.Type,
		Value:            in.Value,
		ExpiryDate:       in.ExpiryDate,
		MaxUsages:        in.MaxUsages,
		MaxUsagesPerUser: in.MaxUsagesPerUser,
		CurrentUsages:    0,
		IsActive:         true,
		CreatedBy:        creatorID,
	}
	if err := s.repo.Create(ctx, p, in.UserIDs); err != nil {
		return nil, err
	}
	p.Users = grantUsers

	// A failed lookup for this code may be negatively cached from before it
	// existed; sweep it out.
	s.InvalidateAll(ctx, p)
	return p, nil
}

// FindByCode is a case-sensitive exact lookup memoized for a minute,
// absence included. Returns nil, nil when the code does not exist.
func (s *PromoCodeService) FindByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	return cache.GetOrLoadJSON[domain.PromoCode](s.cache, ctx, promoCodeKey(code), promoCodeTTL,
		func(ctx context.Context) (*domain.PromoCode, error) {
			return s.repo.FindByCode(ctx, code)
		})
}

// List returns every promo code with restriction users and creator
// preloaded. Cached for ten minutes under a fixed key; only the TTL clears
// it, writes do not.
func (s *PromoCodeService) List(ctx context.Context) ([]domain.PromoCode, error) {
	out, err := cache.GetOrLoadJSON[[]domain.PromoCode](s.cache, ctx, promoListKey, promoListTTL,
		func(ctx context.Context) (*[]domain.PromoCode, error) {
			codes, err := s.repo.List(ctx)
			if err != nil {
				return nil, err
			}
			return &codes, nil
		})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return []domain.PromoCode{}, nil
	}
	return *out, nil
}

// IsValid is a pure predicate on an already-loaded record: active, not
// expired, and below the total usage cap.
func (s *PromoCodeService) IsValid(p *domain.PromoCode) bool {
	if !p.IsActive {
		return false
	}
	if p.ExpiryDate != nil && !p.ExpiryDate.After(s.now()) {
		return false
	}
	if p.MaxUsages != nil && p.CurrentUsages >= *p.MaxUsages {
		return false
	}
	return true
}

// CanBeUsedBy reports whether the user may redeem the code: the code must
// be valid, the user must hold a grant if the code is restricted, and the
// per-user cap (when configured) must not be reached. Callers needing the
// reason re-derive it condition by condition, as Validate does.
func (s *PromoCodeService) CanBeUsedBy(ctx context.Context, p *domain.PromoCode, userID string) (bool, error) {
	if !s.IsValid(p) {
		return false, nil
	}
	restricted, err := s.isRestricted(ctx, p.ID)
	if err != nil {
		return false, err
	}
	if restricted {
		granted, err := s.hasAccess(ctx, p.ID, userID)
		if err != nil {
			return false, err
		}
		if !granted {
			return false, nil
		}
	}
	if p.MaxUsagesPerUser != nil {
		n, err := s.UsageCount(ctx, p.ID, userID)
		if err != nil {
			return false, err
		}
		return n < int64(*p.MaxUsagesPerUser), nil
	}
	return true, nil
}

func (s *PromoCodeService) isRestricted(ctx context.Context, promoID string) (bool, error) {
	v, err := cache.GetOrLoadJSON[bool](s.cache, ctx, promoRestrictedKey(promoID), promoRestrictedTTL,
		func(ctx context.Context) (*bool, error) {
			b, e := s.repo.HasAnyGrant(ctx, promoID)
			if e != nil {
				return nil, e
			}
			return &b, nil
		})
	if err != nil || v == nil {
		return false, err
	}
	return *v, nil
}

func (s *PromoCodeService) hasAccess(ctx context.Context, promoID, userID string) (bool, error) {
	v, err := cache.GetOrLoadJSON[bool](s.cache, ctx, promoAccessKey(promoID, userID), promoAccessTTL,
		func(ctx context.Context) (*bool, error) {
			b, e := s.repo.HasGrant(ctx, promoID, userID)
			if e != nil {
				return nil, e
			}
			return &b, nil
		})
	if err != nil || v == nil {
		return false, err
	}
	return *v, nil
}

// UsageCount is the user's historical redemption count for the code,
// memoized for a minute.
func (s *PromoCodeService) UsageCount(ctx context.Context, promoID, userID string) (int64, error) {
	v, err := cache.GetOrLoadJSON[int64](s.cache, ctx, promoUsageKey(promoID, userID), promoUsageTTL,
		func(ctx context.Context) (*int64, error) {
			n, e := s.repo.CountUsages(ctx, promoID, userID)
			if e != nil {
				return nil, e
			}
			return &n, nil
		})
	if err != nil || v == nil {
		return 0, err
	}
	return *v, nil
}

// RecordUsage appends a usage row, bumps the total counter atomically, and
// drops the caches the write made stale. Not idempotent: each call records
// one usage.
func (s *PromoCodeService) RecordUsage(ctx context.Context, p *domain.PromoCode, userID string) error {
	if err := s.repo.AppendUsage(ctx, p.ID, userID, s.now()); err != nil {
		return err
	}
	if err := s.repo.IncrementUsageCounter(ctx, p.ID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, promoUsageKey(p.ID, userID), promoCodeKey(p.Code)); err != nil {
		s.log.Warn("promo cache invalidate failed", zap.String("code", p.Code), zap.Error(err))
	}
	return nil
}

// InvalidateAll sweeps every cache entry derived from the code: the lookup,
// the restriction flag, and the per-user access/usage entries for each
// currently granted user. Best effort; entries written concurrently may be
// missed and expire by TTL instead.
func (s *PromoCodeService) InvalidateAll(ctx context.Context, p *domain.PromoCode) {
	keys := []string{promoCodeKey(p.Code), promoRestrictedKey(p.ID)}
	userIDs, err := s.repo.ListGrantUserIDs(ctx, p.ID)
	if err != nil {
		s.log.Warn("promo grant listing failed during invalidation", zap.String("code", p.Code), zap.Error(err))
	}
	for _, uid := range userIDs {
		keys = append(keys, promoAccessKey(p.ID, uid), promoUsageKey(p.ID, uid))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("promo cache invalidate failed", zap.String("code", p.Code), zap.Error(err))
	}
}

// Deactivate soft-disables a code and runs the full invalidation sweep.
func (s *PromoCodeService) Deactivate(ctx context.Context, code string) error {
	p, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPromoNotFound
	}
	if err := s.repo.SetActive(ctx, p.ID, false); err != nil {
		return err
	}
	p.IsActive = false
	s.InvalidateAll(ctx, p)
	return nil
}

// Quote is the preview result of applying a code to a price.
type Quote struct {
	Price      float64 `json:"price"`
	Discount   float64 `json:"promocode_discounted_amount"`
	FinalPrice float64 `json:"final_price"`
}

// CalculateDiscount applies the code's discount to a non-negative price.
// Percentage codes take value% off; fixed-value codes take min(value,
// price) so the final price never goes below zero. Both figures are
// rounded half-up to 2 decimals.
func CalculateDiscount(p *domain.PromoCode, price float64) Quote {
	var discount float64
	if p.Type == domain.PromoTypePercentage {
		discount = price * p.Value / 100
	} else {
		discount = math.Min(p.Value, price)
	}
	final := math.Max(0, price-discount)
	return Quote{
		Price:      price,
		Discount:   round2(discount),
		FinalPrice: round2(final),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Validate is the preview flow: it re-checks each eligibility condition in
// order to produce a specific rejection code, then quotes the discount.
// It never records usage.
func (s *PromoCodeService) Validate(ctx context.Context, code string, price float64, userID string) (*Quote, error) {
	p, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPromoNotFound
	}
	if !p.IsActive {
		return nil, ErrPromoInactive
	}
	if p.ExpiryDate != nil && !p.ExpiryDate.After(s.now()) {
		return nil, ErrPromoExpired
	}
	if p.MaxUsages != nil && p.CurrentUsages >= *p.MaxUsages {
		return nil, ErrPromoUsageLimit
	}
	restricted, err := s.isRestricted(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if restricted {
		granted, err := s.hasAccess(ctx, p.ID, userID)
		if err != nil {
			return nil, err
		}
		if !granted {
			return nil, ErrPromoNotAvailable
		}
	}
	if p.MaxUsagesPerUser != nil {
		n, err := s.UsageCount(ctx, p.ID, userID)
		if err != nil {
			return nil, err
		}
		if n >= int64(*p.MaxUsagesPerUser) {
			return nil, ErrPromoUserUsageLimit
		}
	}
	q := CalculateDiscount(p, price)
	return &q, nil
}

// Use is the redemption flow. Unlike Validate it enforces one redemption
// ever per user, regardless of the configured per-user cap, and records
// the usage on success.
func (s *PromoCodeService) Use(ctx context.Context, code, userID string) (*domain.PromoCode, error) {
	p, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPromoNotFound
	}
	ok, err := s.CanBeUsedBy(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPromoInvalid
	}
	n, err := s.UsageCount(ctx, p.ID, userID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrPromoAlreadyUsed
	}
	if err := s.RecordUsage(ctx, p, userID); err != nil {
		return nil, err
	}
	return p, nil
}
