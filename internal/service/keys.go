package service

import "time"

// Cache key layout and TTL policy for the promo code engine. Short TTLs
// bound the staleness window accepted in exchange for fewer store reads.
const (
	promoCodeTTL       = time.Minute
	promoRestrictedTTL = time.Minute
	promoAccessTTL     = time.Minute
	promoUsageTTL      = time.Minute

	// The admin listing is cached under a fixed name and expires only by
	// TTL; writes deliberately do not clear it.
	promoListKey = "all_promo_codes"
	promoListTTL = 10 * time.Minute

	tokenVersionTTL = time.Minute
)

func promoCodeKey(code string) string { return "promo_code:" + code }

func promoRestrictedKey(promoID string) string { return "promo_restricted:" + promoID }

func promoAccessKey(promoID, userID string) string {
	return "promo_access:" + promoID + ":user:" + userID
}

func promoUsageKey(promoID, userID string) string {
	return "promo_usage:" + promoID + ":user:" + userID
}

func tokenVersionKey(userID string) string { return "user_token_version:" + userID }
