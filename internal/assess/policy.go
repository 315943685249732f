package assess

import "time"

// CheckoutPolicy holds every threshold and weight the checkout flow uses.
type CheckoutPolicy struct {
	// CartBlockSize items add CartBlockPoints each to the score.
	CartBlockSize   int
	CartBlockPoints int
	// A checkout submitted within FastCheckoutWindow of the first item
	// being added earns FastCheckoutPoints.
	FastCheckoutWindow time.Duration
	FastCheckoutPoints int
	// BlockThreshold hard-blocks; ComboThreshold blocks when the
	// velocity and semantic signals alone exceed it.
	BlockThreshold int
	ComboThreshold int
	MaxScore       int
}

// DefaultCheckoutPolicy mirrors the production constants.
func DefaultCheckoutPolicy() CheckoutPolicy {
	return CheckoutPolicy{
		CartBlockSize:      4,
		CartBlockPoints:    10,
		FastCheckoutWindow: 15 * time.Second,
		FastCheckoutPoints: 50,
		BlockThreshold:     60,
		ComboThreshold:     70,
		MaxScore:           100,
	}
}

// LoginPolicy holds the login-flow weights. Login never hard-blocks;
// scores above FlagScore flag the attempt for review.
type LoginPolicy struct {
	IPChangePoints     int
	NewDevicePoints    int
	RapidReloginPoints int
	RapidReloginWindow time.Duration
	FlagScore          int
	MaxScore           int
}

// DefaultLoginPolicy mirrors the production constants.
func DefaultLoginPolicy() LoginPolicy {
	return LoginPolicy{
		IPChangePoints:     30,
		NewDevicePoints:    25,
		RapidReloginPoints: 40,
		RapidReloginWindow: 5 * time.Minute,
		FlagScore:          60,
		MaxScore:           100,
	}
}

// ScanPolicy holds the URL-scan weights. Scans start at StartScore and
// deduct; higher is safer.
type ScanPolicy struct {
	StartScore int

	InsecureProtocolPenalty int
	MissingTitlePenalty     int
	MissingMetaPenalty      int

	BrokenLinkRatio   float64
	BrokenLinkPenalty int

	ExternalAssetRatio   float64
	ExternalAssetPenalty int

	// Tone weights convert classifier confidences into score deltas.
	UrgencyWeight       float64
	PrizeScamWeight     float64
	OfficialBonusWeight float64

	DangerousMax  int // scores below this are dangerous
	SuspiciousMax int // scores below this (and >= DangerousMax) are suspicious
}

// DefaultScanPolicy mirrors the production constants.
func DefaultScanPolicy() ScanPolicy {
	return ScanPolicy{
		StartScore:              100,
		InsecureProtocolPenalty: 30,
		MissingTitlePenalty:     20,
		MissingMetaPenalty:      30,
		BrokenLinkRatio:         0.2,
		BrokenLinkPenalty:       20,
		ExternalAssetRatio:      0.6,
		ExternalAssetPenalty:    15,
		UrgencyWeight:           50,
		PrizeScamWeight:         50,
		OfficialBonusWeight:     10,
		DangerousMax:            30,
		SuspiciousMax:           80,
	}
}

// TierFor maps a final scan score to its tier.
func (p ScanPolicy) TierFor(score int) Tier {
	switch {
	case score < p.DangerousMax:
		return TierDangerous
	case score < p.SuspiciousMax:
		return TierSuspicious
	default:
		return TierSecure
	}
}
