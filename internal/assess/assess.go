// Package assess aggregates detector signals into risk assessments for
// checkout, login, and URL-scan flows.
package assess

import (
	"context"
	"errors"
	"time"

	"github.com/fraudguard/fraudguard/internal/pagination"
)

// Flow identifies which pipeline produced an assessment.
type Flow string

const (
	FlowCheckout Flow = "checkout"
	FlowLogin    Flow = "login"
	FlowScan     Flow = "scan"
)

// Decision is the outcome of an assessment.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
)

// Tier classifies scan scores for the URL-reputation flow.
type Tier string

const (
	TierDangerous  Tier = "dangerous"
	TierSuspicious Tier = "suspicious"
	TierSecure     Tier = "secure"
)

// Signal is one detector's contribution to a score. Points are positive
// risk for checkout/login and signed adjustments for scans.
type Signal struct {
	Key    string `json:"key" bson:"key"`
	Label  string `json:"label" bson:"label"`
	Points int    `json:"points" bson:"points"`
}

// Assessment is the persisted outcome of one flow evaluation.
type Assessment struct {
	ID         string    `json:"id" bson:"_id"`
	SubjectID  string    `json:"subjectId,omitempty" bson:"subjectId,omitempty"`
	Flow       Flow      `json:"flow" bson:"flow"`
	Signals    []Signal  `json:"signals" bson:"signals"`
	TotalScore int       `json:"totalScore" bson:"totalScore"`
	Decision   Decision  `json:"decision" bson:"decision"`
	Tier       Tier      `json:"tier,omitempty" bson:"tier,omitempty"`
	Flagged    bool      `json:"flagged,omitempty" bson:"flagged,omitempty"`
	Reasoning  string    `json:"reasoning" bson:"reasoning"`
	URL        string    `json:"url,omitempty" bson:"url,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

// Suspicious marks assessments the admin dashboard surfaces.
func (a *Assessment) Suspicious() bool {
	return a.Decision == DecisionBlock || a.Flagged
}

// ListFilter narrows audit queries. After resumes a paginated listing
// from an opaque cursor position.
type ListFilter struct {
	Flow           Flow
	SuspiciousOnly bool
	Limit          int
	After          *pagination.Cursor
}

// DefaultListLimit bounds unpaged audit queries.
const DefaultListLimit = 100

var ErrEmptyRequest = errors.New("request is missing required fields")

// AuditStore persists assessments for the admin dashboard.
type AuditStore interface {
	Record(ctx context.Context, a *Assessment) error
	// List returns assessments sorted by CreatedAt descending.
	List(ctx context.Context, filter ListFilter) ([]*Assessment, error)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
