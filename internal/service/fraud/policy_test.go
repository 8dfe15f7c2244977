package fraud

import (
	"testing"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

func TestPolicyBelowThresholdNeverFlagged(t *testing.T) {
	policy := NewPolicy(10000, 1.0).WithRandSource(func() float64 { return 0 })

	order := &domain.Order{ID: "ord-1", AmountMinor: 10000}
	if policy.Flagged(order) {
		t.Fatal("order at the threshold must not be flagged")
	}
}

func TestPolicyAboveThresholdUsesProbability(t *testing.T) {
	order := &domain.Order{ID: "ord-1", AmountMinor: 10001}

	flaggedPolicy := NewPolicy(10000, 0.3).WithRandSource(func() float64 { return 0.29 })
	if !flaggedPolicy.Flagged(order) {
		t.Fatal("roll below probability must flag the order")
	}

	cleanPolicy := NewPolicy(10000, 0.3).WithRandSource(func() float64 { return 0.30 })
	if cleanPolicy.Flagged(order) {
		t.Fatal("roll at probability must not flag the order")
	}
}

func TestPolicyClampsProbability(t *testing.T) {
	order := &domain.Order{ID: "ord-1", AmountMinor: 20000}

	always := NewPolicy(10000, 5.0).WithRandSource(func() float64 { return 0.99 })
	if !always.Flagged(order) {
		t.Fatal("probability above 1 must clamp to 1")
	}

	never := NewPolicy(10000, -1.0).WithRandSource(func() float64 { return 0 })
	if never.Flagged(order) {
		t.Fatal("negative probability must clamp to 0")
	}
}

func TestPolicyNilOrder(t *testing.T) {
	policy := NewPolicy(0, 1.0).WithRandSource(func() float64 { return 0 })
	if policy.Flagged(nil) {
		t.Fatal("nil order must not be flagged")
	}
}
