package store

import (
	"sync"
	"testing"

	"mercator-hq/ganymede/pkg/rules"
)

// testRuleSet builds a rule set with n distinct deny rules.
func testRuleSet(t *testing.T, n int) *rules.RuleSet {
	t.Helper()

	rs := make([]rules.Rule, 0, n)
	for i := 0; i < n; i++ {
		rs = append(rs, rules.Rule{
			ID:        "quorum-" + string(rune('a'+i)),
			Subject:   rules.Subject{Kind: rules.SubjectStage, Value: "review_pending"},
			Predicate: rules.MinApprovals{Count: i + 1},
			Effect:    rules.EffectDeny,
			Priority:  rules.PriorityMedium,
		})
	}

	set, err := rules.NewRuleSet(rs)
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}
	return set
}

// TestNewRegistry tests that a fresh registry serves an empty set.
func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	active := r.Active()
	if active == nil {
		t.Fatal("Active() returned nil")
	}
	if active.Len() != 0 {
		t.Errorf("Active().Len() = %d, want 0", active.Len())
	}
	if r.Version() == "" {
		t.Error("Version() should not be empty for the empty set")
	}
}

// TestRegistry_Publish tests atomic replacement.
func TestRegistry_Publish(t *testing.T) {
	r := NewRegistry()
	emptyVersion := r.Version()
	before := r.PublishedAt()

	set := testRuleSet(t, 2)
	if err := r.Publish(set); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if r.Active() != set {
		t.Error("Active() should return the published set")
	}
	if r.Version() == emptyVersion {
		t.Error("Version() should change after publish")
	}
	if !r.PublishedAt().After(before) && !r.PublishedAt().Equal(before) {
		t.Error("PublishedAt() should not go backwards")
	}

	stats := r.Stats()
	if stats.RuleCount != 2 {
		t.Errorf("Stats().RuleCount = %d, want 2", stats.RuleCount)
	}
	if stats.Publishes != 1 {
		t.Errorf("Stats().Publishes = %d, want 1", stats.Publishes)
	}
	if stats.Version != set.Version() {
		t.Errorf("Stats().Version = %v, want %v", stats.Version, set.Version())
	}
}

// TestRegistry_PublishNil tests that nil sets are rejected.
func TestRegistry_PublishNil(t *testing.T) {
	r := NewRegistry()
	if err := r.Publish(nil); err == nil {
		t.Error("Publish(nil) should error")
	}
}

// TestRegistry_ConcurrentReadersSeeWholeSets verifies readers never
// observe a half-replaced set while publishes race with reads.
func TestRegistry_ConcurrentReadersSeeWholeSets(t *testing.T) {
	r := NewRegistry()

	setA := testRuleSet(t, 1)
	setB := testRuleSet(t, 3)

	if err := r.Publish(setA); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	var wg sync.WaitGroup

	// Publisher flips between the two sets.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			if i%2 == 0 {
				_ = r.Publish(setB)
			} else {
				_ = r.Publish(setA)
			}
		}
	}()

	// Readers check that version and length always belong to the same
	// set.
	errCh := make(chan string, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				active := r.Active()
				v, n := active.Version(), active.Len()

				okA := v == setA.Version() && n == setA.Len()
				okB := v == setB.Version() && n == setB.Len()
				if !okA && !okB {
					select {
					case errCh <- "observed mixed rule set state":
					default:
					}
					return
				}
			}
		}()
	}

	wg.Wait()

	select {
	case msg := <-errCh:
		t.Fatal(msg)
	default:
	}

	stats := r.Stats()
	if stats.Publishes < 2 {
		t.Errorf("Stats().Publishes = %d, want at least 2", stats.Publishes)
	}
}
