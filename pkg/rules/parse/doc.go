// Package parse reads YAML rule files into typed rules.
//
// # File format
//
// A rule file names its rules and lists them in definition order,
// which is also their tie-break order during evaluation:
//
//	name: review-gates
//	description: Requirements for leaving the review stage.
//	rules:
//	  - id: review-quorum
//	    subject:
//	      kind: stage
//	      value: review_pending
//	    predicate:
//	      type: min_approvals
//	      count: 2
//	    effect: deny
//	    priority: 100
//
//	  - id: review-owner
//	    subject:
//	      kind: stage
//	      value: review_pending
//	    predicate:
//	      type: requires_owner_approval
//	    effect: deny
//	    priority: 100
//
// The predicate's type field selects one of the closed predicate
// variants; the remaining keys are that variant's parameters. Duration
// parameters use Go duration syntax ("30s", "5m", "4h").
//
// Rule files carry no version field. A rule set's version is the hash
// of its content, computed when the rules are published.
//
// # Errors
//
// Parsing accumulates problems instead of stopping at the first one.
// Structural errors (missing or malformed fields) and semantic errors
// (duplicate ids, predicates scoped to subjects that never carry their
// facts, parameters outside their working range) are returned together
// as an *ErrorList, each error positioned at the offending line with a
// snippet of the file and, where possible, a suggested fix.
package parse
