package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"mercator-hq/ganymede/pkg/audit"
)

// HashContent computes the SHA-256 hash of the content and returns it as a
// hex-encoded string. Returns an empty string if content is empty.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}

	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// HashString is a convenience function that hashes a string and returns the
// hex-encoded SHA-256 hash.
func HashString(content string) string {
	return HashContent([]byte(content))
}

// chainPayload is the canonical subset of a decision that the integrity hash
// covers. The stored Hash field itself is excluded; PrevHash is included so
// each record commits to its predecessor.
type chainPayload struct {
	ID             string `json:"id"`
	EventID        string `json:"event_id"`
	RuleID         string `json:"rule_id,omitempty"`
	RuleSetVersion string `json:"ruleset_version,omitempty"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason"`
	RunID          string `json:"run_id,omitempty"`
	ResourceID     string `json:"resource_id,omitempty"`
	ActionName     string `json:"action_name,omitempty"`
	SubjectID      string `json:"subject_id,omitempty"`
	Stage          string `json:"stage,omitempty"`
	TargetStage    string `json:"target_stage,omitempty"`
	Component      string `json:"component"`
	PrevHash       string `json:"prev_hash,omitempty"`
	Timestamp      int64  `json:"timestamp"` // UnixNano for canonical form
}

// ChainHash computes the integrity hash for a decision. The decision's
// PrevHash must already be set; the result commits to it, forming a
// tamper-evident chain across the log.
func ChainHash(d *audit.Decision) string {
	payload := chainPayload{
		ID:             d.ID,
		EventID:        d.EventID,
		RuleID:         d.RuleID,
		RuleSetVersion: d.RuleSetVersion,
		Outcome:        string(d.Outcome),
		Reason:         d.Reason,
		RunID:          d.RunID,
		ResourceID:     d.ResourceID,
		ActionName:     d.ActionName,
		SubjectID:      d.SubjectID,
		Stage:          d.Stage,
		TargetStage:    d.TargetStage,
		Component:      string(d.Component),
		PrevHash:       d.PrevHash,
		Timestamp:      d.Timestamp.UnixNano(),
	}

	// Struct field order fixes the canonical encoding
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	return HashContent(data)
}

// VerifyChain walks decisions in log order and reports the index of the
// first record whose hash does not match its recomputed value or whose
// PrevHash does not reference its predecessor. Returns -1 when the chain is
// intact.
func VerifyChain(decisions []*audit.Decision) int {
	prev := ""
	for i, d := range decisions {
		if i > 0 && d.PrevHash != prev {
			return i
		}
		if d.Hash != ChainHash(d) {
			return i
		}
		prev = d.Hash
	}
	return -1
}
