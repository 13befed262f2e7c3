package parse

import (
	"fmt"
	"strings"
)

// suggestValue proposes a close match for an unknown value, falling
// back to listing the valid ones. It is used for predicate types,
// subject kinds, effects, and parameter names.
func suggestValue(unknown string, valid []string) string {
	if len(valid) == 0 {
		return ""
	}

	minDistance := 1000
	var bestMatch string
	for _, v := range valid {
		dist := levenshteinDistance(unknown, v)
		if dist < minDistance {
			minDistance = dist
			bestMatch = v
		}
	}

	// Only suggest a match when it is a plausible typo.
	if minDistance < 5 {
		return fmt.Sprintf("Did you mean '%s'?", bestMatch)
	}

	return fmt.Sprintf("Valid values: %s", strings.Join(valid, ", "))
}

// suggestMissingField proposes adding a required field with an example
// value.
func suggestMissingField(fieldName string, exampleValue string) string {
	if exampleValue != "" {
		return fmt.Sprintf("Add '%s: %s'", fieldName, exampleValue)
	}
	return fmt.Sprintf("Add the '%s' field", fieldName)
}

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}

	len1 := len(s1)
	len2 := len(s2)

	matrix := make([][]int, len1+1)
	for i := range matrix {
		matrix[i] = make([]int, len2+1)
	}

	for i := 0; i <= len1; i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len2; j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len1; i++ {
		for j := 1; j <= len2; j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}

			matrix[i][j] = min(
				matrix[i-1][j]+1,      // Deletion
				matrix[i][j-1]+1,      // Insertion
				matrix[i-1][j-1]+cost, // Substitution
			)
		}
	}

	return matrix[len1][len2]
}
