package citation

import (
	"fmt"
	"strings"

	"github.com/magpie-ai/magpie/pkg/models"
)

// authorityThreshold is the minimum score counting as an authoritative source.
const authorityThreshold = 70

// GateResult reports whether a candidate answer satisfies the evidence
// policy, with one issue per failing variable.
type GateResult struct {
	OK     bool
	Issues []string
}

// Check evaluates every variable in a candidate final answer against the
// evidence policy:
//   - each variable needs at least policy.MinCorroboration distinct sources,
//     counted by URL so repeating a citation does not corroborate it;
//   - date/number/string variables (and founding-date names) need >= 2
//     agreeing sources regardless of the policy floor;
//   - when the policy requires authority, at least one source must score
//     >= 70.
func Check(variables []models.MagicVariable, policy models.EvidencePolicy) GateResult {
	result := GateResult{OK: true}

	minCorroboration := policy.MinCorroboration
	if minCorroboration < 1 {
		minCorroboration = 1
	}

	for _, v := range variables {
		required := minCorroboration
		if needsCorroboration(v) && required < 2 {
			required = 2
		}

		if distinct := distinctURLs(v.Sources); distinct < required {
			result.OK = false
			result.Issues = append(result.Issues, fmt.Sprintf(
				"variable %q has %d distinct source(s) but needs >= %d agreeing sources",
				v.Name, distinct, required))
			continue
		}

		if policy.RequireAuthority && !hasAuthoritativeSource(v.Sources) {
			result.OK = false
			result.Issues = append(result.Issues, fmt.Sprintf(
				"variable %q has no source with authority score >= %d",
				v.Name, authorityThreshold))
		}
	}
	return result
}

// needsCorroboration reports whether the variable's type or name demands two
// agreeing sources.
func needsCorroboration(v models.MagicVariable) bool {
	switch v.DType {
	case models.DTypeDate, models.DTypeNumber, models.DTypeString:
		return true
	}
	name := strings.ToLower(v.Name)
	return strings.Contains(name, "found") && strings.Contains(name, "date")
}

// distinctURLs counts sources by unique URL. The same page cited twice is
// one source.
func distinctURLs(sources []models.Source) int {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		seen[s.URL] = true
	}
	return len(seen)
}

func hasAuthoritativeSource(sources []models.Source) bool {
	for _, s := range sources {
		if AuthorityScore(s.URL) >= authorityThreshold {
			return true
		}
	}
	return false
}
