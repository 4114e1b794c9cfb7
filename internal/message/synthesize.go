// Package message turns a batch of mutation notifications into a
// human-readable commit summary.
package message

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scribelab/chronicle/pkg/model"
)

// Synthesize renders a batch as a one-line commit message.
//
// A single notification becomes "<kind>: <subject>". Multiple
// notifications are grouped by category and rendered as
// "<count> <category> changes" joined by commas, sorted by category
// name so the output is deterministic.
func Synthesize(batch []model.MutationNotification) string {
	switch len(batch) {
	case 0:
		return ""
	case 1:
		n := batch[0]
		if n.SubjectSummary == "" {
			return string(n.Kind)
		}
		return fmt.Sprintf("%s: %s", n.Kind, n.SubjectSummary)
	}

	counts := make(map[model.Category]int)
	for _, n := range batch {
		counts[n.Kind.Category()]++
	}

	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)

	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = fmt.Sprintf("%d %s changes", counts[model.Category(c)], c)
	}
	return strings.Join(parts, ", ")
}
