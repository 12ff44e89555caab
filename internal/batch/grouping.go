// Package batch implements the async batch executor: a worker pool
// dispatching grouped translation tasks under a concurrency cap and a
// token-bucket rate limiter.
package batch

import (
	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/router"
)

// Item pairs a block with the routing decision already made for it.
type Item struct {
	Block    *docmodel.ContentBlock
	Decision router.Decision
}

// Group is a batch of compatible, consecutive blocks dispatched as one
// translation task.
type Group struct {
	Items []Item
}

// GroupingConfig carries the grouping thresholds.
type GroupingConfig struct {
	Enable            bool
	MaxGroupSizeChars int
	MaxItemsPerGroup  int
}

// DefaultGroupingConfig matches internal/config's defaults.
func DefaultGroupingConfig() GroupingConfig {
	return GroupingConfig{Enable: true, MaxGroupSizeChars: 12000, MaxItemsPerGroup: 8}
}

// GroupItems implements the grouping policy: compatible consecutive
// blocks (same strategy, same tier) are combined into one Group bounded by
// max_group_size_chars and max_items_per_group. Headings and preserve-blocks
// are never grouped with others (each gets its own single-item Group).
func GroupItems(items []Item, cfg GroupingConfig) []Group {
	if !cfg.Enable {
		return singletonGroups(items)
	}

	var groups []Group
	var current Group
	currentChars := 0

	flush := func() {
		if len(current.Items) > 0 {
			groups = append(groups, current)
			current = Group{}
			currentChars = 0
		}
	}

	for _, it := range items {
		if !groupable(it) {
			flush()
			groups = append(groups, Group{Items: []Item{it}})
			continue
		}

		chars := len(it.Block.OriginalText)
		compatible := len(current.Items) > 0 && sameGroup(current.Items[len(current.Items)-1].Decision, it.Decision)
		fitsSize := currentChars+chars <= cfg.MaxGroupSizeChars
		fitsCount := len(current.Items) < cfg.MaxItemsPerGroup

		if len(current.Items) > 0 && (!compatible || !fitsSize || !fitsCount) {
			flush()
		}

		current.Items = append(current.Items, it)
		currentChars += chars
	}
	flush()

	return groups
}

// groupable reports whether a block is ever eligible for grouping with
// neighbors. Headings and preserve blocks never group, regardless of the
// strategy the Router assigned them.
func groupable(it Item) bool {
	if it.Decision.Strategy == router.StrategyPreserve {
		return false
	}
	if it.Block.Kind == docmodel.KindHeading {
		return false
	}
	return true
}

func sameGroup(a, b router.Decision) bool {
	return a.Strategy == b.Strategy && a.Tier == b.Tier
}

func singletonGroups(items []Item) []Group {
	groups := make([]Group, len(items))
	for i, it := range items {
		groups[i] = Group{Items: []Item{it}}
	}
	return groups
}
