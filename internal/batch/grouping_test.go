package batch

import (
	"strings"
	"testing"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/router"
)

func paragraphItem(id, text string, strategy router.Strategy, tier router.Tier) Item {
	return Item{
		Block:    &docmodel.ContentBlock{ID: id, Kind: docmodel.KindParagraph, OriginalText: text},
		Decision: router.Decision{Strategy: strategy, Tier: tier},
	}
}

func headingItem(id, text string) Item {
	return Item{
		Block:    &docmodel.ContentBlock{ID: id, Kind: docmodel.KindHeading, OriginalText: text},
		Decision: router.Decision{Strategy: router.StrategyMarkdownAwareQuality, Tier: router.TierQuality},
	}
}

func preserveItem(id, text string) Item {
	return Item{
		Block:    &docmodel.ContentBlock{ID: id, Kind: docmodel.KindMathFormula, OriginalText: text},
		Decision: router.Decision{Strategy: router.StrategyPreserve},
	}
}

func TestGroupItems_CombinesCompatibleConsecutive(t *testing.T) {
	items := []Item{
		paragraphItem("p1", "one", router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p2", "two", router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p3", "three", router.StrategyMarkdownAwareCost, router.TierCost),
	}
	groups := GroupItems(items, GroupingConfig{Enable: true, MaxGroupSizeChars: 1000, MaxItemsPerGroup: 8})
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Items) != 3 {
		t.Errorf("expected 3 items in the group, got %d", len(groups[0].Items))
	}
}

func TestGroupItems_HeadingsNeverGroup(t *testing.T) {
	items := []Item{
		headingItem("h1", "Intro"),
		headingItem("h2", "Methods"),
	}
	groups := GroupItems(items, GroupingConfig{Enable: true, MaxGroupSizeChars: 1000, MaxItemsPerGroup: 8})
	if len(groups) != 2 {
		t.Fatalf("expected 2 singleton groups for headings, got %d", len(groups))
	}
	for _, g := range groups {
		if len(g.Items) != 1 {
			t.Errorf("expected singleton group, got %d items", len(g.Items))
		}
	}
}

func TestGroupItems_PreserveNeverGroups(t *testing.T) {
	items := []Item{
		preserveItem("m1", "$x^2$"),
		preserveItem("m2", "$y^2$"),
	}
	groups := GroupItems(items, GroupingConfig{Enable: true, MaxGroupSizeChars: 1000, MaxItemsPerGroup: 8})
	if len(groups) != 2 {
		t.Fatalf("expected 2 singleton groups for preserve blocks, got %d", len(groups))
	}
}

func TestGroupItems_DifferentStrategiesDoNotMix(t *testing.T) {
	items := []Item{
		paragraphItem("p1", "one", router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p2", "two", router.StrategyMarkdownAwareQuality, router.TierQuality),
	}
	groups := GroupItems(items, GroupingConfig{Enable: true, MaxGroupSizeChars: 1000, MaxItemsPerGroup: 8})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups for differing strategies, got %d", len(groups))
	}
}

func TestGroupItems_RespectsMaxGroupSizeChars(t *testing.T) {
	long := strings.Repeat("x", 60)
	items := []Item{
		paragraphItem("p1", long, router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p2", long, router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p3", long, router.StrategyMarkdownAwareCost, router.TierCost),
	}
	groups := GroupItems(items, GroupingConfig{Enable: true, MaxGroupSizeChars: 100, MaxItemsPerGroup: 8})
	if len(groups) < 2 {
		t.Fatalf("expected the char budget to force multiple groups, got %d", len(groups))
	}
}

func TestGroupItems_RespectsMaxItemsPerGroup(t *testing.T) {
	items := []Item{
		paragraphItem("p1", "a", router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p2", "b", router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p3", "c", router.StrategyMarkdownAwareCost, router.TierCost),
	}
	groups := GroupItems(items, GroupingConfig{Enable: true, MaxGroupSizeChars: 1000, MaxItemsPerGroup: 2})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups with max 2 items each, got %d", len(groups))
	}
	if len(groups[0].Items) != 2 || len(groups[1].Items) != 1 {
		t.Errorf("unexpected group sizes: %d, %d", len(groups[0].Items), len(groups[1].Items))
	}
}

func TestGroupItems_DisabledProducesSingletons(t *testing.T) {
	items := []Item{
		paragraphItem("p1", "one", router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p2", "two", router.StrategyMarkdownAwareCost, router.TierCost),
	}
	groups := GroupItems(items, GroupingConfig{Enable: false})
	if len(groups) != 2 {
		t.Fatalf("expected grouping disabled to yield singleton groups, got %d", len(groups))
	}
}

func TestGroupItems_PreservesDocumentOrder(t *testing.T) {
	items := []Item{
		headingItem("h1", "Intro"),
		paragraphItem("p1", "one", router.StrategyMarkdownAwareCost, router.TierCost),
		paragraphItem("p2", "two", router.StrategyMarkdownAwareCost, router.TierCost),
		headingItem("h2", "Conclusion"),
	}
	groups := GroupItems(items, GroupingConfig{Enable: true, MaxGroupSizeChars: 1000, MaxItemsPerGroup: 8})

	var orderedIDs []string
	for _, g := range groups {
		for _, it := range g.Items {
			orderedIDs = append(orderedIDs, it.Block.ID)
		}
	}
	want := []string{"h1", "p1", "p2", "h2"}
	if len(orderedIDs) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(orderedIDs))
	}
	for i, id := range want {
		if orderedIDs[i] != id {
			t.Errorf("index %d: expected %s, got %s", i, id, orderedIDs[i])
		}
	}
}
