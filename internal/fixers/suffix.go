package fixers

import (
	"context"
	"fmt"

	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/workflow"
)

// LayerSuffixFixer handles missing layer suffixes. Picking a layer
// (api/core/spi/facade/common) is a design decision no rule can make from
// the descriptor alone, so the outcome is always guidance.
type LayerSuffixFixer struct{}

// NewLayerSuffixFixer creates the fixer.
func NewLayerSuffixFixer() *LayerSuffixFixer {
	return &LayerSuffixFixer{}
}

func (f *LayerSuffixFixer) Name() string { return "layer-suffix" }

func (f *LayerSuffixFixer) RuleIDs() []string { return []string{rules.RuleLayerSuffix} }

func (f *LayerSuffixFixer) Priority() int { return 100 }

func (f *LayerSuffixFixer) CanFix(req Request) bool { return req.Node != nil }

func (f *LayerSuffixFixer) Fix(_ context.Context, req Request) (workflow.Outcome, *workflow.Ledger) {
	return workflow.NotFixable(fmt.Sprintf(
		"module %q needs a layer suffix (api, core, spi, facade, or common); choose the layer that matches its contents and rename the module and its directory",
		req.Node.Identity)), workflow.NewLedger()
}
