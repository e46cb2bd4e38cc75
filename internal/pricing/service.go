package pricing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bonafide55/shop-api/internal/obs"
)

// RuleSource lists the active discount rules in catalog order.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]Rule, error)
}

// Service loads rules and runs the engine.
type Service struct {
	Rules  RuleSource
	Engine *Engine
	Logger zerolog.Logger
}

// Calculate prices rows. Rules are only fetched for a non-empty basket.
func (s *Service) Calculate(ctx context.Context, rows []Source) (res Result, err error) {
	ctx, span := obs.StartSpan(ctx, "pricing.calculate", attribute.Int("pricing.rows", len(rows)))
	defer func() {
		span.SetAttributes(
			attribute.String("pricing.rule", res.AppliedRuleName()),
			attribute.String("pricing.final_total", res.FinalTotal.StringFixed(2)),
		)
		obs.EndSpan(span, err)
	}()

	engine := s.Engine
	if engine == nil {
		engine = NewEngine()
	}
	items := engine.Normalize(rows)
	if len(items) == 0 {
		return zeroResult(), nil
	}
	var rules []Rule
	if s.Rules != nil {
		loaded, err := s.Rules.ListActiveRules(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("list discount rules: %w", err)
		}
		rules = loaded
	}
	res = engine.evaluate(items, rules)
	s.record(res)
	return res, nil
}

func (s *Service) record(res Result) {
	rule := res.AppliedRuleName()
	label := rule
	if label == "" {
		label = "none"
	}
	if obs.PricingCalculationsTotal != nil {
		obs.PricingCalculationsTotal.WithLabelValues(label).Inc()
	}
	if obs.PricingDiscountAmount != nil && res.AppliedRule != nil {
		obs.PricingDiscountAmount.Observe(res.DiscountAmount.InexactFloat64())
	}
	s.Logger.Debug().
		Int("items", len(res.Items)).
		Str("subtotal", res.Subtotal.StringFixed(2)).
		Str("discount", res.DiscountAmount.StringFixed(2)).
		Str("rule", rule).
		Bool("hint", res.UpsellHint != "").
		Msg("pricing_calculated")
}
