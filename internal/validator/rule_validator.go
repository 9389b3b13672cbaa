package validator

import (
	"fmt"
	"strings"

	"go_niceurl/internal/converter"
	"go_niceurl/internal/model"
	"go_niceurl/internal/rule"
)

// expectedArgs 内置转换策略要求的参数个数
var expectedArgs = map[string]int{
	converter.StrategyDB:   3,
	converter.StrategyHook: 2,
}

// RuleValidator URL 规则校验器
type RuleValidator struct {
	baseURL    string
	strategies *converter.Registry
	strict     bool
}

// NewRuleValidator 创建校验器实例
func NewRuleValidator(baseURL string, strategies *converter.Registry, strict bool) *RuleValidator {
	return &RuleValidator{baseURL: baseURL, strategies: strategies, strict: strict}
}

// Validate 校验规则：能编译、转换参数合法、占位符可解析
func (v *RuleValidator) Validate(m *model.URLRule) error {
	m.Pattern = strings.TrimSpace(m.Pattern)
	m.Template = strings.TrimSpace(m.Template)
	m.Readable = strings.TrimSpace(m.Readable)

	compiled, err := rule.Compile(m, v.baseURL)
	if err != nil {
		return err
	}

	for _, p := range compiled.Conversions() {
		if v.strategies != nil && !v.strategies.Has(p.Conversion) {
			return fmt.Errorf("param %d: unknown conversion %q", p.Group, p.Conversion)
		}
		if want, ok := expectedArgs[p.Conversion]; ok && len(p.Args) != want {
			return fmt.Errorf("param %d: %s conversion needs %d args, got %d", p.Group, p.Conversion, want, len(p.Args))
		}
	}

	groups := compiled.NumGroups()
	for _, n := range rule.Placeholders(m.Template) {
		if n > groups {
			return fmt.Errorf("template placeholder ${%d} exceeds %d capture groups", n, groups)
		}
		if _, ok := compiled.ForwardParam(n); !ok && v.strict {
			return fmt.Errorf("template placeholder ${%d} has no forward param", n)
		}
	}

	if v.strict {
		for _, n := range compiled.ReadableGroups() {
			if _, ok := compiled.InverseParam(n); !ok {
				return fmt.Errorf("readable placeholder ${%d} has no param", n)
			}
		}
	}

	return nil
}
