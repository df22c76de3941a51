package fingerprint

import (
	"regexp"
	"strings"

	"github.com/leapstack-labs/rqg/pkg/core"
)

type hintRule struct {
	hint     core.Hint
	patterns []*regexp.Regexp
}

var hintRules = []hintRule{
	{core.HintNetwork, compileAll(
		`econnreset`, `timeout`, `dns`, `connection refused`, `connection reset`, `socket hang up`,
	)},
	{core.HintRunner, compileAll(
		`disk full`, `oomkilled`, `no space left`, `agent disconnected`, `out of memory`,
	)},
	{core.HintSession, compileAll(
		`session not created`, `webdriver disconnect`, `browser.*crash`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// DetectHints classifies failure text plus optional log text into infra
// categories. Each category appears at most once, in network, runner, session order.
func DetectHints(failureText, logText string) []core.Hint {
	combined := strings.ToLower(failureText + "\n" + logText)

	var hints []core.Hint
	for _, rule := range hintRules {
		for _, p := range rule.patterns {
			if p.MatchString(combined) {
				hints = append(hints, rule.hint)
				break
			}
		}
	}
	return hints
}
