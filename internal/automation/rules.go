package automation

import (
	"errors"
	"strings"

	"whatsapp-automation/internal/models"
)

var (
	ErrNoGenerator     = errors.New("no AI generator configured")
	ErrEmptyGeneration = errors.New("AI generator returned an empty reply")
)

var kindKeywords = []struct {
	kind     models.RuleKind
	keywords []string
}{
	{models.RuleOutOfHours, []string{"out of office", "out-of-office", "out of hours", "out-of-hours", "after hours", "holiday", "closed"}},
	{models.RuleNoAgent, []string{"no agent", "no-agent", "agent unavailable", "unavailable"}},
	{models.RuleWelcome, []string{"welcome", "greeting"}},
	{models.RuleFallback, []string{"fallback", "default"}},
}

// Classify returns the rule's explicit kind, or derives one from the
// description. Rules with a threshold and no other match are threshold rules.
func Classify(rule models.AutomationRule) models.RuleKind {
	if rule.Kind != "" {
		return rule.Kind
	}
	desc := strings.ToLower(rule.Description)
	for _, k := range kindKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(desc, kw) {
				return k.kind
			}
		}
	}
	if rule.Threshold != nil {
		return models.RuleThreshold
	}
	return ""
}

func firstOfKind(rules []models.AutomationRule, kind models.RuleKind) (models.AutomationRule, bool) {
	for _, r := range rules {
		if r.Enabled && Classify(r) == kind {
			return r, true
		}
	}
	return models.AutomationRule{}, false
}
