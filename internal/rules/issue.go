package rules

import (
	"fmt"
	"strings"
)

type Severity string

const (
	ERROR Severity = "error"
	WARN  Severity = "warning"
	INFO  Severity = "info"
)

// Rank orders severities so that ERROR sorts highest.
func (s Severity) Rank() int {
	switch s {
	case ERROR:
		return 2
	case WARN:
		return 1
	default:
		return 0
	}
}

// ParseSeverity accepts the canonical names plus the short forms "warn" and "err".
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err":
		return ERROR, nil
	case "warning", "warn":
		return WARN, nil
	case "info":
		return INFO, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Stable rule identifiers. They are consumed by external tooling and must
// never be renumbered.
const (
	IDBoxSize            = "VR-001"
	IDContainerBoundary  = "VR-002"
	IDVersionFlags       = "VR-003"
	IDFileTypeOrdering   = "VR-004"
	IDMovieDataOrdering  = "VR-005"
	IDUnknownBox         = "VR-006"
	IDEditList           = "VR-014"
	IDSampleTable        = "VR-015"
	IDFragmentSequence   = "VR-016"
	IDFragmentRun        = "VR-017"
	IDCodecConfiguration = "VR-018"
	IDTopLevelAdvisory   = "E3"

	// IDParse marks damage reported by the walker rather than a rule.
	IDParse = "PARSE"
)

// Issue is one diagnostic produced by a rule.
type Issue struct {
	RuleID   string   `json:"ruleId" msgpack:"ruleId"`
	Message  string   `json:"message" msgpack:"message"`
	Severity Severity `json:"severity" msgpack:"severity"`
}

func newIssue(ruleID string, sev Severity, format string, args ...any) Issue {
	return Issue{RuleID: ruleID, Message: fmt.Sprintf(format, args...), Severity: sev}
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.RuleID, i.Message)
}
