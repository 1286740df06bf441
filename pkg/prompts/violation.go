package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// ViolationAnalysisSystemPrompt constrains the model to policy-grounded verdicts.
const ViolationAnalysisSystemPrompt = `You are a compliance analyst. You decide whether an incident violates one of the policies you are given.
You must only rely on the policies provided. If none of them is violated, report no violation.
Never invent a clause: violated_clause must be copied word for word from a policy, or be null.
Respond with a single JSON object and nothing else.`

// BuildViolationAnalysisPrompt renders the user message for one incident.
// policies are rendered in authority order and numbered from 1.
func BuildViolationAnalysisPrompt(description, extraContext string, policies []models.KnowledgeChunk) string {
	var prompt strings.Builder

	prompt.WriteString("# Incident Analysis\n\n")
	prompt.WriteString("## Incident\n")
	prompt.WriteString(strings.TrimSpace(description))
	prompt.WriteString("\n\n")

	if extra := strings.TrimSpace(extraContext); extra != "" {
		prompt.WriteString("## Context\n")
		prompt.WriteString(extra)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("## Policies\n")
	for i, c := range sortedCopy(policies) {
		prompt.WriteString(fmt.Sprintf("\n[%d] (%s, authority %d)\n%s\n", i+1, docTypeOrDefault(c.DocType), c.AuthorityLevel, strings.TrimSpace(c.Content)))
	}

	prompt.WriteString(`
## Severity Guide
- minor: first-time lapse with no impact on others
- moderate: repeated lapse or one affecting the team's work
- severe: deliberate breach or one with material impact
- critical: safety, legal or confidentiality breach

## Response Format
{
  "is_violation": true,
  "violation_type": "short snake_case category, e.g. late_report",
  "severity": "minor | moderate | severe | critical",
  "description": "one or two sentences explaining the finding",
  "violated_clause": "exact quote from a policy above, or null",
  "recommended_action": "what should happen next",
  "points_deduction": 0
}
`)

	return prompt.String()
}
