// Package prompts builds the text sent to AI providers: the layered system
// prompt for reasoning, and the task prompts for violation analysis and
// course generation.
package prompts

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// Layer tags recorded in decision logs.
const (
	LayerGlobal      = "Layer1"
	LayerSubject     = "Layer2"
	LayerPersonality = "Layer3:personality"
)

const sectionSeparator = "\n\n"

// OperatingRules is appended to every composed prompt.
const OperatingRules = `## OPERATING RULES
- Never invent a policy, rule or deadline that is not present in the knowledge above.
- When enforcing or citing a rule, always name the document type it comes from.
- If the knowledge above does not settle the question, say so and defer to a human operator.
- Priority order when sources disagree: LAYER 1 institutional policy, then LAYER 2 subject profile, then general knowledge.`

// Compose renders the system prompt for one request. Sections appear in a
// fixed order and empty sections are left out entirely:
//
//  1. base instructions
//  2. LAYER 1: global knowledge, highest authority
//  3. LAYER 2: subject knowledge, subordinate to layer 1
//  4. LAYER 3: personality directives
//  5. caller supplied context
//  6. operating rules
//
// Compose is a pure function of its inputs.
func Compose(result *models.RetrievalResult, settings *models.EngineSettings, extraContext string) string {
	if settings == nil {
		settings = models.DefaultEngineSettings()
	}

	var sections []string

	if base := strings.TrimSpace(settings.BaseInstructions); base != "" {
		sections = append(sections, base)
	}

	if result != nil {
		if len(result.Global) > 0 {
			sections = append(sections, knowledgeSection(
				"## LAYER 1 - INSTITUTIONAL POLICY (HIGHEST AUTHORITY)",
				"The following organization-wide rules override all other reasoning, including the subject profile below and your own judgment.",
				result.Global))
		}
		if len(result.Subject) > 0 {
			sections = append(sections, knowledgeSection(
				"## LAYER 2 - SUBJECT PROFILE",
				"The following is specific to this subject. It is subordinate to LAYER 1: where they conflict, LAYER 1 wins.",
				result.Subject))
		}
	}

	if !settings.Personality.IsEmpty() {
		sections = append(sections, personalitySection(settings.Personality))
	}

	if extra := strings.TrimSpace(extraContext); extra != "" {
		sections = append(sections, "## ADDITIONAL CONTEXT\n"+extra)
	}

	sections = append(sections, OperatingRules)

	return strings.Join(sections, sectionSeparator)
}

// SortByAuthority orders chunks by authority level ascending and, within a
// level, by similarity descending. Authority always dominates similarity.
func SortByAuthority(chunks []models.KnowledgeChunk) {
	slices.SortStableFunc(chunks, func(a, b models.KnowledgeChunk) int {
		if a.AuthorityLevel != b.AuthorityLevel {
			return a.AuthorityLevel - b.AuthorityLevel
		}
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
}

// LayersUsed returns the deduplicated, order-preserving layer tags for a
// composed prompt: Layer1:<docType> per global chunk, Layer2:<docType> per
// subject chunk, then Layer3:personality when personality was rendered.
func LayersUsed(result *models.RetrievalResult, personality models.PersonalityConfig) []string {
	var layers []string
	seen := make(map[string]bool)
	add := func(tag string) {
		if !seen[tag] {
			seen[tag] = true
			layers = append(layers, tag)
		}
	}

	if result != nil {
		for _, c := range sortedCopy(result.Global) {
			add(LayerGlobal + ":" + docTypeOrDefault(c.DocType))
		}
		for _, c := range sortedCopy(result.Subject) {
			add(LayerSubject + ":" + docTypeOrDefault(c.DocType))
		}
	}
	if !personality.IsEmpty() {
		add(LayerPersonality)
	}
	return layers
}

func knowledgeSection(header, preamble string, chunks []models.KnowledgeChunk) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(preamble)
	sb.WriteString("\n")
	for i, c := range sortedCopy(chunks) {
		sb.WriteString(fmt.Sprintf("\n[%d] (%s, authority %d)\n%s\n", i+1, docTypeOrDefault(c.DocType), c.AuthorityLevel, strings.TrimSpace(c.Content)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func personalitySection(p models.PersonalityConfig) string {
	var lines []string
	lines = append(lines, "## LAYER 3 - PERSONALITY")

	if p.Tone != "" {
		lines = append(lines, "Tone: "+toneDirective(p.Tone))
	}
	if p.AuthorityStyle != "" {
		lines = append(lines, "Authority style: "+authorityDirective(p.AuthorityStyle))
	}
	if p.DisciplineFramework != "" {
		lines = append(lines, "Discipline framework: "+disciplineDirective(p.DisciplineFramework))
		if p.EscalationEnabled {
			lines = append(lines, "Escalation: repeated violations escalate to meetings and formal review.")
		} else {
			lines = append(lines, "Escalation: do not recommend escalation; a human operator decides.")
		}
	}

	if len(p.CustomRules) > 0 {
		lines = append(lines, "Custom rules:")
		n := 0
		for _, rule := range p.CustomRules {
			rule = strings.TrimSpace(rule)
			if rule == "" {
				continue
			}
			n++
			lines = append(lines, fmt.Sprintf("%d. %s", n, rule))
		}
	}

	return strings.Join(lines, "\n")
}

func toneDirective(t models.Tone) string {
	switch t {
	case models.ToneProfessional:
		return "professional. Be clear, concise and courteous."
	case models.ToneFriendly:
		return "friendly. Be warm and approachable while staying accurate."
	case models.ToneStrict:
		return "strict. Be direct and unambiguous about expectations."
	case models.ToneSupportive:
		return "supportive. Acknowledge effort and frame guidance constructively."
	}
	return string(t) + "."
}

func authorityDirective(a models.AuthorityStyle) string {
	switch a {
	case models.AuthorityAdvisory:
		return "advisory. Recommend rather than command."
	case models.AuthorityDirective:
		return "directive. State required actions plainly."
	case models.AuthorityCollaborative:
		return "collaborative. Work out next steps together with the user."
	}
	return string(a) + "."
}

func disciplineDirective(d models.DisciplineFramework) string {
	switch d {
	case models.DisciplineProgressive:
		return "progressive. Consequences grow with the number of active warnings."
	case models.DisciplineRestorative:
		return "restorative. Prefer repairing harm and learning over penalties."
	case models.DisciplineZeroTolerance:
		return "zero tolerance. Every confirmed violation is acted on."
	}
	return string(d) + "."
}

func sortedCopy(chunks []models.KnowledgeChunk) []models.KnowledgeChunk {
	out := slices.Clone(chunks)
	SortByAuthority(out)
	return out
}

func docTypeOrDefault(docType string) string {
	if docType == "" {
		return "document"
	}
	return docType
}
