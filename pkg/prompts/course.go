package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// CourseGenerationSystemPrompt frames course outline generation.
const CourseGenerationSystemPrompt = `You design short training courses for interns.
Base the content on the organization's policies when they are relevant.
Respond with a single JSON object and nothing else.`

// CourseRequest describes the course to generate.
type CourseRequest struct {
	Topic       string
	Audience    string
	ModuleCount int
}

// BuildCoursePrompt renders the user message for course generation.
func BuildCoursePrompt(req CourseRequest, policies []models.KnowledgeChunk) string {
	var prompt strings.Builder

	prompt.WriteString("# Course Outline\n\n")
	prompt.WriteString(fmt.Sprintf("Topic: %s\n", strings.TrimSpace(req.Topic)))
	if req.Audience != "" {
		prompt.WriteString(fmt.Sprintf("Audience: %s\n", req.Audience))
	}
	if req.ModuleCount > 0 {
		prompt.WriteString(fmt.Sprintf("Modules: exactly %d\n", req.ModuleCount))
	}

	if len(policies) > 0 {
		prompt.WriteString("\n## Relevant Policies\n")
		for i, c := range sortedCopy(policies) {
			prompt.WriteString(fmt.Sprintf("\n[%d] (%s)\n%s\n", i+1, docTypeOrDefault(c.DocType), strings.TrimSpace(c.Content)))
		}
	}

	prompt.WriteString(`
## Response Format
{
  "title": "course title",
  "description": "one paragraph",
  "modules": [
    {
      "title": "module title",
      "objectives": ["objective"],
      "lessons": [{"title": "lesson title", "summary": "one or two sentences"}]
    }
  ]
}
`)

	return prompt.String()
}
