package tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/services"
)

// checkViolationResult is the check_violation response. Warning is set only
// when issue was requested and the check found a violation. WarningSkipped
// explains why a requested warning was not issued.
type checkViolationResult struct {
	Check          *models.ViolationCheck `json:"check"`
	Warning        *models.Warning        `json:"warning,omitempty"`
	WarningSkipped string                 `json:"warning_skipped,omitempty"`
}

// RegisterEnforcementTools registers check_violation, issue_warning and list_warnings.
func RegisterEnforcementTools(s *server.MCPServer, deps *ToolDeps) {
	registerCheckViolationTool(s, deps)
	registerIssueWarningTool(s, deps)
	registerListWarningsTool(s, deps)
}

func registerCheckViolationTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"check_violation",
		mcp.WithDescription(
			"Analyze an incident against the organization's policies. "+
				"The verdict quotes the violated clause when one is found; verdicts the model could not justify are flagged for human review. "+
				"Set issue=true to issue a warning immediately when a violation is found; "+
				"verdicts flagged for review are only issued when issued_by names an operator.",
		),
		mcp.WithString("description", mcp.Required(), mcp.Description("What happened")),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("UUID of the subject involved")),
		mcp.WithString("context", mcp.Description("Optional - extra context about the incident")),
		mcp.WithBoolean("issue", mcp.Description("Issue a warning when a violation is found (default: false)")),
		mcp.WithString("issued_by", mcp.Description("Optional - UUID of the operator issuing the warning; omitted means autonomous")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		description, err := req.RequireString("description")
		if err != nil || trimString(description) == "" {
			return NewErrorResult("invalid_parameters", "parameter 'description' cannot be empty"), nil
		}
		subjectID, err := requireUUID(req, "subject_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		issuedBy, err := getOptionalUUID(req, "issued_by")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		check, err := deps.Enforcement.CheckForViolations(ctx, services.ViolationCheckRequest{
			Description:  trimString(description),
			SubjectID:    subjectID,
			ExtraContext: getOptionalString(req, "context"),
			TriggeredBy:  issuedBy,
		})
		if err != nil {
			return serviceErrorResult(deps.Logger, "check_violation", err), nil
		}

		result := checkViolationResult{Check: check}
		if getOptionalBool(req, "issue", false) && check.IsViolation {
			warning, err := deps.Enforcement.IssueWarning(ctx, subjectID, check, issuedBy, issuedBy == nil)
			switch {
			case errors.Is(err, apperrors.ErrRequiresReview):
				result.WarningSkipped = apperrors.ErrRequiresReview.Error()
			case err != nil:
				return serviceErrorResult(deps.Logger, "check_violation", err), nil
			default:
				result.Warning = warning
			}
		}
		return jsonResult(result)
	})
}

func registerIssueWarningTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"issue_warning",
		mcp.WithDescription(
			"Issue the next progressive warning for a subject from a check_violation verdict. "+
				"Warning numbers count the subject's active warnings; the third requires a meeting and later ones escalate. "+
				"Points are deducted with per-tier minimums and the balance never goes below zero.",
		),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("UUID of the subject")),
		mcp.WithObject("violation", mcp.Required(), mcp.Description("The 'check' object returned by check_violation")),
		mcp.WithString("issued_by", mcp.Description("Optional - UUID of the operator; omitted means autonomous")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		subjectID, err := requireUUID(req, "subject_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		issuedBy, err := getOptionalUUID(req, "issued_by")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		var check models.ViolationCheck
		found, err := decodeArgument(req, "violation", &check)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if !found {
			return NewErrorResult("invalid_parameters", "required argument \"violation\" not found"), nil
		}

		warning, err := deps.Enforcement.IssueWarning(ctx, subjectID, &check, issuedBy, issuedBy == nil)
		if err != nil {
			return serviceErrorResult(deps.Logger, "issue_warning", err), nil
		}
		return jsonResult(warning)
	})
}

func registerListWarningsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_warnings",
		mcp.WithDescription("List a subject's warnings in the order they were issued"),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("UUID of the subject")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		subjectID, err := requireUUID(req, "subject_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		warnings, err := deps.Enforcement.ListWarnings(ctx, subjectID)
		if err != nil {
			return serviceErrorResult(deps.Logger, "list_warnings", err), nil
		}
		if warnings == nil {
			warnings = []*models.Warning{}
		}
		return jsonResult(map[string]any{
			"subject_id": subjectID,
			"warnings":   warnings,
		})
	})
}
