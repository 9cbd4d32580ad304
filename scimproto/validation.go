package scimproto

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Validator validates SCIM resources
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateUser validates a User resource's attribute map. Rather than
// a struct-bound version, this walks the opaque Attributes map so the
// same validator works whether the payload came off the wire or out
// of storage.
func (v *Validator) ValidateUser(user *Resource) error {
	if user == nil {
		return ErrInvalidValue("user cannot be nil")
	}

	userName := user.GetString("userName")
	if strings.TrimSpace(userName) == "" {
		return ErrInvalidValue("userName is required")
	}

	if !isValidUserName(userName) {
		return ErrInvalidValue("userName contains invalid characters")
	}

	if emails, ok := user.Get("emails"); ok {
		if list, ok := emails.([]any); ok {
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				value, _ := m["value"].(string)
				if err := v.validateEmail(value); err != nil {
					return err
				}
			}
		}
	}

	if len(user.Schemas) == 0 {
		user.Schemas = []string{SchemaUser}
	}

	return nil
}

// ValidateGroup validates a Group resource's attribute map.
func (v *Validator) ValidateGroup(group *Resource) error {
	if group == nil {
		return ErrInvalidValue("group cannot be nil")
	}

	if strings.TrimSpace(group.GetString("displayName")) == "" {
		return ErrInvalidValue("displayName is required")
	}

	if len(group.Schemas) == 0 {
		group.Schemas = []string{SchemaGroup}
	}

	return nil
}

// ValidatePatchOp validates a PATCH operation
func (v *Validator) ValidatePatchOp(patch *PatchOp) error {
	if patch == nil {
		return ErrInvalidSyntax("patch operation cannot be nil")
	}

	validSchema := slices.Contains(patch.Schemas, SchemaPatchOp)
	if !validSchema {
		return ErrInvalidValue(fmt.Sprintf("invalid schema, expected %s", SchemaPatchOp))
	}

	if len(patch.Operations) == 0 {
		return ErrInvalidValue("at least one operation is required")
	}

	for i, op := range patch.Operations {
		if err := v.validatePatchOperation(op); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}

	return nil
}

// validatePatchOperation validates a single patch operation
func (v *Validator) validatePatchOperation(op PatchOperation) error {
	opLower := strings.ToLower(op.Op)
	if opLower != "add" && opLower != "remove" && opLower != "replace" {
		return ErrInvalidValue(fmt.Sprintf("invalid op: %s", op.Op))
	}

	if opLower == "remove" && op.Path == "" {
		return ErrNoTarget("path is required for remove operation")
	}

	if (opLower == "add" || opLower == "replace") && op.Value == nil && op.Path == "" {
		return ErrInvalidValue(fmt.Sprintf("value is required for %s operation", op.Op))
	}

	return nil
}

// validateEmail validates an email address
func (v *Validator) validateEmail(email string) error {
	if email == "" {
		return nil // Email is optional
	}

	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return ErrInvalidValue(fmt.Sprintf("invalid email format: %s", email))
	}

	return nil
}

// isValidUserName checks if a userName is valid
func isValidUserName(userName string) bool {
	validUserNameRegex := regexp.MustCompile(`^[a-zA-Z0-9._@\-]+$`)
	return validUserNameRegex.MatchString(userName)
}

// SanitizeInput sanitizes user input to prevent injection attacks
func SanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	return input
}

// ValidateQueryParams validates query parameters
func ValidateQueryParams(params *QueryParams) error {
	if params.StartIndex < 1 {
		params.StartIndex = 1
	}

	if params.Count < 1 {
		params.Count = 100
	}
	if params.Count > 1000 {
		params.Count = 1000 // Max limit
	}

	if params.SortOrder != "" {
		sortOrder := strings.ToLower(params.SortOrder)
		if sortOrder != "ascending" && sortOrder != "descending" {
			return ErrInvalidValue(fmt.Sprintf("invalid sortOrder: %s", params.SortOrder))
		}
		params.SortOrder = sortOrder
	}

	return nil
}
