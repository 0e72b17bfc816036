package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/store"
)

// RuleBuilder provides a fluent interface for composing permission rules
type RuleBuilder struct {
	rule store.PermissionRule
}

// NewRule creates a rule builder with an unscoped ALLOWED rule
func NewRule(action store.ActionType) *RuleBuilder {
	return &RuleBuilder{rule: store.PermissionRule{
		Name:       "Test Rule",
		Action:     action,
		Permission: store.PermissionAllowed,
		Priority:   1,
		IsActive:   true,
		CreatedBy:  uuid.New(),
	}}
}

func (b *RuleBuilder) WithName(name string) *RuleBuilder {
	b.rule.Name = name
	return b
}

func (b *RuleBuilder) WithPermission(p store.Permission) *RuleBuilder {
	b.rule.Permission = p
	return b
}

func (b *RuleBuilder) WithPriority(priority int32) *RuleBuilder {
	b.rule.Priority = priority
	return b
}

func (b *RuleBuilder) WithUsers(ids ...uuid.UUID) *RuleBuilder {
	b.rule.UserIDs = ids
	return b
}

func (b *RuleBuilder) WithRoles(ids ...uuid.UUID) *RuleBuilder {
	b.rule.RoleIDs = ids
	return b
}

func (b *RuleBuilder) WithDepartments(ids ...uuid.UUID) *RuleBuilder {
	b.rule.DepartmentIDs = ids
	return b
}

func (b *RuleBuilder) WithCategories(ids ...uuid.UUID) *RuleBuilder {
	b.rule.CategoryIDs = ids
	return b
}

func (b *RuleBuilder) WithApproverRoles(ids ...uuid.UUID) *RuleBuilder {
	b.rule.ApproverRoles = ids
	return b
}

func (b *RuleBuilder) WithMaxValue(v float64) *RuleBuilder {
	b.rule.MaxValue = &v
	return b
}

func (b *RuleBuilder) Build() store.PermissionRule {
	return b.rule
}

// CheckBuilder composes quality checks
type CheckBuilder struct {
	check store.QualityCheck
}

func NewCheck(machineID uuid.UUID) *CheckBuilder {
	return &CheckBuilder{check: store.QualityCheck{
		ID:             uuid.New(),
		MachineID:      machineID,
		InspectorID:    uuid.New(),
		ApprovalStatus: store.CheckPending,
	}}
}

func (b *CheckBuilder) WithStatus(status store.CheckApprovalStatus) *CheckBuilder {
	b.check.ApprovalStatus = status
	return b
}

func (b *CheckBuilder) WithScore(score float64) *CheckBuilder {
	b.check.QualityScore = &score
	return b
}

func (b *CheckBuilder) WithInspectionDate(d time.Time) *CheckBuilder {
	b.check.InspectionDate = &d
	return b
}

func (b *CheckBuilder) Active() *CheckBuilder {
	b.check.IsActive = true
	return b
}

func (b *CheckBuilder) Build() store.QualityCheck {
	return b.check
}

// LedgerRowBuilder composes quality approval ledger rows
type LedgerRowBuilder struct {
	row store.QualityApproval
}

func NewLedgerRow(checkID, machineID uuid.UUID) *LedgerRowBuilder {
	id := checkID
	return &LedgerRowBuilder{row: store.QualityApproval{
		ID:             uuid.New(),
		MachineID:      machineID,
		QualityCheckID: &id,
		RequesterID:    uuid.New(),
		ApprovalType:   store.ApprovalTypeQuality,
		Status:         store.StatusPending,
	}}
}

func (b *LedgerRowBuilder) WithStatus(status store.ApprovalStatus) *LedgerRowBuilder {
	b.row.Status = status
	return b
}

func (b *LedgerRowBuilder) WithDecision(by uuid.UUID, at time.Time) *LedgerRowBuilder {
	b.row.DecidedBy = &by
	b.row.DecidedAt = &at
	return b
}

func (b *LedgerRowBuilder) Build() store.QualityApproval {
	return b.row
}
