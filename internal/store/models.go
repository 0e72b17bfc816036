package store

import (
	"time"

	"github.com/google/uuid"
)

// Permission is the decision a rule carries.
type Permission string

const (
	PermissionAllowed          Permission = "ALLOWED"
	PermissionDenied           Permission = "DENIED"
	PermissionRequiresApproval Permission = "REQUIRES_APPROVAL"
)

// ActionType enumerates the protected operations rules can gate.
type ActionType string

const (
	ActionCreateMachine      ActionType = "CREATE_MACHINE"
	ActionEditMachine        ActionType = "EDIT_MACHINE"
	ActionDeleteMachine      ActionType = "DELETE_MACHINE"
	ActionApproveMachine     ActionType = "APPROVE_MACHINE"
	ActionActivateMachine    ActionType = "ACTIVATE_MACHINE"
	ActionCreateQualityCheck ActionType = "CREATE_QUALITY_CHECK"
	ActionEditQualityCheck   ActionType = "EDIT_QUALITY_CHECK"
	ActionManageRules        ActionType = "MANAGE_RULES"
)

// AllActionTypes is the evaluation order for the all-permissions endpoint.
var AllActionTypes = []ActionType{
	ActionCreateMachine,
	ActionEditMachine,
	ActionDeleteMachine,
	ActionApproveMachine,
	ActionActivateMachine,
	ActionCreateQualityCheck,
	ActionEditQualityCheck,
	ActionManageRules,
}

type ApprovalType string

const (
	ApprovalTypeCreation   ApprovalType = "CREATION"
	ApprovalTypeEdit       ApprovalType = "EDIT"
	ApprovalTypeDeletion   ApprovalType = "DELETION"
	ApprovalTypeActivation ApprovalType = "ACTIVATION"
	ApprovalTypeQuality    ApprovalType = "QUALITY"
)

var AllApprovalTypes = []ApprovalType{
	ApprovalTypeCreation,
	ApprovalTypeEdit,
	ApprovalTypeDeletion,
	ApprovalTypeActivation,
	ApprovalTypeQuality,
}

type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "PENDING"
	StatusApproved  ApprovalStatus = "APPROVED"
	StatusRejected  ApprovalStatus = "REJECTED"
	StatusCancelled ApprovalStatus = "CANCELLED"
)

// CheckApprovalStatus is the three-state approval field carried by a
// quality check itself, distinct from the four-state ledger status.
type CheckApprovalStatus string

const (
	CheckPending  CheckApprovalStatus = "PENDING"
	CheckApproved CheckApprovalStatus = "APPROVED"
	CheckRejected CheckApprovalStatus = "REJECTED"
)

// PermissionRule is a scoped decision record. Empty scoping sets are
// wildcards; priority 0 marks an unscoped, low-precedence rule.
type PermissionRule struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Action        ActionType
	UserIDs       []uuid.UUID
	RoleIDs       []uuid.UUID
	DepartmentIDs []uuid.UUID
	CategoryIDs   []uuid.UUID
	Permission    Permission
	ApproverRoles []uuid.UUID
	MaxValue      *float64
	Priority      int32
	IsActive      bool
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ApprovalRequest struct {
	ID              uuid.UUID
	MachineID       uuid.UUID
	RequesterID     uuid.UUID
	ApprovalType    ApprovalType
	ProposedChanges map[string]any
	OriginalData    map[string]any
	Notes           string
	ApproverRoles   []uuid.UUID
	Status          ApprovalStatus
	DecidedBy       *uuid.UUID
	DecidedAt       *time.Time
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type QualityCheck struct {
	ID                 uuid.UUID
	MachineID          uuid.UUID
	InspectorID        uuid.UUID
	ApprovalStatus     CheckApprovalStatus
	QualityScore       *float64
	InspectionDate     *time.Time
	NextInspectionDate *time.Time
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// QualityApproval is one row of the quality-control approval ledger,
// kept consistent with its linked quality check by the synchronizer.
type QualityApproval struct {
	ID                 uuid.UUID
	MachineID          uuid.UUID
	QualityCheckID     *uuid.UUID
	RequesterID        uuid.UUID
	ApprovalType       ApprovalType
	Status             ApprovalStatus
	QualityScore       *float64
	InspectionDate     *time.Time
	NextInspectionDate *time.Time
	Approvers          []uuid.UUID
	DecidedBy          *uuid.UUID
	DecidedAt          *time.Time
	RejectionReason    string
	MachineActivated   bool
	ActivationDate     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Machine struct {
	ID           uuid.UUID
	Name         string
	CategoryID   *uuid.UUID
	DepartmentID *uuid.UUID
	Value        *float64
	IsApproved   bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	RoleID       *uuid.UUID
	DepartmentID *uuid.UUID
	IsActive     bool
	CreatedAt    time.Time
}

type Notification struct {
	ID         uuid.UUID
	NotifierID uuid.UUID
	ActorID    uuid.UUID
	EntityType string
	EntityID   uuid.UUID
	ReadAt     *time.Time
	CreatedAt  time.Time
}

func ValidPermission(p Permission) bool {
	switch p {
	case PermissionAllowed, PermissionDenied, PermissionRequiresApproval:
		return true
	}
	return false
}

func ValidActionType(a ActionType) bool {
	for _, known := range AllActionTypes {
		if a == known {
			return true
		}
	}
	return false
}

func ValidApprovalType(t ApprovalType) bool {
	for _, known := range AllApprovalTypes {
		if t == known {
			return true
		}
	}
	return false
}

func ValidApprovalStatus(s ApprovalStatus) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}
