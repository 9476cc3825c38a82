package service

import "errors"

// Sentinel errors the handlers translate into HTTP statuses.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrRuleNotFound       = errors.New("permission rule not found")
	ErrSharingNotFound    = errors.New("resource sharing not found")
	ErrInvitationNotFound = errors.New("share invitation not found")
	ErrTemplateNotFound   = errors.New("sharing template not found")
	ErrForbidden          = errors.New("forbidden")
	ErrBuiltInRule        = errors.New("built-in rules cannot be deleted")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvitationClosed   = errors.New("invitation is no longer pending")
	ErrInvitationExpired  = errors.New("invitation has expired")
)
