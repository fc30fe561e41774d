package auth

import (
	"fmt"

	"ideaforge/internal/domain"
)

// UnauthorizedError indicates the caller is not the required authority.
type UnauthorizedError struct {
	Caller   domain.Principal
	Required domain.Principal
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("principal %s is not authorized", e.Caller)
}

// NotOwnerError indicates a transfer attempted by someone other than the current owner.
type NotOwnerError struct {
	TokenID int64
	Caller  domain.Principal
}

func (e NotOwnerError) Error() string {
	return fmt.Sprintf("principal %s does not own token %d", e.Caller, e.TokenID)
}

// Authorize fails with UnauthorizedError unless caller equals required.
func Authorize(caller, required domain.Principal) error {
	if caller != required {
		return UnauthorizedError{Caller: caller, Required: required}
	}
	return nil
}

// RequireOwner fails with NotOwnerError unless caller equals the token owner.
func RequireOwner(tokenID int64, caller, owner domain.Principal) error {
	if caller != owner {
		return NotOwnerError{TokenID: tokenID, Caller: caller}
	}
	return nil
}
