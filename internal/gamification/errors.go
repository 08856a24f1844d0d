package gamification

import "errors"

var (
	ErrUnknownUser       = errors.New("unknown user")
	ErrInactiveUser      = errors.New("user account is inactive")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrUnknownExam       = errors.New("unknown exam")
	ErrInvalidPeriod     = errors.New("invalid ranking period")
	ErrInvalidSession    = errors.New("invalid exam session")
	ErrInvalidTrigger    = errors.New("invalid trigger")
	ErrAchievementInUse  = errors.New("achievement is a prerequisite of another achievement")
	ErrNoSnapshot        = errors.New("no ranking snapshot for period")
	ErrUnknownCondition  = errors.New("conditions not supported for trigger")
	ErrInvalidItem       = errors.New("invalid reward item")
	ErrItemExists        = errors.New("reward item already exists")
	ErrItemNotCatalogued = errors.New("reward item not in catalog")
)

// errBlocked aborts a user transaction after a rate-limit decision so that
// nothing created while reading state is kept.
var errBlocked = errors.New("blocked")

// IsValidationError reports whether err is caused by malformed caller input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrInactiveUser) ||
		errors.Is(err, ErrUnknownQuestion) ||
		errors.Is(err, ErrUnknownExam) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidSession) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrInvalidItem)
}

// IsNotFoundError reports whether err should map to a 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrUnknownQuestion) ||
		errors.Is(err, ErrUnknownExam) ||
		errors.Is(err, ErrNoSnapshot)
}
