package progression

import "errors"

// ErrProfileNotFound is returned by read and update paths for a key that has
// never received an event. Event processing creates profiles instead.
var ErrProfileNotFound = errors.New("profile not found")

// ErrChallengeNotFound is returned when a challenge id is not among the
// profile's active challenges.
var ErrChallengeNotFound = errors.New("challenge not found")

// ErrChallengeAlreadyCompleted is returned when progress is applied to a
// challenge that has already paid out.
var ErrChallengeAlreadyCompleted = errors.New("challenge already completed")

// ErrConcurrentUpdateExhausted is returned after the commit retry budget is
// spent on version conflicts. Nothing was applied; the event can be resent.
var ErrConcurrentUpdateExhausted = errors.New("concurrent update retries exhausted")

// ErrVersionConflict is returned by a ProfileStore when the stored version no
// longer matches the version the caller loaded.
var ErrVersionConflict = errors.New("profile version conflict")

// ErrUnknownAction marks an action with no XP rule. It is never fatal.
var ErrUnknownAction = errors.New("unknown action")

// ErrInvalidEvent is returned for events or keys missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// ErrInvalidProgress is returned for negative or non-finite challenge progress.
var ErrInvalidProgress = errors.New("invalid challenge progress")

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")
