package repositories

import "errors"

// IsNotFound reports whether err categorises as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err categorises as a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err categorises as a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// IsDuplicate reports whether err was caused by creating a record that
// already exists. Callers deduplicating idempotent inserts rely on this.
func IsDuplicate(err error) bool {
	var dup interface {
		error
		IsAlreadyExists() bool
	}
	return errors.As(err, &dup) && dup.IsAlreadyExists()
}
