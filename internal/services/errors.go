package services

import (
	"errors"
	"fmt"
)

// ErrSyncCancelled is returned when a reset is observed between cycle phases
var ErrSyncCancelled = errors.New("sync cancelled")

// AuthenticationError means there is no usable session for the backend
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	if e.Reason == "" {
		return "not authenticated"
	}
	return "not authenticated: " + e.Reason
}

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// DeviceRegistrationError means the backend did not return a device id
type DeviceRegistrationError struct {
	Err error
}

func (e *DeviceRegistrationError) Error() string {
	return "device registration failed: " + errMessage(e.Err)
}

func (e *DeviceRegistrationError) Unwrap() error { return e.Err }

// SyncPushError means the push call failed or its envelope was malformed
type SyncPushError struct {
	Err error
}

func (e *SyncPushError) Error() string {
	return "push failed: " + errMessage(e.Err)
}

func (e *SyncPushError) Unwrap() error { return e.Err }

// SyncPullError means the pull call failed or its envelope was malformed
type SyncPullError struct {
	Err error
}

func (e *SyncPullError) Error() string {
	return "pull failed: " + errMessage(e.Err)
}

func (e *SyncPullError) Unwrap() error { return e.Err }

// DatabaseError is a local read or write failure
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %s", e.Op, errMessage(e.Err))
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// StorageError is a failure reading or writing a persisted key
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error for %s: %s", e.Key, errMessage(e.Err))
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsAuthenticationError reports whether err is or wraps an AuthenticationError
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
