package scraper

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSelectorMiss is returned when the rule's selector matches nothing on the page.
	ErrSelectorMiss = errors.New("selector matched no nodes")
	// ErrAttributeMissing is returned when the first match lacks the rule's attribute.
	ErrAttributeMissing = errors.New("attribute not found on matched node")
)

// ErrTimeout means the shop page did not arrive within the fetch timeout.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("page timed out: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection means no response arrived from the shop at all.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("shop unreachable: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrStatus means the shop answered the page request with a non-success status.
type ErrStatus struct {
	Code int
	Err  error
}

func (e ErrStatus) Error() string {
	msg := fmt.Sprintf("shop answered %d %s", e.Code, http.StatusText(e.Code))
	if e.Err == nil {
		return msg
	}
	return fmt.Errorf("%s: %w", msg, e.Err).Error()
}

func (e ErrStatus) Unwrap() error {
	return e.Err
}

// class groups the status for metric labels, e.g. "http_4xx".
func (e ErrStatus) class() string {
	return fmt.Sprintf("http_%dxx", e.Code/100)
}

// errorTypeLabel names the failure category used in logs and the errors counter.
func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return status.class()
	}
	return "other"
}
