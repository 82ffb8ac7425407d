package warehouse

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error is a warehouse failure with its SQLSTATE and retry classification
type Error struct {
	Op        string
	SQL       string // redacted
	Code      string // SQLSTATE, empty when the server never answered
	Transient bool
	Timeout   bool
	Err       error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("warehouse %s failed", e.Op))
	if e.Code != "" {
		sb.WriteString(fmt.Sprintf(" [%s]", e.Code))
	}
	sb.WriteString(fmt.Sprintf(": %v", e.Err))
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// transientCodes are SQLSTATEs that may clear on their own
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
	"57014": true, // query_canceled
}

// transientClasses are SQLSTATE classes that are transient as a whole
var transientClasses = map[string]bool{
	"08": true, // connection exception
	"53": true, // insufficient resources
}

func classify(op, query string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}

	we := &Error{Op: op, SQL: RedactSQL(query), Err: err}

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err):
		we.Timeout = true
		we.Transient = true
	case errors.As(err, &pgErr):
		we.Code = pgErr.Code
		we.Transient = transientCodes[pgErr.Code] || (len(pgErr.Code) >= 2 && transientClasses[pgErr.Code[:2]])
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		pgconn.SafeToRetry(err):
		we.Transient = true
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			we.Transient = true
			we.Timeout = netErr.Timeout()
		}
	}
	return we
}

// IsTransient reports whether err is a warehouse error worth retrying
func IsTransient(err error) bool {
	var we *Error
	return errors.As(err, &we) && we.Transient
}

// IsTimeout reports whether err is a warehouse deadline failure
func IsTimeout(err error) bool {
	var we *Error
	return errors.As(err, &we) && we.Timeout
}

var secretPattern = regexp.MustCompile(`(?i)((?:ACCESS_KEY_ID|SECRET_ACCESS_KEY|SESSION_TOKEN|CREDENTIALS)\s+)'[^']*'`)

// RedactSQL masks inline credentials of COPY statements
func RedactSQL(query string) string {
	return secretPattern.ReplaceAllString(query, "$1'***'")
}
