package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"feedbackhub/internal/apperr"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// MySQL server error numbers worth a retry
const (
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mysqlTooManyConns     = 1040
	mysqlServerGoneAway   = 2006
	mysqlServerLostDuring = 2013
)

// classify converts a driver error into the service error taxonomy
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, err, msg)
	}
	if isTransient(err) {
		return apperr.Wrap(apperr.KindTransientIO, err, msg)
	}
	return apperr.Wrap(apperr.KindUnknown, err, msg)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"40", // transaction rollback (serialization, deadlock)
			"53", // insufficient resources
			"57": // operator intervention (admin shutdown)
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlTooManyConns, mysqlServerGoneAway, mysqlServerLostDuring:
			return true
		}
	}

	return false
}
