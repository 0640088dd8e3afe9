package syncerr

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
)

var permissionTablePattern = regexp.MustCompile(`permission denied for (?:table|relation) "?([A-Za-z0-9_.]+)"?`)

// From maps an arbitrary transport or driver error into the taxonomy.
// A nil error yields nil.
func From(err error) *SyncError {
	if err == nil {
		return nil
	}

	var se *SyncError
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(Timeout(), err)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return wrap(NetworkError("remote service unavailable"), err)
	}

	if e := fromDatabase(err); e != nil {
		return e
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return wrap(fromStatus(httpErr.StatusCode, httpErr.Table), err)
	}

	if e := fromNetwork(err); e != nil {
		return e
	}

	return fromText(err)
}

func wrap(e *SyncError, err error) *SyncError {
	e.Err = err
	return e
}

func fromStatus(code int, table string) *SyncError {
	switch {
	case code == http.StatusTooManyRequests:
		return RateLimited()
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return PermissionDenied(table)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return Timeout()
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity || code == http.StatusConflict:
		return InvalidData(http.StatusText(code))
	default:
		return ServerError(code)
	}
}

// fromDatabase handles SQLSTATE codes from pgx and lib/pq.
func fromDatabase(err error) *SyncError {
	var code, message, table string

	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code, message, table = pgErr.Code, pgErr.Message, pgErr.TableName
	case errors.As(err, &pqErr):
		code, message, table = string(pqErr.Code), pqErr.Message, pqErr.Table
	default:
		return nil
	}

	switch {
	case code == "42501":
		if table == "" {
			table = tableFromMessage(message)
		}
		return wrap(PermissionDenied(table), err)
	case strings.HasPrefix(code, "23") || strings.HasPrefix(code, "22"):
		return wrap(InvalidData(message), err)
	case code == "53300" || code == "57P01" || code == "57P03":
		return wrap(ServerError(http.StatusServiceUnavailable), err)
	case code == "57014":
		return wrap(Timeout(), err)
	case strings.HasPrefix(code, "08"):
		return wrap(ConnectionLost(), err)
	default:
		return Unknown(err)
	}
}

func fromNetwork(err error) *SyncError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wrap(Timeout(), err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return wrap(NoInternet(), err)
	}

	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETDOWN) {
		return wrap(NoInternet(), err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) {
		return wrap(ConnectionLost(), err)
	}

	var certErr *tls.CertificateVerificationError
	var authErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &authErr) || errors.As(err, &hostErr) {
		return wrap(NetworkError("secure connection failed"), err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return wrap(NoInternet(), err)
		}
		if opErr.Err != nil {
			return wrap(NetworkError(opErr.Err.Error()), err)
		}
	}

	return nil
}

func fromText(err error) *SyncError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return wrap(RateLimited(), err)
	case strings.Contains(msg, "permission denied for"):
		return wrap(PermissionDenied(tableFromMessage(err.Error())), err)
	case strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:"):
		return wrap(NetworkError("secure connection failed"), err)
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe"):
		return wrap(ConnectionLost(), err)
	default:
		return Unknown(err)
	}
}

func tableFromMessage(message string) string {
	m := permissionTablePattern.FindStringSubmatch(message)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
