package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
)

// isNetworkError reports whether err comes from the network rather than the server
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// connectivity wraps network failures in a ConnectivityError and leaves others untouched
func connectivity(service, addr string, err error) error {
	if isNetworkError(err) {
		return &apperrors.ConnectivityError{Service: service, Addr: addr, Err: err}
	}
	return err
}
