package async

import (
	"net"
	"syscall"

	"github.com/Trinoooo/quail_ev/errs"
	"github.com/pkg/errors"
)

// dial opens a nonblocking AF_INET socket and starts the connect.
// EINPROGRESS is expected; the loop reports write readiness once the
// handshake completes.
func dial(host string, port int) (int, error) {
	addr, err := resolveInet4(host, port)
	if err != nil {
		return -1, err
	}

	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return -1, errs.NewSocketErr().WithErr(err)
	}

	if err = syscall.SetNonblock(fd, true); err != nil {
		_ = syscall.Close(fd)
		return -1, errs.NewSocketErr().WithErr(err)
	}

	if err = syscall.Connect(fd, addr); err != nil && !errors.Is(err, syscall.EINPROGRESS) {
		_ = syscall.Close(fd)
		return -1, errs.NewSocketErr().WithErr(err)
	}

	return fd, nil
}

func resolveInet4(host string, port int) (*syscall.SockaddrInet4, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, errs.NewResolveAddrErr().WithErr(err)
		}
		ip = ips[0]
	}

	ipv4 := ip.To4()
	if ipv4 == nil {
		return nil, errs.NewResolveAddrErr()
	}

	sa := &syscall.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ipv4)
	return sa, nil
}
