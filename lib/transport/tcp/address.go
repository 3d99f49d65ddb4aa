package tcp

import (
	"net"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// AddressPrefix tags textual addresses as belonging to this transport.
const AddressPrefix = "tcp"

// ParseAddress turns a transport-prefixed textual address into a host:port
// string usable with net.Dial / net.Listen. Accepted forms:
//
//	tcp-2086            bare port, any interface
//	tcp-1.2.3.4:2086    IPv4 host and port
//	tcp-[2001:db8::1]:2086  IPv6 host and port
func ParseAddress(address string) (string, error) {
	rest, ok := strings.CutPrefix(address, AddressPrefix+"-")
	if !ok {
		return "", oops.Wrapf(ErrInvalidAddress, "missing %q prefix in %q", AddressPrefix+"-", address)
	}
	if rest == "" {
		return "", oops.Wrapf(ErrInvalidAddress, "empty host specification in %q", address)
	}
	// Bare port: bind/connect on any interface.
	if port, err := strconv.ParseUint(rest, 10, 16); err == nil {
		return ":" + strconv.FormatUint(port, 10), nil
	}
	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return "", oops.Wrapf(ErrInvalidAddress, "%q: %s", address, err.Error())
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", oops.Wrapf(ErrInvalidAddress, "bad port in %q", address)
	}
	return net.JoinHostPort(host, port), nil
}

// FormatAddress renders a socket address in the textual transport form, as
// advertised upward once the bound address (possibly with an OS-assigned
// port) is known.
func FormatAddress(addr net.Addr) string {
	return AddressPrefix + "-" + addr.String()
}
