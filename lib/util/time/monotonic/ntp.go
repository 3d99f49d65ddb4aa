package monotonic

import (
	"time"

	"github.com/beevik/ntp"
	"github.com/samber/oops"
)

// MaxSkew is the tolerated difference between a peer's handshake timestamp
// and our own clock. Beyond this the handshake is rejected.
const MaxSkew = 15 * time.Minute

var (
	ErrSkew        = oops.New("peer timestamp outside allowed clock skew")
	ErrNoNTPServer = oops.New("no NTP server produced a usable offset")
)

// ValidateTimestamp checks a peer-supplied wire timestamp (µs since epoch)
// against the clock, within MaxSkew.
func (c *Clock) ValidateTimestamp(ts uint64) error {
	skew := c.Now().Sub(time.UnixMicro(int64(ts)))
	if skew > MaxSkew || skew < -MaxSkew {
		return oops.Wrapf(ErrSkew, "skew %s exceeds %s", skew, MaxSkew)
	}
	return nil
}

// NTPClient queries a time server. The indirection keeps tests off the
// network.
type NTPClient interface {
	Query(host string) (*ntp.Response, error)
}

// DefaultNTPClient queries real NTP servers.
type DefaultNTPClient struct{}

func (DefaultNTPClient) Query(host string) (*ntp.Response, error) {
	return ntp.Query(host)
}

// SampleOffset asks the given servers in order and returns the first
// validated clock offset. Callers typically feed the result to SetOffset.
func SampleOffset(client NTPClient, servers []string) (time.Duration, error) {
	if client == nil {
		client = DefaultNTPClient{}
	}
	for _, host := range servers {
		resp, err := client.Query(host)
		if err != nil {
			continue
		}
		if err := resp.Validate(); err != nil {
			continue
		}
		return resp.ClockOffset, nil
	}
	return 0, ErrNoNTPServer
}
