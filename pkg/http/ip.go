package http

import (
	"github.com/labstack/echo/v4"

	"github.com/mack4pf/telegram-automated-signal/pkg/util"
)

// ClientIPExtractor decides what c.RealIP() returns. Without trusted proxies
// it is the socket peer and forwarding headers are ignored. With them,
// X-Forwarded-For is walked from the right and hops are skipped only while
// they fall inside a trusted range.
func ClientIPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	nets, err := util.ParseIPNets(trustedProxies)
	if err != nil {
		return nil, err
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}
