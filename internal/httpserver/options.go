package httpserver

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/log"
)

type Options struct {
	Logger log.Logger
	// Port 0 binds an ephemeral port.
	Port int

	// SiteHandler answers every path and method on the tenant listener.
	SiteHandler http.Handler

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
}
