package sitehandler

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/log"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/maintenance"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/webroot"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// OutcomeRecorder counts how each request was answered.
type OutcomeRecorder interface {
	IncSiteResponse(outcome string)
}

type Options struct {
	Logger log.Logger

	// Root is the web root holding one directory per tenant.
	Root webroot.Root
	// Maintenance decides whether to short-circuit with a 503.
	Maintenance *maintenance.Checker

	// ConfinePaths answers requests that resolve outside the tenant
	// directory as if the file were unreadable.
	ConfinePaths bool

	// optional
	Outcomes       OutcomeRecorder
	TracerProvider trace.TracerProvider
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
}

func (o *Options) validate() error {
	if o.Root.Dir() == "" {
		return fmt.Errorf("%w: Root is empty", ErrInvalidOptions)
	}
	if o.Maintenance == nil {
		return fmt.Errorf("%w: Maintenance is nil", ErrInvalidOptions)
	}
	return nil
}
