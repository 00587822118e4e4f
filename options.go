package docsync

import (
	"go.uber.org/zap"

	"github.com/brunoga/docsync/callback"
	"github.com/brunoga/docsync/internal/logger"
)

// Option configures cursors, providers, bindings and buses.
type Option interface {
	apply(*options)
}

type options struct {
	bus     *Bus
	log     *logger.Logger
	notify  callback.Notifier
	onError func(error)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

// WithBus shares bus between everything created with the option. Without it
// each cursor gets a private bus.
func WithBus(bus *Bus) Option {
	return optionFunc(func(o *options) { o.bus = bus })
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) { o.log = logger.FromZap(l) })
}

// WithNotifier sets the hook used to push updates into the UI's update
// cycle. The default runs them synchronously.
func WithNotifier(n callback.Notifier) Option {
	return optionFunc(func(o *options) { o.notify = n })
}

// OnError registers the handler bindings use to surface recoverable
// failures such as a rejected write.
func OnError(fn func(error)) Option {
	return optionFunc(func(o *options) { o.onError = fn })
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&o)
		}
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	if o.notify == nil {
		o.notify = callback.Immediate
	}
	return o
}

// withOptions replays a resolved option set.
func withOptions(o options) Option {
	return optionFunc(func(dst *options) { *dst = o })
}
