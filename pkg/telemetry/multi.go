package telemetry

import "github.com/vango-dev/reactor/pkg/reactive"

type multi []reactive.Observer

// Multi combines observers into one. Nil observers are skipped; callbacks
// are delivered in argument order.
func Multi(observers ...reactive.Observer) reactive.Observer {
	var m multi
	for _, o := range observers {
		if o == nil {
			continue
		}
		if inner, ok := o.(multi); ok {
			m = append(m, inner...)
			continue
		}
		m = append(m, o)
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multi) FlushStarted(depth int) {
	for _, o := range m {
		o.FlushStarted(depth)
	}
}

func (m multi) FlushCompleted(stats reactive.FlushStats) {
	for _, o := range m {
		o.FlushCompleted(stats)
	}
}

func (m multi) EffectRun(kind reactive.EffectKind) {
	for _, o := range m {
		o.EffectRun(kind)
	}
}

func (m multi) ErrorReported(label reactive.ErrorLabel) {
	for _, o := range m {
		o.ErrorReported(label)
	}
}

func (m multi) Warned(code string) {
	for _, o := range m {
		o.Warned(code)
	}
}
