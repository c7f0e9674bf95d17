package otp

import (
	"context"

	"go.uber.org/fx"
)

func registerHooks(lc fx.Lifecycle, f *Flow) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return f.Resume(ctx)
		},
		OnStop: func(ctx context.Context) error {
			f.Close()
			return nil
		},
	})
}

// Module wires the verification flow and its resume-on-start hook.
var Module = fx.Module("otp.flow",
	fx.Provide(NewFlow),
	fx.Invoke(registerHooks),
)
