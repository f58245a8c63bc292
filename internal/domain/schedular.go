package domain

import "context"

type Schedular interface {
	Start(ctx context.Context) error
	Stop()

	// AddRun triggers a dispatch run on every tick of the cron expression spec.
	AddRun(spec string) error
}
