package app

import (
	"fmt"

	"sitefoundry.io/foreman/internal/pkg/logger"
)

// Start launches the background services: the retry queue drain and the
// periodic maintenance job.
func (a *Application) Start() error {
	if err := a.Retries.Start(); err != nil {
		return fmt.Errorf("start retry queue: %w", err)
	}
	if err := a.Maintenance.Start(); err != nil {
		return fmt.Errorf("start maintenance scheduler: %w", err)
	}
	logger.Info("Background services started")
	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	if a.Retries != nil {
		a.Retries.Stop()
	}
	if a.Maintenance != nil {
		a.Maintenance.Stop()
	}
	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	logger.Info("Application shut down")
}
