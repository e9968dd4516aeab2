package updates

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/hamonitor/internal/hass"
)

// ServiceCaller invokes Home Assistant services. *hass.Client satisfies it.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, data map[string]any, target hass.Target) error
}

// Actions installs or skips pending updates.
type Actions struct {
	caller ServiceCaller
}

// NewActions returns Actions backed by caller.
func NewActions(caller ServiceCaller) *Actions {
	return &Actions{caller: caller}
}

// Install starts installing the latest version. backup asks the integration
// to take a backup first where supported.
func (a *Actions) Install(ctx context.Context, entityID string, backup bool) error {
	var data map[string]any
	if backup {
		data = map[string]any{"backup": true}
	}
	return a.call(ctx, "install", entityID, data)
}

// Skip marks the latest version as skipped.
func (a *Actions) Skip(ctx context.Context, entityID string) error {
	return a.call(ctx, "skip", entityID, nil)
}

// ClearSkipped removes a previous skip so the update shows again.
func (a *Actions) ClearSkipped(ctx context.Context, entityID string) error {
	return a.call(ctx, "clear_skipped", entityID, nil)
}

func (a *Actions) call(ctx context.Context, service, entityID string, data map[string]any) error {
	if !strings.HasPrefix(entityID, EntityPrefix) || len(entityID) == len(EntityPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidEntity, entityID)
	}
	if err := a.caller.CallService(ctx, "update", service, data, hass.EntityTarget(entityID)); err != nil {
		return fmt.Errorf("%w: update.%s %s: %w", ErrActionFailed, service, entityID, err)
	}
	return nil
}
