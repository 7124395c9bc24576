package unisenza

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshp123/unisenza-bridge/internal/hass"
	"github.com/joshp123/unisenza-bridge/internal/upgw"
)

var userSchema = []string{hass.ConfUsername, hass.ConfPassword}

// ConfigFlow collects and validates account credentials.
type ConfigFlow struct {
	integration *Integration
}

func (f *ConfigFlow) Step(ctx context.Context, stepID string, input map[string]any) (hass.FlowResult, error) {
	switch stepID {
	case hass.SourceUser:
		return f.stepUser(ctx, input)
	default:
		return hass.FlowResult{}, fmt.Errorf("%w: step %s", hass.ErrNotSupported, stepID)
	}
}

func (f *ConfigFlow) stepUser(ctx context.Context, input map[string]any) (hass.FlowResult, error) {
	errs := map[string]string{}
	if input != nil {
		username, _ := input[hass.ConfUsername].(string)
		password, _ := input[hass.ConfPassword].(string)

		err := f.validate(ctx, username, password)
		var authErr *upgw.AuthenticationError
		switch {
		case err == nil:
			return hass.CreateEntry(Title, input), nil
		case errors.As(err, &authErr):
			errs["base"] = errInvalidAuth
		default:
			f.integration.logger.WithError(err).Debug("credential validation failed")
			errs["base"] = errCannotConnect
		}
	}
	return hass.ShowForm(hass.SourceUser, userSchema, errs), nil
}

func (f *ConfigFlow) validate(ctx context.Context, username, password string) error {
	api, err := f.integration.create(ctx, username, password)
	if err != nil {
		return err
	}
	if err := api.Close(); err != nil {
		f.integration.logger.WithError(err).Debug("closing probe api failed")
	}
	return nil
}
