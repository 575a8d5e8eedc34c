package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidTransportKinds returns the list of valid transport implementations.
func ValidTransportKinds() []string {
	return []string{"file", "chan"}
}

// ValidStoreKinds returns the list of valid store implementations.
func ValidStoreKinds() []string {
	return []string{"memory", "redis"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCoordinator()...)
	errors = append(errors, c.validateQueue()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateTransport()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateDomains()...)

	return errors
}

func (c *Config) validateCoordinator() []ValidationError {
	var errors []ValidationError

	if c.Coordinator.WaitTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.wait_timeout_seconds",
			Value:   c.Coordinator.WaitTimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.Coordinator.HeartbeatTTLSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.heartbeat_ttl_seconds",
			Value:   c.Coordinator.HeartbeatTTLSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateQueue() []ValidationError {
	var errors []ValidationError

	if c.Queue.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "queue.name",
			Value:   c.Queue.Name,
			Message: "must not be empty",
		})
	}
	if c.Queue.ResultTTLMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "queue.result_ttl_minutes",
			Value:   c.Queue.ResultTTLMinutes,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_retries",
			Value:   c.Retry.MaxRetries,
			Message: "must be non-negative",
		})
	}
	if c.Retry.BaseDelayMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.base_delay_ms",
			Value:   c.Retry.BaseDelayMs,
			Message: "must be positive",
		})
	}
	if c.Retry.Multiplier < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.multiplier",
			Value:   c.Retry.Multiplier,
			Message: "must be at least 1",
		})
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		errors = append(errors, ValidationError{
			Field:   "retry.max_delay_ms",
			Value:   c.Retry.MaxDelayMs,
			Message: "must be at least base_delay_ms",
		})
	}

	return errors
}

func (c *Config) validateTransport() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidTransportKinds(), c.Transport.Kind) {
		errors = append(errors, ValidationError{
			Field:   "transport.kind",
			Value:   c.Transport.Kind,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTransportKinds(), ", ")),
		})
	}
	if c.Transport.PollIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "transport.poll_interval_ms",
			Value:   c.Transport.PollIntervalMs,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStoreKinds(), c.Store.Kind) {
		errors = append(errors, ValidationError{
			Field:   "store.kind",
			Value:   c.Store.Kind,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreKinds(), ", ")),
		})
	}
	if c.Store.Kind == "redis" && c.Store.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "store.addr",
			Value:   c.Store.Addr,
			Message: "required for the redis store",
		})
	}
	if c.Store.DB < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.db",
			Value:   c.Store.DB,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateDomains() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, d := range c.Domains {
		field := fmt.Sprintf("domains[%d]", i)
		if d.ID == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   d.ID,
				Message: "must not be empty",
			})
			continue
		}
		if seen[d.ID] {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   d.ID,
				Message: "duplicate domain id",
			})
		}
		seen[d.ID] = true

		roleIDs := make(map[string]bool, len(d.Roles))
		for _, r := range d.Roles {
			roleIDs[r.ID] = true
		}
		if d.DefaultRole != "" && !roleIDs[d.DefaultRole] {
			errors = append(errors, ValidationError{
				Field:   field + ".default_role",
				Value:   d.DefaultRole,
				Message: "references an undeclared role",
			})
		}
		for j, rule := range d.Rules {
			for _, target := range rule.TargetRoles {
				if !roleIDs[target] {
					errors = append(errors, ValidationError{
						Field:   fmt.Sprintf("%s.rules[%d].target_roles", field, j),
						Value:   target,
						Message: "references an undeclared role",
					})
				}
			}
		}
		for j, m := range d.Members {
			if m.Role != "" && !roleIDs[m.Role] {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.members[%d].role", field, j),
					Value:   m.Role,
					Message: "references an undeclared role",
				})
			}
			if m.Availability < 0 || m.Availability > 1 {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.members[%d].availability", field, j),
					Value:   m.Availability,
					Message: "must be between 0 and 1",
				})
			}
		}
	}

	return errors
}
