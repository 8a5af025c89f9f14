package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/datetime"
)

// Validator collects configuration problems. Errors reject the config;
// warnings are surfaced to the operator only.
type Validator struct {
	config   *Config
	errors   []error
	warnings []string
}

func NewValidator(cfg *Config) *Validator {
	return &Validator{config: cfg}
}

// Validate runs every check and returns the joined errors.
func (v *Validator) Validate() error {
	v.validateApp()
	v.validateIngest()
	v.validateDatabase()
	for i := range v.config.Inbound {
		v.validateServer(fmt.Sprintf("inbound[%d]", i), v.config.Inbound[i], "imap", "pop3")
	}
	if v.config.Outbound.Enabled {
		v.validateServer("outbound.server", v.config.Outbound.Server, "smtp")
		if strings.TrimSpace(v.config.Outbound.From) == "" || len(v.config.Outbound.To) == 0 {
			v.addError("outbound: from and to are required when enabled")
		}
	}
	if v.config.Ingest.WarnOnCollect && !v.config.Outbound.Enabled {
		v.addWarning("ingest.warn_on_collect is set but no outbound server is enabled")
	}
	if v.config.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(v.config.Schedule.Cron); err != nil {
			v.addError(fmt.Sprintf("schedule.cron: %v", err))
		}
	}
	return errors.Join(v.errors...)
}

// Warnings returns non-fatal findings from the last Validate call.
func (v *Validator) Warnings() []string {
	return v.warnings
}

func (v *Validator) validateApp() {
	if err := datetime.ValidatePair(v.config.App.DateFormat, v.config.App.TimeFormat); err != nil {
		v.addError(fmt.Sprintf("app: %v", err))
	}
	if _, err := v.config.App.Location(); err != nil {
		v.addError(fmt.Sprintf("app.timezone: %v", err))
	}
}

func (v *Validator) validateIngest() {
	in := v.config.Ingest
	for name, pattern := range map[string]string{
		"subject_regex":     in.SubjectRegex,
		"source_regex":      in.SourceRegex,
		"destination_regex": in.DestinationRegex,
	} {
		if pattern == "" {
			v.addError(fmt.Sprintf("ingest.%s is required", name))
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			v.addError(fmt.Sprintf("ingest.%s: %v", name, err))
		}
	}
	if in.Delimiter == "" {
		v.addError("ingest.delimiter is required")
	}
}

func (v *Validator) validateDatabase() {
	switch v.config.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		v.addError(fmt.Sprintf("database.driver %q not supported", v.config.Database.Driver))
	}
}

func (v *Validator) validateServer(path string, s ServerConfig, protocols ...string) {
	protocol := strings.ToLower(strings.TrimSpace(s.Protocol))
	supported := false
	for _, p := range protocols {
		if p == protocol {
			supported = true
		}
	}
	if !supported {
		v.addError(fmt.Sprintf("%s.protocol %q must be one of %s", path, s.Protocol, strings.Join(protocols, ", ")))
	}
	if s.Host == "" {
		v.addError(fmt.Sprintf("%s.host is required", path))
	}
	switch strings.ToLower(s.Encryption) {
	case "", "none":
		if s.Password != "" {
			v.addWarning(fmt.Sprintf("%s sends credentials without encryption", path))
		}
	case "tls":
	case "starttls":
		if protocol != "smtp" {
			v.addError(fmt.Sprintf("%s.encryption starttls is only supported for smtp", path))
		}
	default:
		v.addError(fmt.Sprintf("%s.encryption %q not supported", path, s.Encryption))
	}
	if s.MarkRead && protocol == "pop3" {
		v.addWarning(fmt.Sprintf("%s.mark_read has no effect for pop3", path))
	}
	if s.Timeout < 0 {
		v.addError(fmt.Sprintf("%s.timeout must not be negative", path))
	}
}

func (v *Validator) addError(message string) {
	v.errors = append(v.errors, errors.New(message))
}

func (v *Validator) addWarning(message string) {
	v.warnings = append(v.warnings, message)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	return NewValidator(c).Validate()
}

// Warnings runs validation and returns only the non-fatal findings.
func (c *Config) Warnings() []string {
	v := NewValidator(c)
	_ = v.Validate()
	return v.Warnings()
}
