// Package validation provides struct-tag and programmatic validation that
// reports failures as *errors.AppError with per-field details.
//
// # Struct Tag Validation
//
//	type StreamConfig struct {
//	    Prefetch int `mapstructure:"prefetch" validate:"min=1,max=4096"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New().Range("window", window, 1, 1024)
//	if appErr := v.Validate(); appErr != nil { ... }
package validation
