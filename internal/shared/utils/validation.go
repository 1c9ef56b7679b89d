package utils

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxJSONSize    = 1 * 1024 * 1024 // 1MB - maximum request body
	MaxPayloadSize = 256 * 1024      // 256KB - launch payload forwarded to a plugin
)

// String length limits
const (
	MaxPathLength        = 4096
	MaxFeatureCodeLength = 128
	MaxLabelLength       = 256
	MaxChannelLength     = 128
	MaxSubInputLength    = 1024
)

var (
	// FeatureCodePattern allows alphanumeric, dots, hyphens, underscores and colons
	FeatureCodePattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)
	// ChannelPattern allows the characters used by plugin message channels
	ChannelPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	if size := len(data); size > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateJSON validates both size and JSON structure
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	if err := v.ValidateSize(data); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON")
	}
	return nil
}

// ValidatePayload validates an optional launch payload
func ValidatePayload(payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	if err := NewJSONSizeValidator(MaxPayloadSize).ValidateJSON(payload); err != nil {
		return fmt.Errorf("payload validation failed: %w", err)
	}
	return nil
}

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidatePluginPath validates a plugin location key
func ValidatePluginPath(path string) error {
	if err := ValidateString(path, "path", 1, MaxPathLength, true); err != nil {
		return err
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute")
	}
	return nil
}

// ValidateFeatureCode validates a feature code
func ValidateFeatureCode(code string, required bool) error {
	if err := ValidateString(code, "feature_code", 1, MaxFeatureCodeLength, required); err != nil {
		return err
	}
	if code != "" && !FeatureCodePattern.MatchString(code) {
		return fmt.Errorf("feature_code contains invalid characters")
	}
	return nil
}

// ValidateChannel validates a plugin message channel name
func ValidateChannel(channel string) error {
	if err := ValidateString(channel, "channel", 1, MaxChannelLength, true); err != nil {
		return err
	}
	if !ChannelPattern.MatchString(channel) {
		return fmt.Errorf("channel contains invalid characters")
	}
	return nil
}
