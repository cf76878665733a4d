package prompt

import (
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"

	"github.com/marmos91/vxi11/internal/bytesize"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// IsAborted returns true if the error indicates the user aborted (Ctrl+C).
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input prompts for text input.
func Input(label string, defaultValue string) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: defaultValue,
	}

	result, err := prompt.Run()
	return result, wrapError(err)
}

// InputWithValidation prompts for text input with custom validation.
func InputWithValidation(label, defaultValue string, validate func(string) error) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validate,
	}

	result, err := prompt.Run()
	return result, wrapError(err)
}

// InputDuration prompts for a Go duration such as "500ms" or "5s".
func InputDuration(label string, defaultValue time.Duration) (time.Duration, error) {
	result, err := InputWithValidation(label, defaultValue.String(), ValidateDuration)
	if err != nil {
		return 0, err
	}
	return time.ParseDuration(result) // already validated
}

// InputByteSize prompts for a size such as "64Ki" or "1Mi".
func InputByteSize(label string, defaultValue bytesize.ByteSize) (bytesize.ByteSize, error) {
	result, err := InputWithValidation(label, defaultValue.String(), ValidateByteSize)
	if err != nil {
		return 0, err
	}
	return bytesize.ParseByteSize(result) // already validated
}

// ValidateDuration accepts non-negative Go durations.
func ValidateDuration(input string) error {
	d, err := time.ParseDuration(input)
	if err != nil {
		return fmt.Errorf("must be a duration like 500ms or 5s")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

// ValidateByteSize accepts sizes understood by bytesize.ParseByteSize.
func ValidateByteSize(input string) error {
	if _, err := bytesize.ParseByteSize(input); err != nil {
		return fmt.Errorf("must be a size like 4096, 64Ki or 1Mi")
	}
	return nil
}

// ValidateTermChar accepts an empty string, a single character, or one of
// the escapes \n and \r.
func ValidateTermChar(input string) error {
	if _, err := ParseTermChar(input); err != nil {
		return err
	}
	return nil
}

// ParseTermChar converts user input to the term_char configuration value.
func ParseTermChar(input string) (string, error) {
	switch {
	case input == `\n`:
		return "\n", nil
	case input == `\r`:
		return "\r", nil
	case len(input) > 1:
		return "", fmt.Errorf(`must be a single character, \n or \r`)
	default:
		return input, nil
	}
}
