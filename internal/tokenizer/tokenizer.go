// Package tokenizer provides pluggable token counting for text content.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates token counts for text content.
type Counter interface {
	Name() string
	CountString(input string) (int, error)
}

// Config captures tokenizer selection parameters provided by the CLI.
type Config struct {
	Model string
}

const (
	// DefaultModel is used when no tokenizer model is configured.
	DefaultModel        = "gpt-4o"
	defaultEncodingName = "o200k_base"
)

// NewCounter returns a Counter implementation for the requested model along
// with the resolved model or encoding name.
func NewCounter(cfg Config) (Counter, string, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	lowerModel := strings.ToLower(model)

	encoding, encodingError := tiktoken.EncodingForModel(lowerModel)
	if encodingError == nil && encoding != nil {
		return openAICounter{encoding: encoding, name: lowerModel}, lowerModel, nil
	}

	fallback, fallbackError := tiktoken.GetEncoding(defaultEncodingName)
	if fallbackError != nil {
		return nil, "", fmt.Errorf("initialize fallback tokenizer: %w", fallbackError)
	}
	return openAICounter{encoding: fallback, name: defaultEncodingName}, defaultEncodingName, nil
}

var (
	sharedMutex   sync.Mutex
	sharedCounter Counter
	sharedModel   string
)

// Init selects the process-wide shared Counter. The first call wins; later
// calls with a different model are rejected so every component of one run
// counts tokens the same way.
func Init(model string) (Counter, error) {
	sharedMutex.Lock()
	defer sharedMutex.Unlock()

	requested := strings.TrimSpace(model)
	if requested == "" {
		requested = DefaultModel
	}
	if sharedCounter != nil {
		if !strings.EqualFold(requested, sharedModel) {
			return nil, fmt.Errorf("tokenizer already initialized with model %s; cannot reinitialize with %s", sharedModel, requested)
		}
		return sharedCounter, nil
	}

	counter, _, counterError := NewCounter(Config{Model: requested})
	if counterError != nil {
		return nil, counterError
	}
	sharedCounter = counter
	sharedModel = requested
	return sharedCounter, nil
}

// Shared returns the process-wide Counter, initializing it with the default
// model when no explicit Init call happened yet.
func Shared() (Counter, error) {
	return Init("")
}
