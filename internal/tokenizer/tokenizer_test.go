package tokenizer_test

import (
	"strings"
	"testing"

	"github.com/DhruvDh/context-gather/internal/tokenizer"
)

const sampleText = "the quick brown fox jumps over the lazy dog"

func newCounterOrSkip(t *testing.T, model string) (tokenizer.Counter, string) {
	t.Helper()
	counter, resolved, counterError := tokenizer.NewCounter(tokenizer.Config{Model: model})
	if counterError != nil {
		t.Skipf("tokenizer data unavailable: %v", counterError)
	}
	return counter, resolved
}

func TestNewCounterCountsTokens(t *testing.T) {
	counter, resolved := newCounterOrSkip(t, "")

	if resolved != tokenizer.DefaultModel {
		t.Fatalf("expected the default model, got %q", resolved)
	}
	tokens, countError := counter.CountString(sampleText)
	if countError != nil {
		t.Fatalf("CountString error: %v", countError)
	}
	if tokens <= 0 {
		t.Fatalf("expected a positive token count, got %d", tokens)
	}
	empty, countError := counter.CountString("")
	if countError != nil {
		t.Fatalf("CountString error: %v", countError)
	}
	if empty != 0 {
		t.Fatalf("expected zero tokens for empty input, got %d", empty)
	}
}

func TestNewCounterUnknownModelFallsBack(t *testing.T) {
	counter, resolved := newCounterOrSkip(t, "definitely-not-a-real-model")

	if resolved == "" {
		t.Fatal("expected a resolved encoding name")
	}
	if strings.Contains(resolved, "definitely-not-a-real-model") {
		t.Fatalf("expected a fallback encoding, got %q", resolved)
	}
	if counter.Name() != resolved {
		t.Fatalf("counter name %q does not match the resolved encoding %q", counter.Name(), resolved)
	}
}

func TestInitIsFirstComeFirstServed(t *testing.T) {
	first, initError := tokenizer.Init(tokenizer.DefaultModel)
	if initError != nil {
		t.Skipf("tokenizer data unavailable: %v", initError)
	}

	if _, reinitError := tokenizer.Init("some-other-model"); reinitError == nil {
		t.Fatal("expected reinitialization with a different model to be rejected")
	}

	again, repeatError := tokenizer.Init(tokenizer.DefaultModel)
	if repeatError != nil {
		t.Fatalf("repeated Init with the same model must succeed: %v", repeatError)
	}
	if again != first {
		t.Fatal("expected the shared counter instance on repeated Init")
	}

	shared, sharedError := tokenizer.Shared()
	if sharedError != nil {
		t.Fatalf("Shared error: %v", sharedError)
	}
	if shared != first {
		t.Fatal("expected Shared to return the initialized counter")
	}
}
