package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validator is implemented by response schemas that carry their own
// post-decode checks. CompleteJSON treats a validation failure like a
// malformed response: retryable up to the bound.
type Validator interface {
	Validate() error
}

// ExtractJSON returns the first JSON object embedded in text. Models in JSON
// mode occasionally wrap the object in prose or code fences; the salvage is
// a brace scan from the first '{' to the last '}'.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("salvaged text is not valid JSON")
	}
	return json.RawMessage(candidate), nil
}

// CompleteJSON performs one generation call and decodes the response into
// out, retrying up to maxRetries additional attempts on retryable failures:
// request timeouts, malformed JSON, and schema-validation errors. Failures
// wrapping ErrPermanent surface immediately. On success, out holds the
// decoded response.
func CompleteJSON(ctx context.Context, c Client, req Request, maxRetries int, out any) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		text, err := c.Complete(ctx, req)
		if err != nil {
			if errors.Is(err, ErrPermanent) || ctx.Err() != nil {
				return err
			}
			lastErr = err
			continue
		}

		raw, err := ExtractJSON(text)
		if err != nil {
			lastErr = fmt.Errorf("extracting JSON: %w", err)
			continue
		}

		if err := json.Unmarshal(raw, out); err != nil {
			lastErr = fmt.Errorf("decoding response: %w", err)
			continue
		}

		if v, ok := out.(Validator); ok {
			if err := v.Validate(); err != nil {
				lastErr = fmt.Errorf("validating response: %w", err)
				continue
			}
		}

		return nil
	}

	return fmt.Errorf("generation call failed after %d attempts: %w", maxRetries+1, lastErr)
}
