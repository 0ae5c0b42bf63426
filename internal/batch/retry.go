package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/saccohuo/anki-ai-field-generator/internal/llm"
)

// retryPolicy bounds reattempts for one class of provider failure.
type retryPolicy struct {
	maxAttempts int
	wait        time.Duration
}

// buildRetryPolicies maps the retryable error codes to their policies.
// Connection losses and rate limits are worth waiting out; missing media
// data is usually a transient model hiccup. Everything else halts the run on
// the first occurrence.
func buildRetryPolicies(limit int, delay time.Duration) map[llm.Code]retryPolicy {
	if limit < 1 {
		limit = 1
	}
	if delay < 500*time.Millisecond {
		delay = 500 * time.Millisecond
	}
	rateLimitWait := delay * 2
	mediaWait := delay
	if mediaWait < time.Second {
		mediaWait = time.Second
	}
	return map[llm.Code]retryPolicy{
		llm.CodeConnection:       {maxAttempts: limit, wait: delay},
		llm.CodeRateLimit:        {maxAttempts: limit, wait: rateLimitWait},
		llm.CodeImageMissingData: {maxAttempts: limit, wait: mediaWait},
		llm.CodeAudioMissingData: {maxAttempts: limit, wait: mediaWait},
	}
}

// runWithRetry executes op, reattempting per the policy for its error code.
// Non-retryable codes and exhausted policies surface the error unchanged;
// context cancellation stops the retry loop immediately.
func (p *Processor) runWithRetry(
	ctx context.Context,
	stage string,
	progressValue int,
	op func() error,
) error {
	attempt := 1
	for {
		if err := ctx.Err(); err != nil {
			return llm.WrapError(llm.CodeGeneric, "Operation cancelled by user.", err)
		}
		err := op()
		if err == nil {
			return nil
		}
		policy, ok := p.policies[llm.CodeOf(err)]
		if !ok || attempt >= policy.maxAttempts {
			return err
		}
		p.emitProgress(progressValue, fmt.Sprintf(
			"%s failed (%s) attempt %d/%d. Retrying in %ds...",
			stage, llm.CodeOf(err), attempt, policy.maxAttempts,
			int(policy.wait.Seconds())))
		p.logger.Warn("stage failed, retrying",
			"stage", stage,
			"code", string(llm.CodeOf(err)),
			"attempt", attempt,
			"max_attempts", policy.maxAttempts,
			"wait", policy.wait)
		if sleepErr := p.clock.Sleep(ctx, policy.wait); sleepErr != nil {
			return err
		}
		attempt++
	}
}

// guidance maps error codes to the operator hint appended to terminal error
// messages.
var guidance = map[llm.Code]string{
	llm.CodeConnection:         "Check your network connection, then rerun to retry.",
	llm.CodeRateLimit:          "You are hitting the provider's rate limit. Wait a few seconds before trying again.",
	llm.CodeUnauthorized:       "Verify the API key in the configuration before retrying.",
	llm.CodeMissingCredentials: "Provide the missing API key in the configuration and rerun.",
	llm.CodeBadRequest:         "The request looks invalid. Adjust the prompt or model settings before retrying.",
	llm.CodeImageMissingData:   "The model did not return image bytes. Adjust the prompt or switch the image model.",
	llm.CodeImageDecode:        "Received image data could not be decoded. Try a different prompt or model.",
	llm.CodeAudioMissingData:   "The speech model did not return audio bytes. Adjust the prompt or switch the speech model.",
	llm.CodeMediaWriteFailed:   "The collection refused the media write. Check media folder permissions.",
}

// formatStageError builds the terminal error message surfaced to the user:
// the failed stage, the taxonomy code, the provider's message verbatim, and
// an operator hint when one exists.
func formatStageError(stage string, err error) error {
	code := llm.CodeOf(err)
	msg := fmt.Sprintf("[%s] %s failed: %s", code, stage, err.Error())
	if hint, ok := guidance[code]; ok {
		msg += "\n" + hint
	}
	return llm.WrapError(code, msg, err)
}
