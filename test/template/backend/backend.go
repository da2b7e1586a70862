// Package backend is a starting point for plugging a custom reasoning backend into
// the pipeline contracts.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/retry"
)

const marker = "A VERSION OF THE FILE --"

// Outline answers with the first non-blank line of every version in the prompt.
type Outline struct{}

func (Outline) Complete(_ context.Context, req core.Request) (string, error) {
	sections := strings.Split(req.User, marker)
	var b strings.Builder
	n := 0
	for _, s := range sections[1:] {
		n++
		first := ""
		for _, line := range strings.Split(s, "\n") {
			if strings.TrimSpace(line) != "" {
				first = strings.TrimSpace(line)
				break
			}
		}
		_, _ = fmt.Fprintf(&b, "- version %d: %s\n", n, first)
	}
	return b.String(), nil
}

// WithRetry drives c through a retry.Machine until it returns text or the budget is
// spent.
func WithRetry(ctx context.Context, c core.Completer, req core.Request, p retry.Policy, sleep retry.Sleeper) (string, error) {
	m := retry.NewMachine(p)
	for {
		m.Begin()
		text, err := c.Complete(ctx, req)
		if err == nil && text != "" {
			m.Succeed()
			return text, nil
		}
		step := m.Fail(retry.Classify(err), err)
		if step.Next == retry.Exhausted {
			return "", m.Err()
		}
		if err := sleep(ctx, step.Delay); err != nil {
			return "", err
		}
		m.Resume()
	}
}
