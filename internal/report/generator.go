// Package report writes narrative performance reports with a bounded
// generate, critique and revise loop over a text-generation model.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/pulse/internal/llm"
	"github.com/ignite/pulse/internal/pkg/logger"
)

const category = "report"

// MaxAttempts is the number of drafts the generator may write.
const MaxAttempts = 5

const (
	generatorTemperature = 0.7
	generatorMaxTokens   = 1500
	criticTemperature    = 0.3
	criticMaxTokens      = 400

	approvedVerdict = "APPROVED"
	revisionPrefix  = "NEEDS_REVISION:"
)

// Result is the outcome of one loop run.
type Result struct {
	Report   string   `json:"report"`
	Attempts int      `json:"attempts"`
	Approved bool     `json:"approved"`
	Feedback []string `json:"feedback,omitempty"`
}

// Generator runs the draft/critique loop.
type Generator struct {
	client      llm.Client
	prompts     Prompts
	maxAttempts int
	log         logger.Func
}

// NewGenerator creates a generator using the given system prompts.
func NewGenerator(client llm.Client, prompts Prompts, log logger.Func) *Generator {
	if log == nil {
		log = logger.Nop
	}
	return &Generator{client: client, prompts: prompts, maxAttempts: MaxAttempts, log: log}
}

// Run drafts a report from dataPrompt. Each draft except the last is sent
// to the critic; an approval ends the loop, otherwise the feedback is
// folded into the next draft request. The last draft is returned
// unreviewed. Any model failure aborts the run.
func (g *Generator) Run(ctx context.Context, dataPrompt string) (Result, error) {
	if err := g.client.Ready(ctx); err != nil {
		return Result{}, err
	}

	var res Result
	user := dataPrompt
	for attempt := 1; ; attempt++ {
		draft, err := g.client.Complete(ctx, llm.Request{
			System:      g.prompts.Generator,
			User:        user,
			Temperature: generatorTemperature,
			MaxTokens:   generatorMaxTokens,
		})
		if err != nil {
			return Result{}, fmt.Errorf("writing draft %d: %w", attempt, err)
		}
		res.Report = draft
		res.Attempts = attempt

		if attempt >= g.maxAttempts {
			g.log(fmt.Sprintf("returning unapproved draft after %d attempts", attempt), logger.WARN, category)
			return res, nil
		}

		verdict, err := g.client.Complete(ctx, llm.Request{
			System:      g.prompts.Critic,
			User:        criticInput(dataPrompt, draft),
			Temperature: criticTemperature,
			MaxTokens:   criticMaxTokens,
		})
		if err != nil {
			return Result{}, fmt.Errorf("reviewing draft %d: %w", attempt, err)
		}

		if isApproved(verdict) {
			res.Approved = true
			g.log(fmt.Sprintf("draft %d approved", attempt), logger.INFO, category)
			return res, nil
		}

		feedback := revisionFeedback(verdict)
		res.Feedback = append(res.Feedback, feedback)
		g.log(fmt.Sprintf("draft %d needs revision: %s", attempt, feedback), logger.DEBUG, category)
		user = revisionInput(dataPrompt, draft, feedback)
	}
}

func isApproved(verdict string) bool {
	v := strings.TrimSpace(verdict)
	return len(v) >= len(approvedVerdict) && strings.EqualFold(v[:len(approvedVerdict)], approvedVerdict)
}

func revisionFeedback(verdict string) string {
	v := strings.TrimSpace(verdict)
	if len(v) >= len(revisionPrefix) && strings.EqualFold(v[:len(revisionPrefix)], revisionPrefix) {
		v = strings.TrimSpace(v[len(revisionPrefix):])
	}
	return v
}

func criticInput(dataPrompt, draft string) string {
	var b strings.Builder
	b.WriteString("DATA:\n")
	b.WriteString(dataPrompt)
	b.WriteString("\n\nREPORT:\n")
	b.WriteString(draft)
	return b.String()
}

func revisionInput(dataPrompt, draft, feedback string) string {
	var b strings.Builder
	b.WriteString(dataPrompt)
	b.WriteString("\n\nPREVIOUS DRAFT:\n")
	b.WriteString(draft)
	b.WriteString("\n\nCRITIC FEEDBACK:\n")
	b.WriteString(feedback)
	b.WriteString("\n\nRewrite the report so that it addresses every point of the feedback.")
	return b.String()
}
