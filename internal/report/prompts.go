package report

import (
	"fmt"

	"github.com/osteele/liquid"
)

// WordLimit bounds the report length asked of the generator and enforced
// by the critic.
const WordLimit = 350

const generatorTemplate = `You are a subscription business analyst writing a short performance report for {{ project }}.

Write in plain, direct English for a founder who reads it on a phone. Use only the numbers in the data provided; never invent figures or trends that the data does not show.

Structure:
1. Headline: one sentence on the most important change in the last {{ days }} days.
2. Revenue: MRR, its direction and the revenue trend compared with the previous period when it is available.
3. Subscribers: active subscriptions, trials, trial conversion and churn if an estimate is given.
{% if marketing %}4. Acquisition: installs, spend, cost per install, ROAS and the campaigns that matter. Treat spend reported as "not available" as untracked, never as zero.
5. Actions: two or three concrete next steps.
{% else %}4. Actions: two or three concrete next steps.
{% endif %}
Rules:
- Stay under {{ word_limit }} words.
- All money amounts are in {{ currency }}; format them with the currency code.
- Percentages keep one decimal.
- No tables, no code blocks, no preamble.`

const criticTemplate = `You are a strict reviewer checking a subscription performance report against its source data.

Check that:
- every number in the report appears in or follows directly from the data;
- the report stays under {{ word_limit }} words;
- money is expressed in {{ currency }};
- comparisons with the previous period are only made when previous-period data is present;
- untracked spend is not described as zero spend.

Reply with exactly APPROVED if the report passes every check. Otherwise reply with NEEDS_REVISION: followed by a short list of the specific problems.`

// Prompts are the rendered system prompts for one report run.
type Prompts struct {
	Generator string
	Critic    string
}

// PromptVars parameterize the system prompts.
type PromptVars struct {
	Project   string
	Currency  string
	Days      int
	Marketing bool
}

// RenderPrompts renders both system prompts.
func RenderPrompts(engine *liquid.Engine, vars PromptVars) (Prompts, error) {
	bindings := map[string]interface{}{
		"project":    vars.Project,
		"currency":   vars.Currency,
		"days":       vars.Days,
		"marketing":  vars.Marketing,
		"word_limit": WordLimit,
	}

	gen, err := engine.ParseAndRenderString(generatorTemplate, bindings)
	if err != nil {
		return Prompts{}, fmt.Errorf("rendering generator prompt: %w", err)
	}
	critic, err := engine.ParseAndRenderString(criticTemplate, bindings)
	if err != nil {
		return Prompts{}, fmt.Errorf("rendering critic prompt: %w", err)
	}
	return Prompts{Generator: gen, Critic: critic}, nil
}
