package worker

import (
	"fmt"
	"strings"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/manifest"
)

// buildSystemPrompt assembles m's system prompt as (base instruction) +
// (ordered skill documents) + (the standard progress-reporting
// instruction), per §4.6 step 2. Skills are aggregated including any child
// skills a manager exposes (§4.7), loading child manifests through e's own
// manifest cache so repeated prompt builds for the same manager do not
// re-read child manifests from disk.
func (e *Executor) buildSystemPrompt(m *manifest.Manifest) (string, error) {
	skills, err := manifest.AggregateSkills(m, func(agentID string) (*manifest.Manifest, error) {
		if e.PathResolver == nil {
			return nil, fmt.Errorf("worker: no path resolver configured to load child manifest %q", agentID)
		}
		dir, err := e.PathResolver(agent.Ident(agentID))
		if err != nil {
			return nil, err
		}
		return e.Manifests.Load(dir)
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(m.Instruction)
	for _, s := range skills {
		b.WriteString("\n\n## Skill: ")
		b.WriteString(s.Name)
		b.WriteString("\n\n")
		b.WriteString(s.Body)
	}
	b.WriteString("\n\n")
	b.WriteString(standardProgressInstruction)
	return b.String(), nil
}
