package manifest

import (
	"fmt"

	"github.com/agentflow/core/workflow"
)

// ChildManifestLoader resolves the manifest for a sub-agent id, as needed
// to inspect whether its skills are exposed to a parent manager (§4.7).
type ChildManifestLoader func(agentID string) (*Manifest, error)

// AggregateSkills loads m's own skills, then, if m is a manager, walks its
// step graph's Call nodes and, for each child whose manifest marks its
// skills as exposed, loads that child's skills under the namespace
// "<child-agent-id>:<skill-name>" (§4.7). A missing child skills directory
// is non-fatal; a child manifest that fails to load entirely is reported
// to the caller, since that indicates a broken workflow reference rather
// than an absent optional directory.
func AggregateSkills(m *Manifest, loadChild ChildManifestLoader) ([]Skill, error) {
	own, err := LoadSkills(m)
	if err != nil {
		return nil, err
	}
	if !m.IsManager() {
		return own, nil
	}

	all := append([]Skill(nil), own...)
	seen := make(map[string]bool)
	for _, agentID := range callAgentIDs(m.Workflow.Steps) {
		if seen[agentID] {
			continue
		}
		seen[agentID] = true

		child, err := loadChild(agentID)
		if err != nil {
			return nil, fmt.Errorf("manifest: loading child manifest %q for skills aggregation: %w", agentID, err)
		}
		if !child.ExposeSkills {
			continue
		}
		childSkills, err := LoadSkills(child)
		if err != nil {
			return nil, err
		}
		for _, s := range childSkills {
			all = append(all, Skill{Name: agentID + ":" + s.Name, Body: s.Body})
		}
	}
	return all, nil
}

// callAgentIDs collects the agent id of every Call node anywhere in steps,
// recursing into Parallel branches, Loop bodies, and Conditional branches so
// nested Call nodes are not missed. An id referenced by several Call nodes
// appears once per node; AggregateSkills skips the repeats.
func callAgentIDs(steps []*workflow.Step) []string {
	var ids []string
	walkSteps(steps, func(s *workflow.Step) {
		if s.Kind == workflow.KindCall && s.AgentID != "" {
			ids = append(ids, s.AgentID)
		}
	})
	return ids
}

// walkSteps visits every step reachable from steps, recursing into
// Parallel branches, Loop bodies, and Conditional then/else arms.
func walkSteps(steps []*workflow.Step, visit func(*workflow.Step)) {
	for _, s := range steps {
		visit(s)
		switch s.Kind {
		case workflow.KindParallel:
			for _, branch := range s.Branches {
				walkSteps(branch, visit)
			}
		case workflow.KindLoop:
			walkSteps(s.LoopSteps, visit)
		case workflow.KindConditional:
			walkSteps(s.Then, visit)
			walkSteps(s.Else, visit)
		}
	}
}
