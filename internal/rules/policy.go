package rules

import "strings"

// Policy is the compiled per-agent behavior baseline: resource
// allow-lists and expected endpoint sequences, built once from config
// and shared read-only across a scan.
type Policy struct {
	allowed   map[string]map[string]struct{}
	sequences map[string][]string
}

func BuildPolicy(resourceMap map[string][]string, sequences map[string][]string) *Policy {
	p := &Policy{
		allowed:   make(map[string]map[string]struct{}, len(resourceMap)),
		sequences: make(map[string][]string, len(sequences)),
	}
	for agent, resources := range resourceMap {
		agent = strings.TrimSpace(agent)
		if agent == "" {
			continue
		}
		set := make(map[string]struct{}, len(resources))
		for _, res := range resources {
			res = strings.TrimSpace(res)
			if res == "" {
				continue
			}
			set[res] = struct{}{}
		}
		p.allowed[agent] = set
	}
	for agent, seq := range sequences {
		agent = strings.TrimSpace(agent)
		if agent == "" || len(seq) == 0 {
			continue
		}
		p.sequences[agent] = append([]string(nil), seq...)
	}
	return p
}

// AllowsResource reports whether agent may touch resource. Agents
// without a configured allow-list are allowed nothing.
func (p *Policy) AllowsResource(agent, resource string) bool {
	if p == nil {
		return false
	}
	set, ok := p.allowed[agent]
	if !ok {
		return false
	}
	_, ok = set[resource]
	return ok
}

// NormalSequence returns the expected endpoint order for agent, or nil
// when no profile is configured.
func (p *Policy) NormalSequence(agent string) []string {
	if p == nil {
		return nil
	}
	return p.sequences[agent]
}
