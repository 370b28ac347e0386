package models

// Wave is a maximal set of mutually-independent tasks produced by the
// Dependency Resolver. All prerequisites of any task in wave k lie in
// waves 0..k-1.
type Wave struct {
	Index          int
	TaskIDs        []string
	MaxConcurrency int
}

// Plan is the resolved, estimated output handed to the Agent Pool: the
// full task set plus its wave ordering.
type Plan struct {
	ID       string
	Feature  Feature
	Tasks    []Task
	Waves    []Wave
}

// TaskByID returns a lookup map for the plan's tasks.
func (p *Plan) TaskByID() map[string]*Task {
	m := make(map[string]*Task, len(p.Tasks))
	for i := range p.Tasks {
		m[p.Tasks[i].ID] = &p.Tasks[i]
	}
	return m
}
