package conversation

import "feedbackhub/internal/models"

type callerKind uint8

const (
	callerNone callerKind = iota
	callerProject
	callerOperator
)

// Caller is the authorized party behind a request: either the holder of a
// project's API key, or a signed-in operator.
type Caller struct {
	kind       callerKind
	project    models.Project
	operatorID string
}

// ProjectCaller builds a caller from a project resolved by API key
func ProjectCaller(project models.Project) Caller {
	return Caller{kind: callerProject, project: project}
}

// OperatorCaller builds a caller from an operator session
func OperatorCaller(operatorID string) Caller {
	return Caller{kind: callerOperator, operatorID: operatorID}
}

// IsOperator reports whether the caller is a signed-in operator
func (c Caller) IsOperator() bool { return c.kind == callerOperator }

// Project returns the caller's project for API-key callers
func (c Caller) Project() (models.Project, bool) {
	return c.project, c.kind == callerProject
}

// OperatorID returns the operator id for operator callers
func (c Caller) OperatorID() string { return c.operatorID }

func (c Caller) valid() bool {
	switch c.kind {
	case callerProject:
		return c.project.ID != ""
	case callerOperator:
		return c.operatorID != ""
	}
	return false
}
