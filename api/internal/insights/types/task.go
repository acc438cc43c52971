package types

import "fmt"

// TaskKind names one analysis and, with it, the schema its output must satisfy.
type TaskKind string

const (
	TaskManagementTrustScore TaskKind = "managementTrustScore"
	TaskMacroShock           TaskKind = "macroShock"
	TaskRiskAnalysis         TaskKind = "riskAnalysis"
	TaskRegulatoryWatch      TaskKind = "regulatoryWatch"
)

var allTasks = []TaskKind{
	TaskManagementTrustScore,
	TaskMacroShock,
	TaskRiskAnalysis,
	TaskRegulatoryWatch,
}

// Tasks lists every supported task kind.
func Tasks() []TaskKind {
	out := make([]TaskKind, len(allTasks))
	copy(out, allTasks)
	return out
}

func ParseTask(s string) (TaskKind, error) {
	for _, t := range allTasks {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

func (t TaskKind) String() string { return string(t) }
