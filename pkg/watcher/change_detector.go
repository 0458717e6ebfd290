package watcher

// ChangeAnalysis describes what a batch of changes requires
type ChangeAnalysis struct {
	ReloadGraph     bool // data file changed: reload, relayout if structure changed
	KeepCurrent     bool // data file vanished: keep serving the loaded graph
	RestartRequired bool // config changes only apply on restart
	ChangedFiles    []string
}

// AnalyzeChanges determines how to react to a debounced change event
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{
		ChangedFiles: event.Paths,
	}

	switch event.Type {
	case ChangeTypeData:
		analysis.ReloadGraph = true
	case ChangeTypeRemoved:
		// Editors that save by rename produce a removal followed by a create
		analysis.KeepCurrent = true
	case ChangeTypeConfig:
		analysis.RestartRequired = true
	}

	return analysis
}
