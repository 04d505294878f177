package analysis

import "github.com/abelbrown/callsight/internal/protocol"

// ProgressMessage maps a stream update to the status line shown while a
// run is in flight. Presentation only: unknown combinations return "".
func ProgressMessage(stage protocol.Stage, status protocol.Status, source Source) string {
	var what string
	switch source {
	case SourceSample:
		what = "the sample call"
	case SourceText:
		what = "the pasted transcript"
	default:
		what = "your transcript"
	}

	switch {
	case stage == protocol.StageEvidence && status == protocol.StatusStarted:
		return "Extracting evidence from " + what + "..."
	case stage == protocol.StageEvidence && status == protocol.StatusComplete:
		return "Evidence extracted. Building the analysis..."
	case stage == protocol.StageAnalysis && status == protocol.StatusStarted:
		return "Analyzing " + what + "..."
	case stage == protocol.StageAnalysis && status == protocol.StatusComplete:
		return "Analysis complete. Finalizing results..."
	}
	return ""
}
