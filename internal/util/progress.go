package util

import "fmt"

// BuildCounts is a snapshot of one index build. File counters track the scan
// pass, node counters track the summarize and persist pass that follows it.
// Skipped files are unchanged files that kept their stored fragments.
type BuildCounts struct {
	FileTotal    int64
	FileQueued   int64
	FileScanning int64
	FileScanned  int64
	FileSkipped  int64
	FileFailed   int64

	NodeTotal       int64
	NodeSummarizing int64
	NodePersisting  int64
	NodeCompleted   int64
	NodeFailed      int64

	ElapsedMs int64
}

type BuildStepProgress struct {
	Queued      string `json:"queued,omitempty"`
	Scanning    string `json:"scanning,omitempty"`
	Scanned     string `json:"scanned,omitempty"`
	Skipped     string `json:"skipped,omitempty"`
	Summarizing string `json:"summarizing,omitempty"`
	Persisting  string `json:"persisting,omitempty"`
	Completed   string `json:"completed,omitempty"`
	Failed      string `json:"failed,omitempty"`
}

type BuildProgress struct {
	Step              *BuildStepProgress
	Percentage        *int32
	EstimatedDuration *int64
	TimeRemaining     *int64
}

const (
	scanStepCount      int64 = 2
	nodeStepCount      int64 = 3
	scanProgressWeight int64 = 1
	totalWeightSteps   int64 = 5
)

func ComputeBuildProgress(counts BuildCounts) BuildProgress {
	if counts.FileTotal <= 0 && counts.NodeTotal <= 0 {
		return BuildProgress{}
	}

	stepProgress := BuildStepProgress{}
	hasStep := false

	if counts.FileTotal > 0 {
		if counts.FileQueued > 0 {
			stepProgress.Queued = fmt.Sprintf("%d/%d", counts.FileQueued, counts.FileTotal)
			hasStep = true
		}
		if counts.FileScanning > 0 {
			stepProgress.Scanning = fmt.Sprintf("%d/%d", counts.FileScanning, counts.FileTotal)
			hasStep = true
		}
		if counts.FileScanned > 0 {
			stepProgress.Scanned = fmt.Sprintf("%d/%d", counts.FileScanned, counts.FileTotal)
			hasStep = true
		}
		if counts.FileSkipped > 0 {
			stepProgress.Skipped = fmt.Sprintf("%d/%d", counts.FileSkipped, counts.FileTotal)
			hasStep = true
		}
	}

	if counts.NodeTotal > 0 {
		if counts.NodeSummarizing > 0 {
			stepProgress.Summarizing = fmt.Sprintf("%d/%d", counts.NodeSummarizing, counts.NodeTotal)
			hasStep = true
		}
		if counts.NodePersisting > 0 {
			stepProgress.Persisting = fmt.Sprintf("%d/%d", counts.NodePersisting, counts.NodeTotal)
			hasStep = true
		}
		if counts.NodeCompleted > 0 {
			stepProgress.Completed = fmt.Sprintf("%d/%d", counts.NodeCompleted, counts.NodeTotal)
			hasStep = true
		}
	}

	if failed := counts.FileFailed + counts.NodeFailed; failed > 0 {
		stepProgress.Failed = fmt.Sprintf("%d/%d", failed, counts.FileTotal+counts.NodeTotal)
		hasStep = true
	}

	buildProgress := BuildProgress{}
	if hasStep {
		buildProgress.Step = &stepProgress
	}

	percentage := CalculateBuildProgressPercentage(counts)
	buildProgress.Percentage = &percentage

	if counts.ElapsedMs > 0 && percentage > 0 && percentage < 100 {
		estimated := counts.ElapsedMs * 100 / int64(percentage)
		remaining := estimated - counts.ElapsedMs
		buildProgress.EstimatedDuration = &estimated
		buildProgress.TimeRemaining = &remaining
	} else if counts.ElapsedMs > 0 && percentage >= 100 {
		elapsed := counts.ElapsedMs
		buildProgress.EstimatedDuration = &elapsed
	}

	return buildProgress
}

// CalculateBuildProgressPercentage weights the scan pass at one fifth of the
// build and the summarize pass at the remaining four, since model calls
// dominate wall time. Failed items count as finished work so a build with
// abandoned files still reaches 100.
func CalculateBuildProgressPercentage(counts BuildCounts) int32 {
	scanPct := calculateScanPercentage(counts)

	if counts.FileTotal == 0 {
		if counts.NodeTotal == 0 {
			return 0
		}
		return calculateNodePercentage(counts)
	}

	if scanPct < 100 {
		return int32(int64(scanPct) * scanProgressWeight / totalWeightSteps)
	}

	if counts.NodeTotal == 0 {
		return 100
	}
	nodePct := calculateNodePercentage(counts)
	return int32(scanProgressWeight*100/totalWeightSteps) +
		int32(int64(nodePct)*(totalWeightSteps-scanProgressWeight)/totalWeightSteps)
}

func calculateScanPercentage(counts BuildCounts) int32 {
	if counts.FileTotal <= 0 {
		return 0
	}

	totalWork := counts.FileTotal * scanStepCount
	completedWork := min(counts.FileScanning+
		(counts.FileScanned+counts.FileSkipped+counts.FileFailed)*2, totalWork)

	return int32(completedWork * 100 / totalWork)
}

func calculateNodePercentage(counts BuildCounts) int32 {
	if counts.NodeTotal <= 0 {
		return 0
	}

	totalWork := counts.NodeTotal * nodeStepCount
	completedWork := min(counts.NodeSummarizing+
		counts.NodePersisting*2+
		(counts.NodeCompleted+counts.NodeFailed)*3, totalWork)

	return int32(completedWork * 100 / totalWork)
}
