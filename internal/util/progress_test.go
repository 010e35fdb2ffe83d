package util

import "testing"

func TestCalculateBuildProgressPercentage(t *testing.T) {
	cases := []struct {
		name   string
		counts BuildCounts
		want   int32
	}{
		{
			name:   "empty build",
			counts: BuildCounts{},
			want:   0,
		},
		{
			name:   "mid scan",
			counts: BuildCounts{FileTotal: 10, FileQueued: 5, FileScanned: 5},
			want:   10,
		},
		{
			name:   "scan done no nodes",
			counts: BuildCounts{FileTotal: 4, FileScanned: 4},
			want:   100,
		},
		{
			name: "scan done half the nodes summarized",
			counts: BuildCounts{
				FileTotal: 4, FileScanned: 4,
				NodeTotal: 10, NodeCompleted: 5,
			},
			want: 60,
		},
		{
			name: "all nodes done",
			counts: BuildCounts{
				FileTotal: 4, FileScanned: 4,
				NodeTotal: 10, NodeCompleted: 10,
			},
			want: 100,
		},
		{
			name:   "failed files finish the scan pass",
			counts: BuildCounts{FileTotal: 2, FileScanned: 1, FileFailed: 1},
			want:   100,
		},
		{
			name:   "skipped files count as scanned",
			counts: BuildCounts{FileTotal: 2, FileSkipped: 2},
			want:   100,
		},
		{
			name:   "node only rebuild",
			counts: BuildCounts{NodeTotal: 4, NodeCompleted: 2, NodeSummarizing: 1},
			want:   58,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateBuildProgressPercentage(tc.counts); got != tc.want {
				t.Errorf("expected %d%%, got %d%%", tc.want, got)
			}
		})
	}
}

func TestComputeBuildProgress(t *testing.T) {
	counts := BuildCounts{
		FileTotal:   10,
		FileQueued:  5,
		FileScanned: 5,
		ElapsedMs:   1000,
	}

	progress := ComputeBuildProgress(counts)
	if progress.Step == nil {
		t.Fatal("expected step progress to be set")
	}
	if progress.Step.Queued != "5/10" {
		t.Errorf("expected queued 5/10, got %q", progress.Step.Queued)
	}
	if progress.Step.Scanned != "5/10" {
		t.Errorf("expected scanned 5/10, got %q", progress.Step.Scanned)
	}
	if progress.Percentage == nil || *progress.Percentage != 10 {
		t.Fatalf("expected percentage 10, got %v", progress.Percentage)
	}
	if progress.EstimatedDuration == nil || *progress.EstimatedDuration != 10000 {
		t.Errorf("expected estimated duration 10000, got %v", progress.EstimatedDuration)
	}
	if progress.TimeRemaining == nil || *progress.TimeRemaining != 9000 {
		t.Errorf("expected time remaining 9000, got %v", progress.TimeRemaining)
	}
}

func TestComputeBuildProgress_EmptyBuild(t *testing.T) {
	progress := ComputeBuildProgress(BuildCounts{})
	if progress.Step != nil || progress.Percentage != nil {
		t.Fatalf("expected zero progress for an empty build, got %+v", progress)
	}
}
