package status

import (
	"testing"
	"time"
)

func TestRootReportsOK(t *testing.T) {
	r := New(Counters{})
	root := r.Root()
	if root.Status != "ok" || root.Name == "" {
		t.Fatalf("unexpected root report: %+v", root)
	}
}

func TestStatusReportHasNonNegativeUptime(t *testing.T) {
	r := New(Counters{})
	s := r.StatusReport()
	if s.UptimeSeconds < 0 {
		t.Fatalf("expected non-negative uptime, got %v", s.UptimeSeconds)
	}
	if s.Uptime == "" {
		t.Fatal("expected a non-empty human uptime string")
	}
}

func TestStatsAggregatesAllCounters(t *testing.T) {
	r := New(Counters{
		Agents:   func() (int, error) { return 1, nil },
		Messages: func() (int, error) { return 2, nil },
		Files:    func() (int, error) { return 3, nil },
		Tasks:    func() (int, error) { return 4, nil },
		Commits:  func() (int, error) { return 5, nil },
	})
	st, err := r.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Agents != 1 || st.Messages != 2 || st.Files != 3 || st.Tasks != 4 || st.Commits != 5 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestHumanDurationFormat(t *testing.T) {
	cases := map[int64]string{
		0:    "0h0m0s",
		61:   "0h1m1s",
		3661: "1h1m1s",
	}
	for seconds, want := range cases {
		got := humanDuration(time.Duration(seconds) * time.Second)
		if got != want {
			t.Errorf("humanDuration(%ds) = %q, want %q", seconds, got, want)
		}
	}
}
