package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nvandessel/cosim/internal/handshake"
)

func TestLaunchLevels(t *testing.T) {
	plan := []ProcessSpec{
		{Name: "w1"},
		{Name: "sim", DependsOn: []string{"w1", "w2"}},
		{Name: "w2"},
		{Name: "post", DependsOn: []string{"sim"}},
	}
	levels, err := launchLevels(plan)
	if err != nil {
		t.Fatalf("launchLevels failed: %v", err)
	}
	want := [][]string{{"w1", "w2"}, {"sim"}, {"post"}}
	if len(levels) != len(want) {
		t.Fatalf("expected %d levels, got %d", len(want), len(levels))
	}
	for i, level := range levels {
		if got := planNames(level); !slices.Equal(got, want[i]) {
			t.Errorf("level %d: expected %v, got %v", i, want[i], got)
		}
	}
}

func TestLaunchLevels_Cycle(t *testing.T) {
	plan := []ProcessSpec{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"c"}},
		{Name: "c", DependsOn: []string{"a"}},
	}
	_, err := launchLevels(plan)
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(cerr.Path) != 4 || cerr.Path[0] != cerr.Path[3] {
		t.Errorf("expected closed cycle path, got %v", cerr.Path)
	}
}

func TestLaunchLevels_InvalidPlans(t *testing.T) {
	tests := []struct {
		name string
		plan []ProcessSpec
	}{
		{"unknown dependency", []ProcessSpec{{Name: "a", DependsOn: []string{"ghost"}}}},
		{"duplicate name", []ProcessSpec{{Name: "a"}, {Name: "a"}}},
		{"self dependency", []ProcessSpec{{Name: "a", DependsOn: []string{"a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := launchLevels(tt.plan); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func newTestSupervisor(t *testing.T, cfg SupervisorConfig) (*Supervisor, string) {
	t.Helper()
	t.Setenv("COSIM_TEST_HELPER", "1")
	root := t.TempDir()
	ch, err := handshake.NewFileChannel(filepath.Join(root, "scratch"), 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewFileChannel failed: %v", err)
	}
	cfg.LogDir = root
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	return NewSupervisor(ch, cfg, nil), root
}

func workerSpec(scratch, direction string) ProcessSpec {
	return ProcessSpec{
		Name:      direction + "_1",
		Group:     Background,
		Command:   os.Args[0],
		Args:      []string{"translate", "--direction", direction, "--region", "1", "--scratch", scratch},
		ReadyRole: direction + "_1.ready",
	}
}

func simSpec(dir, name, behavior string, deps ...string) ProcessSpec {
	return ProcessSpec{
		Name:      name,
		Group:     Foreground,
		Command:   os.Args[0],
		Args:      []string{"sim", name},
		Env:       []string{"HELPER_BEHAVIOR=" + behavior},
		Dir:       dir,
		DependsOn: deps,
	}
}

func TestSupervisor_RunsPlan(t *testing.T) {
	sup, root := newTestSupervisor(t, SupervisorConfig{KillGrace: time.Second})
	scratch := filepath.Join(root, "scratch")
	plan := []ProcessSpec{
		workerSpec(scratch, "nest_to_tvb"),
		workerSpec(scratch, "tvb_to_nest"),
		simSpec(root, "nest", "ok", "nest_to_tvb_1", "tvb_to_nest_1"),
	}

	results, err := sup.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, r := range results {
		if r.Outcome() != "ok" || r.ExitCode != 0 {
			t.Errorf("%s: expected ok, got %s (code %d, err %v)", r.Name, r.Outcome(), r.ExitCode, r.Err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "nest.log")); err != nil {
		t.Errorf("expected process log: %v", err)
	}
	readInvocation(t, root)
}

func TestSupervisor_ProcessFailure(t *testing.T) {
	sup, root := newTestSupervisor(t, SupervisorConfig{KillGrace: time.Second})
	tvbDir := filepath.Join(root, "tvb")
	if err := os.Mkdir(tvbDir, 0755); err != nil {
		t.Fatal(err)
	}
	plan := []ProcessSpec{
		simSpec(root, "nest", "sleep"),
		simSpec(tvbDir, "tvb", "fail"),
	}

	start := time.Now()
	results, err := sup.Run(context.Background(), plan)
	var perr *ProcessFailureError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessFailureError, got %v", err)
	}
	if perr.Process != "tvb" || perr.ExitCode != 3 {
		t.Errorf("expected tvb exit 3, got %s exit %d", perr.Process, perr.ExitCode)
	}
	if time.Since(start) > 20*time.Second {
		t.Error("expected the sleeping process to be terminated")
	}
	if results[0].Outcome() != "killed" {
		t.Errorf("expected nest to be killed, got %s", results[0].Outcome())
	}
}

func TestSupervisor_ReadinessTimeout(t *testing.T) {
	t.Setenv("HELPER_WORKER", "silent")
	sup, root := newTestSupervisor(t, SupervisorConfig{ReadyTimeout: 200 * time.Millisecond, KillGrace: time.Second})
	scratch := filepath.Join(root, "scratch")
	plan := []ProcessSpec{
		workerSpec(scratch, "nest_to_tvb"),
		simSpec(root, "nest", "ok", "nest_to_tvb_1"),
	}

	results, err := sup.Run(context.Background(), plan)
	var lerr *LaunchError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	var terr *handshake.TimeoutError
	if !errors.As(err, &terr) {
		t.Errorf("expected wrapped handshake timeout, got %v", err)
	}
	if lerr.Process != "nest_to_tvb_1" {
		t.Errorf("expected worker to be reported, got %s", lerr.Process)
	}
	if results[1].Started {
		t.Error("expected simulator not to be started")
	}
}

func TestSupervisor_RunTimeout(t *testing.T) {
	sup, root := newTestSupervisor(t, SupervisorConfig{RunTimeout: 300 * time.Millisecond, KillGrace: time.Second})
	plan := []ProcessSpec{simSpec(root, "tvb", "sleep")}

	results, err := sup.Run(context.Background(), plan)
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
	if results[0].Outcome() != "killed" {
		t.Errorf("expected killed, got %s", results[0].Outcome())
	}
}

func TestSupervisor_StartError(t *testing.T) {
	sup, root := newTestSupervisor(t, SupervisorConfig{})
	plan := []ProcessSpec{
		{Name: "broken", Command: filepath.Join(root, "does-not-exist")},
		{Name: "after", Command: os.Args[0], DependsOn: []string{"broken"}},
	}
	results, err := sup.Run(context.Background(), plan)
	var lerr *LaunchError
	if !errors.As(err, &lerr) || lerr.Process != "broken" {
		t.Fatalf("expected LaunchError for broken, got %v", err)
	}
	if results[0].Started || results[1].Started {
		t.Errorf("expected nothing started, got %+v", results)
	}
}

func TestSupervisor_CycleRejected(t *testing.T) {
	sup, _ := newTestSupervisor(t, SupervisorConfig{})
	_, err := sup.Run(context.Background(), []ProcessSpec{
		{Name: "a", Command: "true", DependsOn: []string{"b"}},
		{Name: "b", Command: "true", DependsOn: []string{"a"}},
	})
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}
