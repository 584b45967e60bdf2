//go:build unix

package testutil_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/testutil"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

func TestFakeBroker_Plugins(t *testing.T) {
	app := testutil.FakeBroker{}.Install(t, t.TempDir())
	exec := command.NewExecutor(log.Noop())
	plugins := filepath.Join(app, "sbin", "rabbitmq-plugins")
	ctx := context.Background()

	if _, err := exec.Run(ctx, command.Command{Path: plugins, Args: []string{"enable", "--offline", "rabbitmq_management"}}); err != nil {
		t.Fatalf("enable failed: %v", err)
	}

	res, err := exec.Run(ctx, command.Command{Path: plugins, Args: []string{"list"}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(res.Stdout, "[E ] rabbitmq_management ") {
		t.Errorf("management should be explicitly enabled:\n%s", res.Stdout)
	}
	if !strings.Contains(res.Stdout, "[e ] rabbitmq_management_agent") {
		t.Errorf("agent should be implicitly enabled:\n%s", res.Stdout)
	}
}

func TestFakeBroker_StatusBeforeBoot(t *testing.T) {
	app := testutil.FakeBroker{}.Install(t, t.TempDir())
	exec := command.NewExecutor(log.Noop())

	_, err := exec.Run(context.Background(), command.Command{Path: filepath.Join(app, "sbin", "rabbitmqctl"), Args: []string{"status"}})
	if err == nil {
		t.Fatal("status should fail when the node is not running")
	}
}

func TestFakeBroker_ServerLifecycle(t *testing.T) {
	app := testutil.FakeBroker{LogStartupLine: true}.Install(t, t.TempDir())
	exec := command.NewExecutor(log.Noop())
	ctx := context.Background()

	h, err := exec.Start(ctx, command.Command{Path: filepath.Join(app, "sbin", "rabbitmq-server")})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Kill() })

	ctl := filepath.Join(app, "sbin", "rabbitmqctl")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := exec.Run(ctx, command.Command{Path: ctl, Args: []string{"status"}}); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fake server never reported running")
		}
		time.Sleep(50 * time.Millisecond)
	}

	if pid := testutil.ServerPID(t, app); pid != h.Pid() {
		t.Errorf("ServerPID() = %d, want %d", pid, h.Pid())
	}

	if _, err := exec.Run(ctx, command.Command{Path: ctl, Args: []string{"stop"}}); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit after stop")
	}
	stdout, _ := h.Output()
	if !strings.Contains(stdout, "completed with 0 plugins.") {
		t.Errorf("stdout missing startup line:\n%s", stdout)
	}
}

func TestFakeBroker_Archives(t *testing.T) {
	dir := t.TempDir()
	b := testutil.FakeBroker{Version: "3.9.0"}

	b.WriteTarGz(t, filepath.Join(dir, "broker.tar.gz"))
	b.WriteZip(t, filepath.Join(dir, "broker.zip"))

	for _, name := range []string{"broker.tar.gz", "broker.zip"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("archive %s missing: %v", name, err)
		}
		if info.Size() == 0 {
			t.Errorf("archive %s is empty", name)
		}
	}
}

func TestCreateFakeErlang(t *testing.T) {
	dir := t.TempDir()
	erl := testutil.CreateFakeErlang(t, dir, "23")
	exec := command.NewExecutor(log.Noop())

	res, err := exec.Run(context.Background(), command.Command{Path: erl, Args: []string{"-noshell"}})
	if err != nil {
		t.Fatalf("fake erl failed: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != `"23"` {
		t.Errorf("stdout = %q", res.Stdout)
	}
}
