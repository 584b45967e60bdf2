package testutil

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

// FakePlugins are the plugins reported by the fake rabbitmq-plugins script.
var FakePlugins = []string{
	"rabbitmq_management",
	"rabbitmq_management_agent",
	"rabbitmq_shovel",
	"rabbitmq_web_stomp",
}

// FakeBroker describes a shell-script stand-in for a RabbitMQ distribution.
// The scripts share state through <app>/var: "running" exists while the node
// is up and "enabled" lists explicitly enabled plugins.
type FakeBroker struct {
	// AppFolder is the top-level directory inside the archive.
	AppFolder string
	Version   string
	// BootDelay is how long the server takes before it reports running.
	BootDelay time.Duration
	// LogStartupLine prints the "completed with N plugins." line on boot.
	LogStartupLine bool
	// ExitCode, when non-zero, makes the server exit immediately with it.
	ExitCode int
	// IgnoreTerm makes the server ignore SIGTERM.
	IgnoreTerm bool
}

type fakeFile struct {
	content string
	mode    os.FileMode
}

func (b FakeBroker) appFolder() string {
	if b.AppFolder != "" {
		return b.AppFolder
	}
	return "rabbitmq_server-" + b.version()
}

func (b FakeBroker) version() string {
	if b.Version != "" {
		return b.Version
	}
	return "3.8.19"
}

func (b FakeBroker) files() map[string]fakeFile {
	app := b.appFolder()
	return map[string]fakeFile{
		app + "/sbin/rabbitmq-server":   {b.serverScript(), 0o755},
		app + "/sbin/rabbitmqctl":       {b.ctlScript(), 0o755},
		app + "/sbin/rabbitmq-plugins":  {b.pluginsScript(), 0o755},
		app + "/sbin/rabbitmq-defaults": {"#!/bin/sh\n", 0o644},
		app + "/etc/rabbitmq/README":    {"fake broker " + b.version() + "\n", 0o644},
	}
}

const scriptPrelude = `#!/bin/sh
here=$(cd "$(dirname "$0")/.." && pwd)
state="$here/var"
mkdir -p "$state"
`

func (b FakeBroker) serverScript() string {
	var s strings.Builder
	s.WriteString(scriptPrelude)
	s.WriteString(`echo "$$" > "$state/server.pid"
echo "port=${RABBITMQ_NODE_PORT:-5672} node=${RABBITMQ_NODENAME:-rabbit@localhost}" > "$state/env"
echo "  ##  ##      RabbitMQ ` + b.version() + `"
`)
	if b.ExitCode != 0 {
		fmt.Fprintf(&s, "echo \"BOOT FAILED: eaddrinuse\" >&2\nexit %d\n", b.ExitCode)
		return s.String()
	}
	if b.IgnoreTerm {
		s.WriteString("trap '' TERM\n")
	} else {
		s.WriteString(`trap 'rm -f "$state/running"; exit 0' TERM INT` + "\n")
	}
	if b.BootDelay > 0 {
		fmt.Fprintf(&s, "sleep %s\n", strconv.FormatFloat(b.BootDelay.Seconds(), 'f', 3, 64))
	}
	s.WriteString(`touch "$state/running"
echo "  Starting broker..."
`)
	if b.LogStartupLine {
		s.WriteString(`echo " completed with 0 plugins."` + "\n")
	}
	s.WriteString(`while [ -f "$state/running" ]; do sleep 0.1; done
rm -f "$state/server.pid"
exit 0
`)
	return s.String()
}

func (b FakeBroker) ctlScript() string {
	return scriptPrelude + `node=${RABBITMQ_NODENAME:-rabbit@localhost}
case "$1" in
status)
  if [ -f "$state/running" ]; then
    echo "Status of node $node ..."
    echo "RabbitMQ version: ` + b.version() + `"
    exit 0
  fi
  echo "Error: unable to perform an operation on node '$node'. Please see diagnostics information and suggestions below." >&2
  exit 69
  ;;
stop)
  if [ -f "$state/running" ]; then
    echo "Stopping and halting node $node ..."
    rm -f "$state/running"
    exit 0
  fi
  echo "Error: unable to perform an operation on node '$node'." >&2
  exit 69
  ;;
hang)
  sleep 30
  ;;
*)
  echo "$@"
  ;;
esac
`
}

func (b FakeBroker) pluginsScript() string {
	return scriptPrelude + `enabled="$state/enabled"
touch "$enabled"
cmd="$1"
shift
case "$cmd" in
list)
  echo 'Listing plugins with pattern ".*" ...'
  echo ' Configured: E = explicitly enabled; e = implicitly enabled'
  echo ' | Status: * = running on rabbit@localhost'
  echo ' |/'
  run=" "
  [ -f "$state/running" ] && run="*"
  for p in ` + strings.Join(FakePlugins, " ") + `; do
    flag=" "
    if grep -qx "$p" "$enabled"; then
      flag="E"
    elif [ "$p" = rabbitmq_management_agent ] && grep -qx rabbitmq_management "$enabled"; then
      flag="e"
    fi
    r=" "
    [ "$flag" != " " ] && r="$run"
    printf '[%s%s] %-26s %s\n' "$flag" "$r" "$p" "` + b.version() + `"
  done
  ;;
enable)
  for p in "$@"; do
    [ "$p" = "--offline" ] && continue
    grep -qx "$p" "$enabled" || echo "$p" >> "$enabled"
  done
  echo "The following plugins have been enabled:"
  for p in "$@"; do [ "$p" = "--offline" ] || echo "  $p"; done
  ;;
disable)
  for p in "$@"; do
    [ "$p" = "--offline" ] && continue
    grep -vx "$p" "$enabled" > "$enabled.tmp"
    mv "$enabled.tmp" "$enabled"
  done
  echo "The following plugins have been disabled:"
  for p in "$@"; do [ "$p" = "--offline" ] || echo "  $p"; done
  ;;
*)
  echo "unknown command $cmd" >&2
  exit 64
  ;;
esac
`
}

func sortedNames(files map[string]fakeFile) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install writes the distribution directly under root and returns the
// application folder.
func (b FakeBroker) Install(t *testing.T, root string) string {
	t.Helper()

	files := b.files()
	for _, name := range sortedNames(files) {
		f := files[name]
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(f.content), f.mode); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return filepath.Join(root, b.appFolder())
}

// WriteTarGz packs the distribution into a tar.gz archive at path.
func (b FakeBroker) WriteTarGz(t *testing.T, path string) {
	t.Helper()

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	files := b.files()
	for _, name := range sortedNames(files) {
		f := files[name]
		hdr := &tar.Header{
			Name:     name,
			Mode:     int64(f.mode),
			Size:     int64(len(f.content)),
			Typeflag: tar.TypeReg,
			ModTime:  time.Now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("failed to write header for %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(f.content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
}

// WriteZip packs the distribution into a zip archive at path.
func (b FakeBroker) WriteZip(t *testing.T, path string) {
	t.Helper()

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	files := b.files()
	for _, name := range sortedNames(files) {
		f := files[name]
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(f.mode)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("failed to create zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(f.content)); err != nil {
			t.Fatalf("failed to write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
}

// ServerPID returns the pid recorded by the fake server in appDir, or 0.
func ServerPID(t *testing.T, appDir string) int {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(appDir, "var", "server.pid"))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("corrupt pid file: %v", err)
	}
	return pid
}

// CreateFakeErlang writes an erl stand-in to dir that reports OTP release.
// An empty release makes it fail like a broken installation.
func CreateFakeErlang(t *testing.T, dir, release string) string {
	t.Helper()

	path := filepath.Join(dir, "erl")
	script := "#!/bin/sh\necho 'erl: cannot find boot script' >&2\nexit 1\n"
	if release != "" {
		script = fmt.Sprintf("#!/bin/sh\necho '\"%s\"'\n", release)
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to create fake erl: %v", err)
	}
	return path
}
