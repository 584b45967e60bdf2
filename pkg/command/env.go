package command

import (
	"os"
	"runtime"
	"sort"
	"strings"
)

// ComposeEnv overlays overrides onto base (KEY=VALUE entries, typically
// os.Environ()). Overrides win, duplicates collapse to the last value and the
// result is sorted. Keys compare case-insensitively on Windows.
func ComposeEnv(base []string, overrides map[string]string) []string {
	type entry struct{ key, value string }
	envMap := make(map[string]entry, len(base)+len(overrides))

	for _, e := range base {
		key, value, _ := strings.Cut(e, "=")
		if key == "" {
			// Windows keeps per-drive cwd entries like "=C:=C:\".
			continue
		}
		envMap[envKey(key)] = entry{key, value}
	}
	for key, value := range overrides {
		if key == "" {
			continue
		}
		envMap[envKey(key)] = entry{key, value}
	}

	result := make([]string, 0, len(envMap))
	for _, e := range envMap {
		result = append(result, e.key+"="+e.value)
	}
	sort.Strings(result)
	return result
}

func envKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}

// environ is swapped in tests.
var environ = os.Environ
