package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/platform"
)

const luaGlobal = "embedmq"

// ParseError is a Lua config file that failed to load.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// LoadLua runs a Lua config file in a sandbox and extracts the embedmq table.
func LoadLua(ctx context.Context, path string, detector platform.Detector) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read config file: %w", err)
	}
	return ParseLua(ctx, string(data), detector)
}

// ParseLua evaluates Lua source in a sandbox and extracts the embedmq table.
func ParseLua(ctx context.Context, src string, detector platform.Detector) (FileConfig, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if detector != nil {
		info, err := detector.Detect(ctx)
		if err != nil {
			return FileConfig{}, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return FileConfig{}, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(src); err != nil {
		return FileConfig{}, &ParseError{Message: "Lua error", Detail: trimTraceback(err.Error())}
	}

	return extractFileConfig(L)
}

func trimTraceback(detail string) string {
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		return strings.TrimSpace(detail[:idx])
	}
	return detail
}

// newSandboxedVM creates a Lua VM without os, io, module loading or debug
// access. string, table and math remain available.
func newSandboxedVM() *lua.LState {
	L := lua.NewState()
	for _, name := range []string{"os", "io", "require", "dofile", "loadfile", "load", "loadstring", "debug", "module", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func extractFileConfig(L *lua.LState) (FileConfig, error) {
	global := L.GetGlobal(luaGlobal)
	table, ok := global.(*lua.LTable)
	if !ok {
		return FileConfig{}, &ParseError{
			Message: fmt.Sprintf("missing or invalid '%s' table", luaGlobal),
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	var fc FileConfig
	var errs []string

	str := func(key string, dst *string) {
		switch v := table.RawGetString(key).(type) {
		case lua.LString:
			*dst = string(v)
		case *lua.LNilType:
		default:
			errs = append(errs, fmt.Sprintf("%s: expected string, got %s", key, v.Type()))
		}
	}
	// Durations may also be given as a number of milliseconds.
	duration := func(key string, dst *string) {
		if n, ok := table.RawGetString(key).(lua.LNumber); ok {
			*dst = fmt.Sprintf("%dms", int64(n))
			return
		}
		str(key, dst)
	}
	boolean := func(key string, dst **bool) {
		switch v := table.RawGetString(key).(type) {
		case lua.LBool:
			b := bool(v)
			*dst = &b
		case *lua.LNilType:
		default:
			errs = append(errs, fmt.Sprintf("%s: expected boolean, got %s", key, v.Type()))
		}
	}

	str("version", &fc.Version)
	str("repository", &fc.Repository)
	str("download_url", &fc.DownloadURL)
	str("app_folder", &fc.AppFolder)
	str("download_folder", &fc.DownloadFolder)
	str("download_target", &fc.DownloadTarget)
	str("extraction_folder", &fc.ExtractionFolder)

	duration("connect_timeout", &fc.ConnectTimeout)
	duration("read_timeout", &fc.ReadTimeout)
	duration("ctl_timeout", &fc.CtlTimeout)
	duration("server_init_timeout", &fc.ServerInitTimeout)
	duration("erlang_check_timeout", &fc.ErlangCheckTimeout)
	duration("stop_grace_period", &fc.StopGracePeriod)
	duration("poll_interval", &fc.PollInterval)

	boolean("use_cache", &fc.UseCache)
	boolean("delete_on_error", &fc.DeleteOnError)
	boolean("lock_downloads", &fc.LockDownloads)
	boolean("unique_node_name", &fc.UniqueNodeName)

	switch v := table.RawGetString("port").(type) {
	case lua.LNumber:
		p := int(v)
		fc.Port = &p
	case *lua.LNilType:
	default:
		errs = append(errs, fmt.Sprintf("port: expected number, got %s", v.Type()))
	}

	str("proxy", &fc.Proxy)
	str("keyring", &fc.Keyring)
	str("checksum", &fc.Checksum)
	str("erlang", &fc.Erlang)

	switch v := table.RawGetString("env").(type) {
	case *lua.LTable:
		fc.Env = make(map[string]string)
		v.ForEach(func(key, value lua.LValue) {
			// Skip nil values from platform conditionals.
			if value.Type() == lua.LTNil {
				return
			}
			k, ok := key.(lua.LString)
			if !ok {
				errs = append(errs, fmt.Sprintf("env: keys must be strings, got %s", key.Type()))
				return
			}
			switch value.(type) {
			case lua.LString, lua.LNumber, lua.LBool:
				fc.Env[string(k)] = value.String()
			default:
				errs = append(errs, fmt.Sprintf("env.%s: expected scalar, got %s", k, value.Type()))
			}
		})
	case *lua.LNilType:
	default:
		errs = append(errs, fmt.Sprintf("env: expected table, got %s", v.Type()))
	}

	if len(errs) > 0 {
		return FileConfig{}, &ParseError{Message: "invalid config", Detail: strings.Join(errs, "; ")}
	}
	return fc, nil
}
