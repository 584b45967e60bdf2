package rabbitmq

import (
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/artifact"
)

// Script is one of the executables bundled under the distribution's sbin.
type Script string

const (
	ServerScript  Script = "rabbitmq-server"
	CtlScript     Script = "rabbitmqctl"
	PluginsScript Script = "rabbitmq-plugins"
)

// Path returns the script inside appFolder for the given OS family.
func (s Script) Path(appFolder string, os artifact.OperatingSystem) string {
	name := string(s)
	if os == artifact.OSWindows {
		name += ".bat"
	}
	return filepath.Join(appFolder, "sbin", name)
}
