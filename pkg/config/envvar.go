package config

// EnvVar names a RabbitMQ environment variable without its RABBITMQ_ prefix.
type EnvVar string

// EnvPrefix is prepended to every EnvVar.
const EnvPrefix = "RABBITMQ_"

// DefaultNodePort is the AMQP port a node listens on when NODE_PORT is unset.
const DefaultNodePort = 5672

const (
	NodePort           EnvVar = "NODE_PORT"
	NodeName           EnvVar = "NODENAME"
	NodeIPAddress      EnvVar = "NODE_IP_ADDRESS"
	DistPort           EnvVar = "DIST_PORT"
	MnesiaBase         EnvVar = "MNESIA_BASE"
	MnesiaDir          EnvVar = "MNESIA_DIR"
	LogBase            EnvVar = "LOG_BASE"
	Logs               EnvVar = "LOGS"
	EnabledPluginsFile EnvVar = "ENABLED_PLUGINS_FILE"
	PluginsDir         EnvVar = "PLUGINS_DIR"
	ConfigFile         EnvVar = "CONFIG_FILE"
	AdvancedConfigFile EnvVar = "ADVANCED_CONFIG_FILE"
	ConfEnvFile        EnvVar = "CONF_ENV_FILE"
	ServerStartArgs    EnvVar = "SERVER_START_ARGS"
	CtlErlArgs         EnvVar = "CTL_ERL_ARGS"
	UseLongName        EnvVar = "USE_LONGNAME"
)

// Name returns the full environment variable name, e.g. RABBITMQ_NODE_PORT.
func (e EnvVar) Name() string {
	return EnvPrefix + string(e)
}

func (e EnvVar) String() string {
	return e.Name()
}
