package global

import "time"

const (
	// Descriptive Names for available verbosity levels
	VerbosityNone int = iota
	VerbosityStandard
	VerbosityProgress
	VerbosityData
	VerbosityFullData
	VerbosityDebug

	// Descriptive names for available severity levels
	ErrorLog string = "Error"
	WarnLog  string = "Warn"
	InfoLog  string = "Info"
)

const (
	ProgVersion  string = "v0.3.0"
	ProgBaseName string = "ipdrexporter"

	// Context keys
	LoggerKey  CtxKey = "logger"  // Event queue (mostly for variable log verbosity handling)
	LogTagsKey CtxKey = "logtags" // List of tags in order of broad->specific appended/popped at various parts of the program

	DefaultConfigPath    string = "/etc/ipdrexporter.json"
	DefaultCollectorPort int    = 4737 // IANA ipdr-sp

	// Mailbox sizing for the event loop
	DefaultMailboxSize int = 1024

	// Timeout values
	ExportShutdownTimeout time.Duration = 5 * time.Second

	// Metric collection
	DefaultMetricInterval  time.Duration = 15 * time.Second
	DefaultMetricRetention time.Duration = time.Hour

	// Metric HTTP server
	HTTPListenPort   int           = 10000 + DefaultCollectorPort // Default listen port
	HTTPListenAddr   string        = "localhost"                  // Metric queries only exposed to local machine
	HTTPReadTimeout  time.Duration = 30 * time.Second
	HTTPWriteTimeout time.Duration = 10 * time.Second
	HTTPIdleTimeout  time.Duration = 180 * time.Second
	DataPath         string        = "/data"
	DiscoveryPath    string        = "/discover"
	AggregationPath  string        = "/aggregate"
	StatusPath       string        = "/status"

	// Namespacing Name Components
	NSMetric    string = "Metrics"
	NSMetricSrv string = "Server"
	NSTest      string = "Test"
	NSDaemon    string = "Daemon"
	NSCLI       string = "CLI"
	NSExport    string = "Exporter"
	NSReactor   string = "Reactor"
	NSQueue     string = "Queue"
	NSPool      string = "Pool"
	NSSession   string = "Session"
	NSPeer      string = "Peer"
	NSConn      string = "Conn"
	NSTransport string = "Transport"
	NSIngest    string = "Ingest"
	NSEvents    string = "Events"
	NSTemplate  string = "Template"
)
