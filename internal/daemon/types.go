package daemon

import (
	"context"
	"ipdrexporter/internal/events"
	"ipdrexporter/internal/exporter"
	"ipdrexporter/internal/ingest"
	"ipdrexporter/internal/params"
	"ipdrexporter/internal/reactor"
	"ipdrexporter/internal/seal"
	"ipdrexporter/internal/transport/tcp"
	"net/http"
	"sync"
	"time"
)

type JSONConfig struct {
	PrivateKeyFile string `json:"privateKeyFile,omitempty"`
	Peers          []struct {
		Name      string `json:"name"`
		Address   string `json:"address"`
		Port      int    `json:"port,omitempty"`
		PublicKey string `json:"publicKey,omitempty"`
	} `json:"peers"`
	Sessions []struct {
		ID          uint8                `json:"id"`
		Name        string               `json:"name"`
		Description string               `json:"description,omitempty"`
		ConfigID    uint16               `json:"configId,omitempty"`
		Templates   []ingest.TemplateDef `json:"templates"`
		Bindings    []struct {
			Peer     string `json:"peer"`
			Priority int    `json:"priority"`
		} `json:"bindings"`
	} `json:"sessions"`
	Input struct {
		Path   string `json:"path"`
		Follow bool   `json:"follow,omitempty"`
	} `json:"input"`
	Transport struct {
		DialTimeout    string `json:"dialTimeout,omitempty"`
		DialAttempts   int    `json:"dialAttempts,omitempty"`
		MaxDialDelay   string `json:"maxDialDelay,omitempty"`
		OutboxDepth    int    `json:"outboxDepth,omitempty"`
		SendBuffer     int    `json:"sendBuffer,omitempty"`
		KeepAlive      bool   `json:"keepAlive,omitempty"`
		DisableNoDelay bool   `json:"disableNoDelay,omitempty"`
	} `json:"transport"`
	Events struct {
		Log           bool   `json:"log"`
		BeatsEndpoint string `json:"beatsEndpoint,omitempty"`
		StreamFile    string `json:"streamFile,omitempty"`
		StreamTag     string `json:"streamTag,omitempty"`
	} `json:"events"`
	Metrics struct {
		Interval          string `json:"collectionInterval"`
		MaxAge            string `json:"maximumRetention,omitempty"`
		EnableQueryServer bool   `json:"enableHTTPQueryServer"`
		QueryServerPort   int    `json:"HTTPQueryServerPort"`
	} `json:"metrics"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type PeerConfig struct {
	Name      string
	Address   string
	Port      uint16
	PublicKey []byte // set for collectors receiving sealed frames
}

type BindingConfig struct {
	Peer     string
	Priority int
}

type SessionConfig struct {
	ID          uint8
	Name        string
	Description string
	ConfigID    uint16
	Templates   []ingest.TemplateDef
	Bindings    []BindingConfig
}

type Config struct {
	// Collectors and what streams to them
	Peers      []PeerConfig
	Sessions   []SessionConfig
	PrivateKey []byte

	// Record source
	InputPath   string
	InputFollow bool

	Transport tcp.Config

	// Event sinks
	LogEvents     bool
	BeatsEndpoint string
	StreamFile    string
	StreamTag     string

	// Metrics
	MetricQueryServerEnabled bool
	MetricQueryServerPort    int
	MetricCollectionInterval time.Duration
	MetricMaxAge             time.Duration

	// Pool and session tuning
	Parameters map[string]string
}

type Daemon struct {
	cfg        Config
	configPath string
	ctx        context.Context
	cancel     context.CancelFunc

	wg       sync.WaitGroup
	ingestWG sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}

	// Pipeline components (reverse order)
	params    *params.Table
	loop      *reactor.Loop
	tcp       *tcp.Transport
	seal      *seal.Transport
	exporter  *exporter.Exporter
	sinks     events.Fanout
	closers   []func() error
	source    *ingest.Source
	catalog   ingest.Catalog
	gatherer  *Gatherer
	loopDone  chan struct{}
	ingestEnd context.CancelFunc

	MetricServer *http.Server
}
