package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/seal"
	"os"
	"time"
)

var (
	ErrNoPeers       = errors.New("no peers configured")
	ErrNoSessions    = errors.New("no sessions configured")
	ErrDuplicateName = errors.New("duplicate name")
	ErrUnknownPeer   = errors.New("binding references unknown peer")
)

// Loads JSON config from file
func LoadConfig(path string) (cfg JSONConfig, err error) {
	configFile, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file: %w", err)
		return
	}

	err = json.Unmarshal(configFile, &cfg)
	if err != nil {
		err = fmt.Errorf("invalid config syntax in '%s': %w", path, err)
		return
	}
	return
}

// Parses JSON config into daemon config
func (cfg JSONConfig) NewDaemonConf() (config Config, err error) {
	if len(cfg.Peers) == 0 {
		err = ErrNoPeers
		return
	}
	if len(cfg.Sessions) == 0 {
		err = ErrNoSessions
		return
	}

	// Collectors
	peerNames := make(map[string]bool, len(cfg.Peers))
	for _, jsonPeer := range cfg.Peers {
		if jsonPeer.Name == "" || jsonPeer.Address == "" {
			err = fmt.Errorf("peer entries need a name and an address")
			return
		}
		if peerNames[jsonPeer.Name] {
			err = fmt.Errorf("%w: peer %q", ErrDuplicateName, jsonPeer.Name)
			return
		}
		peerNames[jsonPeer.Name] = true
		if jsonPeer.Port < 0 || jsonPeer.Port > 65535 {
			err = fmt.Errorf("peer %q: port %d out of range", jsonPeer.Name, jsonPeer.Port)
			return
		}

		peer := PeerConfig{
			Name:    jsonPeer.Name,
			Address: jsonPeer.Address,
			Port:    uint16(jsonPeer.Port),
		}
		if jsonPeer.PublicKey != "" {
			peer.PublicKey, err = seal.ParseKey(jsonPeer.PublicKey)
			if err != nil {
				err = fmt.Errorf("peer %q: invalid public key: %w", jsonPeer.Name, err)
				return
			}
		}
		config.Peers = append(config.Peers, peer)
	}

	// Sessions and their bindings
	sessionIDs := make(map[uint8]bool, len(cfg.Sessions))
	for _, jsonSession := range cfg.Sessions {
		if sessionIDs[jsonSession.ID] {
			err = fmt.Errorf("%w: session %d", ErrDuplicateName, jsonSession.ID)
			return
		}
		sessionIDs[jsonSession.ID] = true

		session := SessionConfig{
			ID:          jsonSession.ID,
			Name:        jsonSession.Name,
			Description: jsonSession.Description,
			ConfigID:    jsonSession.ConfigID,
			Templates:   jsonSession.Templates,
		}
		for _, jsonBinding := range jsonSession.Bindings {
			if !peerNames[jsonBinding.Peer] {
				err = fmt.Errorf("session %d: %w %q", jsonSession.ID, ErrUnknownPeer, jsonBinding.Peer)
				return
			}
			session.Bindings = append(session.Bindings, BindingConfig{Peer: jsonBinding.Peer, Priority: jsonBinding.Priority})
		}
		config.Sessions = append(config.Sessions, session)
	}

	// Local key for opening inbound envelopes
	if cfg.PrivateKeyFile != "" {
		var keyText []byte
		keyText, err = os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			err = fmt.Errorf("failed reading private key file: %w", err)
			return
		}
		config.PrivateKey, err = seal.ParseKey(string(keyText))
		if err != nil {
			err = fmt.Errorf("invalid private key: %w", err)
			return
		}
	}

	// Source settings
	config.InputPath = cfg.Input.Path
	config.InputFollow = cfg.Input.Follow

	// Transport settings
	config.Transport.DialTimeout, err = parseDuration("dial timeout", cfg.Transport.DialTimeout)
	if err != nil {
		return
	}
	config.Transport.MaxDialDelay, err = parseDuration("maximum dial delay", cfg.Transport.MaxDialDelay)
	if err != nil {
		return
	}
	config.Transport.DialAttempts = cfg.Transport.DialAttempts
	config.Transport.OutboxDepth = cfg.Transport.OutboxDepth
	config.Transport.SendBuffer = cfg.Transport.SendBuffer
	config.Transport.KeepAlive = cfg.Transport.KeepAlive
	config.Transport.DisableNoDelay = cfg.Transport.DisableNoDelay

	// Event settings
	config.LogEvents = cfg.Events.Log
	config.BeatsEndpoint = cfg.Events.BeatsEndpoint
	config.StreamFile = cfg.Events.StreamFile
	config.StreamTag = cfg.Events.StreamTag

	// Metric settings
	config.MetricQueryServerEnabled = cfg.Metrics.EnableQueryServer
	config.MetricQueryServerPort = cfg.Metrics.QueryServerPort
	config.MetricMaxAge, err = parseDuration("metric max age", cfg.Metrics.MaxAge)
	if err != nil {
		return
	}
	config.MetricCollectionInterval, err = parseDuration("collection interval", cfg.Metrics.Interval)
	if err != nil {
		return
	}

	config.Parameters = cfg.Parameters
	config.setDefaults()
	return
}

// Empty means unset
func parseDuration(name, raw string) (duration time.Duration, err error) {
	if raw == "" {
		return
	}
	duration, err = time.ParseDuration(raw)
	if err != nil {
		err = fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return
}

// Sets defaults for any missing/invalid values
func (cfg *Config) setDefaults() {
	for index := range cfg.Peers {
		if cfg.Peers[index].Port == 0 {
			cfg.Peers[index].Port = uint16(global.DefaultCollectorPort)
		}
	}
	for index := range cfg.Sessions {
		if cfg.Sessions[index].Name == "" {
			cfg.Sessions[index].Name = fmt.Sprintf("session-%d", cfg.Sessions[index].ID)
		}
	}

	if cfg.InputPath == "" {
		cfg.InputPath = "-"
	}
	if cfg.StreamTag == "" {
		cfg.StreamTag = global.ProgBaseName
	}

	// Metrics
	if cfg.MetricMaxAge == 0 {
		cfg.MetricMaxAge = global.DefaultMetricRetention
	}
	if cfg.MetricQueryServerPort == 0 {
		cfg.MetricQueryServerPort = global.HTTPListenPort
	}
	if cfg.MetricCollectionInterval == 0 {
		cfg.MetricCollectionInterval = global.DefaultMetricInterval
	}
}

// Collector public keys by host:port
func (cfg *Config) sealKeys() (keys map[string][]byte) {
	keys = make(map[string][]byte)
	for _, peer := range cfg.Peers {
		if len(peer.PublicKey) == 0 {
			continue
		}
		keys[seal.Endpoint(peer.Address, peer.Port)] = peer.PublicKey
	}
	return
}
