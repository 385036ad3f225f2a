// Package config handles configuration loading for the AS4 receiving
// server.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax), so credentials can be
// injected at runtime.
//
// # Example Configuration
//
//	server:
//	  port: 8080
//	  basePath: "/"
//	  tls:
//	    enabled: true
//	    certFile: /etc/ssl/server.crt
//	    keyFile: /etc/ssl/server.key
//	  metrics:
//	    enabled: true
//	    path: /metrics
//
//	receiver:
//	  profileId: default
//	  workerPoolSize: 4
//	  duplicateWindow: 10m
//
//	storage:
//	  type: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: as4
//
//	security:
//	  trusted:
//	    - /etc/as4/peers/partner.crt
//	  keys:
//	    - alias: default
//	      type: rsa
//	      certFile: /etc/as4/sign.crt
//	      keyFile: /etc/as4/sign.key
//
//	pmodes:
//	  - id: example-oneway-push
//	    mep: http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/oneWay
//	    mepBinding: http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/push
//	    legs:
//	      - businessInfo:
//	          service: urn:example:service
//	          action: Submit
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`
	PModes   []PModeConfig  `yaml:"pmodes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"`
	TLS      struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"tls"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// ReceiverConfig holds pipeline settings.
type ReceiverConfig struct {
	ProfileID       string        `yaml:"profileId"`
	WorkerPoolSize  int           `yaml:"workerPoolSize"`
	DuplicateWindow time.Duration `yaml:"duplicateWindow"`
	Dump            struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"dump"`
	// AttachmentDir spills inbound attachments to disk when set;
	// otherwise they are buffered in memory.
	AttachmentDir string `yaml:"attachmentDir"`
}

// StorageConfig holds message persistence settings.
type StorageConfig struct {
	// Type selects the store: "memory" or "mongodb".
	Type    string        `yaml:"type"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings.
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SecurityConfig holds key material settings.
type SecurityConfig struct {
	// Trusted lists PEM certificate files accepted for inbound
	// signature validation.
	Trusted []string    `yaml:"trusted"`
	Keys    []KeyConfig `yaml:"keys"`
	// HKDFInfo overrides the key-derivation context string.
	HKDFInfo string `yaml:"hkdfInfo"`
}

// KeyConfig describes one key ring entry.
type KeyConfig struct {
	Alias string `yaml:"alias"`
	// Type is "rsa" (signing) or "x25519" (decryption).
	Type     string `yaml:"type"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// PModeConfig is the YAML shape of one processing mode.
type PModeConfig struct {
	ID         string      `yaml:"id"`
	Agreement  string      `yaml:"agreement"`
	MEP        string      `yaml:"mep"`
	MEPBinding string      `yaml:"mepBinding"`
	Initiator  string      `yaml:"initiator"`
	Responder  string      `yaml:"responder"`
	Legs       []LegConfig `yaml:"legs"`
}

// LegConfig is the YAML shape of one leg.
type LegConfig struct {
	Protocol struct {
		Address     string `yaml:"address"`
		SOAPVersion string `yaml:"soapVersion"`
	} `yaml:"protocol"`
	BusinessInfo struct {
		Service string `yaml:"service"`
		Action  string `yaml:"action"`
		MPC     string `yaml:"mpc"`
	} `yaml:"businessInfo"`
	ErrorHandling struct {
		ReportAsResponse *bool `yaml:"reportAsResponse"`
	} `yaml:"errorHandling"`
	Reliability struct {
		DuplicateDetection bool          `yaml:"duplicateDetection"`
		DuplicateWindow    time.Duration `yaml:"duplicateWindow"`
	} `yaml:"reliability"`
	Security struct {
		Sign *struct {
			Algorithm        string `yaml:"algorithm"`
			HashFunction     string `yaml:"hashFunction"`
			CertificateAlias string `yaml:"certificateAlias"`
		} `yaml:"sign"`
		Encryption *struct {
			Algorithm        string `yaml:"algorithm"`
			CertificateAlias string `yaml:"certificateAlias"`
		} `yaml:"encryption"`
		SendReceipt *struct {
			Enabled        *bool  `yaml:"enabled"`
			ReplyPattern   string `yaml:"replyPattern"`
			NonRepudiation bool   `yaml:"nonRepudiation"`
		} `yaml:"sendReceipt"`
	} `yaml:"security"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/"
	}
	if c.Server.Metrics.Path == "" {
		c.Server.Metrics.Path = "/metrics"
	}
	if c.Receiver.ProfileID == "" {
		c.Receiver.ProfileID = "default"
	}
	if c.Receiver.WorkerPoolSize == 0 {
		c.Receiver.WorkerPoolSize = 4
	}
	if c.Receiver.DuplicateWindow == 0 {
		c.Receiver.DuplicateWindow = 10 * time.Minute
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "as4"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "memory":
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when storage.type is 'mongodb'")
		}
	default:
		return fmt.Errorf("storage.type must be 'memory' or 'mongodb', got '%s'", c.Storage.Type)
	}

	for i, key := range c.Security.Keys {
		if key.Alias == "" {
			return fmt.Errorf("security.keys[%d].alias is required", i)
		}
		switch key.Type {
		case "rsa", "x25519":
		default:
			return fmt.Errorf("security.keys[%d].type must be 'rsa' or 'x25519', got '%s'", i, key.Type)
		}
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires certFile and keyFile when enabled")
	}

	return nil
}

// BuildPModes converts the configured processing modes into the
// registry form, validating each.
func (c *Config) BuildPModes() ([]*pmode.ProcessingMode, error) {
	out := make([]*pmode.ProcessingMode, 0, len(c.PModes))
	for _, pc := range c.PModes {
		pm := &pmode.ProcessingMode{
			ID:         pc.ID,
			Agreement:  pc.Agreement,
			MEP:        pc.MEP,
			MEPBinding: pc.MEPBinding,
			Initiator:  pc.Initiator,
			Responder:  pc.Responder,
		}
		for _, lc := range pc.Legs {
			pm.Legs = append(pm.Legs, buildLeg(lc))
		}
		if err := pm.Validate(); err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, nil
}

func buildLeg(lc LegConfig) *pmode.Leg {
	leg := &pmode.Leg{
		Protocol: &pmode.Protocol{
			Address:     lc.Protocol.Address,
			SOAPVersion: lc.Protocol.SOAPVersion,
		},
		BusinessInfo: &pmode.BusinessInfo{
			Service: lc.BusinessInfo.Service,
			Action:  lc.BusinessInfo.Action,
			MPC:     lc.BusinessInfo.MPC,
		},
		ErrorHandling: &pmode.ErrorHandling{
			ReportAsResponse: lc.ErrorHandling.ReportAsResponse,
		},
		Reliability: &pmode.Reliability{
			DuplicateDetection: lc.Reliability.DuplicateDetection,
			DuplicateWindow:    lc.Reliability.DuplicateWindow,
		},
	}

	sec := &pmode.Security{}
	hasSec := false
	if s := lc.Security.Sign; s != nil {
		sec.Sign = &pmode.SignConfig{
			Algorithm:        pmode.SignatureAlgorithm(s.Algorithm),
			HashFunction:     pmode.HashAlgorithm(s.HashFunction),
			CertificateAlias: s.CertificateAlias,
		}
		hasSec = true
	}
	if e := lc.Security.Encryption; e != nil {
		sec.Encryption = &pmode.EncryptionConfig{
			Algorithm:        pmode.KeyEncryptionAlgorithm(e.Algorithm),
			CertificateAlias: e.CertificateAlias,
		}
		hasSec = true
	}
	if sr := lc.Security.SendReceipt; sr != nil {
		sec.SendReceipt = &pmode.SendReceipt{
			Enabled:        sr.Enabled,
			ReplyPattern:   sr.ReplyPattern,
			NonRepudiation: sr.NonRepudiation,
		}
		hasSec = true
	}
	if hasSec {
		leg.Security = sec
	}
	return leg
}
