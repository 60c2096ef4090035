package config

import "fmt"

// Vector store backends.
const (
	VectorProviderChromem  = "chromem"
	VectorProviderQdrant   = "qdrant"
	VectorProviderPinecone = "pinecone"
)

// VectorConfig configures the vector store backend.
//
// chromem is the embedded zero-config default; qdrant and pinecone are for
// deployments with an external store.
type VectorConfig struct {
	// Provider identifies the backend.
	// Values: "chromem" (default, embedded), "qdrant", "pinecone"
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"title=Provider,description=Vector store backend,enum=chromem,enum=qdrant,enum=pinecone,default=chromem"`

	// Qdrant configuration (used when Provider="qdrant").
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty" json:"qdrant,omitempty"`

	// Chromem configuration (used when Provider="chromem").
	Chromem *ChromemConfig `yaml:"chromem,omitempty" json:"chromem,omitempty"`

	// Pinecone configuration (used when Provider="pinecone").
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty" json:"pinecone,omitempty"`
}

// QdrantConfig configures a Qdrant connection.
type QdrantConfig struct {
	// Host of the Qdrant server.
	// Default: "localhost"
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port of the Qdrant gRPC endpoint.
	// Default: 6334
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// APIKey for Qdrant Cloud (optional).
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Collection name.
	// Default: "openresponses"
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`

	// UseTLS enables TLS for the connection.
	UseTLS bool `yaml:"use_tls,omitempty" json:"use_tls,omitempty"`
}

// ChromemConfig configures the chromem-go embedded provider.
type ChromemConfig struct {
	// Path for file persistence. If empty, vectors live in memory only.
	// Default: ".openresponses/vectors"
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Collection name.
	// Default: "openresponses"
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`

	// Compress enables gzip compression for persistence.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty"`
}

// PineconeConfig configures a Pinecone connection.
type PineconeConfig struct {
	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// IndexHost is the host of the target index.
	IndexHost string `yaml:"index_host,omitempty" json:"index_host,omitempty"`

	// Namespace scopes all operations (optional).
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = VectorProviderChromem
	}
	switch c.Provider {
	case VectorProviderChromem:
		if c.Chromem == nil {
			c.Chromem = &ChromemConfig{}
		}
		if c.Chromem.Path == "" {
			c.Chromem.Path = ".openresponses/vectors"
		}
		if c.Chromem.Collection == "" {
			c.Chromem.Collection = "openresponses"
		}
	case VectorProviderQdrant:
		if c.Qdrant == nil {
			c.Qdrant = &QdrantConfig{}
		}
		if c.Qdrant.Host == "" {
			c.Qdrant.Host = "localhost"
		}
		if c.Qdrant.Port == 0 {
			c.Qdrant.Port = 6334
		}
		if c.Qdrant.Collection == "" {
			c.Qdrant.Collection = "openresponses"
		}
	}
}

// Validate checks the vector store configuration.
func (c *VectorConfig) Validate() error {
	switch c.Provider {
	case VectorProviderChromem:
		return nil
	case VectorProviderQdrant:
		if c.Qdrant == nil {
			return fmt.Errorf("qdrant section is required for provider %q", c.Provider)
		}
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required")
		}
		if c.Qdrant.Port <= 0 {
			return fmt.Errorf("qdrant port must be positive")
		}
		return nil
	case VectorProviderPinecone:
		if c.Pinecone == nil {
			return fmt.Errorf("pinecone section is required for provider %q", c.Provider)
		}
		if c.Pinecone.APIKey == "" {
			return fmt.Errorf("pinecone api_key is required")
		}
		if c.Pinecone.IndexHost == "" {
			return fmt.Errorf("pinecone index_host is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown provider %q (valid: chromem, qdrant, pinecone)", c.Provider)
	}
}
