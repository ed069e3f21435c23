package onboarding

import "time"

// Purpose identifies what an uploaded file is for; each purpose has its own
// bucket and content-type allowlist.
type Purpose string

const (
	PurposeLogo     Purpose = "logo"
	PurposeCover    Purpose = "cover"
	PurposeGallery  Purpose = "gallery"
	PurposeDocument Purpose = "document"
)

const (
	// DefaultMaxFileSize is 10 MiB.
	DefaultMaxFileSize int64 = 10 << 20
	DefaultWorkers           = 4
	DefaultLinkTTL           = 15 * time.Minute
)

// Buckets names the storage bucket per purpose.
type Buckets struct {
	Logos     string `yaml:"logos"`
	Covers    string `yaml:"covers"`
	Gallery   string `yaml:"gallery"`
	Documents string `yaml:"documents"`
}

// For returns the bucket for p.
func (b Buckets) For(p Purpose) string {
	switch p {
	case PurposeLogo:
		return b.Logos
	case PurposeCover:
		return b.Covers
	case PurposeGallery:
		return b.Gallery
	case PurposeDocument:
		return b.Documents
	}
	return ""
}

// Config tunes onboarding uploads.
type Config struct {
	Buckets      Buckets              `yaml:"buckets"`
	MaxFileSize  int64                `yaml:"max_file_size"`
	Workers      int                  `yaml:"workers"`
	AllowedTypes map[Purpose][]string `yaml:"allowed_types"`
	// LinkTTL is how long a signed document link stays valid.
	LinkTTL      time.Duration        `yaml:"link_ttl"`
}

var imageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// DefaultConfig returns the production bucket layout and limits.
func DefaultConfig() Config {
	return Config{
		Buckets: Buckets{
			Logos:     "operator-logos",
			Covers:    "operator-covers",
			Gallery:   "operator-gallery",
			Documents: "operator-documents",
		},
		MaxFileSize: DefaultMaxFileSize,
		Workers:     DefaultWorkers,
		LinkTTL:     DefaultLinkTTL,
		AllowedTypes: map[Purpose][]string{
			PurposeLogo:     append([]string{"image/svg+xml"}, imageTypes...),
			PurposeCover:    imageTypes,
			PurposeGallery:  append([]string{"video/mp4"}, imageTypes...),
			PurposeDocument: {"application/pdf", "image/jpeg", "image/png"},
		},
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Buckets.Logos == "" {
		c.Buckets.Logos = d.Buckets.Logos
	}
	if c.Buckets.Covers == "" {
		c.Buckets.Covers = d.Buckets.Covers
	}
	if c.Buckets.Gallery == "" {
		c.Buckets.Gallery = d.Buckets.Gallery
	}
	if c.Buckets.Documents == "" {
		c.Buckets.Documents = d.Buckets.Documents
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.LinkTTL < time.Second {
		c.LinkTTL = d.LinkTTL
	}
	if c.AllowedTypes == nil {
		c.AllowedTypes = d.AllowedTypes
	}
	return c
}
