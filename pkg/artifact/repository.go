package artifact

import (
	"fmt"
	"net/url"
)

// Repository produces the download URL for a version on an OS family.
type Repository interface {
	URL(v Version, os OperatingSystem) (string, error)
}

// OfficialRepository builds URLs for an official RabbitMQ release location.
type OfficialRepository struct {
	name string
	// pattern receives the release tag and the artifact file name.
	pattern func(v Version, fileName string) string
}

var (
	// GitHub serves artifacts from github.com/rabbitmq/rabbitmq-server releases.
	GitHub Repository = &OfficialRepository{
		name: "github",
		pattern: func(v Version, fileName string) string {
			return fmt.Sprintf("https://github.com/rabbitmq/rabbitmq-server/releases/download/%s/%s", v.gitHubTag(), fileName)
		},
	}

	// RabbitMQ serves artifacts from the legacy www.rabbitmq.com release tree.
	RabbitMQ Repository = &OfficialRepository{
		name: "rabbitmq",
		pattern: func(v Version, fileName string) string {
			return fmt.Sprintf("https://www.rabbitmq.com/releases/rabbitmq-server/v%s/%s", v.number, fileName)
		},
	}
)

// URL returns the artifact URL for v on os.
func (r OfficialRepository) URL(v Version, os OperatingSystem) (string, error) {
	if v.IsZero() {
		return "", fmt.Errorf("%s repository: version is required", r.name)
	}
	fileName, err := v.artifactFileName(os)
	if err != nil {
		return "", fmt.Errorf("%s repository: %w", r.name, err)
	}
	return r.pattern(v, fileName), nil
}

// String returns the repository name
func (r OfficialRepository) String() string {
	return r.name
}

// SingleURLRepository always returns the same location.
type SingleURLRepository struct {
	location string
}

// NewSingleURLRepository validates rawURL and returns a repository pinned to it.
func NewSingleURLRepository(rawURL string) (*SingleURLRepository, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse download URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("download URL must be absolute: %q", rawURL)
	}
	return &SingleURLRepository{location: u.String()}, nil
}

// URL returns the pinned location regardless of version or OS.
func (r *SingleURLRepository) URL(Version, OperatingSystem) (string, error) {
	return r.location, nil
}

// RepositoryByName returns the official repository with the given name.
func RepositoryByName(name string) (Repository, error) {
	switch name {
	case "github", "":
		return GitHub, nil
	case "rabbitmq":
		return RabbitMQ, nil
	default:
		return nil, fmt.Errorf("unknown repository: %s", name)
	}
}
