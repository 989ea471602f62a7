// Package deploy writes rendered portfolios to the static output directory
// served under /generated/.
package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Deployer publishes one HTML page per portfolio subdomain.
type Deployer struct {
	outputDir string
	publicURL string
}

func New(outputDir, publicURL string) *Deployer {
	return &Deployer{
		outputDir: outputDir,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Publish writes the page to <outputDir>/<subdomain>/index.html and returns
// its public URL. The write is atomic: the page is staged to a temp file
// and renamed into place, so a concurrent reader never sees a half-written
// page.
func (d *Deployer) Publish(subdomain, html string) (string, error) {
	if !subdomainPattern.MatchString(subdomain) {
		return "", fmt.Errorf("invalid subdomain %q", subdomain)
	}

	dir := filepath.Join(d.outputDir, subdomain)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create site directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "index-*.html")
	if err != nil {
		return "", fmt.Errorf("stage page: %w", err)
	}
	if _, err := tmp.WriteString(html); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write page: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close page: %w", err)
	}

	target := filepath.Join(dir, "index.html")
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish page: %w", err)
	}

	return d.publicURL + "/generated/" + subdomain + "/index.html", nil
}
