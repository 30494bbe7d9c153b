package deploy

import (
	"encoding/json"
	"fmt"
)

const manifestPath = "package.json"

type packageScripts struct {
	Dev   string `json:"dev"`
	Build string `json:"build"`
	Start string `json:"start"`
	Lint  string `json:"lint"`
}

type packageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private"`
	Scripts         packageScripts    `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// PackageManifest renders the Next.js 14 package.json added to generated
// projects that do not ship their own.
func PackageManifest(repoName string) (string, error) {
	manifest := packageManifest{
		Name:    repoName,
		Version: "0.1.0",
		Private: true,
		Scripts: packageScripts{
			Dev:   "next dev",
			Build: "next build",
			Start: "next start",
			Lint:  "next lint",
		},
		Dependencies: map[string]string{
			"next":      "14.1.0",
			"react":     "^18",
			"react-dom": "^18",
		},
		DevDependencies: map[string]string{
			"@types/node":      "^20",
			"@types/react":     "^18",
			"@types/react-dom": "^18",
			"autoprefixer":     "^10.0.1",
			"postcss":          "^8",
			"tailwindcss":      "^3.3.0",
			"typescript":       "^5",
		},
	}
	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode package manifest: %w", err)
	}
	return string(out), nil
}
