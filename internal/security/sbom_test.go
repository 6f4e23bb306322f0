package security

import (
	"testing"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSBOMBuildsComponentsWithPURL(t *testing.T) {
	pkgs := []pkgdb.Package{
		{Name: "neovim", Version: "0.10.0", Repo: "extra", Licenses: []string{"Apache-2.0"}},
	}

	sbom := GenerateSBOM(pkgs)
	require.Len(t, sbom.Components, 1)
	assert.Equal(t, "CycloneDX", sbom.BOMFormat)
	assert.Equal(t, "pkg:extra/neovim@0.10.0", sbom.Components[0].PURL)
}

func TestMarshalSBOMProducesJSON(t *testing.T) {
	sbom := GenerateSBOM([]pkgdb.Package{{Name: "vim", Version: "9.1.0", Repo: "extra"}})
	data, err := MarshalSBOM(sbom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"bomFormat\"")
}
