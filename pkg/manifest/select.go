package manifest

import (
	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/versions"
)

// Select returns the first block of phase whose for spec matches
// hostVersion and, for upgrades, whose from spec matches priorVersion.
// An empty spec matches any version.
//
// When nothing matches the MANIFEST_NO_MATCH error carries an "emulate"
// detail: the newest host version below hostVersion that some block
// accepts, when there is one.
func Select(info *PackageInfo, phase Phase, hostVersion, priorVersion string) (*Block, error) {
	var candidates []*Block
	for i := range info.Blocks {
		b := &info.Blocks[i]
		if b.Phase != phase {
			continue
		}
		if phase == PhaseUpgrade && b.From != "" && !versions.Matches(priorVersion, b.From) {
			continue
		}
		candidates = append(candidates, b)
		if b.For == "" || versions.Matches(hostVersion, b.For) {
			return b, nil
		}
	}

	err := errors.Newf(errors.ErrManifestNoMatch, "%s has no %s block for version %s", info.ID, phase, hostVersion).
		WithDetail("phase", string(phase)).
		WithDetail("host_version", hostVersion)
	if best := suggest(candidates, hostVersion); best != "" {
		err = err.WithDetail("emulate", best)
	}
	return nil, err
}

// suggest finds the newest host version some candidate block accepts
// without exceeding hostVersion.
func suggest(blocks []*Block, hostVersion string) string {
	best := ""
	for _, b := range blocks {
		v, ok := versions.HighestSatisfying(b.For, hostVersion)
		if !ok {
			continue
		}
		if best == "" || versions.Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}

// Emulation returns the suggested host version carried by a
// MANIFEST_NO_MATCH error, if any.
func Emulation(err error) (string, bool) {
	if !errors.IsErrorCode(err, errors.ErrManifestNoMatch) {
		return "", false
	}
	v, ok := errors.GetErrorDetails(err)["emulate"].(string)
	return v, ok
}
