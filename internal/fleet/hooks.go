package fleet

import (
	"os"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// preCommitHookTemplate is a static shell script, not a templating
// engine (§9 Open Questions (b): lock/CI formats are adjacent to, not
// part of, the hard core). It shells out to omgctl so drift detection
// logic lives in one place.
const preCommitHookTemplate = `#!/bin/sh
# Installed by omgctl fleet install-hook.
# Blocks the commit if the local package set has drifted from omg.lock.json.
omgctl fleet check --quiet
exit $?
`

// WritePreCommitHook installs the static pre-commit hook script at path
// (typically .git/hooks/pre-commit) with executable permissions.
func WritePreCommitHook(path string) error {
	if err := os.WriteFile(path, []byte(preCommitHookTemplate), 0o755); err != nil {
		return omgerrors.Internal("failed to write pre-commit hook", err)
	}
	return nil
}
