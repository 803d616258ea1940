package inspirer

import "github.com/pkg/errors"

const daemonEnvVar = "INSPIRER_DAEMONIZED"

func spawnDaemon() (int, error) {
	return 0, errors.New("--daemonize is not supported on windows")
}
