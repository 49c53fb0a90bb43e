package ids

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
)

// Exporters running side by side need distinct node ids for their run ids to stay unique.
const machineIdEnv = "EXPORT_MACHINE_ID"

var nodeOnce sync.Once
var node *snowflake.Node
var nodeErr error

func machineId() (int64, error) {
	val, ok := os.LookupEnv(machineIdEnv)
	if !ok || val == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", machineIdEnv)
	}
	return id, nil
}

func runIdNode() (*snowflake.Node, error) {
	nodeOnce.Do(func() {
		var id int64
		if id, nodeErr = machineId(); nodeErr != nil {
			return
		}
		node, nodeErr = snowflake.NewNode(id)
		nodeErr = errors.Wrap(nodeErr, "error creating run id generator")
	})
	return node, nodeErr
}
