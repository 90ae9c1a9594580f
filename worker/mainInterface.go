package worker

import (
	"context"
	"os"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
	log "github.com/sirupsen/logrus"
)

// StartWorker connects to the master at masterAddr and runs tasks until the
// job is done.
func StartWorker(ctx context.Context, masterAddr string, opener split.Opener, codec split.Codec, sinks task.SinkFactory, logger log.FieldLogger) error {
	client, err := Connect(masterAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	wr := New(client, opener, codec, sinks, logger)
	if host, err := os.Hostname(); err == nil {
		wr.Addr = host
	}
	wr.log.WithField("master", masterAddr).Info("[Worker] start")
	return wr.Run(ctx)
}
