// Package workerclient isolates one download run behind a goroutine and a
// message protocol, the Go analogue of running the facade in a background
// Web Worker (spec §4.13, §6). One Worker handles exactly one download for
// its whole lifetime; it exits when that download completes, fails, or is
// cancelled.
package workerclient

import (
	"context"
	"time"

	"github.com/openbasemap/tiledl"
)

// CommandType names a message from the owner to the worker.
type CommandType string

const (
	CmdStartDownload  CommandType = "START_DOWNLOAD"
	CmdPauseDownload  CommandType = "PAUSE_DOWNLOAD"
	CmdResumeDownload CommandType = "RESUME_DOWNLOAD"
	CmdCancelDownload CommandType = "CANCEL_DOWNLOAD"
	CmdGetProgress    CommandType = "GET_PROGRESS"
)

// Command is one message from the owner to the worker. ID correlates it
// with the Response(s) it provokes.
type Command struct {
	ID     string
	Type   CommandType
	Config tiledl.DownloadConfig // only used by CmdStartDownload
}

// ResponseType names a message from the worker to the owner.
type ResponseType string

const (
	RespDownloadStarted   ResponseType = "DOWNLOAD_STARTED"
	RespProgressUpdate    ResponseType = "PROGRESS_UPDATE"
	RespTileDownloaded    ResponseType = "TILE_DOWNLOADED"
	RespDownloadComplete  ResponseType = "DOWNLOAD_COMPLETE"
	RespDownloadError     ResponseType = "DOWNLOAD_ERROR"
	RespDownloadCancelled ResponseType = "DOWNLOAD_CANCELLED"
)

// Response is one message from the worker to the owner.
type Response struct {
	ID            string
	Type          ResponseType
	TotalTiles    int
	EstimatedSize int64
	Progress      tiledl.LiveProgress
	Tile          tiledl.TilePayload
	Stats         tiledl.DownloadStats
	Err           error
}

const progressInterval = 1 * time.Second

// Worker runs one download in a dedicated goroutine, translating between
// the Command/Response protocol and a tiledl.DownloadHandle.
type Worker struct {
	commands  chan Command
	responses chan Response
}

// New creates a Worker. Call Run to start it; it exits once its one
// download reaches a terminal state.
func New() *Worker {
	return &Worker{
		commands:  make(chan Command, 8),
		responses: make(chan Response, 64),
	}
}

// Commands is where the owner sends commands.
func (w *Worker) Commands() chan<- Command { return w.commands }

// Responses is where the owner receives responses, in emission order.
func (w *Worker) Responses() <-chan Response { return w.responses }

// Run blocks until the worker's one download finishes or ctx is done. It
// is meant to be started with `go worker.Run(ctx)`.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.responses)

	var startCmd Command
	select {
	case cmd := <-w.commands:
		if cmd.Type != CmdStartDownload {
			w.responses <- Response{ID: cmd.ID, Type: RespDownloadError, Err: errUnexpectedCommand(cmd.Type)}
			return
		}
		startCmd = cmd
	case <-ctx.Done():
		return
	}

	handle, err := tiledl.DownloadTiles(ctx, startCmd.Config)
	if err != nil {
		w.responses <- Response{ID: startCmd.ID, Type: RespDownloadError, Err: err}
		return
	}

	w.responses <- Response{
		ID:            startCmd.ID,
		Type:          RespDownloadStarted,
		TotalTiles:    handle.TotalTiles,
		EstimatedSize: handle.EstimatedSize,
	}

	w.serve(ctx, startCmd.ID, handle)
}

func (w *Worker) serve(ctx context.Context, id string, handle *tiledl.DownloadHandle) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	tiles := handle.Tiles()
	var tilesDone bool

	for {
		select {
		case cmd := <-w.commands:
			switch cmd.Type {
			case CmdPauseDownload:
				handle.Pause()
			case CmdResumeDownload:
				handle.Resume()
			case CmdCancelDownload:
				handle.Cancel()
			case CmdGetProgress:
				w.responses <- Response{ID: cmd.ID, Type: RespProgressUpdate, Progress: handle.Progress()}
			}

		case tile, ok := <-tiles:
			if !ok {
				tiles = nil
				tilesDone = true
				continue
			}
			w.responses <- Response{ID: id, Type: RespTileDownloaded, Tile: tile}

		case <-ticker.C:
			w.responses <- Response{ID: id, Type: RespProgressUpdate, Progress: handle.Progress()}

		case res := <-handle.Stats():
			if !tilesDone {
				// drain any buffered tiles sent before the stream closed
				for tile := range tiles {
					w.responses <- Response{ID: id, Type: RespTileDownloaded, Tile: tile}
				}
			}
			w.emitTerminal(id, handle.State(), res)
			return

		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) emitTerminal(id string, state tiledl.DownloadState, res tiledl.StatsResult) {
	switch {
	case state == tiledl.StateCancelled:
		w.responses <- Response{ID: id, Type: RespDownloadCancelled, Stats: res.Stats}
	case res.Err != nil:
		w.responses <- Response{ID: id, Type: RespDownloadError, Stats: res.Stats, Err: res.Err}
	default:
		w.responses <- Response{ID: id, Type: RespDownloadComplete, Stats: res.Stats}
	}
}

type errUnexpectedCommand CommandType

func (e errUnexpectedCommand) Error() string {
	return "workerclient: expected START_DOWNLOAD as the first command, got " + string(e)
}
