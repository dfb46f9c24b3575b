package engine

import (
	"errors"
	"time"

	"github.com/datallboy/newsflow/internal/decoding"
	"github.com/datallboy/newsflow/internal/job"
	"github.com/datallboy/newsflow/internal/nntp"
)

// run is the life of one connection: pull work until cancelled or disabled,
// then say goodbye and leave the pool.
func (e *Engine) run(c *Connection) {
	defer e.wg.Done()

	srv, ok := e.sched.Server(c.ServerID)
	if !ok {
		e.sched.pool.Remove(c.ID)
		return
	}

	err := e.download(c, srv)
	switch {
	case c.Cancelled():
		srv.Statusf("Cancelled")
	case err != nil:
		srv.Statusf("Error: %v", err)
		e.log.Warn("Connection #%d to %s stopped: %v", c.ID, srv.Name(), err)
	}

	c.close()
	c.Disable()
	e.sched.pool.Remove(c.ID)

	if e.sched.pool.Count() == 0 {
		if n := e.sched.pauseDownloading(); n > 0 {
			e.log.Warn("No connections left, paused %d slots", n)
		}
	}
}

func (e *Engine) download(c *Connection, srv *Server) error {
	for c.Enabled() {
		if c.Cancelled() {
			return c.ctx.Err()
		}

		cmd := e.sched.FindWork(c)
		if cmd == nil {
			c.wait(e.opts.PollInterval)
			continue
		}

		start := time.Now()
		cmd.Start()
		data, err := c.session.Execute(c.ctx, cmd)
		elapsed := time.Since(start)

		if err != nil && c.Cancelled() {
			e.requeue(cmd)
			return c.ctx.Err()
		}

		if err == nil {
			cmd.Complete(data)
			e.statistics(cmd, srv, int64(len(data)), elapsed)
		} else {
			cmd.Fail(err)
			e.statistics(cmd, srv, 0, elapsed)

			retry := e.handleError(cmd, srv)
			if !retry && e.sched.pool.CountEnabled(AllServers) < 2 {
				// never shut down the last connection
				retry = true
				cmd.Tries++
			}

			var fatal error
			if !retry {
				c.Disable()
				fatal = cmd.Err
			}

			if cmd.Tries < e.sched.ServerCount()+1 || !retry {
				if st := e.sched.SwitchStack(c, cmd.SlotID); st != nil {
					cmd.Requeue()
					st.Add(cmd)
					cmd = nil
				}
			}

			if cmd != nil && c.Cancelled() {
				e.requeue(cmd)
				return c.ctx.Err()
			}
			if fatal != nil {
				if cmd != nil {
					e.process(cmd, srv)
				}
				return fatal
			}
		}

		if cmd != nil {
			e.process(cmd, srv)
		}
	}
	return nil
}

// handleError classifies a failed command. It returns false when the
// connection should not be used again.
func (e *Engine) handleError(cmd *job.Command, srv *Server) bool {
	srv.LogError(cmd, cmd.Err)

	switch {
	case nntp.IsFatal(cmd.Err):
		cmd.SetStatus(job.CommandFailed)
		return false
	case nntp.IsMissing(cmd.Err):
		cmd.SetStatus(job.CommandMissing)
		cmd.Tries++
		return true
	default:
		cmd.SetStatus(job.CommandFailed)
		cmd.Tries++
		return true
	}
}

// process hands a finished command to its file and completes the file and
// slot when it was the last one.
func (e *Engine) process(cmd *job.Command, srv *Server) {
	slot, ok := e.sched.Slot(cmd.SlotID)
	if !ok {
		return
	}
	file, ok := slot.File(cmd.FileID)
	if !ok {
		return
	}

	file.Stats().Progress(cmd.Expected)
	slot.Stats().Progress(cmd.Expected)

	if !cmd.Failed() && cmd.Decode {
		art, err := decoding.Decode(cmd.Data, cmd.Expected)
		if err != nil {
			cmd.Fail(&nntp.Error{Code: nntp.CodeUnknown, Message: "Decode: " + err.Error()})
		} else {
			cmd.Data = art.Data
			cmd.Begin = art.Begin
		}
	}
	if cmd.Failed() {
		cmd.Data = nil
		file.LogError(cmd)
	}

	if err := file.Output().Store(cmd.Index, cmd); err != nil {
		srv.Statusf("Decode: %v", err)
		if !errors.Is(err, job.ErrCorrupt) {
			return
		}
	}

	if !file.Output().Finished() || !file.MarkDecoded() {
		return
	}
	e.fileDone(slot, file, srv)

	if slot.Finish() {
		e.slotDone(slot)
	}
}

func (e *Engine) fileDone(slot *job.Slot, file *job.File, srv *Server) {
	if slot.Options.OutDir == "" || !file.Output().HasData() {
		return
	}
	path, err := e.writer.Save(slot.Options.OutDir, file.Name, file.Output().Bytes())
	if err != nil {
		srv.Statusf("Write %s: %v", file.Name, err)
		e.log.Error("Writing %s failed: %v", file.Name, err)
		return
	}
	file.Output().Release()
	e.log.Info("Wrote %s", path)
}

func (e *Engine) slotDone(slot *job.Slot) {
	if slot.Status() == job.SlotCompleted {
		e.log.Info("Slot #%d %s completed", slot.ID, slot.Name)
	} else {
		e.log.Warn("Slot #%d %s failed: %s", slot.ID, slot.Name, slot.StatusLine())
	}
	if e.opts.OnHistory != nil {
		e.opts.OnHistory(slot)
	}
}

func (e *Engine) statistics(cmd *job.Command, srv *Server, n int64, elapsed time.Duration) {
	srv.Stats().Add(n, elapsed)

	slot, ok := e.sched.Slot(cmd.SlotID)
	if !ok {
		return
	}
	slot.Stats().Add(n, elapsed)
	if file, ok := slot.File(cmd.FileID); ok {
		file.Stats().Add(n, elapsed)
	}
}

// requeue returns an interrupted command to its file under its own index.
func (e *Engine) requeue(cmd *job.Command) {
	slot, ok := e.sched.Slot(cmd.SlotID)
	if !ok {
		return
	}
	if file, ok := slot.File(cmd.FileID); ok {
		file.Requeue(cmd)
	}
}
