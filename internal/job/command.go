package job

import (
	"sync/atomic"

	"github.com/datallboy/newsflow/internal/nntp"
)

// Command is one schedulable request: the lines to send for a segment, or a
// batch of raw lines. Only the connection that took it touches its fields,
// except Status which snapshots read concurrently.
type Command struct {
	// Index is the 1-based position inside the File. It decides the output
	// order and stays fixed while the command moves between queues.
	Index    int64
	FileID   int64
	SlotID   int64
	Expected int64
	Decode   bool

	Tries int
	Err   *nntp.Error
	Data  []byte
	// Begin is the 1-based file offset of Data when the encoding declares
	// one, zero otherwise.
	Begin int64

	lines  []string
	cursor int
	status atomic.Int32
}

func NewCommand(lines []string, expected int64) *Command {
	return &Command{
		lines:    append([]string(nil), lines...),
		Expected: expected,
	}
}

func (c *Command) Lines() []string { return c.lines }

func (c *Command) Reset() { c.cursor = 0 }

// Next advances the cursor and returns the line to send, or "" when none
// are left.
func (c *Command) Next() string {
	if c.cursor >= len(c.lines) {
		return ""
	}
	c.cursor++
	return c.lines[c.cursor-1]
}

func (c *Command) Current() string {
	if c.cursor == 0 || c.cursor > len(c.lines) {
		return ""
	}
	return c.lines[c.cursor-1]
}

func (c *Command) Finished() bool { return c.cursor >= len(c.lines) }

func (c *Command) Status() CommandStatus {
	return CommandStatus(c.status.Load())
}

func (c *Command) SetStatus(s CommandStatus) {
	c.status.Store(int32(s))
}

// Start marks the command as being executed.
func (c *Command) Start() {
	c.Data = nil
	c.Begin = 0
	c.SetStatus(CommandDownloading)
}

func (c *Command) Complete(data []byte) {
	c.Data = data
	c.Err = nil
	c.SetStatus(CommandCompleted)
}

// Fail records err. Missing articles get their own status so a File can tell
// them apart from broken connections.
func (c *Command) Fail(err error) {
	c.Data = nil
	c.Err = nntp.TranslateError(err)
	if nntp.IsMissing(err) {
		c.SetStatus(CommandMissing)
		return
	}
	c.SetStatus(CommandFailed)
}

// Requeue prepares the command to be scheduled again.
func (c *Command) Requeue() {
	c.Data = nil
	c.Begin = 0
	c.SetStatus(CommandQueued)
}

func (c *Command) Failed() bool {
	s := c.Status()
	return s == CommandFailed || s == CommandMissing
}
