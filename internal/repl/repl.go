// Package repl implements the interactive operator command loop: stat, cam,
// igmp, help, and quit, read one line at a time from stdin and written to
// an injected writer so tests can assert on output without a real terminal.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sort"

	"github.com/malbeclabs/l2switch/internal/cam"
	"github.com/malbeclabs/l2switch/internal/iface"
	"github.com/malbeclabs/l2switch/internal/mcast"
)

// REPL reads commands from an input reader and writes results to out.
type REPL struct {
	in    io.Reader
	out   io.Writer
	stack *iface.Stack
	cam   *cam.Table
	mcast *mcast.Stack
}

// New constructs a REPL reading commands from in and writing output to out.
func New(in io.Reader, out io.Writer, stack *iface.Stack, camTable *cam.Table, mcastStack *mcast.Stack) *REPL {
	return &REPL{in: in, out: out, stack: stack, cam: camTable, mcast: mcastStack}
}

// Run reads and dispatches commands until EOF, a "quit" command, or ctx is
// cancelled. Input is read from a background goroutine so a blocked Scan
// doesn't prevent the loop from responding to cancellation, mirroring the
// teacher's interactive-SQL prompt loop.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)

	scanner := bufio.NewScanner(r.in)
	go func() {
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errs <- err
			return
		}
		close(lines)
	}()

	fmt.Fprint(r.out, "> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if r.dispatch(line) {
				return nil
			}
			fmt.Fprint(r.out, "> ")
		}
	}
}

// dispatch handles one command line, returning true if the REPL should
// stop.
func (r *REPL) dispatch(line string) bool {
	switch line {
	case "stat":
		r.stat()
	case "cam":
		fmt.Fprint(r.out, r.cam.String())
	case "igmp":
		r.igmp()
	case "help":
		r.help()
	case "quit":
		return true
	default:
		fmt.Fprintf(r.out, "unknown command %q; try help\n", line)
	}
	return false
}

func (r *REPL) stat() {
	fmt.Fprintln(r.out, "Iface  Sent-B  Sent-frm  Recv-B  Recv-frm")
	for _, i := range r.stack.All() {
		c := i.Counters()
		fmt.Fprintf(r.out, "%s  %d  %d  %d  %d\n", i.Name(), c.SentBytes, c.SentFrames, c.RecvBytes, c.RecvFrames)
	}
}

func (r *REPL) igmp() {
	fmt.Fprintln(r.out, "GroupAddr  Ifaces")
	querier := r.mcast.Querier()
	groups := r.mcast.Groups()
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

	for _, g := range groups {
		mc, ok := r.mcast.Find(g)
		if !ok {
			continue
		}
		fmt.Fprintf(r.out, "%s\t", dottedQuad(g))
		first := true
		if querier != nil {
			fmt.Fprintf(r.out, "*%s", querier.Name())
			first = false
		}
		for _, i := range mc.Members() {
			if !first {
				fmt.Fprint(r.out, ", ")
			}
			fmt.Fprint(r.out, i.Name())
			first = false
		}
		fmt.Fprintln(r.out)
	}
}

func (r *REPL) help() {
	fmt.Fprintln(r.out, "commands:")
	fmt.Fprintln(r.out, "  stat  - per-interface traffic counters")
	fmt.Fprintln(r.out, "  cam   - CAM table contents")
	fmt.Fprintln(r.out, "  igmp  - multicast group membership")
	fmt.Fprintln(r.out, "  help  - this text")
	fmt.Fprintln(r.out, "  quit  - exit")
}

func dottedQuad(g mcast.GroupKey) string {
	b := []byte{byte(g >> 24), byte(g >> 16), byte(g >> 8), byte(g)}
	return net.IP(b).String()
}
