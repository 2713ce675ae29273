package controlplane

import (
	"context"
	"time"

	"github.com/websoft9/appos/engine/internal/portcheck"
	"github.com/websoft9/appos/engine/internal/sshtransport"
	"github.com/websoft9/appos/engine/internal/wire"
)

// paramList adapts a flat []wire.Param into the ParamSource
// sshtransport.HostAuthFromParams expects, without needing a live
// registry.Session for one-shot requests (spec §4.8: ExecCommand carries
// its own params, independent of any session).
type paramList []wire.Param

func (p paramList) ParamOr(key, fallback string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return fallback
}

func jumpHostsFromWire(jumps []wire.JumpHost) []sshtransport.HostAuth {
	hops := make([]sshtransport.HostAuth, 0, len(jumps))
	for _, jh := range jumps {
		hops = append(hops, sshtransport.HostAuth{
			Host:       jh.Host,
			Port:       jh.Port,
			User:       jh.Username,
			Password:   jh.Password,
			PrivateKey: jh.PrivateKey,
			Passphrase: jh.Passphrase,
		})
	}
	return hops
}

// handleExecCommand runs one stateless remote command on a detached worker
// and reports the outcome (spec §4.8 "ExecCommand"). It never touches the
// session registry: exec requests are not sessions.
func (c *Client) handleExecCommand(req wire.ExecCommand) {
	run := func() {
		target := sshtransport.HostAuthFromParams(req.Host, req.Port, paramList(req.Params))
		jumps := jumpHostsFromWire(req.JumpHosts)

		result, err := sshtransport.Exec(context.Background(), jumps, target, req.Command)
		out := wire.ExecCommandResult{RequestID: req.RequestID}
		if err != nil {
			out.Success = false
			out.ErrorMessage = err.Error()
		} else {
			out.Success = true
			out.StdoutData = result.Stdout
			out.StderrData = result.Stderr
			out.ExitCode = result.ExitCode
		}
		_ = c.SendExecResult(out)
	}

	if c.Jobs == nil || !c.Jobs.Submit(run) {
		go run()
	}
}

// handlePortCheck runs one reachability batch on a detached worker and
// reports the outcome (spec §4.8 "PortCheck").
func (c *Client) handlePortCheck(req wire.PortCheck) {
	run := func() {
		timeout := portcheck.DefaultTimeout
		if req.TimeoutMS > 0 {
			timeout = time.Duration(req.TimeoutMS) * time.Millisecond
		}

		targets := make([]portcheck.Target, 0, len(req.Targets))
		for _, t := range req.Targets {
			targets = append(targets, portcheck.Target{ID: t.ID, Host: t.Host, Port: t.Port})
		}

		results := portcheck.CheckBatch(c.Jobs, targets, timeout)
		items := make([]wire.PortCheckResultItem, 0, len(results))
		for _, r := range results {
			items = append(items, wire.PortCheckResultItem{ID: r.ID, Online: r.Online})
		}
		_ = c.SendPortCheckResult(wire.PortCheckResult{RequestID: req.RequestID, Results: items})
	}

	if c.Jobs == nil || !c.Jobs.Submit(run) {
		go run()
	}
}
