package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunoga/docsync"
	"github.com/brunoga/docsync/busy"
	"github.com/brunoga/docsync/config"
	"github.com/brunoga/docsync/internal/core"
	"github.com/brunoga/docsync/internal/logger"
	"github.com/brunoga/docsync/lifecycle"
	"github.com/brunoga/docsync/memdoc"
	"github.com/brunoga/docsync/redisbus"
	"github.com/brunoga/docsync/revert"
)

var (
	simRevert  bool
	simRedis   bool
	simClients int
	simEdits   int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate collaborators editing one entry",
	Long: `Simulate collaborators editing the title of one entry.

Each collaborator binds a form input to the title through its own cursor
provider. Edits are submitted in a seeded random order, some of them held
back so remote operations overtake them. Afterwards every collaborator must
hold the server's content. The entry is published before editing and can be
reverted to its starting fields with --revert.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cfg
		if cmd.Flags().Changed("clients") {
			sc.Sim.Clients = simClients
		}
		if cmd.Flags().Changed("edits") {
			sc.Sim.Edits = simEdits
		}
		if err := sc.Validate(); err != nil {
			return err
		}

		var relay *redisbus.Relay
		if simRedis {
			r, err := redisbus.Dial(cmd.Context(), sc.Redis, redisbus.WithLogger(log.SugaredLogger.Desugar()))
			if err != nil {
				return err
			}
			defer r.Close()
			relay = r
		}

		report, err := simulate(cmd.Context(), sc, log, relay, simRevert)
		if err != nil {
			return err
		}
		report.print(cmd)
		if !report.Converged {
			return fmt.Errorf("collaborators did not converge")
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simRevert, "revert", false, "Revert the entry to its starting fields after editing")
	simulateCmd.Flags().BoolVar(&simRedis, "redis", false, "Publish the first collaborator's changes to Redis")
	simulateCmd.Flags().IntVar(&simClients, "clients", 0, "Number of collaborators (overrides config)")
	simulateCmd.Flags().IntVar(&simEdits, "edits", 0, "Number of edits (overrides config)")
}

var (
	fieldsPath = docsync.P("fields")
	titlePath  = docsync.P("fields", "title", "en-US")
)

func sampleEntry() map[string]any {
	return map[string]any{
		"fields": map[string]any{
			"title": map[string]any{"en-US": "Untitled"},
			"body":  map[string]any{"en-US": ""},
		},
	}
}

type collaborator struct {
	doc      *memdoc.Doc
	scope    *docsync.BasicScope
	provider *docsync.Provider
	model    *docsync.ValueModel
	binding  *docsync.Binding
}

type held struct {
	doc  *memdoc.Doc
	stop func()
}

type simReport struct {
	Clients     int
	Edits       int
	Held        int
	WriteErrors int
	Version     int
	Title       any
	Converged   bool
	Reverted    bool
	Diff        string
	States      []lifecycle.State
}

func (r *simReport) print(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "collaborators: %d\n", r.Clients)
	fmt.Fprintf(out, "edits:         %d (%d held back)\n", r.Edits, r.Held)
	fmt.Fprintf(out, "write errors:  %d\n", r.WriteErrors)
	fmt.Fprintf(out, "version:       %d\n", r.Version)
	fmt.Fprintf(out, "title:         %v\n", r.Title)
	fmt.Fprintf(out, "converged:     %v\n", r.Converged)
	if r.Reverted {
		fmt.Fprintf(out, "reverted:      %s\n", r.Diff)
	}
	for _, s := range r.States {
		fmt.Fprintf(out, "state:         %s\n", s)
	}
}

func simulate(ctx context.Context, sc config.Config, log *logger.Logger, relay *redisbus.Relay, doRevert bool) (*simReport, error) {
	log = logger.Or(log)
	zl := log.SugaredLogger.Desugar()
	rng := rand.New(rand.NewSource(sc.Sim.Seed))
	report := &simReport{Clients: sc.Sim.Clients, Edits: sc.Sim.Edits}

	coord := busy.New(func(b bool) { log.Debug("busy changed", "busy", b) },
		busy.WithDefaultTimeout(sc.BusyTimeout.Duration), busy.WithLogger(zl))
	defer coord.StopAll()

	server := memdoc.NewServer(sampleEntry(), memdoc.WithID("entry-1"), memdoc.WithLogger(zl))
	entity := newLocalEntity(server.ID(), server)

	clients := make([]*collaborator, sc.Sim.Clients)
	for i := range clients {
		c := &collaborator{
			doc:      server.Connect(),
			scope:    docsync.NewScope(),
			provider: docsync.NewProvider(docsync.WithLogger(zl)),
			model:    docsync.NewValueModel(nil),
		}
		c.provider.Watch(c.scope)
		cursor := c.provider.Update(c.doc, titlePath)
		c.binding = docsync.Bind(cursor, c.model,
			docsync.WithLogger(zl),
			docsync.OnError(func(err error) { report.WriteErrors++ }))
		c.binding.Watch(c.scope)
		clients[i] = c
	}
	defer func() {
		for _, c := range clients {
			c.scope.Destroy()
			c.doc.Close()
		}
	}()

	if relay != nil {
		clients[0].provider.Bus().SetRelay(relay)
	}

	fields := docsync.NewCursor(clients[0].doc, fieldsPath, docsync.WithBus(clients[0].provider.Bus()), docsync.WithLogger(zl))
	defer fields.Close()
	reverter, err := revert.New(fields.Get(), clients[0].doc.Version(), revert.DocumentVersion(clients[0].doc),
		revert.CursorSetter{Cursor: fields}, revert.WithFieldsReader(revert.CursorFields(fields)), revert.WithLogger(zl))
	if err != nil {
		return nil, err
	}

	manager := lifecycle.NewManager(entity, entity.Current(), lifecycle.WithLogger(zl))
	manager.WatchState(func(s lifecycle.State) { report.States = append(report.States, s) })
	if _, err := manager.Apply(ctx, lifecycle.Publish); err != nil {
		return nil, err
	}

	var pending []held
	flush := func() {
		for _, h := range pending {
			h.doc.Flush()
			h.stop()
		}
		pending = pending[:0]
	}

	for i := 0; i < sc.Sim.Edits; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := rng.Intn(len(clients))
		c := clients[idx]
		value := fmt.Sprintf("edit %d by collaborator %d", i, idx)

		stop := coord.Start(0)
		if rng.Intn(3) == 0 {
			c.doc.Hold()
		}
		c.model.SetValue(value)
		c.binding.Changed(value)
		if c.doc.Pending() > 0 {
			pending = append(pending, held{doc: c.doc, stop: stop})
			report.Held++
		} else {
			stop()
		}
		if len(pending) > 0 && rng.Intn(2) == 0 {
			flush()
		}

		if d := sc.Sim.Delay.Duration; d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
	}
	flush()
	manager.UpdateSys(entity.Current())

	if doRevert && reverter.HasChanges() {
		diff, err := reverter.Diff()
		if err != nil {
			return nil, err
		}
		if err := reverter.Revert(ctx); err != nil {
			return nil, err
		}
		report.Reverted = true
		report.Diff = diff.String()
		manager.UpdateSys(entity.Current())
	}

	report.Version = server.Version()
	report.Title = titleOf(server.Snapshot())
	report.Converged = converged(server, clients)
	log.Info("simulation finished", "version", report.Version, "converged", report.Converged, "busy", coord.Count())
	return report, nil
}

func converged(server *memdoc.Server, clients []*collaborator) bool {
	want := server.Snapshot()
	title := titleOf(want)
	for _, c := range clients {
		if !core.Equal(c.doc.At(nil).Get(), want) {
			return false
		}
		if !core.Equal(c.model.Value(), title) {
			return false
		}
	}
	return true
}

func titleOf(content any) any {
	root, _ := content.(map[string]any)
	fields, _ := root["fields"].(map[string]any)
	title, _ := fields["title"].(map[string]any)
	return title["en-US"]
}
