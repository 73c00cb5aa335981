// Command queuectl drives the queue from a terminal. It joins the shared
// medium and bus like any other context, so its actions reach every
// running console and display.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"qms/ticketing/internal/bus"
	"qms/ticketing/internal/config"
	"qms/ticketing/internal/models"
	"qms/ticketing/internal/platform"
	"qms/ticketing/internal/queue"
	"qms/ticketing/internal/store"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], config.Load(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "queuectl: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	station string
	status  string
	date    string
	limit   int
	json    bool
}

func run(ctx context.Context, args []string, cfg config.Config, out io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("queuectl", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.station, "station", "s", "", "station id for call, call-next and next")
	flagSet.StringVar(&opts.status, "status", "", "only list tickets with this status")
	flagSet.StringVar(&opts.date, "date", "", "stats day as YYYY-MM-DD (default today)")
	flagSet.IntVarP(&opts.limit, "limit", "n", 0, "number of recent calls (default from configuration)")
	flagSet.BoolVar(&opts.json, "json", false, "print JSON instead of a table")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(out, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(out, flagSet)
		return nil
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(out, flagSet)
		return errUsage
	}
	command, rest := rest[0], rest[1:]

	p, err := platform.Open(ctx, cfg, "queuectl")
	if err != nil {
		return err
	}
	defer p.Close()

	c := &cli{platform: p, cfg: cfg, opts: opts, out: out}
	return c.dispatch(ctx, command, rest)
}

type cli struct {
	platform *platform.Platform
	cfg      config.Config
	opts     options
	out      io.Writer
}

func (c *cli) dispatch(ctx context.Context, command string, args []string) error {
	engine := c.platform.Engine(c.cfg)
	switch command {
	case "issue":
		serviceID, err := oneArg(command, args)
		if err != nil {
			return err
		}
		ticket, err := engine.IssueTicket(ctx, serviceID)
		if err != nil {
			return err
		}
		return c.printTickets(ctx, ticket)
	case "call":
		ticketID, err := oneArg(command, args)
		if err != nil {
			return err
		}
		if c.opts.station == "" {
			return fmt.Errorf("%w: call needs --station", errUsage)
		}
		ticket, err := engine.CallTicket(ctx, ticketID, c.opts.station)
		if err != nil {
			return err
		}
		return c.printTickets(ctx, ticket)
	case "call-next":
		if c.opts.station == "" {
			return fmt.Errorf("%w: call-next needs --station", errUsage)
		}
		ticket, err := engine.CallNext(ctx, c.opts.station)
		if err != nil {
			return err
		}
		return c.printTickets(ctx, ticket)
	case "next":
		if c.opts.station == "" {
			return fmt.Errorf("%w: next needs --station", errUsage)
		}
		ticket, ok, err := engine.NextEligibleTicket(ctx, c.opts.station)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.out, "no eligible ticket")
			return nil
		}
		return c.printTickets(ctx, ticket)
	case store.ActionStart, store.ActionFinish, store.ActionAbsent, store.ActionRecall:
		ticketID, err := oneArg(command, args)
		if err != nil {
			return err
		}
		action := map[string]func(context.Context, string) (models.Ticket, error){
			store.ActionStart:  engine.StartService,
			store.ActionFinish: engine.FinishService,
			store.ActionAbsent: engine.MarkAbsent,
			store.ActionRecall: engine.Recall,
		}[command]
		ticket, err := action(ctx, ticketID)
		if err != nil {
			return err
		}
		return c.printTickets(ctx, ticket)
	case "list":
		tickets, err := engine.Tickets(ctx)
		if err != nil {
			return err
		}
		if c.opts.status != "" {
			filtered := tickets[:0]
			for _, t := range tickets {
				if t.Status == c.opts.status {
					filtered = append(filtered, t)
				}
			}
			tickets = filtered
		}
		return c.printTickets(ctx, tickets...)
	case "recent":
		tickets, err := engine.RecentCalls(ctx, c.opts.limit)
		if err != nil {
			return err
		}
		return c.printTickets(ctx, tickets...)
	case "stats":
		date := time.Now().In(c.cfg.Location())
		if c.opts.date != "" {
			parsed, err := time.ParseInLocation(store.DayLayout, c.opts.date, c.cfg.Location())
			if err != nil {
				return fmt.Errorf("%w: --date must be YYYY-MM-DD", errUsage)
			}
			date = parsed
		}
		stats, err := engine.DailyStats(ctx, date)
		if err != nil {
			return err
		}
		return c.printJSON(stats)
	case "reset":
		if err := engine.ResetDay(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "queue cleared")
		return nil
	case "seed":
		path, err := oneArg(command, args)
		if err != nil {
			return err
		}
		if err := c.platform.Seed(ctx, path); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "catalog seeded from %s\n", path)
		return nil
	case "watch":
		return c.watch(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func oneArg(command string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: %s takes exactly one argument", errUsage, command)
	}
	return strings.TrimSpace(args[0]), nil
}

// watch prints every bus event until ctx ends.
func (c *cli) watch(ctx context.Context) error {
	sub := c.platform.Bus.On(bus.Wildcard, func(e bus.Event) {
		frame, err := json.Marshal(e)
		if err != nil {
			log.Printf("watch encode failed type=%s err=%v", e.Type, err)
			return
		}
		fmt.Fprintln(c.out, string(frame))
	})
	defer sub.Unsubscribe()
	<-ctx.Done()
	return nil
}

func (c *cli) printJSON(v any) error {
	encoder := json.NewEncoder(c.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (c *cli) printTickets(ctx context.Context, tickets ...models.Ticket) error {
	if c.opts.json {
		return c.printJSON(tickets)
	}
	cfg, err := c.platform.Catalog.Config(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tSTATUS\tSERVICE\tSTATION\tISSUED\tID")
	for _, t := range tickets {
		station := "-"
		if t.StationNumber > 0 {
			station = fmt.Sprintf("%d", t.StationNumber)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			queue.FormatCode(t, cfg), t.Status, t.ServiceID, station, t.IssuedAt.Format("15:04:05"), t.TicketID)
	}
	return w.Flush()
}

func printHelp(out io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprint(out, `queuectl operates the ticket queue over the shared medium.

Usage:
  queuectl [flags] <command> [argument]

Commands:
  issue <service>        issue a ticket
  call <ticket>          call a waiting ticket (--station)
  call-next              call the next eligible ticket (--station)
  next                   show the ticket call-next would pick (--station)
  start|finish|absent|recall <ticket>
  list                   list today's tickets (--status)
  recent                 list the most recent calls (--limit)
  stats                  daily statistics (--date)
  reset                  clear today's tickets
  seed <file.yaml>       load services, stations and configuration
  watch                  print bus events until interrupted

Flags:
`)
	flagSet.PrintDefaults()
}
